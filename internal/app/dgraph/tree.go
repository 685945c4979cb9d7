package dgraph

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"server-rewards-app/internal/app/referral"
)

const queryTimeout = 10 * time.Second

// Downline reads the referral tree below userID from the mirror.
func (m *Mirror) Downline(ctx context.Context, userID int64, depth int) (referral.Node, error) {
	if depth > referral.MaxTreeDepth {
		depth = referral.MaxTreeDepth
	}
	// @recurse depth counts the root level too
	q := fmt.Sprintf(`
{
	data(func: eq(user_id, %d)) @recurse(depth: %d, loop: false) {
		u:user_id
		l:refers
	}
}`, userID, depth+1)

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	resp, err := m.dg.NewReadOnlyTxn().BestEffort().Query(ctx, q)
	if err != nil {
		return referral.Node{UserID: userID}, errors.Wrap(err, "query downline")
	}
	return decodeTree(resp.Json, userID, depth)
}

func decodeTree(data []byte, userID int64, depth int) (referral.Node, error) {
	var r struct {
		Users []UserResp `json:"data"`
	}
	if err := json.Unmarshal(data, &r); err != nil {
		return referral.Node{UserID: userID}, errors.Wrap(err, "json unmarshal")
	}
	if len(r.Users) == 0 {
		return referral.Node{UserID: userID}, nil
	}
	log.Debugf("dgraph downline of user %d: %d users", userID, r.Users[0].Count())
	return r.Users[0].ToNode(depth), nil
}
