package referral

import (
	"context"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"server-rewards-app/internal/dao"
)

// MaxTreeDepth bounds downline rendering.
const MaxTreeDepth = 10

// Graph yields the direct referrer of a user.
type Graph interface {
	DirectReferrer(ctx context.Context, userID int64) (referrerID int64, found bool, err error)
}

// Node is one user in a rendered referral tree.
type Node struct {
	UserID   int64  `json:"uid"`
	Children []Node `json:"children,omitempty"`
}

// Walk calls fn for n and every descendant, depth first.
func (n Node) Walk(depth int, fn func(n Node, depth int)) {
	fn(n, depth)
	for _, child := range n.Children {
		child.Walk(depth+1, fn)
	}
}

// Resolver reads the "who referred whom" relation from the relational store.
type Resolver struct {
	db dao.Querier
}

func NewResolver(db dao.Querier) *Resolver {
	return &Resolver{db: db}
}

// DirectReferrer prefers the referrer_id column and falls back to the edge
// table. Self references are ignored.
func (r *Resolver) DirectReferrer(ctx context.Context, userID int64) (int64, bool, error) {
	id, found, err := dao.User.GetReferrerID(ctx, r.db, userID)
	if err != nil {
		return 0, false, errors.Wrapf(err, "get referrer_id of user %d", userID)
	}
	if found && id != userID {
		return id, true, nil
	}

	id, found, err = dao.Referral.GetReferrer(ctx, r.db, userID)
	if err != nil {
		return 0, false, errors.Wrapf(err, "get referral edge of user %d", userID)
	}
	if !found || id == userID {
		return 0, false, nil
	}
	return id, true, nil
}

// Upline follows DirectReferrer from userID for at most depth hops. The walk
// stops early at a missing link or at a user already in the chain, so it always
// terminates and never lists a user twice. The purchaser is not part of the result.
func Upline(ctx context.Context, g Graph, userID int64, depth int) ([]int64, error) {
	chain := make([]int64, 0, depth)
	visited := map[int64]bool{userID: true}

	cur := userID
	for len(chain) < depth {
		parent, found, err := g.DirectReferrer(ctx, cur)
		if err != nil {
			return nil, err
		}
		if !found {
			break
		}
		if visited[parent] {
			log.Warnf("referral cycle at user %d -> %d, upline of %d cut at %d levels", cur, parent, userID, len(chain))
			break
		}
		visited[parent] = true
		chain = append(chain, parent)
		cur = parent
	}
	return chain, nil
}

// Upline is the resolver-backed form of Upline.
func (r *Resolver) Upline(ctx context.Context, userID int64, depth int) ([]int64, error) {
	return Upline(ctx, r, userID, depth)
}

// Downline renders the referral tree below userID, at most depth levels deep.
// A user reached twice (dirty data forming a cycle) is not expanded again.
func (r *Resolver) Downline(ctx context.Context, userID int64, depth int) (Node, error) {
	if depth > MaxTreeDepth {
		depth = MaxTreeDepth
	}
	visited := map[int64]bool{userID: true}
	return r.downline(ctx, userID, depth, visited)
}

func (r *Resolver) downline(ctx context.Context, userID int64, depth int, visited map[int64]bool) (Node, error) {
	node := Node{UserID: userID}
	if depth <= 0 {
		return node, nil
	}
	ids, err := dao.Referral.ListReferees(ctx, r.db, userID)
	if err != nil {
		return node, errors.Wrapf(err, "list referees of user %d", userID)
	}
	for _, id := range ids {
		if visited[id] {
			log.Warnf("dirty referral data cause circle in relation, uid: %d", id)
			continue
		}
		visited[id] = true
		child, err := r.downline(ctx, id, depth-1, visited)
		if err != nil {
			return node, err
		}
		node.Children = append(node.Children, child)
	}
	return node, nil
}
