package entitlement

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"server-rewards-app/internal/dao"
)

// Tier is a user's paid entitlement at a point in time.
type Tier struct {
	Active    bool       `json:"active"`
	Name      string     `json:"tier_name,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Resolver maps the latest purchase of a user to an active tier.
type Resolver struct {
	db       dao.Querier
	validity map[string]time.Duration
	now      func() time.Time
}

// NewResolver takes the validity window of each product in days.
func NewResolver(db dao.Querier, validityDays map[string]int) *Resolver {
	validity := make(map[string]time.Duration, len(validityDays))
	for product, days := range validityDays {
		validity[product] = time.Duration(days) * 24 * time.Hour
	}
	return &Resolver{db: db, validity: validity, now: time.Now}
}

func (r *Resolver) WithClock(now func() time.Time) *Resolver {
	r.now = now
	return r
}

// ResolveTier reads only the most recent purchase. No purchase and unknown
// products both resolve to an inactive tier.
func (r *Resolver) ResolveTier(ctx context.Context, userID int64) (Tier, error) {
	p, found, err := dao.Purchase.Latest(ctx, r.db, userID)
	if err != nil {
		return Tier{}, errors.Wrapf(err, "latest purchase of user %d", userID)
	}
	if !found {
		return Tier{}, nil
	}

	d, ok := r.validity[p.ProductName]
	if !ok {
		return Tier{}, nil
	}
	expiresAt := p.PurchasedAt.Add(d)
	if r.now().After(expiresAt) {
		return Tier{}, nil
	}
	return Tier{Active: true, Name: p.ProductName, ExpiresAt: &expiresAt}, nil
}
