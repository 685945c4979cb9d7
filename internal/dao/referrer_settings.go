package dao

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"server-rewards-app/internal/model"
)

// MaxLevel bounds the per-level override table.
const MaxLevel = 5

var ErrInvalidSettings = errors.New("invalid referrer settings")

var hundred = decimal.NewFromInt(100)

type referrerSettings struct {
}

var ReferrerSettings = new(referrerSettings)

// Get loads and validates a referrer's commission override. A missing user
// yields settings with Custom=false.
func (*referrerSettings) Get(ctx context.Context, q Querier, userID int64) (s model.ReferrerSettings, err error) {
	s.UserID = userID
	err = q.QueryRowContext(ctx, "select custom_commission from users where id = ?", userID).Scan(&s.Custom)
	if err == sql.ErrNoRows {
		return s, nil
	}
	if err != nil || !s.Custom {
		return
	}

	rows, err := q.QueryContext(ctx,
		"select level, percent from referrer_level_percents where user_id = ? order by level", userID)
	if err != nil {
		return
	}
	defer rows.Close()

	s.Percents = make(map[int]decimal.Decimal)
	for rows.Next() {
		var (
			level   int
			percent decimal.Decimal
		)
		if err = rows.Scan(&level, &percent); err != nil {
			return
		}
		if level < 1 || level > MaxLevel {
			return s, errors.Wrapf(ErrInvalidSettings, "user %d: level %d", userID, level)
		}
		if percent.IsNegative() || percent.GreaterThan(hundred) {
			return s, errors.Wrapf(ErrInvalidSettings, "user %d: level %d percent %s", userID, level, percent)
		}
		s.Percents[level] = percent
	}
	err = rows.Err()
	return
}
