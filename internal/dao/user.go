package dao

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"server-rewards-app/internal/model"
)

type user struct {
}

var User = new(user)

// LockForUpdate takes the exclusive row lock that serializes every credit to one user.
// It must be called inside a transaction.
func (*user) LockForUpdate(ctx context.Context, tx *sql.Tx, userID int64) (u model.User, err error) {
	row := tx.QueryRowContext(ctx, `
select 
	id, points_balance, affiliate_balance, referrer_id, custom_commission
from
	users
where id = ? for update`, userID)

	var referrer sql.NullInt64
	err = row.Scan(&u.ID, &u.PointsBalance, &u.AffiliateBalance, &referrer, &u.CustomCommission)
	if err != nil {
		return
	}
	if referrer.Valid {
		u.ReferrerID = &referrer.Int64
	}
	return
}

func (*user) AddPoints(ctx context.Context, q Querier, userID, points int64) error {
	res, err := q.ExecContext(ctx, "update users set points_balance = points_balance + ? where id = ?", points, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.Wrapf(sql.ErrNoRows, "user %d", userID)
	}
	return nil
}

// AddAffiliate credits a referrer. The update takes the row lock itself, so two
// runs that share an upline member are serialized on that member's row.
// ok is false when the user row does not exist.
func (*user) AddAffiliate(ctx context.Context, q Querier, userID int64, amount decimal.Decimal) (ok bool, err error) {
	res, err := q.ExecContext(ctx,
		"update users set affiliate_balance = affiliate_balance + ? where id = ?", amount.StringFixed(2), userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetReferrerID reads the referrer foreign key. found is false when the user is
// missing or the column is null.
func (*user) GetReferrerID(ctx context.Context, q Querier, userID int64) (referrerID int64, found bool, err error) {
	var referrer sql.NullInt64
	err = q.QueryRowContext(ctx, "select referrer_id from users where id = ?", userID).Scan(&referrer)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return referrer.Int64, referrer.Valid, nil
}

func (*user) Get(ctx context.Context, q Querier, userID int64) (u model.User, err error) {
	row := q.QueryRowContext(ctx, `
select 
	id, points_balance, affiliate_balance, referrer_id, custom_commission
from
	users
where id = ?`, userID)

	var referrer sql.NullInt64
	err = row.Scan(&u.ID, &u.PointsBalance, &u.AffiliateBalance, &referrer, &u.CustomCommission)
	if err != nil {
		return
	}
	if referrer.Valid {
		u.ReferrerID = &referrer.Int64
	}
	return
}
