package dao

import (
	"context"
	"database/sql"

	"server-rewards-app/internal/model"
)

type purchase struct {
}

var Purchase = new(purchase)

// Latest returns the most recent purchase of a user; found is false when none exists.
func (*purchase) Latest(ctx context.Context, q Querier, userID int64) (p model.Purchase, found bool, err error) {
	row := q.QueryRowContext(ctx, `
select 
	id, user_id, product_name, gross_amount, purchased_at
from
	purchases
where user_id = ?
order by purchased_at desc, id desc limit 1`, userID)

	err = row.Scan(&p.ID, &p.UserID, &p.ProductName, &p.GrossAmount, &p.PurchasedAt)
	if err == sql.ErrNoRows {
		return p, false, nil
	}
	if err != nil {
		return p, false, err
	}
	return p, true, nil
}

func (*purchase) Create(ctx context.Context, q Querier, p model.Purchase) (int64, error) {
	res, err := q.ExecContext(ctx,
		"insert into purchases (user_id,product_name,gross_amount,purchased_at) values (?,?,?,?)",
		p.UserID, p.ProductName, p.GrossAmount.StringFixed(2), p.PurchasedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}
