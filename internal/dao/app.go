package dao

import (
	"context"
)

type app struct {
}

var App = new(app)

func (*app) GetKey(ctx context.Context, q Querier, appID string) (key string, err error) {
	row := q.QueryRowContext(ctx, "select pay_secret from app where app_id = ?", appID)
	err = row.Scan(&key)
	return
}
