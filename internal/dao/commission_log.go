package dao

import (
	"context"

	"server-rewards-app/internal/model"
)

type commissionLog struct {
}

var CommissionLog = new(commissionLog)

func (*commissionLog) CreateBatch(ctx context.Context, q Querier, data []model.CommissionLog) (err error) {
	if len(data) == 0 {
		return nil
	}
	var vals []interface{}

	sqlStr := "insert into commission_logs (purchaser_id,level,referrer_id,percent,amount,created_at) values "
	for _, row := range data {
		sqlStr += "(?,?,?,?,?,?),"
		vals = append(vals, row.PurchaserID, row.Level, row.ReferrerID, row.Percent.String(),
			row.Amount.StringFixed(2), row.CreatedAt)
	}
	// trim the last ,
	sqlStr = sqlStr[0 : len(sqlStr)-1]

	_, err = q.ExecContext(ctx, sqlStr, vals...)
	return
}
