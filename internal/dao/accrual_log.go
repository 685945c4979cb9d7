package dao

import (
	"context"
	"fmt"
	"time"

	mysqldrv "github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"

	"server-rewards-app/internal/model"
)

const mysqlDuplicateEntry = 1062

type accrualLog struct {
}

var AccrualLog = new(accrualLog)

// DedupKey is the unique key stored for one-off actions.
func DedupKey(userID int64, nodeID string, action model.ActionType) string {
	return fmt.Sprintf("%d:%s:%s", userID, action, nodeID)
}

func (*accrualLog) Exists(ctx context.Context, q Querier, userID int64, nodeID string, action model.ActionType) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx,
		"select count(1) from accrual_logs where user_id = ? and node_id = ? and action_type = ?",
		userID, nodeID, string(action)).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (*accrualLog) Create(ctx context.Context, q Querier, l model.AccrualLog) (int64, error) {
	var dedup interface{}
	if l.DedupKey != nil {
		dedup = *l.DedupKey
	}
	res, err := q.ExecContext(ctx, `
insert into accrual_logs 
	(user_id, node_id, action_type, points_awarded, dedup_key, created_at) 
values 
	(?,?,?,?,?,?)`,
		l.UserID, l.NodeID, string(l.ActionType), l.PointsAwarded, dedup, l.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// SumBetween totals the points awarded to a user in [from, to).
func (*accrualLog) SumBetween(ctx context.Context, q Querier, userID int64, from, to time.Time) (total int64, err error) {
	err = q.QueryRowContext(ctx,
		"select coalesce(sum(points_awarded),0) from accrual_logs where user_id = ? and created_at >= ? and created_at < ?",
		userID, from, to).Scan(&total)
	return
}

// UsersBetween lists users holding at least one accrual in [from, to).
func (*accrualLog) UsersBetween(ctx context.Context, q Querier, from, to time.Time) ([]int64, error) {
	rows, err := q.QueryContext(ctx,
		"select distinct user_id from accrual_logs where created_at >= ? and created_at < ?", from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err = rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// IsDuplicateKey reports whether err is a unique-key violation from mysql.
func IsDuplicateKey(err error) bool {
	var me *mysqldrv.MySQLError
	if errors.As(err, &me) {
		return me.Number == mysqlDuplicateEntry
	}
	return false
}
