package dao

import (
	"context"
	"database/sql"
)

type referral struct {
}

var Referral = new(referral)

// GetReferrer reads the edge table; found is false when the user has no edge.
func (*referral) GetReferrer(ctx context.Context, q Querier, refereeID int64) (referrerID int64, found bool, err error) {
	err = q.QueryRowContext(ctx, "select referrer_id from referral_edges where referee_id = ?", refereeID).
		Scan(&referrerID)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return referrerID, true, nil
}

// ListReferees returns the direct downline of a user from both relation sources.
func (*referral) ListReferees(ctx context.Context, q Querier, referrerID int64) ([]int64, error) {
	rows, err := q.QueryContext(ctx, `
select id from users where referrer_id = ?
union
select e.referee_id from referral_edges e
	left join users u on u.id = e.referee_id
where e.referrer_id = ? and u.referrer_id is null`, referrerID, referrerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err = rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
