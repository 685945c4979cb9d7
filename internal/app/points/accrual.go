package points

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"server-rewards-app/config"
	"server-rewards-app/internal/app/entitlement"
	"server-rewards-app/internal/app/metrics"
	"server-rewards-app/internal/app/quota"
	"server-rewards-app/internal/dao"
	"server-rewards-app/internal/model"
)

// Reason codes of zero-award outcomes. They are results, not errors.
const (
	ReasonDuplicate  = "duplicate"
	ReasonDailyLimit = "daily_limit_reached"
)

var (
	ErrUnknownAction      = errors.New("unknown or disabled action type")
	ErrQuotaNotConfigured = errors.New("daily quota not configured")
	ErrUserNotFound       = errors.New("user not found")
)

// Rules is the runtime configuration of one accrual call.
type Rules struct {
	Points            map[model.ActionType]int64
	OneOff            map[model.ActionType]bool
	DailyLimitDefault int64
	DailyLimitPremium int64
}

// RulesFromConfig builds the rule table from rewards.yaml.
func RulesFromConfig(cfg config.RewardsConfig) Rules {
	r := Rules{
		Points:            make(map[model.ActionType]int64, len(cfg.ActionPoints)),
		OneOff:            make(map[model.ActionType]bool, len(cfg.OneOffActions)),
		DailyLimitDefault: cfg.DailyLimitDefault,
		DailyLimitPremium: cfg.DailyLimitPremium,
	}
	for action, p := range cfg.ActionPoints {
		r.Points[model.ActionType(action)] = p
	}
	for _, action := range cfg.OneOffActions {
		r.OneOff[model.ActionType(action)] = true
	}
	return r
}

// Result is the outcome of CreditPoints. Awarded == 0 with a Reason is a normal outcome.
type Result struct {
	Awarded        int64  `json:"awarded"`
	RemainingToday int64  `json:"remaining_today"`
	Reason         string `json:"reason,omitempty"`
}

// TierResolver supplies the user's paid tier, which picks the daily ceiling.
type TierResolver interface {
	ResolveTier(ctx context.Context, userID int64) (entitlement.Tier, error)
}

// Engine credits points for qualifying actions under a daily quota.
type Engine struct {
	db     *sql.DB
	ledger *quota.Ledger
	tiers  TierResolver
}

func NewEngine(db *sql.DB, ledger *quota.Ledger, tiers TierResolver) *Engine {
	return &Engine{db: db, ledger: ledger, tiers: tiers}
}

// CreditPoints awards the rule value of action to userID, bounded by what is
// left of the user's daily quota. One-off actions are credited at most once per
// (user, node, action). The balance update and the log row commit together; the
// quota cache is updated afterwards and its failure never reaches the caller.
func (e *Engine) CreditPoints(ctx context.Context, userID int64, nodeID string, action model.ActionType, rules Rules) (Result, error) {
	res, at, err := e.creditPoints(ctx, userID, nodeID, action, rules)
	if err != nil {
		metrics.RecordAccrual(string(action), "error", 0)
		return Result{}, err
	}

	outcome := res.Reason
	if res.Awarded > 0 {
		outcome = "awarded"
		if res.Awarded < rules.Points[action] {
			outcome = "partial"
		}
		e.ledger.Increment(ctx, userID, res.Awarded, at)
	}
	metrics.RecordAccrual(string(action), outcome, res.Awarded)
	return res, nil
}

// Remaining is the part of today's quota still available to userID.
func (e *Engine) Remaining(ctx context.Context, userID int64, rules Rules) (int64, error) {
	if e.ledger == nil || e.tiers == nil {
		return 0, ErrQuotaNotConfigured
	}
	ceiling, err := e.dailyLimit(ctx, userID, rules)
	if err != nil {
		return 0, err
	}
	earned, err := e.windowTotal(ctx, userID, ceiling)
	if err != nil {
		return 0, err
	}
	return remainingOf(ceiling, earned), nil
}

// windowTotal reads the quota ledger. A cached total at or above ceiling is
// re-read from the log, since the cache can run ahead of it; the re-read also
// repairs the cache entry.
func (e *Engine) windowTotal(ctx context.Context, userID, ceiling int64) (int64, error) {
	earned, src, err := e.ledger.WindowTotal(ctx, userID)
	if err != nil {
		return 0, errors.Wrap(err, "window total")
	}
	if src != quota.SourceCache || earned < ceiling {
		return earned, nil
	}
	earned, err = e.ledger.Refresh(ctx, userID)
	if err != nil {
		return 0, errors.Wrap(err, "refresh window total")
	}
	return earned, nil
}

func (e *Engine) creditPoints(ctx context.Context, userID int64, nodeID string, action model.ActionType, rules Rules) (Result, time.Time, error) {
	value := rules.Points[action]
	if value <= 0 {
		return Result{}, time.Time{}, errors.Wrapf(ErrUnknownAction, "action %q", action)
	}
	if e.ledger == nil || e.tiers == nil {
		return Result{}, time.Time{}, errors.Wrap(ErrQuotaNotConfigured, "quota ledger or tier resolver missing")
	}
	ceiling, err := e.dailyLimit(ctx, userID, rules)
	if err != nil {
		return Result{}, time.Time{}, err
	}
	oneOff := rules.OneOff[action]

	// Repeatable actions skip the transaction once the durable log shows the quota
	// spent. One-off actions go straight in: their duplicate check comes first.
	if !oneOff {
		earned, err := e.windowTotal(ctx, userID, ceiling)
		if err != nil {
			return Result{}, time.Time{}, err
		}
		if earned >= ceiling {
			return Result{Reason: ReasonDailyLimit}, time.Time{}, nil
		}
	}

	return e.creditTx(ctx, userID, nodeID, action, value, ceiling, oneOff)
}

func (e *Engine) creditTx(ctx context.Context, userID int64, nodeID string, action model.ActionType,
	value, ceiling int64, oneOff bool) (res Result, at time.Time, err error) {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return res, at, errors.Wrap(err, "tx begin")
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	// Lock first: duplicate and quota checks below must see every committed
	// accrual of this user.
	if _, err = dao.User.LockForUpdate(ctx, tx, userID); err != nil {
		if err == sql.ErrNoRows {
			err = errors.Wrapf(ErrUserNotFound, "user %d", userID)
			return
		}
		err = errors.Wrapf(err, "lock user %d", userID)
		return
	}

	at = e.ledger.Now()
	earned, err := e.ledger.Reconstruct(ctx, tx, userID, at)
	if err != nil {
		return
	}

	if oneOff {
		var dup bool
		dup, err = dao.AccrualLog.Exists(ctx, tx, userID, nodeID, action)
		if err != nil {
			err = errors.Wrap(err, "check duplicate accrual")
			return
		}
		if dup {
			err = errors.Wrap(tx.Commit(), "tx commit")
			return Result{RemainingToday: remainingOf(ceiling, earned), Reason: ReasonDuplicate}, at, err
		}
	}

	toAward, reason := decide(value, ceiling, earned)
	if toAward == 0 {
		err = errors.Wrap(tx.Commit(), "tx commit")
		return Result{Reason: reason}, at, err
	}

	entry := model.AccrualLog{
		UserID:        userID,
		NodeID:        nodeID,
		ActionType:    action,
		PointsAwarded: toAward,
		CreatedAt:     at,
	}
	if oneOff {
		key := dao.DedupKey(userID, nodeID, action)
		entry.DedupKey = &key
	}
	if _, err = dao.AccrualLog.Create(ctx, tx, entry); err != nil {
		if oneOff && dao.IsDuplicateKey(err) {
			tx.Rollback()
			return Result{RemainingToday: remainingOf(ceiling, earned), Reason: ReasonDuplicate}, at, nil
		}
		err = errors.Wrap(err, "insert accrual log")
		return
	}
	if err = dao.User.AddPoints(ctx, tx, userID, toAward); err != nil {
		err = errors.Wrap(err, "add points balance")
		return
	}
	if err = tx.Commit(); err != nil {
		err = errors.Wrap(err, "tx commit")
		return
	}

	log.Debugf("credited %d points to user %d for %s on %s", toAward, userID, action, nodeID)
	return Result{Awarded: toAward, RemainingToday: remainingOf(ceiling, earned+toAward)}, at, nil
}

func (e *Engine) dailyLimit(ctx context.Context, userID int64, rules Rules) (int64, error) {
	if rules.DailyLimitDefault <= 0 || rules.DailyLimitPremium <= 0 {
		return 0, ErrQuotaNotConfigured
	}
	tier, err := e.tiers.ResolveTier(ctx, userID)
	if err != nil {
		return 0, errors.Wrap(err, "resolve tier")
	}
	if tier.Active {
		return rules.DailyLimitPremium, nil
	}
	return rules.DailyLimitDefault, nil
}

// decide returns min(value, remaining), or a zero award with the daily-limit
// reason when nothing is left.
func decide(value, ceiling, earned int64) (int64, string) {
	remaining := remainingOf(ceiling, earned)
	if remaining == 0 {
		return 0, ReasonDailyLimit
	}
	if value > remaining {
		return remaining, ""
	}
	return value, ""
}

func remainingOf(ceiling, earned int64) int64 {
	if earned >= ceiling {
		return 0
	}
	return ceiling - earned
}
