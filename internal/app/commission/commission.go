package commission

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"server-rewards-app/config"
	"server-rewards-app/internal/app/metrics"
	"server-rewards-app/internal/app/referral"
	"server-rewards-app/internal/app/warn"
	"server-rewards-app/internal/dao"
	"server-rewards-app/internal/model"
	"server-rewards-app/internal/pkg/util"
)

var ErrInvalidConfig = errors.New("invalid commission config")

// Config is the global per-level schedule. Percents[i] applies to level i+1.
type Config struct {
	Levels   int
	Percents []decimal.Decimal
}

// ConfigFrom converts rewards.yaml commission settings.
func ConfigFrom(c config.Commission) Config {
	cfg := Config{Levels: c.Levels, Percents: make([]decimal.Decimal, len(c.Percents))}
	for i, p := range c.Percents {
		cfg.Percents[i] = decimal.NewFromFloat(p)
	}
	return cfg
}

func (c Config) normalize() (Config, error) {
	if c.Levels < 1 {
		return c, errors.Wrapf(ErrInvalidConfig, "levels %d", c.Levels)
	}
	if c.Levels > config.MaxCommissionLevels {
		c.Levels = config.MaxCommissionLevels
	}
	if len(c.Percents) < c.Levels {
		return c, errors.Wrapf(ErrInvalidConfig, "%d percents for %d levels", len(c.Percents), c.Levels)
	}
	return c, nil
}

// Award is one credited upline member.
type Award struct {
	Level      int             `json:"level"`
	ReferrerID int64           `json:"referrer_id"`
	Percent    decimal.Decimal `json:"percent"`
	Amount     decimal.Decimal `json:"amount"`
}

// Notifier is told about the beneficiaries of a committed distribution run.
type Notifier interface {
	Notify(ctx context.Context, purchaserID int64, awards []Award)
}

// LogNotifier writes one line per beneficiary.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, purchaserID int64, awards []Award) {
	for _, a := range awards {
		log.Infof("commission: user %d earned %s (level %d, %s%%) from purchase by %d",
			a.ReferrerID, a.Amount.StringFixed(2), a.Level, a.Percent, purchaserID)
	}
}

// Engine distributes multi-level commission on purchases.
type Engine struct {
	db       *sql.DB
	graph    referral.Graph
	notifier Notifier
	now      func() time.Time
}

func NewEngine(db *sql.DB, graph referral.Graph) *Engine {
	return &Engine{db: db, graph: graph, notifier: LogNotifier{}, now: time.Now}
}

func (e *Engine) WithNotifier(n Notifier) *Engine {
	e.notifier = n
	return e
}

// WithClock replaces the clock stamped on commission logs, for tests.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Distribute credits the purchaser's upline for a purchase of gross.
//
// With tx == nil the run opens, commits and notifies on its own. With a caller
// transaction every write joins it, nothing is committed here, and the caller
// calls Notify once its own commit succeeds.
//
// A non-positive gross, an empty upline or levels that all round to zero give an
// empty list and no writes.
func (e *Engine) Distribute(ctx context.Context, tx *sql.Tx, purchaserID int64, gross decimal.Decimal, cfg Config) ([]Award, error) {
	awards := []Award{}
	if !gross.IsPositive() {
		return awards, nil
	}
	cfg, err := cfg.normalize()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() { metrics.ObserveDistribution(time.Since(start)) }()

	chain, err := referral.Upline(ctx, e.graph, purchaserID, cfg.Levels)
	if err != nil {
		return nil, errors.Wrapf(err, "upline of user %d", purchaserID)
	}
	if len(chain) == 0 {
		return awards, nil
	}

	local := tx == nil
	if local {
		tx, err = e.db.BeginTx(ctx, nil)
		if err != nil {
			return nil, errors.Wrap(err, "tx begin")
		}
		defer func() {
			if err != nil {
				tx.Rollback()
			}
		}()
	}

	awards, err = e.credit(ctx, tx, purchaserID, gross, chain, cfg)
	if err != nil {
		return nil, err
	}
	if local {
		if err = tx.Commit(); err != nil {
			err = errors.Wrap(err, "tx commit")
			return nil, err
		}
		e.Notify(ctx, purchaserID, awards)
	}
	return awards, nil
}

// Notify reports committed awards to metrics and the notifier.
func (e *Engine) Notify(ctx context.Context, purchaserID int64, awards []Award) {
	for _, a := range awards {
		f, _ := a.Amount.Float64()
		metrics.RecordCommission(a.Level, f)
	}
	if e.notifier != nil && len(awards) > 0 {
		e.notifier.Notify(ctx, purchaserID, awards)
	}
}

func (e *Engine) credit(ctx context.Context, tx *sql.Tx, purchaserID int64, gross decimal.Decimal,
	chain []int64, cfg Config) ([]Award, error) {
	awards := []Award{}
	now := e.now()
	var rows []model.CommissionLog

	for i, referrerID := range chain {
		level := i + 1
		percent, err := e.percentFor(ctx, tx, referrerID, level, cfg)
		if err != nil {
			return nil, err
		}
		if !percent.IsPositive() {
			continue
		}
		amount := util.PercentOf(gross, percent)
		if !amount.IsPositive() {
			continue
		}

		ok, err := dao.User.AddAffiliate(ctx, tx, referrerID, amount)
		if err != nil {
			return nil, errors.Wrapf(err, "credit affiliate balance of user %d", referrerID)
		}
		if !ok {
			warn.Skip(fmt.Sprintf("commission level %d", level),
				errors.Errorf("referrer %d of purchaser %d has no user row", referrerID, purchaserID))
			continue
		}

		awards = append(awards, Award{Level: level, ReferrerID: referrerID, Percent: percent, Amount: amount})
		rows = append(rows, model.CommissionLog{
			PurchaserID: purchaserID,
			Level:       level,
			ReferrerID:  referrerID,
			Percent:     percent,
			Amount:      amount,
			CreatedAt:   now,
		})
	}

	if err := dao.CommissionLog.CreateBatch(ctx, tx, rows); err != nil {
		return nil, errors.Wrap(err, "insert commission logs")
	}
	return awards, nil
}

// percentFor applies the referrer's own percent for level when they opted in
// and set one, and the global schedule otherwise.
func (e *Engine) percentFor(ctx context.Context, q dao.Querier, referrerID int64, level int, cfg Config) (decimal.Decimal, error) {
	s, err := dao.ReferrerSettings.Get(ctx, q, referrerID)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "referrer settings of user %d", referrerID)
	}
	if s.Custom {
		if p, ok := s.Percents[level]; ok {
			return p, nil
		}
	}
	return cfg.Percents[level-1], nil
}
