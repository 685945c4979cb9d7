package quota

import (
	"context"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"server-rewards-app/internal/app/metrics"
	"server-rewards-app/internal/app/warn"
	"server-rewards-app/internal/dao"
)

// Source tells where a window total came from.
type Source string

const (
	SourceCache         Source = "cache"
	SourceReconstructed Source = "reconstructed"
)

// Ledger answers "how many points has this user earned in the current window".
// The accrual log is the system of record; the cache only accelerates reads and
// is written after the durable transaction it mirrors has committed.
type Ledger struct {
	db    dao.Querier
	cache Cache
	loc   *time.Location
	now   func() time.Time
}

// NewLedger builds a ledger. cache may be nil, in which case every read is
// reconstructed from the log.
func NewLedger(db dao.Querier, cache Cache, loc *time.Location) *Ledger {
	if loc == nil {
		loc = time.UTC
	}
	return &Ledger{db: db, cache: cache, loc: loc, now: time.Now}
}

// WithClock replaces the clock, for tests.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

func (l *Ledger) Now() time.Time { return l.now() }

// Window returns the current accounting window.
func (l *Ledger) Window() Window {
	return WindowAt(l.now(), l.loc)
}

// WindowTotal reads the cache first and falls back to the durable log on a miss
// or a cache failure, repopulating the cache with a TTL ending at the window boundary.
func (l *Ledger) WindowTotal(ctx context.Context, userID int64) (int64, Source, error) {
	key := Key(userID)
	if l.cache != nil {
		total, ok, err := l.cache.Get(ctx, key)
		if err != nil {
			metrics.RecordCacheError("get")
			warn.Skip("quota cache get "+key, err)
		} else if ok {
			metrics.RecordQuotaLookup(string(SourceCache))
			return total, SourceCache, nil
		}
	}

	total, err := l.rebuild(ctx, userID)
	if err != nil {
		return 0, "", err
	}
	metrics.RecordQuotaLookup(string(SourceReconstructed))
	return total, SourceReconstructed, nil
}

// Reconstruct sums the durable log for the window containing at through q,
// ignoring the cache. Pass the accrual transaction to read under its row lock.
func (l *Ledger) Reconstruct(ctx context.Context, q dao.Querier, userID int64, at time.Time) (int64, error) {
	w := WindowAt(at, l.loc)
	total, err := dao.AccrualLog.SumBetween(ctx, q, userID, w.Start, w.End)
	if err != nil {
		return 0, errors.Wrapf(err, "sum accrual log of user %d", userID)
	}
	return total, nil
}

// Refresh rewrites the cache entry of userID from the durable log and returns
// the durable total.
func (l *Ledger) Refresh(ctx context.Context, userID int64) (int64, error) {
	total, err := l.rebuild(ctx, userID)
	if err != nil {
		return 0, err
	}
	metrics.RecordQuotaLookup(string(SourceReconstructed))
	return total, nil
}

// Increment mirrors a committed accrual made at `at`. It never fails the caller:
// cache errors are logged and the next read recomputes from the log.
// A rebuild racing another accrual's increment can leave the entry above the
// durable total until the next Refresh or Reconcile.
func (l *Ledger) Increment(ctx context.Context, userID, amount int64, at time.Time) {
	if l.cache == nil || amount <= 0 {
		return
	}
	if !l.Window().Contains(at) {
		// the accrual belongs to a window that has already closed
		return
	}

	key := Key(userID)
	_, ok, err := l.cache.IncrIfExists(ctx, key, amount)
	if err != nil {
		metrics.RecordCacheError("incr")
		warn.Skip("quota cache incr "+key, err)
		return
	}
	if ok {
		return
	}

	// Miss: the accrual is already committed, so the rebuild includes it.
	if _, err = l.rebuild(ctx, userID); err != nil {
		warn.Skip("quota cache rebuild "+key, err)
	}
}

// Reconcile refreshes the cache of every user with accruals in the current
// window and returns how many entries were rewritten.
func (l *Ledger) Reconcile(ctx context.Context) (int, error) {
	if l.cache == nil {
		return 0, nil
	}
	w := l.Window()
	users, err := dao.AccrualLog.UsersBetween(ctx, l.db, w.Start, w.End)
	if err != nil {
		return 0, errors.Wrap(err, "list users with accruals")
	}

	n := 0
	for _, uid := range users {
		if _, err = l.rebuild(ctx, uid); err != nil {
			log.Warnf("reconcile quota of user %d: %v", uid, err)
			continue
		}
		n++
	}
	return n, nil
}

func (l *Ledger) rebuild(ctx context.Context, userID int64) (int64, error) {
	now := l.now()
	total, err := l.Reconstruct(ctx, l.db, userID, now)
	if err != nil {
		return 0, err
	}
	if l.cache != nil {
		if err = l.cache.Set(ctx, Key(userID), total, WindowAt(now, l.loc).TTL(now)); err != nil {
			metrics.RecordCacheError("set")
			warn.Skip("quota cache set "+Key(userID), err)
		}
	}
	return total, nil
}
