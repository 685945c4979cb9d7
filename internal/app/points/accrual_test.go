package points

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	mysqldrv "github.com/go-sql-driver/mysql"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"server-rewards-app/internal/app/entitlement"
	"server-rewards-app/internal/app/quota"
	"server-rewards-app/internal/model"
)

var (
	lockQuery   = regexp.QuoteMeta("from users where id = ? for update")
	sumQuery    = regexp.QuoteMeta("select coalesce(sum(points_awarded),0) from accrual_logs")
	existsQuery = regexp.QuoteMeta("select count(1) from accrual_logs")
	insertLog   = regexp.QuoteMeta("insert into accrual_logs")
	addPoints   = regexp.QuoteMeta("update users set points_balance = points_balance + ? where id = ?")
)

type fixedTier struct {
	tier entitlement.Tier
	err  error
}

func (f fixedTier) ResolveTier(context.Context, int64) (entitlement.Tier, error) {
	return f.tier, f.err
}

type brokenCache struct{}

func (brokenCache) Get(context.Context, string) (int64, bool, error) {
	return 0, false, errors.New("connection refused")
}
func (brokenCache) Set(context.Context, string, int64, time.Duration) error {
	return errors.New("connection refused")
}
func (brokenCache) IncrIfExists(context.Context, string, int64) (int64, bool, error) {
	return 0, false, errors.New("connection refused")
}

var (
	testNow     = time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC)
	mysqlDupErr = mysqldrv.MySQLError{Number: 1062, Message: "Duplicate entry for key 'dedup_key'"}
)

func testRules() Rules {
	return Rules{
		Points: map[model.ActionType]int64{
			model.ActionPostCreate:  10,
			model.ActionPostComment: 10,
			model.ActionPostView:    1,
			model.ActionFollow:      0,
		},
		OneOff: map[model.ActionType]bool{
			model.ActionPostCreate:  true,
			model.ActionPostComment: true,
		},
		DailyLimitDefault: 100,
		DailyLimitPremium: 300,
	}
}

type fixture struct {
	engine *Engine
	mock   sqlmock.Sqlmock
	cache  *quota.MemoryCache
	ledger *quota.Ledger
}

func newFixture(t *testing.T, cache quota.Cache, tier TierResolver) fixture {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ledger := quota.NewLedger(db, cache, time.UTC).WithClock(func() time.Time { return testNow })
	mc, _ := cache.(*quota.MemoryCache)
	return fixture{engine: NewEngine(db, ledger, tier), mock: mock, cache: mc, ledger: ledger}
}

func newMemoryFixture(t *testing.T) fixture {
	return newFixture(t, quota.NewMemoryCache(func() time.Time { return testNow }), fixedTier{})
}

func userRow(id int64) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "points_balance", "affiliate_balance", "referrer_id", "custom_commission"}).
		AddRow(id, 0, "0.00", nil, false)
}

func total(n int64) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"total"}).AddRow(n)
}

func count(n int) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"n"}).AddRow(n)
}

// expectAward scripts one successful one-off credit inside a transaction.
func expectAward(m sqlmock.Sqlmock, userID int64, nodeID string, action model.ActionType, earned, award int64) {
	m.ExpectBegin()
	m.ExpectQuery(lockQuery).WithArgs(userID).WillReturnRows(userRow(userID))
	m.ExpectQuery(sumQuery).WithArgs(userID, sqlmock.AnyArg(), sqlmock.AnyArg()).WillReturnRows(total(earned))
	m.ExpectQuery(existsQuery).WithArgs(userID, nodeID, string(action)).WillReturnRows(count(0))
	m.ExpectExec(insertLog).
		WithArgs(userID, nodeID, string(action), award, sqlmock.AnyArg(), testNow).
		WillReturnResult(sqlmock.NewResult(1, 1))
	m.ExpectExec(addPoints).WithArgs(award, userID).WillReturnResult(sqlmock.NewResult(0, 1))
	m.ExpectCommit()
}

func TestCreditPointsAwards(t *testing.T) {
	f := newMemoryFixture(t)
	ctx := context.Background()

	expectAward(f.mock, 7, "post-1", model.ActionPostCreate, 20, 10)
	// cache miss after commit: rebuilt from the log, which already holds the new row
	f.mock.ExpectQuery(sumQuery).WillReturnRows(total(30))

	res, err := f.engine.CreditPoints(ctx, 7, "post-1", model.ActionPostCreate, testRules())
	require.NoError(t, err)
	assert.Equal(t, Result{Awarded: 10, RemainingToday: 70}, res)
	assert.NoError(t, f.mock.ExpectationsWereMet())

	cached, ok, _ := f.cache.Get(ctx, quota.Key(7))
	assert.True(t, ok)
	assert.Equal(t, int64(30), cached)
}

func TestCreditPointsIdempotent(t *testing.T) {
	f := newMemoryFixture(t)
	ctx := context.Background()
	require.NoError(t, f.cache.Set(ctx, quota.Key(7), 0, time.Hour))

	expectAward(f.mock, 7, "post-1", model.ActionPostCreate, 0, 10)

	f.mock.ExpectBegin()
	f.mock.ExpectQuery(lockQuery).WillReturnRows(userRow(7))
	f.mock.ExpectQuery(sumQuery).WillReturnRows(total(10))
	f.mock.ExpectQuery(existsQuery).WithArgs(int64(7), "post-1", "post_create").WillReturnRows(count(1))
	f.mock.ExpectCommit()

	first, err := f.engine.CreditPoints(ctx, 7, "post-1", model.ActionPostCreate, testRules())
	require.NoError(t, err)
	assert.Equal(t, int64(10), first.Awarded)

	second, err := f.engine.CreditPoints(ctx, 7, "post-1", model.ActionPostCreate, testRules())
	require.NoError(t, err)
	assert.Equal(t, int64(0), second.Awarded)
	assert.Equal(t, ReasonDuplicate, second.Reason)
	assert.Equal(t, int64(90), second.RemainingToday)
	assert.NoError(t, f.mock.ExpectationsWereMet())

	cached, _, _ := f.cache.Get(ctx, quota.Key(7))
	assert.Equal(t, int64(10), cached, "duplicate must not touch the cache")
}

func TestCreditPointsPartialThenLimit(t *testing.T) {
	f := newMemoryFixture(t)
	ctx := context.Background()
	require.NoError(t, f.cache.Set(ctx, quota.Key(7), 97, time.Hour))

	expectAward(f.mock, 7, "comment-1", model.ActionPostComment, 97, 3)

	f.mock.ExpectBegin()
	f.mock.ExpectQuery(lockQuery).WillReturnRows(userRow(7))
	f.mock.ExpectQuery(sumQuery).WillReturnRows(total(100))
	f.mock.ExpectQuery(existsQuery).WillReturnRows(count(0))
	f.mock.ExpectCommit()

	res, err := f.engine.CreditPoints(ctx, 7, "comment-1", model.ActionPostComment, testRules())
	require.NoError(t, err)
	assert.Equal(t, Result{Awarded: 3, RemainingToday: 0}, res)

	res, err = f.engine.CreditPoints(ctx, 7, "comment-2", model.ActionPostComment, testRules())
	require.NoError(t, err)
	assert.Equal(t, Result{Reason: ReasonDailyLimit}, res)
	assert.NoError(t, f.mock.ExpectationsWereMet())

	// the cache matches the durable total of 100
	cached, _, _ := f.cache.Get(ctx, quota.Key(7))
	assert.Equal(t, int64(100), cached)
}

func TestCreditPointsRepeatableFastPath(t *testing.T) {
	f := newMemoryFixture(t)
	ctx := context.Background()
	require.NoError(t, f.cache.Set(ctx, quota.Key(7), 100, time.Hour))

	// the log confirms the exhausted quota: no transaction is opened
	f.mock.ExpectQuery(sumQuery).WithArgs(int64(7), sqlmock.AnyArg(), sqlmock.AnyArg()).WillReturnRows(total(100))

	res, err := f.engine.CreditPoints(ctx, 7, "post-9", model.ActionPostView, testRules())
	require.NoError(t, err)
	assert.Equal(t, Result{Reason: ReasonDailyLimit}, res)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestCreditPointsStaleCacheStillCredits(t *testing.T) {
	f := newMemoryFixture(t)
	ctx := context.Background()

	// increments racing a cold-cache rebuild leave the entry above the log
	f.mock.ExpectQuery(sumQuery).WillReturnRows(total(90))
	f.ledger.Increment(ctx, 7, 5, testNow)
	f.ledger.Increment(ctx, 7, 5, testNow)
	f.ledger.Increment(ctx, 7, 5, testNow)
	cached, _, _ := f.cache.Get(ctx, quota.Key(7))
	require.Equal(t, int64(100), cached)

	// the log says 90, so the view is still credited
	f.mock.ExpectQuery(sumQuery).WillReturnRows(total(90))
	f.mock.ExpectBegin()
	f.mock.ExpectQuery(lockQuery).WillReturnRows(userRow(7))
	f.mock.ExpectQuery(sumQuery).WillReturnRows(total(90))
	f.mock.ExpectExec(insertLog).
		WithArgs(int64(7), "post-9", "post_view", int64(1), nil, testNow).
		WillReturnResult(sqlmock.NewResult(1, 1))
	f.mock.ExpectExec(addPoints).WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectCommit()

	res, err := f.engine.CreditPoints(ctx, 7, "post-9", model.ActionPostView, testRules())
	require.NoError(t, err)
	assert.Equal(t, Result{Awarded: 1, RemainingToday: 9}, res)
	assert.NoError(t, f.mock.ExpectationsWereMet())

	cached, _, _ = f.cache.Get(ctx, quota.Key(7))
	assert.Equal(t, int64(91), cached, "the cache entry was repaired before the increment")
}

func TestCreditPointsRepeatableNotDeduplicated(t *testing.T) {
	f := newMemoryFixture(t)
	ctx := context.Background()
	require.NoError(t, f.cache.Set(ctx, quota.Key(7), 5, time.Hour))

	for i := int64(0); i < 2; i++ {
		f.mock.ExpectBegin()
		f.mock.ExpectQuery(lockQuery).WillReturnRows(userRow(7))
		f.mock.ExpectQuery(sumQuery).WillReturnRows(total(5 + i))
		f.mock.ExpectExec(insertLog).
			WithArgs(int64(7), "post-9", "post_view", int64(1), nil, testNow).
			WillReturnResult(sqlmock.NewResult(1, 1))
		f.mock.ExpectExec(addPoints).WillReturnResult(sqlmock.NewResult(0, 1))
		f.mock.ExpectCommit()
	}

	for i := 0; i < 2; i++ {
		res, err := f.engine.CreditPoints(ctx, 7, "post-9", model.ActionPostView, testRules())
		require.NoError(t, err)
		assert.Equal(t, int64(1), res.Awarded)
	}
	assert.NoError(t, f.mock.ExpectationsWereMet())

	cached, _, _ := f.cache.Get(ctx, quota.Key(7))
	assert.Equal(t, int64(7), cached)
}

func TestCreditPointsPremiumCeiling(t *testing.T) {
	f := newFixture(t, quota.NewMemoryCache(func() time.Time { return testNow }),
		fixedTier{tier: entitlement.Tier{Active: true, Name: "monthly"}})
	ctx := context.Background()
	require.NoError(t, f.cache.Set(ctx, quota.Key(7), 150, time.Hour))

	expectAward(f.mock, 7, "post-2", model.ActionPostCreate, 150, 10)

	res, err := f.engine.CreditPoints(ctx, 7, "post-2", model.ActionPostCreate, testRules())
	require.NoError(t, err)
	assert.Equal(t, Result{Awarded: 10, RemainingToday: 140}, res)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestCreditPointsCacheDown(t *testing.T) {
	f := newFixture(t, brokenCache{}, fixedTier{})
	ctx := context.Background()

	expectAward(f.mock, 7, "post-1", model.ActionPostCreate, 0, 10)

	res, err := f.engine.CreditPoints(ctx, 7, "post-1", model.ActionPostCreate, testRules())
	require.NoError(t, err, "cache failures never fail an accrual")
	assert.Equal(t, int64(10), res.Awarded)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestCreditPointsDuplicateKeyRace(t *testing.T) {
	f := newMemoryFixture(t)
	ctx := context.Background()

	f.mock.ExpectBegin()
	f.mock.ExpectQuery(lockQuery).WillReturnRows(userRow(7))
	f.mock.ExpectQuery(sumQuery).WillReturnRows(total(0))
	f.mock.ExpectQuery(existsQuery).WillReturnRows(count(0))
	f.mock.ExpectExec(insertLog).WillReturnError(&mysqlDupErr)
	f.mock.ExpectRollback()

	res, err := f.engine.CreditPoints(ctx, 7, "post-1", model.ActionPostCreate, testRules())
	require.NoError(t, err)
	assert.Equal(t, ReasonDuplicate, res.Reason)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestCreditPointsErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown action", func(t *testing.T) {
		f := newMemoryFixture(t)
		_, err := f.engine.CreditPoints(ctx, 7, "x", model.ActionType("share"), testRules())
		assert.True(t, errors.Is(err, ErrUnknownAction))
		_, err = f.engine.CreditPoints(ctx, 7, "x", model.ActionFollow, testRules())
		assert.True(t, errors.Is(err, ErrUnknownAction), "zero-valued rule is disabled")
		assert.NoError(t, f.mock.ExpectationsWereMet())
	})

	t.Run("missing ceiling", func(t *testing.T) {
		f := newMemoryFixture(t)
		rules := testRules()
		rules.DailyLimitPremium = 0
		_, err := f.engine.CreditPoints(ctx, 7, "x", model.ActionPostCreate, rules)
		assert.True(t, errors.Is(err, ErrQuotaNotConfigured))
	})

	t.Run("missing ledger", func(t *testing.T) {
		_, err := NewEngine(nil, nil, fixedTier{}).CreditPoints(ctx, 7, "x", model.ActionPostCreate, testRules())
		assert.True(t, errors.Is(err, ErrQuotaNotConfigured))
	})

	t.Run("tier lookup fails", func(t *testing.T) {
		f := newFixture(t, quota.NewMemoryCache(time.Now), fixedTier{err: errors.New("timeout")})
		_, err := f.engine.CreditPoints(ctx, 7, "x", model.ActionPostCreate, testRules())
		assert.Error(t, err)
	})

	t.Run("user missing", func(t *testing.T) {
		f := newMemoryFixture(t)
		f.mock.ExpectBegin()
		f.mock.ExpectQuery(lockQuery).WillReturnRows(sqlmock.NewRows([]string{"id"}))
		f.mock.ExpectRollback()
		_, err := f.engine.CreditPoints(ctx, 7, "x", model.ActionPostCreate, testRules())
		assert.True(t, errors.Is(err, ErrUserNotFound))
		assert.NoError(t, f.mock.ExpectationsWereMet())
	})

	t.Run("balance update fails rolls back the log row", func(t *testing.T) {
		f := newMemoryFixture(t)
		f.mock.ExpectBegin()
		f.mock.ExpectQuery(lockQuery).WillReturnRows(userRow(7))
		f.mock.ExpectQuery(sumQuery).WillReturnRows(total(0))
		f.mock.ExpectQuery(existsQuery).WillReturnRows(count(0))
		f.mock.ExpectExec(insertLog).WillReturnResult(sqlmock.NewResult(1, 1))
		f.mock.ExpectExec(addPoints).WillReturnError(errors.New("lock wait timeout exceeded"))
		f.mock.ExpectRollback()

		_, err := f.engine.CreditPoints(ctx, 7, "x", model.ActionPostCreate, testRules())
		assert.Error(t, err)
		assert.NoError(t, f.mock.ExpectationsWereMet())

		_, ok, _ := f.cache.Get(ctx, quota.Key(7))
		assert.False(t, ok, "nothing is cached for a rolled back accrual")
	})
}

func TestRemaining(t *testing.T) {
	f := newMemoryFixture(t)
	ctx := context.Background()
	require.NoError(t, f.cache.Set(ctx, quota.Key(7), 64, time.Hour))

	left, err := f.engine.Remaining(ctx, 7, testRules())
	require.NoError(t, err)
	assert.Equal(t, int64(36), left)
	assert.NoError(t, f.mock.ExpectationsWereMet(), "a cache hit below the ceiling stays off the store")
}

func TestRemainingConfirmsExhaustedCache(t *testing.T) {
	f := newMemoryFixture(t)
	ctx := context.Background()
	require.NoError(t, f.cache.Set(ctx, quota.Key(7), 105, time.Hour))
	f.mock.ExpectQuery(sumQuery).WillReturnRows(total(88))

	left, err := f.engine.Remaining(ctx, 7, testRules())
	require.NoError(t, err)
	assert.Equal(t, int64(12), left)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestDecide(t *testing.T) {
	award, reason := decide(10, 100, 97)
	assert.Equal(t, int64(3), award)
	assert.Empty(t, reason)

	award, reason = decide(10, 100, 100)
	assert.Equal(t, int64(0), award)
	assert.Equal(t, ReasonDailyLimit, reason)

	award, _ = decide(10, 100, 0)
	assert.Equal(t, int64(10), award)

	award, reason = decide(10, 100, 250)
	assert.Equal(t, int64(0), award, "over-ceiling totals never award")
	assert.Equal(t, ReasonDailyLimit, reason)
}

func TestQuotaNeverExceeded(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)

	properties.Property("sum of awards stays within the ceiling", prop.ForAll(
		func(values []int64, ceiling int64) bool {
			var earned int64
			for _, v := range values {
				award, _ := decide(v, ceiling, earned)
				if award < 0 || award > v {
					return false
				}
				earned += award
				if earned > ceiling {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.Int64Range(1, 50)),
		gen.Int64Range(1, 500),
	))

	properties.TestingRun(t)
}
