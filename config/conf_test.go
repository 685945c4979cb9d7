package config

import (
	"testing"
	"time"

	"github.com/robfig/cron"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRewards() RewardsConfig {
	return RewardsConfig{
		Timezone:            "Asia/Shanghai",
		ActionPoints:        map[string]int64{"post_create": 10},
		DailyLimitDefault:   100,
		DailyLimitPremium:   300,
		ProductValidityDays: map[string]int{"monthly": 30},
		Commission:          Commission{Levels: 2, Percents: []float64{10, 5}},
	}
}

func TestValidate(t *testing.T) {
	r := validRewards()
	require.NoError(t, r.Validate())

	cases := map[string]func(r *RewardsConfig){
		"unknown timezone":  func(r *RewardsConfig) { r.Timezone = "Mars/Olympus" },
		"zero points":       func(r *RewardsConfig) { r.ActionPoints["post_view"] = 0 },
		"no premium limit":  func(r *RewardsConfig) { r.DailyLimitPremium = 0 },
		"bad validity":      func(r *RewardsConfig) { r.ProductValidityDays["weekly"] = -7 },
		"no levels":         func(r *RewardsConfig) { r.Commission.Levels = 0 },
		"too few percents":  func(r *RewardsConfig) { r.Commission.Percents = []float64{10} },
		"percent above 100": func(r *RewardsConfig) { r.Commission.Percents = []float64{10, 101} },
		"negative percent":  func(r *RewardsConfig) { r.Commission.Percents = []float64{-1, 5} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			r := validRewards()
			mutate(&r)
			assert.Error(t, r.Validate())
		})
	}
}

func TestValidateCapsLevels(t *testing.T) {
	r := validRewards()
	r.Commission = Commission{Levels: 8, Percents: []float64{8, 7, 6, 5, 4, 3, 2, 1}}
	require.NoError(t, r.Validate())
	assert.Equal(t, MaxCommissionLevels, r.Commission.Levels)
	assert.Equal(t, []float64{8, 7, 6, 5, 4}, r.Commission.Percents)
}

func TestLocationDefault(t *testing.T) {
	loc, err := RewardsConfig{}.Location()
	require.NoError(t, err)
	assert.NotNil(t, loc)
}

func TestInitReadsSampleConfig(t *testing.T) {
	confPath = "../configs/"
	Init()

	assert.Equal(t, "8080", Server.Port)
	assert.Equal(t, int64(10), Rewards.ActionPoints["post_create"])
	assert.Contains(t, Rewards.OneOffActions, "post_create")
	assert.NotContains(t, Rewards.OneOffActions, "post_view")
	assert.Equal(t, 2, Rewards.Commission.Levels)
	assert.Equal(t, []float64{10, 5}, Rewards.Commission.Percents)
	assert.Equal(t, 30, Rewards.ProductValidityDays["monthly"])
}

func TestSampleReconcileScheduleIsHourly(t *testing.T) {
	confPath = "../configs/"
	Init()

	sched, err := cron.Parse(Rewards.ReconcileSchedule)
	require.NoError(t, err)

	from := time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC)
	first := sched.Next(from)
	assert.Equal(t, time.Hour, sched.Next(first).Sub(first))
	assert.True(t, first.Sub(from) <= time.Hour)
}
