package config

import (
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"server-rewards-app/internal/pkg/util"
)

var confPath string

func init() {
	flag.StringVar(&confPath, "conf", "configs/", "default config path")
}

const (
	envPrefix = "REWARDS"

	// MaxCommissionLevels caps the upline walk regardless of configuration.
	MaxCommissionLevels = 5
)

var (
	Server  server
	MySql   MySqlConfig
	Redis   RedisConfig
	Dgraph  dgraph
	Rewards RewardsConfig
)

// Server 配置
type server struct {
	Env       string `yaml:"env"`
	Host      string `yaml:"host"`
	Port      string `yaml:"port"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	SignCheck bool   `yaml:"sign_check"`
}

type MySqlConfig struct {
	Host         string `yaml:"host"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	Database     string `yaml:"database"`
	Charset      string `yaml:"charset"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	AutoMigrate  bool   `yaml:"auto_migrate"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Enabled  bool   `yaml:"enabled"`
}

type dgraph struct {
	RPCAddr string `yaml:"rpc_addr"`
	Enabled bool   `yaml:"enabled"`
}

// Commission 多级分佣配置
type Commission struct {
	Levels   int       `yaml:"levels"`
	Percents []float64 `yaml:"percents"`
}

type RewardsConfig struct {
	Timezone            string           `yaml:"timezone"`
	ActionPoints        map[string]int64 `yaml:"action_points"`
	OneOffActions       []string         `yaml:"one_off_actions"`
	DailyLimitDefault   int64            `yaml:"daily_limit_default"`
	DailyLimitPremium   int64            `yaml:"daily_limit_premium"`
	ProductValidityDays map[string]int   `yaml:"product_validity_days"`
	Commission          Commission       `yaml:"commission"`
	ReconcileSchedule   string           `yaml:"reconcile_schedule"`
}

// Location returns the accounting timezone; every daily window is cut at its midnight.
// An empty timezone means Asia/Shanghai.
func (r RewardsConfig) Location() (*time.Location, error) {
	if r.Timezone == "" {
		return util.ShLoc, nil
	}
	return time.LoadLocation(r.Timezone)
}

// Validate rejects settings the engines cannot run with. Levels above
// MaxCommissionLevels are clamped, and the percents slice is trimmed to match.
func (r *RewardsConfig) Validate() error {
	if _, err := r.Location(); err != nil {
		return errors.Wrapf(err, "load timezone %q", r.Timezone)
	}
	for action, p := range r.ActionPoints {
		if p <= 0 {
			return errors.Errorf("action %s: points must be positive, got %d", action, p)
		}
	}
	if r.DailyLimitDefault <= 0 || r.DailyLimitPremium <= 0 {
		return errors.New("daily limits must be positive")
	}
	for product, days := range r.ProductValidityDays {
		if days <= 0 {
			return errors.Errorf("product %s: validity days must be positive, got %d", product, days)
		}
	}

	c := &r.Commission
	if c.Levels < 1 {
		return errors.Errorf("commission levels must be >= 1, got %d", c.Levels)
	}
	if c.Levels > MaxCommissionLevels {
		c.Levels = MaxCommissionLevels
	}
	if len(c.Percents) < c.Levels {
		return errors.Errorf("commission percents: want %d values, got %d", c.Levels, len(c.Percents))
	}
	c.Percents = c.Percents[:c.Levels]
	for i, p := range c.Percents {
		if p < 0 || p > 100 {
			return errors.Errorf("commission level %d: percent %v out of range", i+1, p)
		}
	}
	return nil
}

func Init() {
	unmarshal("server", &Server)
	unmarshal("mysql", &MySql)
	unmarshal("redis", &Redis)
	unmarshal("dgraph", &Dgraph)
	unmarshal("rewards", &Rewards)

	if err := Rewards.Validate(); err != nil {
		panic(fmt.Errorf("Fatal error rewards config: %s \n", err))
	}
}

func unmarshal(name string, out interface{}) {
	v := viper.New()
	v.SetConfigName(name)
	v.AddConfigPath(confPath)
	v.SetEnvPrefix(envPrefix + "_" + strings.ToUpper(name))
	v.AutomaticEnv()
	err := v.ReadInConfig() // Find and read the config file
	if err != nil {         // Handle errors reading the config file
		panic(fmt.Errorf("Fatal error config file: %s \n", err))
	}

	err = v.Unmarshal(out, func(config *mapstructure.DecoderConfig) {
		config.TagName = "yaml"
	})
	if err != nil {
		panic(fmt.Errorf("Fatal error unmarshal config file: %s \n", err))
	}
}
