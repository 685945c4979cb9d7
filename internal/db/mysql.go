package db

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"server-rewards-app/config"
)

// OpenMysql opens the durable store. parseTime is required: the accrual log and
// purchase rows are scanned straight into time.Time.
func OpenMysql(cfg config.MySqlConfig) (*sql.DB, error) {
	charset := cfg.Charset
	if charset == "" {
		charset = "utf8mb4"
	}
	dsn := fmt.Sprintf("%s:%s@tcp(%s)/%s?charset=%s&parseTime=true&loc=UTC", cfg.User, cfg.Password,
		cfg.Host, cfg.Database, charset)
	cli, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open mysql")
	}
	if cfg.MaxIdleConns > 0 {
		cli.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxOpenConns > 0 {
		cli.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	cli.SetConnMaxLifetime(5 * time.Minute)

	if err = cli.Ping(); err != nil {
		cli.Close()
		return nil, errors.Wrapf(err, "ping mysql %s", cfg.Host)
	}
	log.Infof("conn mysql %s/%s success", cfg.Host, cfg.Database)
	return cli, nil
}
