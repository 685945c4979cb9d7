package db

import (
	"database/sql"

	"github.com/pkg/errors"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"server-rewards-app/internal/model"
)

// OpenGorm wraps an existing connection pool, so raw-SQL daos and gorm share it.
func OpenGorm(conn *sql.DB) (*gorm.DB, error) {
	gdb, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      conn,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, errors.Wrap(err, "open gorm")
	}
	return gdb, nil
}

// Migrate creates or updates every table the engines touch.
func Migrate(gdb *gorm.DB) error {
	err := gdb.AutoMigrate(
		&model.User{},
		&model.AccrualLog{},
		&model.Purchase{},
		&model.ReferralEdge{},
		&model.ReferrerLevelPercent{},
		&model.CommissionLog{},
		&model.App{},
	)
	return errors.Wrap(err, "auto migrate")
}
