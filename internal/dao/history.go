package dao

import (
	"context"

	"gorm.io/gorm"

	"server-rewards-app/internal/model"
)

type history struct {
}

// History serves the paged read-only views; lastID is a keyset cursor (0 = first page).
var History = new(history)

func (*history) Accruals(ctx context.Context, gdb *gorm.DB, userID, lastID int64, pageSize int) ([]model.AccrualLog, error) {
	var logs []model.AccrualLog
	tx := gdb.WithContext(ctx).Where("user_id = ?", userID)
	if lastID > 0 {
		tx = tx.Where("id < ?", lastID)
	}
	err := tx.Order("id desc").Limit(pageSize).Find(&logs).Error
	return logs, err
}

func (*history) Commissions(ctx context.Context, gdb *gorm.DB, referrerID, lastID int64, pageSize int) ([]model.CommissionLog, error) {
	var logs []model.CommissionLog
	tx := gdb.WithContext(ctx).Where("referrer_id = ?", referrerID)
	if lastID > 0 {
		tx = tx.Where("id < ?", lastID)
	}
	err := tx.Order("id desc").Limit(pageSize).Find(&logs).Error
	return logs, err
}
