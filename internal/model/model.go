package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ActionType 积分行为类型
type ActionType string

const (
	ActionPostCreate  ActionType = "post_create"
	ActionPostView    ActionType = "post_view"
	ActionPostComment ActionType = "post_comment"
	ActionReaction    ActionType = "reaction"
	ActionFollow      ActionType = "follow"
	ActionRefer       ActionType = "refer"
)

// User 用户余额信息
type User struct {
	ID               int64           `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	PointsBalance    int64           `json:"points_balance" gorm:"column:points_balance;not null;default:0"`
	AffiliateBalance decimal.Decimal `json:"affiliate_balance" gorm:"column:affiliate_balance;type:decimal(20,2);not null;default:0"`
	ReferrerID       *int64          `json:"referrer_id" gorm:"column:referrer_id;index"`
	CustomCommission bool            `json:"custom_commission" gorm:"column:custom_commission;not null;default:false"`
}

func (User) TableName() string { return "users" }

// AccrualLog 积分发放流水（只增不改）
type AccrualLog struct {
	ID            int64      `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	UserID        int64      `json:"user_id" gorm:"column:user_id;not null;index:idx_user_time,priority:1"`
	NodeID        string     `json:"node_id" gorm:"column:node_id;size:64;not null"`
	ActionType    ActionType `json:"action_type" gorm:"column:action_type;size:32;not null"`
	PointsAwarded int64      `json:"points_awarded" gorm:"column:points_awarded;not null"`
	DedupKey      *string    `json:"-" gorm:"column:dedup_key;size:160;uniqueIndex"` // 一次性行为唯一键, 可重复行为为空
	CreatedAt     time.Time  `json:"created_at" gorm:"column:created_at;not null;index:idx_user_time,priority:2"`
}

func (AccrualLog) TableName() string { return "accrual_logs" }

// Purchase 订阅购买记录（只增不改）
type Purchase struct {
	ID          int64           `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	UserID      int64           `json:"user_id" gorm:"column:user_id;not null;index:idx_user_purchased,priority:1"`
	ProductName string          `json:"product_name" gorm:"column:product_name;size:64;not null"`
	GrossAmount decimal.Decimal `json:"gross_amount" gorm:"column:gross_amount;type:decimal(20,2);not null"`
	PurchasedAt time.Time       `json:"purchased_at" gorm:"column:purchased_at;not null;index:idx_user_purchased,priority:2"`
}

func (Purchase) TableName() string { return "purchases" }

// ReferralEdge 邀请关系表
type ReferralEdge struct {
	ReferrerID int64 `json:"referrer_id" gorm:"column:referrer_id;not null;index"`
	RefereeID  int64 `json:"referee_id" gorm:"column:referee_id;primaryKey;autoIncrement:false"`
}

func (ReferralEdge) TableName() string { return "referral_edges" }

// ReferrerLevelPercent 邀请人自定义分佣比例
type ReferrerLevelPercent struct {
	UserID  int64           `json:"user_id" gorm:"column:user_id;primaryKey;autoIncrement:false"`
	Level   int             `json:"level" gorm:"column:level;primaryKey;autoIncrement:false"`
	Percent decimal.Decimal `json:"percent" gorm:"column:percent;type:decimal(6,3);not null"`
}

func (ReferrerLevelPercent) TableName() string { return "referrer_level_percents" }

// ReferrerSettings is the validated per-referrer commission override, keyed by level.
type ReferrerSettings struct {
	UserID   int64
	Custom   bool
	Percents map[int]decimal.Decimal
}

// CommissionLog 分佣流水
type CommissionLog struct {
	ID          int64           `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	PurchaserID int64           `json:"purchaser_id" gorm:"column:purchaser_id;not null;index"`
	Level       int             `json:"level" gorm:"column:level;not null"`
	ReferrerID  int64           `json:"referrer_id" gorm:"column:referrer_id;not null;index"`
	Percent     decimal.Decimal `json:"percent" gorm:"column:percent;type:decimal(6,3);not null"`
	Amount      decimal.Decimal `json:"amount" gorm:"column:amount;type:decimal(20,2);not null"`
	CreatedAt   time.Time       `json:"created_at" gorm:"column:created_at;not null"`
}

func (CommissionLog) TableName() string { return "commission_logs" }

// App 接入方应用
type App struct {
	AppID     string `json:"app_id" gorm:"column:app_id;primaryKey;size:32"`
	PaySecret string `json:"-" gorm:"column:pay_secret;size:64;not null"`
}

func (App) TableName() string { return "app" }
