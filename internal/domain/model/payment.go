package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusSucceeded PaymentStatus = "succeeded"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

// 注文と1対1。ゲートウェイとWebhookだけが書き込む。
type Payment struct {
	ID          int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID     int64           `gorm:"not null;uniqueIndex" json:"order_id"`
	IntentID    *string         `gorm:"type:varchar(255);uniqueIndex" json:"intent_id,omitempty"`
	Status      PaymentStatus   `gorm:"type:varchar(20);not null;index" json:"status"`
	Amount      decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`
	AmountMinor int64           `gorm:"not null" json:"amount_minor"`
	Currency    string          `gorm:"type:varchar(3);not null" json:"currency"`
	LastEventID string          `gorm:"type:varchar(255)" json:"last_event_id,omitempty"`
	CreatedAt   time.Time       `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"not null;autoUpdateTime" json:"updated_at"`
}
