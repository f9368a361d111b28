package model

import "time"

// 処理済みWebhookイベント。同じevent_idの再配信を弾く。
type WebhookEvent struct {
	EventID     string    `gorm:"primaryKey;type:varchar(255)" json:"event_id"`
	EventType   string    `gorm:"type:varchar(100);not null;index" json:"event_type"`
	OrderID     *int64    `gorm:"index" json:"order_id,omitempty"`
	Outcome     string    `gorm:"type:varchar(100);not null" json:"outcome"`
	ProcessedAt time.Time `gorm:"not null" json:"processed_at"`
}
