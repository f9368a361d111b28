package model

import "time"

// アカウントかセッションごとにカートは1つ。どちらか一方だけ埋まる。
type Cart struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	AccountID *string   `gorm:"type:varchar(255);uniqueIndex" json:"account_id,omitempty"`
	SessionID *string   `gorm:"type:varchar(255);uniqueIndex" json:"session_id,omitempty"`
	ExpiresAt time.Time `gorm:"not null;index" json:"expires_at"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (c Cart) Owner() Owner {
	return ownerFrom(c.AccountID, c.SessionID)
}

func (c Cart) IsExpired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}
