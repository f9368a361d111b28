package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type DiscountType string

const (
	DiscountPercent DiscountType = "percent"
	DiscountFixed   DiscountType = "fixed"
)

// 割引コード。codeは大文字で保存する。
type PromoCode struct {
	ID             int64            `gorm:"primaryKey;autoIncrement" json:"id"`
	Code           string           `gorm:"type:varchar(64);not null;uniqueIndex" json:"code"`
	DiscountType   DiscountType     `gorm:"type:varchar(20);not null" json:"discount_type"`
	Value          decimal.Decimal  `gorm:"type:numeric(12,2);not null" json:"value"`
	MinOrderAmount *decimal.Decimal `gorm:"type:numeric(12,2)" json:"min_order_amount,omitempty"`
	ExpiresAt      *time.Time       `json:"expires_at,omitempty"`
	MaxUses        *int64           `json:"max_uses,omitempty"`
	UsedCount      int64            `gorm:"not null;default:0" json:"used_count"`
	IsActive       bool             `gorm:"not null;default:true" json:"is_active"`
	CreatedAt      time.Time        `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time        `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func NormalizePromoCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// UsableForは有効・期限内・上限未満・最低金額以上のときだけtrue
func (p PromoCode) UsableFor(subtotal decimal.Decimal, now time.Time) bool {
	if !p.IsActive {
		return false
	}
	if p.ExpiresAt != nil && !now.Before(*p.ExpiresAt) {
		return false
	}
	if p.MaxUses != nil && p.UsedCount >= *p.MaxUses {
		return false
	}
	if p.MinOrderAmount != nil && subtotal.LessThan(*p.MinOrderAmount) {
		return false
	}
	return true
}
