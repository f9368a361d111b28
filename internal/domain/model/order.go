package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusPaid       OrderStatus = "paid"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusFailed     OrderStatus = "failed"
)

// 遷移表。ここに無い遷移は全部拒否。
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusPaid, OrderStatusCancelled, OrderStatusFailed},
	OrderStatusPaid:       {OrderStatusProcessing, OrderStatusCancelled, OrderStatusFailed},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled, OrderStatusFailed},
	OrderStatusShipped:    {OrderStatusDelivered, OrderStatusCancelled, OrderStatusFailed},
}

func ParseOrderStatus(s string) (OrderStatus, bool) {
	st := OrderStatus(s)
	switch st {
	case OrderStatusPending, OrderStatusPaid, OrderStatusProcessing, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCancelled, OrderStatusFailed:
		return st, true
	}
	return "", false
}

// 終端（delivered / cancelled / failed）
func (s OrderStatus) IsTerminal() bool {
	_, ok := orderTransitions[s]
	return !ok
}

func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// 在庫を押さえたままの状態。cancelled / failed へ移るときに戻す。
// shipped は商品が倉庫を出ているので含めない。
func (s OrderStatus) HoldsStock() bool {
	switch s {
	case OrderStatusPending, OrderStatusPaid, OrderStatusProcessing:
		return true
	}
	return false
}

// 作成後に変わるのはStatusとPaymentIntentIDだけ
type Order struct {
	ID          int64       `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderNumber string      `gorm:"type:varchar(40);not null;uniqueIndex" json:"order_number"`
	AccountID   *string     `gorm:"type:varchar(255);index" json:"-"`
	SessionID   *string     `gorm:"type:varchar(255);index" json:"-"`
	Email       string      `gorm:"type:varchar(255)" json:"email"`
	Status      OrderStatus `gorm:"type:varchar(20);not null;index" json:"status"`

	Subtotal decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"subtotal"`
	Discount decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"discount"`
	Tax      decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"tax"`
	Shipping decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"shipping"`
	Total    decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"total"`
	Currency string          `gorm:"type:varchar(3);not null" json:"currency"`

	PromoCode string `gorm:"type:varchar(64)" json:"promo_code,omitempty"`

	Address ShippingAddress `gorm:"embedded;embeddedPrefix:ship_" json:"address"`

	GiftOccasion string `gorm:"type:varchar(100)" json:"gift_occasion,omitempty"`
	GiftMessage  string `gorm:"type:text" json:"gift_message,omitempty"`

	PaymentIntentID *string `gorm:"type:varchar(255);index" json:"-"`
	IdempotencyKey  *string `gorm:"type:varchar(255);uniqueIndex" json:"-"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (o Order) Owner() Owner {
	return ownerFrom(o.AccountID, o.SessionID)
}

func (o Order) OwnedBy(owner Owner) bool {
	mine := o.Owner()
	if owner.AccountID != "" {
		return mine.AccountID == owner.AccountID
	}
	return owner.SessionID != "" && mine.AccountID == "" && mine.SessionID == owner.SessionID
}
