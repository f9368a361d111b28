package repository

import (
	"context"

	"storefront/internal/domain/model"

	"github.com/shopspring/decimal"
)

// 注文1件につき決済は1行
type PaymentRepository interface {
	FindByOrderID(ctx context.Context, orderID int64) (model.Payment, error)
	FindByIntentID(ctx context.Context, intentID string) (model.Payment, error)
	Create(ctx context.Context, payment *model.Payment) error
	Update(ctx context.Context, payment *model.Payment) error

	// statusには触らない。状態はWebhook側だけが進める。
	SetIntent(ctx context.Context, paymentID int64, intentID string, amount decimal.Decimal, amountMinor int64, currency string) error
}
