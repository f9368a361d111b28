package repository

import (
	"context"
	"time"

	"storefront/internal/domain/model"
)

type AdminOrderListFilter struct {
	Page   int
	Limit  int
	Status string
	From   *time.Time
	To     *time.Time
}

type OrderRepository interface {
	Create(ctx context.Context, order *model.Order) error
	FindByID(ctx context.Context, orderID int64) (model.Order, error)
	// Tx内で行ロックを取る
	FindByIDForUpdate(ctx context.Context, orderID int64) (model.Order, error)
	FindByNumber(ctx context.Context, orderNumber string) (model.Order, error)

	//検索（同じキーなら同じ結果を返す）
	FindByIdempotencyKey(ctx context.Context, key string) (model.Order, bool, error)

	// fromのときだけtoへ書き換える。書き換えたらtrue。
	CompareAndSetStatus(ctx context.Context, orderID int64, from, to model.OrderStatus) (bool, error)
	SetPaymentIntentID(ctx context.Context, orderID int64, intentID string) error

	//管理者用の注文一覧
	ListAdmin(ctx context.Context, f AdminOrderListFilter) ([]model.Order, int64, error)
}
