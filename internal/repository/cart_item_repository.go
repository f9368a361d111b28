package repository

import (
	"context"

	"storefront/internal/domain/model"

	"github.com/shopspring/decimal"
)

// 明細の操作は全部cartIDで絞る（他人の明細に触らない）
type CartItemRepository interface {
	ListByCartID(ctx context.Context, cartID int64) ([]model.CartItem, error)
	FindByID(ctx context.Context, cartID int64, cartItemID int64) (model.CartItem, error)
	// 行ロック付きで既存明細を探す
	FindByProductForUpdate(ctx context.Context, cartID int64, productID int64) (model.CartItem, error)
	// 同一商品は数量加算。スナップショット価格は新規作成時だけ入る。
	UpsertByCartAndProduct(ctx context.Context, cartID int64, productID int64, addQty int64, unitPriceSnapshot decimal.Decimal) error
	UpdateQuantity(ctx context.Context, cartID int64, cartItemID int64, qty int64) error
	// 消えていれば false
	DeleteByID(ctx context.Context, cartID int64, cartItemID int64) (bool, error)
}
