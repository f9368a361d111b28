package repository

import (
	"context"

	"storefront/internal/domain/model"
)

// 在庫の増減は全部ここを通す
type InventoryRepository interface {
	// 在庫の現在値（キャッシュではなくDBの値）
	CurrentStock(ctx context.Context, productID int64) (int64, error)

	// 行ロックを取って現在値を読む。Tx内で使う。
	LockStock(ctx context.Context, productID int64) (int64, error)

	// 在庫が足りるときだけ減算
	DecreaseStockIfEnough(ctx context.Context, productID int64, qty int64) (bool, error)

	// 在庫戻し（キャンセルなど）
	IncreaseStock(ctx context.Context, productID int64, qty int64) error

	// 増減履歴
	CreateAdjustment(ctx context.Context, adjustment model.InventoryAdjustment) error
	ListAdjustmentsByOrderID(ctx context.Context, orderID int64) ([]model.InventoryAdjustment, error)
}
