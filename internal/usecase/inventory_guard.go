package usecase

import (
	"context"
	"sort"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"github.com/pkg/errors"
)

const (
	reasonOrderReserve = "order_reserve"
	reasonOrderRelease = "order_release"
)

// 在庫の確認・確保・戻しの入口。減算はここ以外から呼ばない。
type InventoryGuard struct{}

func NewInventoryGuard() *InventoryGuard {
	return &InventoryGuard{}
}

// Checkは読むだけ。カート操作用で、確保はしない。
func (g *InventoryGuard) Check(ctx context.Context, inv repo.InventoryRepository, productID int64, qty int64) error {
	stock, err := inv.CurrentStock(ctx, productID)
	if errors.Is(err, repo.ErrNotFound) {
		return notFound("product", productID)
	}
	if err != nil {
		return errors.Wrapf(err, "read stock of product %d", productID)
	}
	if stock < qty {
		return &InsufficientStockError{ProductID: productID, Requested: qty, Available: stock}
	}
	return nil
}

// ReserveはTxの中で行ロック→確認→条件付き減算。
// 減算はTxがcommitされたときだけ残る。
func (g *InventoryGuard) Reserve(ctx context.Context, r repo.TxRepos, productID int64, qty int64) error {
	stock, err := r.Inventory().LockStock(ctx, productID)
	if errors.Is(err, repo.ErrNotFound) {
		return notFound("product", productID)
	}
	if err != nil {
		return errors.Wrapf(err, "lock stock of product %d", productID)
	}
	if stock < qty {
		return &InsufficientStockError{ProductID: productID, Requested: qty, Available: stock}
	}

	ok, err := r.Inventory().DecreaseStockIfEnough(ctx, productID, qty)
	if err != nil {
		return errors.Wrapf(err, "decrease stock of product %d", productID)
	}
	if !ok {
		// ロックが効かないDBで先を越された
		current, err := r.Inventory().CurrentStock(ctx, productID)
		if err != nil {
			return errors.Wrapf(err, "read stock of product %d", productID)
		}
		return &InsufficientStockError{ProductID: productID, Requested: qty, Available: current}
	}
	return nil
}

// 確保した分の履歴を注文に紐づけて残す
func (g *InventoryGuard) RecordReservation(ctx context.Context, r repo.TxRepos, orderID int64, items []model.OrderItem) error {
	for _, it := range items {
		if err := r.Inventory().CreateAdjustment(ctx, model.InventoryAdjustment{
			ProductID: it.ProductID,
			OrderID:   &orderID,
			Delta:     -it.Quantity,
			Reason:    reasonOrderReserve,
		}); err != nil {
			return errors.Wrapf(err, "record reservation of product %d for order %d", it.ProductID, orderID)
		}
	}
	return nil
}

// Releaseは注文の明細分を在庫に戻す。呼ぶのは状態遷移が成功したときだけ。
func (g *InventoryGuard) Release(ctx context.Context, r repo.TxRepos, orderID int64) error {
	items, err := r.OrderItems().ListByOrderID(ctx, orderID)
	if err != nil {
		return errors.Wrapf(err, "list items of order %d", orderID)
	}

	sorted := make([]model.OrderItem, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ProductID < sorted[j].ProductID })

	for _, it := range sorted {
		err := r.Inventory().IncreaseStock(ctx, it.ProductID, it.Quantity)
		if errors.Is(err, repo.ErrNotFound) {
			// カタログから消えた商品は戻し先が無い
			continue
		}
		if err != nil {
			return errors.Wrapf(err, "release stock of product %d for order %d", it.ProductID, orderID)
		}
		if err := r.Inventory().CreateAdjustment(ctx, model.InventoryAdjustment{
			ProductID: it.ProductID,
			OrderID:   &orderID,
			Delta:     it.Quantity,
			Reason:    reasonOrderRelease,
		}); err != nil {
			return errors.Wrapf(err, "record release of product %d for order %d", it.ProductID, orderID)
		}
	}
	return nil
}
