package repository

import (
	"context"

	"storefront/internal/domain/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type InventoryGormRepository struct {
	db *gorm.DB
}

func NewInventoryGormRepository(db *gorm.DB) *InventoryGormRepository {
	return &InventoryGormRepository{db: db}
}

func (r *InventoryGormRepository) CurrentStock(ctx context.Context, productID int64) (int64, error) {
	var p model.Product
	err := r.db.WithContext(ctx).
		Select("id", "stock").
		Where("id = ?", productID).
		First(&p).Error
	if err != nil {
		return 0, translate(err)
	}
	return p.Stock, nil
}

// SELECT ... FOR UPDATE
func (r *InventoryGormRepository) LockStock(ctx context.Context, productID int64) (int64, error) {
	var p model.Product
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id", "stock").
		Where("id = ?", productID).
		First(&p).Error
	if err != nil {
		return 0, translate(err)
	}
	return p.Stock, nil
}

// 在庫が足りる時だけ減算
// UPDATE products SET stock = stock - ? WHERE id = ? AND stock >= ?
func (r *InventoryGormRepository) DecreaseStockIfEnough(ctx context.Context, productID int64, qty int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.Product{}).
		Where("id = ? AND stock >= ?", productID, qty).
		Update("stock", gorm.Expr("stock - ?", qty))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *InventoryGormRepository) IncreaseStock(ctx context.Context, productID int64, qty int64) error {
	res := r.db.WithContext(ctx).
		Model(&model.Product{}).
		Where("id = ?", productID).
		Update("stock", gorm.Expr("stock + ?", qty))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return translate(gorm.ErrRecordNotFound)
	}
	return nil
}

func (r *InventoryGormRepository) CreateAdjustment(ctx context.Context, adjustment model.InventoryAdjustment) error {
	return r.db.WithContext(ctx).Create(&adjustment).Error
}

func (r *InventoryGormRepository) ListAdjustmentsByOrderID(ctx context.Context, orderID int64) ([]model.InventoryAdjustment, error) {
	var rows []model.InventoryAdjustment
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("id asc").
		Find(&rows).Error; err != nil {
		return []model.InventoryAdjustment{}, err
	}
	return rows, nil
}
