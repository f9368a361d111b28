package repository

import (
	"context"
	"errors"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// カートと明細の両方を扱う
type CartGormRepository struct {
	db *gorm.DB
}

// DI
func NewCartGormRepository(db *gorm.DB) *CartGormRepository {
	return &CartGormRepository{db: db}
}

func ownerScope(db *gorm.DB, owner model.Owner) *gorm.DB {
	if owner.AccountID != "" {
		return db.Where("account_id = ?", owner.AccountID)
	}
	return db.Where("session_id = ?", owner.SessionID)
}

func (r *CartGormRepository) FindByOwner(ctx context.Context, owner model.Owner) (model.Cart, error) {
	if !owner.Valid() {
		return model.Cart{}, repo.ErrNotFound
	}

	var cart model.Cart
	err := ownerScope(r.db.WithContext(ctx), owner).First(&cart).Error
	if err != nil {
		return model.Cart{}, translate(err)
	}
	return cart, nil
}

// 持ち主のカートを取得し、無ければ作成
func (r *CartGormRepository) GetOrCreateByOwner(ctx context.Context, owner model.Owner, now time.Time, ttl time.Duration) (model.Cart, error) {
	if !owner.Valid() {
		return model.Cart{}, errors.New("invalid cart owner")
	}

	var cart model.Cart
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		findErr := ownerScope(tx.Clauses(clause.Locking{Strength: "UPDATE"}), owner).First(&cart).Error
		if findErr == nil && !cart.IsExpired(now) {
			return nil
		}
		if findErr != nil && !errors.Is(findErr, gorm.ErrRecordNotFound) {
			return findErr
		}

		// 期限切れは無かったことにする
		if findErr == nil {
			if err := deleteCart(tx, cart.ID); err != nil {
				return err
			}
		}

		newCart := model.Cart{
			AccountID: owner.AccountPtr(),
			SessionID: owner.SessionPtr(),
			ExpiresAt: now.Add(ttl),
		}
		// 同時作成は一意制約で片方が何もしない
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&newCart).Error; err != nil {
			return err
		}
		return ownerScope(tx, owner).First(&cart).Error
	})
	if err != nil {
		return model.Cart{}, translate(err)
	}
	return cart, nil
}

func (r *CartGormRepository) Touch(ctx context.Context, cartID int64, expiresAt time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&model.Cart{}).
		Where("id = ?", cartID).
		Update("expires_at", expiresAt)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (r *CartGormRepository) Delete(ctx context.Context, cartID int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return deleteCart(tx, cartID)
	})
}

func deleteCart(tx *gorm.DB, cartID int64) error {
	if err := tx.Where("cart_id = ?", cartID).Delete(&model.CartItem{}).Error; err != nil {
		return err
	}
	return tx.Where("id = ?", cartID).Delete(&model.Cart{}).Error
}

// カート明細を一覧取得
func (r *CartGormRepository) ListByCartID(ctx context.Context, cartID int64) ([]model.CartItem, error) {
	var items []model.CartItem

	if err := r.db.WithContext(ctx).
		Where("cart_id = ?", cartID).
		Order("id asc").
		Find(&items).Error; err != nil {
		return []model.CartItem{}, err
	}

	return items, nil
}

func (r *CartGormRepository) FindByID(ctx context.Context, cartID int64, cartItemID int64) (model.CartItem, error) {
	var item model.CartItem
	err := r.db.WithContext(ctx).
		Where("id = ? AND cart_id = ?", cartItemID, cartID).
		First(&item).Error
	if err != nil {
		return model.CartItem{}, translate(err)
	}
	return item, nil
}

func (r *CartGormRepository) FindByProductForUpdate(ctx context.Context, cartID int64, productID int64) (model.CartItem, error) {
	var item model.CartItem
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("cart_id = ? AND product_id = ?", cartID, productID).
		First(&item).Error
	if err != nil {
		return model.CartItem{}, translate(err)
	}
	return item, nil
}

// 同一商品は数量加算
// INSERT ... ON CONFLICT (cart_id, product_id) DO UPDATE SET quantity = quantity + excluded.quantity
func (r *CartGormRepository) UpsertByCartAndProduct(ctx context.Context, cartID int64, productID int64, addQty int64, unitPriceSnapshot decimal.Decimal) error {
	if addQty <= 0 {
		return errors.New("invalid quantity")
	}

	item := model.CartItem{
		CartID:            cartID,
		ProductID:         productID,
		Quantity:          addQty,
		UnitPriceSnapshot: unitPriceSnapshot,
	}

	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "cart_id"}, {Name: "product_id"}},
			DoUpdates: clause.Set{
				{Column: clause.Column{Name: "quantity"}, Value: gorm.Expr("cart_items.quantity + excluded.quantity")},
				{Column: clause.Column{Name: "updated_at"}, Value: gorm.Expr("excluded.updated_at")},
			},
		}).
		Create(&item).Error
}

// 明細の数量を更新
func (r *CartGormRepository) UpdateQuantity(ctx context.Context, cartID int64, cartItemID int64, qty int64) error {
	res := r.db.WithContext(ctx).
		Model(&model.CartItem{}).
		Where("id = ? AND cart_id = ?", cartItemID, cartID).
		Update("quantity", qty)

	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// 明細を削除
func (r *CartGormRepository) DeleteByID(ctx context.Context, cartID int64, cartItemID int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("id = ? AND cart_id = ?", cartItemID, cartID).
		Delete(&model.CartItem{})

	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
