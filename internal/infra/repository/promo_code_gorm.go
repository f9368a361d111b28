package repository

import (
	"context"

	"storefront/internal/domain/model"

	"gorm.io/gorm"
)

type PromoCodeGormRepository struct {
	db *gorm.DB
}

func NewPromoCodeGormRepository(db *gorm.DB) *PromoCodeGormRepository {
	return &PromoCodeGormRepository{db: db}
}

func (r *PromoCodeGormRepository) FindByCode(ctx context.Context, code string) (model.PromoCode, error) {
	var p model.PromoCode
	err := r.db.WithContext(ctx).Where("code = ?", code).First(&p).Error
	if err != nil {
		return model.PromoCode{}, translate(err)
	}
	return p, nil
}

// 上限チェックと加算を1文でやる
func (r *PromoCodeGormRepository) Redeem(ctx context.Context, promoID int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.PromoCode{}).
		Where("id = ? AND (max_uses IS NULL OR used_count < max_uses)", promoID).
		Update("used_count", gorm.Expr("used_count + 1"))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
