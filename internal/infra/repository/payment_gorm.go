package repository

import (
	"context"

	"storefront/internal/domain/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type PaymentGormRepository struct {
	db *gorm.DB
}

func NewPaymentGormRepository(db *gorm.DB) *PaymentGormRepository {
	return &PaymentGormRepository{db: db}
}

func (r *PaymentGormRepository) FindByOrderID(ctx context.Context, orderID int64) (model.Payment, error) {
	var p model.Payment
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&p).Error
	if err != nil {
		return model.Payment{}, translate(err)
	}
	return p, nil
}

func (r *PaymentGormRepository) FindByIntentID(ctx context.Context, intentID string) (model.Payment, error) {
	var p model.Payment
	err := r.db.WithContext(ctx).Where("intent_id = ?", intentID).First(&p).Error
	if err != nil {
		return model.Payment{}, translate(err)
	}
	return p, nil
}

// order_idの一意制約に当たったら ErrDuplicate
func (r *PaymentGormRepository) Create(ctx context.Context, payment *model.Payment) error {
	return translate(r.db.WithContext(ctx).Create(payment).Error)
}

func (r *PaymentGormRepository) Update(ctx context.Context, payment *model.Payment) error {
	res := r.db.WithContext(ctx).
		Model(&model.Payment{}).
		Where("id = ?", payment.ID).
		Updates(map[string]interface{}{
			"intent_id":     payment.IntentID,
			"status":        payment.Status,
			"amount":        payment.Amount,
			"amount_minor":  payment.AmountMinor,
			"currency":      payment.Currency,
			"last_event_id": payment.LastEventID,
		})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return translate(gorm.ErrRecordNotFound)
	}
	return nil
}

// intentの付け替え。statusとlast_event_idは読み直した値で上書きしない。
func (r *PaymentGormRepository) SetIntent(ctx context.Context, paymentID int64, intentID string, amount decimal.Decimal, amountMinor int64, currency string) error {
	res := r.db.WithContext(ctx).
		Model(&model.Payment{}).
		Where("id = ?", paymentID).
		Updates(map[string]interface{}{
			"intent_id":    intentID,
			"amount":       amount,
			"amount_minor": amountMinor,
			"currency":     currency,
		})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return translate(gorm.ErrRecordNotFound)
	}
	return nil
}
