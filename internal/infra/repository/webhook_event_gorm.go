package repository

import (
	"context"

	"storefront/internal/domain/model"

	"gorm.io/gorm"
)

type WebhookEventGormRepository struct {
	db *gorm.DB
}

func NewWebhookEventGormRepository(db *gorm.DB) *WebhookEventGormRepository {
	return &WebhookEventGormRepository{db: db}
}

// event_idが主キーなので再配信は ErrDuplicate になる
func (r *WebhookEventGormRepository) Create(ctx context.Context, event model.WebhookEvent) error {
	return translate(r.db.WithContext(ctx).Create(&event).Error)
}

func (r *WebhookEventGormRepository) FindByID(ctx context.Context, eventID string) (model.WebhookEvent, error) {
	var ev model.WebhookEvent
	err := r.db.WithContext(ctx).Where("event_id = ?", eventID).First(&ev).Error
	if err != nil {
		return model.WebhookEvent{}, translate(err)
	}
	return ev, nil
}
