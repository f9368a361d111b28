package repository

import (
	"context"

	"storefront/internal/domain/model"
)

type WebhookEventRepository interface {
	// 同じevent_idが既にあれば ErrDuplicate
	Create(ctx context.Context, event model.WebhookEvent) error
	FindByID(ctx context.Context, eventID string) (model.WebhookEvent, error)
}
