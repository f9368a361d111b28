package repository

import (
	"context"
	"time"

	"storefront/internal/domain/model"
)

type CartRepository interface {
	FindByOwner(ctx context.Context, owner model.Owner) (model.Cart, error)
	// 無ければ作る。期限切れなら中身を捨てて作り直す。
	GetOrCreateByOwner(ctx context.Context, owner model.Owner, now time.Time, ttl time.Duration) (model.Cart, error)
	Touch(ctx context.Context, cartID int64, expiresAt time.Time) error
	// 明細ごと削除
	Delete(ctx context.Context, cartID int64) error
}
