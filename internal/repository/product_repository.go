package repository

import (
	"context"

	"storefront/internal/domain/model"
)

// 商品はカタログ側の持ち物。ここでは読むだけ。
type ProductRepository interface {
	FindByID(ctx context.Context, id int64) (model.Product, error)
	FindByIDs(ctx context.Context, ids []int64) (map[int64]model.Product, error)
}
