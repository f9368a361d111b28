package cache

import (
	"context"
	"errors"

	"storefront/internal/domain/model"
)

// カート表示用のキャッシュ。正はDB、ここは読み取りの近道だけ。
type CartCache interface {
	Get(ctx context.Context, ownerKey string) (*model.CartView, error)
	Set(ctx context.Context, ownerKey string, cart *model.CartView) error
	Delete(ctx context.Context, ownerKey string) error
}

var ErrCacheMiss = errors.New("cache miss")

// REDIS_ADDRが無いときに使う
type Noop struct{}

func (Noop) Get(context.Context, string) (*model.CartView, error) { return nil, ErrCacheMiss }
func (Noop) Set(context.Context, string, *model.CartView) error  { return nil }
func (Noop) Delete(context.Context, string) error                { return nil }
