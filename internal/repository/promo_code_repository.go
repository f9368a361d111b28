package repository

import (
	"context"

	"storefront/internal/domain/model"
)

type PromoCodeRepository interface {
	// codeは大文字に正規化済みで渡す
	FindByCode(ctx context.Context, code string) (model.PromoCode, error)
	// 上限未満のときだけ used_count を+1。上限到達なら false。
	Redeem(ctx context.Context, promoID int64) (bool, error)
}
