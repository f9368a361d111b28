package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// 画面に返すカート。価格は明細のスナップショットで計算する。
type CartView struct {
	CartID    int64           `json:"cart_id"`
	Lines     []CartLineView  `json:"lines"`
	ItemCount int64           `json:"item_count"`
	Subtotal  decimal.Decimal `json:"subtotal"`

	// カート行の有効期限。キャッシュから読んだときもこれで判定する。
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func (v CartView) IsExpired(now time.Time) bool {
	return v.ExpiresAt != nil && !now.Before(*v.ExpiresAt)
}

type CartLineView struct {
	ItemID    int64           `json:"item_id"`
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
}

// 空カート（まだ作られていない場合も含む）
func EmptyCartView() CartView {
	return CartView{Lines: []CartLineView{}, Subtotal: decimal.Zero}
}
