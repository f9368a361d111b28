package usecase

import (
	"time"

	"storefront/internal/domain/model"

	"github.com/shopspring/decimal"
)

type OrderItemOutput struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int64           `json:"quantity"`
	LineTotal decimal.Decimal `json:"line_total"`
}

type OrderOutput struct {
	ID           int64                 `json:"id"`
	OrderNumber  string                `json:"order_number"`
	Status       string                `json:"status"`
	Email        string                `json:"email,omitempty"`
	Subtotal     decimal.Decimal       `json:"subtotal"`
	Discount     decimal.Decimal       `json:"discount"`
	Tax          decimal.Decimal       `json:"tax"`
	Shipping     decimal.Decimal       `json:"shipping"`
	Total        decimal.Decimal       `json:"total"`
	Currency     string                `json:"currency"`
	PromoCode    string                `json:"promo_code,omitempty"`
	Address      model.ShippingAddress `json:"address"`
	GiftOccasion string                `json:"gift_occasion,omitempty"`
	GiftMessage  string                `json:"gift_message,omitempty"`
	CreatedAt    time.Time             `json:"created_at"`
	Items        []OrderItemOutput     `json:"items"`
}

func toOrderOutput(o model.Order, items []model.OrderItem) OrderOutput {
	outItems := make([]OrderItemOutput, 0, len(items))
	for _, it := range items {
		outItems = append(outItems, OrderItemOutput{
			ProductID: it.ProductID,
			Name:      it.ProductNameSnapshot,
			UnitPrice: it.UnitPriceSnapshot,
			Quantity:  it.Quantity,
			LineTotal: it.UnitPriceSnapshot.Mul(decimal.NewFromInt(it.Quantity)).Round(2),
		})
	}

	return OrderOutput{
		ID:           o.ID,
		OrderNumber:  o.OrderNumber,
		Status:       string(o.Status),
		Email:        o.Email,
		Subtotal:     o.Subtotal,
		Discount:     o.Discount,
		Tax:          o.Tax,
		Shipping:     o.Shipping,
		Total:        o.Total,
		Currency:     o.Currency,
		PromoCode:    o.PromoCode,
		Address:      o.Address,
		GiftOccasion: o.GiftOccasion,
		GiftMessage:  o.GiftMessage,
		CreatedAt:    o.CreatedAt,
		Items:        outItems,
	}
}
