// Package pricing は小計・割引・税・送料・合計を計算する。
// 入力だけで結果が決まる純粋関数で、DBや時計には触らない。
package pricing

import (
	"strings"
	"time"

	"storefront/internal/domain/model"

	"github.com/shopspring/decimal"
)

// この金額以上なら国に関係なく送料無料
var FreeShippingThreshold = decimal.NewFromInt(50)

// 国別ルールに無い国の送料
var DefaultShippingFee = decimal.RequireFromString("9.99")

type countryRule struct {
	TaxRate     decimal.Decimal
	ShippingFee decimal.Decimal
}

func rule(tax, shipping string) countryRule {
	return countryRule{
		TaxRate:     decimal.RequireFromString(tax),
		ShippingFee: decimal.RequireFromString(shipping),
	}
}

// キーは小文字の国名かISOコード
var countryRules = map[string]countryRule{
	"united kingdom": rule("0.20", "4.99"),
	"gb":             rule("0.20", "4.99"),
	"uk":             rule("0.20", "4.99"),
	"united states":  rule("0.08", "7.99"),
	"us":             rule("0.08", "7.99"),
	"usa":            rule("0.08", "7.99"),
	"canada":         rule("0.13", "8.99"),
	"ca":             rule("0.13", "8.99"),
	"germany":        rule("0.19", "6.99"),
	"de":             rule("0.19", "6.99"),
	"france":         rule("0.20", "6.99"),
	"fr":             rule("0.20", "6.99"),
	"ireland":        rule("0.23", "5.99"),
	"ie":             rule("0.23", "5.99"),
	"australia":      rule("0.10", "12.99"),
	"au":             rule("0.10", "12.99"),
	"japan":          rule("0.10", "11.99"),
	"jp":             rule("0.10", "11.99"),
}

// 計算対象の1明細。Priceは注文に凍結する単価。
type Line struct {
	ProductID int64
	Price     decimal.Decimal
	Quantity  int64
}

type Totals struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Discount decimal.Decimal `json:"discount"`
	Tax      decimal.Decimal `json:"tax"`
	Shipping decimal.Decimal `json:"shipping"`
	Total    decimal.Decimal `json:"total"`
}

func zeroTotals() Totals {
	return Totals{
		Subtotal: decimal.Zero,
		Discount: decimal.Zero,
		Tax:      decimal.Zero,
		Shipping: decimal.Zero,
		Total:    decimal.Zero,
	}
}

func round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

func lookup(country string) (countryRule, bool) {
	r, ok := countryRules[strings.ToLower(strings.TrimSpace(country))]
	return r, ok
}

// TaxRateは未知の国なら0
func TaxRate(country string) decimal.Decimal {
	if r, ok := lookup(country); ok {
		return r.TaxRate
	}
	return decimal.Zero
}

func ShippingFee(country string) decimal.Decimal {
	if r, ok := lookup(country); ok {
		return r.ShippingFee
	}
	return DefaultShippingFee
}

// Subtotalは明細の単価×数量の合計
func Subtotal(lines []Line) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(round2(l.Price.Mul(decimal.NewFromInt(l.Quantity))))
	}
	return round2(sum)
}

// Discountは使えない割引コードなら0。小計を超えない。
func Discount(subtotal decimal.Decimal, promo *model.PromoCode, now time.Time) decimal.Decimal {
	if promo == nil || !promo.UsableFor(subtotal, now) {
		return decimal.Zero
	}

	var d decimal.Decimal
	switch promo.DiscountType {
	case model.DiscountPercent:
		d = round2(subtotal.Mul(promo.Value).Div(decimal.NewFromInt(100)))
	case model.DiscountFixed:
		d = round2(promo.Value)
	default:
		return decimal.Zero
	}

	if d.IsNegative() {
		return decimal.Zero
	}
	if d.GreaterThan(subtotal) {
		return subtotal
	}
	return d
}

// Computeは合計を計算する。各段階で小数2桁に丸める。
// 明細が空なら全部0。
func Compute(lines []Line, promo *model.PromoCode, country string, now time.Time) Totals {
	if len(lines) == 0 {
		return zeroTotals()
	}

	subtotal := Subtotal(lines)
	discount := Discount(subtotal, promo, now)
	tax := round2(subtotal.Sub(discount).Mul(TaxRate(country)))

	shipping := round2(ShippingFee(country))
	if subtotal.GreaterThanOrEqual(FreeShippingThreshold) {
		shipping = decimal.Zero
	}

	total := round2(subtotal.Sub(discount).Add(tax).Add(shipping))

	return Totals{
		Subtotal: subtotal,
		Discount: discount,
		Tax:      tax,
		Shipping: shipping,
		Total:    total,
	}
}
