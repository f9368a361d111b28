package pricing

import (
	"testing"
	"time"

	"storefront/internal/domain/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

var now = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertDec(t *testing.T, want string, got decimal.Decimal, field string) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), "%s: want %s got %s", field, want, got.String())
}

func TestCompute_EmptyLinesAllZero(t *testing.T) {
	got := Compute(nil, nil, "United Kingdom", now)

	assert.True(t, got.Subtotal.IsZero())
	assert.True(t, got.Discount.IsZero())
	assert.True(t, got.Tax.IsZero())
	assert.True(t, got.Shipping.IsZero())
	assert.True(t, got.Total.IsZero())
}

func TestCompute_UKBelowThresholdPaysShipping(t *testing.T) {
	lines := []Line{{ProductID: 1, Price: dec("15"), Quantity: 3}}

	got := Compute(lines, nil, "United Kingdom", now)

	assertDec(t, "45", got.Subtotal, "subtotal")
	assertDec(t, "4.99", got.Shipping, "shipping")
	assertDec(t, "9", got.Tax, "tax")
	assertDec(t, "58.99", got.Total, "total")
}

func TestCompute_FreeShippingRegardlessOfCountry(t *testing.T) {
	lines := []Line{{ProductID: 1, Price: dec("55"), Quantity: 1}}

	for _, country := range []string{"United Kingdom", "australia", "Narnia"} {
		got := Compute(lines, nil, country, now)
		assert.True(t, got.Shipping.IsZero(), country)
	}
}

func TestCompute_UnknownCountryZeroTax(t *testing.T) {
	lines := []Line{{ProductID: 1, Price: dec("20"), Quantity: 1}}

	got := Compute(lines, nil, "Atlantis", now)

	assert.True(t, got.Tax.IsZero())
	assertDec(t, "9.99", got.Shipping, "shipping")
	assertDec(t, "29.99", got.Total, "total")
}

func TestCompute_PromoBelowMinimumIsZeroNotError(t *testing.T) {
	min := dec("50")
	promo := &model.PromoCode{
		Code:           "SAVE10",
		DiscountType:   model.DiscountPercent,
		Value:          dec("10"),
		MinOrderAmount: &min,
		IsActive:       true,
	}
	lines := []Line{{ProductID: 1, Price: dec("40"), Quantity: 1}}

	got := Compute(lines, promo, "United States", now)

	assert.True(t, got.Discount.IsZero())
}

func TestCompute_PercentPromoExact(t *testing.T) {
	min := dec("50")
	promo := &model.PromoCode{
		Code:           "SAVE10",
		DiscountType:   model.DiscountPercent,
		Value:          dec("10"),
		MinOrderAmount: &min,
		IsActive:       true,
	}
	lines := []Line{{ProductID: 1, Price: dec("20"), Quantity: 3}}

	got := Compute(lines, promo, "United Kingdom", now)

	assertDec(t, "60", got.Subtotal, "subtotal")
	assertDec(t, "6.00", got.Discount, "discount")
	assertDec(t, "10.80", got.Tax, "tax")
	assert.True(t, got.Shipping.IsZero())
	assertDec(t, "64.80", got.Total, "total")
}

func TestCompute_FixedPromoNeverExceedsSubtotal(t *testing.T) {
	promo := &model.PromoCode{
		Code:         "BIG",
		DiscountType: model.DiscountFixed,
		Value:        dec("100"),
		IsActive:     true,
	}
	lines := []Line{{ProductID: 1, Price: dec("12.50"), Quantity: 2}}

	got := Compute(lines, promo, "Germany", now)

	assertDec(t, "25", got.Discount, "discount")
	assert.True(t, got.Tax.IsZero())
	// 送料は割引前の小計で判定
	assertDec(t, "6.99", got.Shipping, "shipping")
	assertDec(t, "6.99", got.Total, "total")
}

func TestCompute_ExpiredPromoIgnored(t *testing.T) {
	expired := now.Add(-time.Minute)
	promo := &model.PromoCode{
		Code:         "OLD",
		DiscountType: model.DiscountFixed,
		Value:        dec("5"),
		ExpiresAt:    &expired,
		IsActive:     true,
	}
	lines := []Line{{ProductID: 1, Price: dec("30"), Quantity: 1}}

	got := Compute(lines, promo, "Canada", now)

	assert.True(t, got.Discount.IsZero())
}

func TestCompute_RoundsEachStep(t *testing.T) {
	lines := []Line{
		{ProductID: 1, Price: dec("0.333"), Quantity: 3},
		{ProductID: 2, Price: dec("1.005"), Quantity: 1},
	}

	got := Compute(lines, nil, "Ireland", now)

	assertDec(t, "2.01", got.Subtotal, "subtotal")
	assertDec(t, "0.46", got.Tax, "tax")
	assertDec(t, "8.46", got.Total, "total")
}

func TestCompute_Deterministic(t *testing.T) {
	promo := &model.PromoCode{Code: "P", DiscountType: model.DiscountPercent, Value: dec("15"), IsActive: true}
	lines := []Line{
		{ProductID: 1, Price: dec("19.99"), Quantity: 2},
		{ProductID: 2, Price: dec("4.25"), Quantity: 5},
	}

	first := Compute(lines, promo, "France", now)
	for i := 0; i < 10; i++ {
		again := Compute(lines, promo, "France", now)
		assert.True(t, first.Total.Equal(again.Total))
		assert.True(t, first.Tax.Equal(again.Tax))
		assert.True(t, first.Discount.Equal(again.Discount))
	}
}

func TestCompute_CountryMatchIgnoresCase(t *testing.T) {
	assert.True(t, TaxRate("UNITED KINGDOM").Equal(TaxRate("gb")))
	assert.True(t, ShippingFee(" united kingdom ").Equal(dec("4.99")))
}
