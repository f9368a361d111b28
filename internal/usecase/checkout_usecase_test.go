package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"storefront/internal/domain/model"
	"storefront/internal/infra/cache"
	"storefront/internal/infra/payment"
	gormrepo "storefront/internal/infra/repository"
	repo "storefront/internal/repository"
	"storefront/internal/testutil"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestCheckout_UsesLivePriceAndReservesStock(t *testing.T) {
	f := newFixture(t)
	f.expectIntent()
	ctx := context.Background()
	owner := model.SessionOwner("sess-1")

	a := testutil.SeedProduct(t, f.db, "Widget A", "10.00", 5)
	b := testutil.SeedProduct(t, f.db, "Widget B", "5.00", 5)

	_, err := f.carts.AddLine(ctx, owner, a.ID, 2)
	require.NoError(t, err)
	_, err = f.carts.AddLine(ctx, owner, b.ID, 1)
	require.NoError(t, err)

	// カートに入れた後で値上げ
	require.NoError(t, f.db.Model(&model.Product{}).Where("id = ?", a.ID).Update("price", decimal.RequireFromString("12.00")).Error)

	out, err := f.checkout.Checkout(ctx, owner, CheckoutInput{Email: "ada@example.com", Address: testAddress()})
	require.NoError(t, err)

	o := out.Order
	assert.Equal(t, string(model.OrderStatusPending), o.Status)
	assert.Equal(t, "29.00", o.Subtotal.StringFixed(2))
	assert.Equal(t, "0.00", o.Discount.StringFixed(2))
	assert.Equal(t, "5.80", o.Tax.StringFixed(2))
	assert.Equal(t, "4.99", o.Shipping.StringFixed(2))
	assert.Equal(t, "39.79", o.Total.StringFixed(2))
	assert.Equal(t, "usd", o.Currency)

	prices := map[int64]string{}
	for _, it := range o.Items {
		prices[it.ProductID] = it.UnitPrice.StringFixed(2)
	}
	assert.Equal(t, "12.00", prices[a.ID])
	assert.Equal(t, "5.00", prices[b.ID])

	assert.Equal(t, int64(3), testutil.ReloadStock(t, f.db, a.ID))
	assert.Equal(t, int64(4), testutil.ReloadStock(t, f.db, b.ID))

	// カートは注文と一緒に消える
	_, err = f.repos.Carts().FindByOwner(ctx, owner)
	assert.ErrorIs(t, err, repo.ErrNotFound)

	// 決済は1行、intentは注文にも残る
	assert.Equal(t, "pi_"+o.OrderNumber, out.IntentID)
	assert.NotEmpty(t, out.ClientSecret)
	stored := f.loadOrder(t, o.OrderNumber)
	require.NotNil(t, stored.PaymentIntentID)
	assert.Equal(t, out.IntentID, *stored.PaymentIntentID)

	p := f.loadPayment(t, stored.ID)
	assert.Equal(t, model.PaymentStatusPending, p.Status)
	assert.Equal(t, int64(3979), p.AmountMinor)

	adjustments, err := f.repos.Inventory().ListAdjustmentsByOrderID(ctx, stored.ID)
	require.NoError(t, err)
	require.Len(t, adjustments, 2)
	for _, adj := range adjustments {
		assert.Less(t, adj.Delta, int64(0))
	}

	f.processor.AssertNumberOfCalls(t, "CreateIntent", 1)
}

func TestCheckout_EmptyCart(t *testing.T) {
	f := newFixture(t)

	_, err := f.checkout.Checkout(context.Background(), model.SessionOwner("sess-none"), CheckoutInput{Address: testAddress()})
	assert.ErrorIs(t, err, ErrEmptyCart)
	assert.True(t, IsValidation(err))
	f.processor.AssertNotCalled(t, "CreateIntent", mock.Anything, mock.Anything)
}

func TestCheckout_MissingAddressChangesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := model.SessionOwner("sess-1")
	mug := testutil.SeedProduct(t, f.db, "Mug", "10.00", 5)

	_, err := f.carts.AddLine(ctx, owner, mug.ID, 1)
	require.NoError(t, err)

	_, err = f.checkout.Checkout(ctx, owner, CheckoutInput{Address: model.ShippingAddress{Name: "Ada"}})
	require.Error(t, err)
	assert.True(t, IsValidation(err))

	assert.Equal(t, int64(5), testutil.ReloadStock(t, f.db, mug.ID))
	view, err := f.carts.Get(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, view.Lines, 1)
}

func TestCheckout_RejectsMalformedInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := model.SessionOwner("sess-1")
	mug := testutil.SeedProduct(t, f.db, "Mug", "10.00", 5)

	_, err := f.carts.AddLine(ctx, owner, mug.ID, 1)
	require.NoError(t, err)

	badPhone := testAddress()
	badPhone.Phone = "call me"

	cases := []struct {
		name string
		in   CheckoutInput
	}{
		{"email", CheckoutInput{Email: "ada@example", Address: testAddress()}},
		{"phone", CheckoutInput{Address: badPhone}},
		{"gift message", CheckoutInput{Address: testAddress(), GiftMessage: strings.Repeat("x", 501)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.checkout.Checkout(ctx, owner, tc.in)
			require.Error(t, err)
			assert.True(t, IsValidation(err))
		})
	}

	assert.Equal(t, int64(5), testutil.ReloadStock(t, f.db, mug.ID))
	f.processor.AssertNotCalled(t, "CreateIntent", mock.Anything, mock.Anything)
}

func TestCheckout_InsufficientStockRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := model.SessionOwner("sess-1")
	a := testutil.SeedProduct(t, f.db, "Widget A", "10.00", 5)
	b := testutil.SeedProduct(t, f.db, "Widget B", "5.00", 5)

	_, err := f.carts.AddLine(ctx, owner, a.ID, 2)
	require.NoError(t, err)
	_, err = f.carts.AddLine(ctx, owner, b.ID, 3)
	require.NoError(t, err)

	// 後ろの商品だけ在庫が減った
	require.NoError(t, f.db.Model(&model.Product{}).Where("id = ?", b.ID).Update("stock", 1).Error)

	_, err = f.checkout.Checkout(ctx, owner, CheckoutInput{Address: testAddress()})
	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, b.ID, stockErr.ProductID)
	assert.Equal(t, int64(1), stockErr.Available)

	// 先に確保したAも戻っている
	assert.Equal(t, int64(5), testutil.ReloadStock(t, f.db, a.ID))
	assert.Equal(t, int64(1), testutil.ReloadStock(t, f.db, b.ID))

	var count int64
	require.NoError(t, f.db.Model(&model.Order{}).Count(&count).Error)
	assert.Zero(t, count)

	view, err := f.carts.Get(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, view.Lines, 2)
}

func TestCheckout_ConcurrentOrdersNeverOversell(t *testing.T) {
	f := newFixture(t)
	f.expectIntent()
	ctx := context.Background()
	mug := testutil.SeedProduct(t, f.db, "Mug", "10.00", 5)

	const buyers = 10
	owners := make([]model.Owner, buyers)
	for i := range owners {
		owners[i] = model.SessionOwner(fmt.Sprintf("buyer-%d", i))
		_, err := f.carts.AddLine(ctx, owners[i], mug.ID, 1)
		require.NoError(t, err)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)
	for _, owner := range owners {
		wg.Add(1)
		go func(owner model.Owner) {
			defer wg.Done()
			_, err := f.checkout.Checkout(ctx, owner, CheckoutInput{Address: testAddress()})

			mu.Lock()
			defer mu.Unlock()
			var stockErr *InsufficientStockError
			switch {
			case err == nil:
				succeeded++
			case errors.As(err, &stockErr):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(owner)
	}
	wg.Wait()

	assert.Equal(t, 5, succeeded)
	assert.Equal(t, 5, rejected)
	assert.Equal(t, int64(0), testutil.ReloadStock(t, f.db, mug.ID))
}

func TestCheckout_PromoPercentApplied(t *testing.T) {
	f := newFixture(t)
	f.expectIntent()
	ctx := context.Background()
	owner := model.AccountOwner("acc-1")
	lamp := testutil.SeedProduct(t, f.db, "Lamp", "50.00", 5)
	promo := testutil.SeedPromo(t, f.db, model.PromoCode{
		Code:         "save10",
		DiscountType: model.DiscountPercent,
		Value:        decimal.NewFromInt(10),
		IsActive:     true,
	})

	_, err := f.carts.AddLine(ctx, owner, lamp.ID, 2)
	require.NoError(t, err)

	out, err := f.checkout.Checkout(ctx, owner, CheckoutInput{Address: testAddress(), PromoCode: " save10 "})
	require.NoError(t, err)

	assert.Equal(t, "100.00", out.Order.Subtotal.StringFixed(2))
	assert.Equal(t, "10.00", out.Order.Discount.StringFixed(2))
	assert.Equal(t, "18.00", out.Order.Tax.StringFixed(2))
	assert.Equal(t, "0.00", out.Order.Shipping.StringFixed(2))
	assert.Equal(t, "108.00", out.Order.Total.StringFixed(2))
	assert.Equal(t, "SAVE10", out.Order.PromoCode)

	stored, err := f.repos.Promos().FindByCode(ctx, promo.Code)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.UsedCount)
}

func TestCheckout_PromoBelowMinimumIsNotRedeemed(t *testing.T) {
	f := newFixture(t)
	f.expectIntent()
	ctx := context.Background()
	owner := model.AccountOwner("acc-1")
	mug := testutil.SeedProduct(t, f.db, "Mug", "10.00", 5)
	minimum := decimal.NewFromInt(50)
	promo := testutil.SeedPromo(t, f.db, model.PromoCode{
		Code:           "BIGSPEND",
		DiscountType:   model.DiscountFixed,
		Value:          decimal.NewFromInt(5),
		MinOrderAmount: &minimum,
		IsActive:       true,
	})

	_, err := f.carts.AddLine(ctx, owner, mug.ID, 2)
	require.NoError(t, err)

	out, err := f.checkout.Checkout(ctx, owner, CheckoutInput{Address: testAddress(), PromoCode: "BIGSPEND"})
	require.NoError(t, err)
	assert.Equal(t, "0.00", out.Order.Discount.StringFixed(2))
	assert.Empty(t, out.Order.PromoCode)

	stored, err := f.repos.Promos().FindByCode(ctx, promo.Code)
	require.NoError(t, err)
	assert.Zero(t, stored.UsedCount)
}

func TestCheckout_PromoUsageCap(t *testing.T) {
	f := newFixture(t)
	f.expectIntent()
	ctx := context.Background()
	mug := testutil.SeedProduct(t, f.db, "Mug", "10.00", 10)
	one := int64(1)
	testutil.SeedPromo(t, f.db, model.PromoCode{
		Code:         "ONCE",
		DiscountType: model.DiscountFixed,
		Value:        decimal.NewFromInt(3),
		MaxUses:      &one,
		IsActive:     true,
	})

	first := model.SessionOwner("first")
	second := model.SessionOwner("second")
	for _, o := range []model.Owner{first, second} {
		_, err := f.carts.AddLine(ctx, o, mug.ID, 1)
		require.NoError(t, err)
	}

	out, err := f.checkout.Checkout(ctx, first, CheckoutInput{Address: testAddress(), PromoCode: "ONCE"})
	require.NoError(t, err)
	assert.Equal(t, "3.00", out.Order.Discount.StringFixed(2))

	// 上限に達したコードは割引0で注文自体は通る
	out, err = f.checkout.Checkout(ctx, second, CheckoutInput{Address: testAddress(), PromoCode: "ONCE"})
	require.NoError(t, err)
	assert.Equal(t, "0.00", out.Order.Discount.StringFixed(2))

	stored, err := f.repos.Promos().FindByCode(ctx, "ONCE")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.UsedCount)
}

func TestCheckout_UnknownPromo(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := model.SessionOwner("sess-1")
	mug := testutil.SeedProduct(t, f.db, "Mug", "10.00", 5)

	_, err := f.carts.AddLine(ctx, owner, mug.ID, 1)
	require.NoError(t, err)

	_, err = f.checkout.Checkout(ctx, owner, CheckoutInput{Address: testAddress(), PromoCode: "NOPE"})
	assert.True(t, IsNotFound(err))
	assert.Equal(t, int64(5), testutil.ReloadStock(t, f.db, mug.ID))
}

func TestCheckout_IdempotencyKeyReturnsSameOrder(t *testing.T) {
	f := newFixture(t)
	f.expectIntent()
	ctx := context.Background()
	owner := model.SessionOwner("sess-1")
	mug := testutil.SeedProduct(t, f.db, "Mug", "10.00", 5)

	_, err := f.carts.AddLine(ctx, owner, mug.ID, 2)
	require.NoError(t, err)

	in := CheckoutInput{Address: testAddress(), IdempotencyKey: "key-123"}
	first, err := f.checkout.Checkout(ctx, owner, in)
	require.NoError(t, err)

	// カートはもう空だが同じ注文が返る
	second, err := f.checkout.Checkout(ctx, owner, in)
	require.NoError(t, err)
	assert.Equal(t, first.Order.OrderNumber, second.Order.OrderNumber)
	assert.Equal(t, first.IntentID, second.IntentID)
	assert.Len(t, second.Order.Items, 1)
	assert.Equal(t, int64(3), testutil.ReloadStock(t, f.db, mug.ID))

	var payments int64
	require.NoError(t, f.db.Model(&model.Payment{}).Count(&payments).Error)
	assert.Equal(t, int64(1), payments)

	// 他人が同じキーを使うと衝突
	_, err = f.checkout.Checkout(ctx, model.SessionOwner("someone-else"), in)
	assert.True(t, IsConflict(err))
}

// 同時に来た相手の注文がまだ見えていない状態を作る
type unseenKeyTx struct{ inner repo.TransactionManager }

func (h unseenKeyTx) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	return h.inner.WithinTx(ctx, func(r repo.TxRepos) error {
		return fn(unseenKeyRepos{TxRepos: r})
	})
}

type unseenKeyRepos struct{ repo.TxRepos }

func (r unseenKeyRepos) Orders() repo.OrderRepository {
	return unseenKeyOrders{OrderRepository: r.TxRepos.Orders()}
}

type unseenKeyOrders struct{ repo.OrderRepository }

func (unseenKeyOrders) FindByIdempotencyKey(context.Context, string) (model.Order, bool, error) {
	return model.Order{}, false, nil
}

func TestCheckout_ConcurrentIdempotencyKey(t *testing.T) {
	f := newFixture(t)
	f.expectIntent()
	ctx := context.Background()
	first := model.SessionOwner("sess-1")
	second := model.SessionOwner("sess-2")
	mug := testutil.SeedProduct(t, f.db, "Mug", "10.00", 10)

	_, err := f.carts.AddLine(ctx, first, mug.ID, 1)
	require.NoError(t, err)
	winner, err := f.checkout.Checkout(ctx, first, CheckoutInput{Address: testAddress(), IdempotencyKey: "key-1"})
	require.NoError(t, err)

	log, _ := logtest.NewNullLogger()
	racing := NewCheckoutUsecase(unseenKeyTx{inner: gormrepo.NewTxManagerGorm(f.db)}, f.repos,
		NewOrderBuilder(NewInventoryGuard(), f.clock, "usd"), f.payments, cache.Noop{}, f.clock, log)

	t.Run("other owner gets conflict", func(t *testing.T) {
		_, err := f.carts.AddLine(ctx, second, mug.ID, 2)
		require.NoError(t, err)

		_, err = racing.Checkout(ctx, second, CheckoutInput{Address: testAddress(), IdempotencyKey: "key-1"})
		require.Error(t, err)
		assert.True(t, IsConflict(err))
		assert.NotErrorIs(t, err, repo.ErrDuplicate)

		// 負けた側は何も変わらない
		assert.Equal(t, int64(9), testutil.ReloadStock(t, f.db, mug.ID))
		view, err := f.carts.Get(ctx, second)
		require.NoError(t, err)
		require.Len(t, view.Lines, 1)
	})

	t.Run("same owner gets the winning order", func(t *testing.T) {
		_, err := f.carts.AddLine(ctx, first, mug.ID, 1)
		require.NoError(t, err)

		out, err := racing.Checkout(ctx, first, CheckoutInput{Address: testAddress(), IdempotencyKey: "key-1"})
		require.NoError(t, err)
		assert.Equal(t, winner.Order.OrderNumber, out.Order.OrderNumber)
	})
}

func TestCheckout_GatewayFailureKeepsPendingOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := model.AccountOwner("acc-1")
	mug := testutil.SeedProduct(t, f.db, "Mug", "10.00", 5)

	f.processor.On("CreateIntent", mock.Anything, mock.Anything).
		Return(payment.Intent{}, &payment.ProcessorError{StatusCode: 402, Type: "card_error", Message: "card declined"}).Once()

	_, err := f.carts.AddLine(ctx, owner, mug.ID, 1)
	require.NoError(t, err)

	out, err := f.checkout.Checkout(ctx, owner, CheckoutInput{Address: testAddress()})
	var gwErr *GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, "card declined", gwErr.Message)
	assert.Equal(t, out.Order.OrderNumber, gwErr.OrderNumber)
	assert.Empty(t, out.IntentID)

	order := f.loadOrder(t, out.Order.OrderNumber)
	assert.Equal(t, model.OrderStatusPending, order.Status)
	assert.Nil(t, order.PaymentIntentID)
	_, err = f.repos.Payments().FindByOrderID(ctx, order.ID)
	assert.ErrorIs(t, err, repo.ErrNotFound)

	// 再試行で決済行ができ、もう一度呼んでも同じ行を更新する
	f.expectIntent()
	retry, err := f.payments.RetryForOwner(ctx, owner, order.OrderNumber)
	require.NoError(t, err)
	assert.Equal(t, "pi_"+order.OrderNumber, retry.IntentID)
	first := f.loadPayment(t, order.ID)

	_, err = f.payments.RetryForOwner(ctx, owner, order.OrderNumber)
	require.NoError(t, err)
	again := f.loadPayment(t, order.ID)
	assert.Equal(t, first.ID, again.ID)

	var payments int64
	require.NoError(t, f.db.Model(&model.Payment{}).Count(&payments).Error)
	assert.Equal(t, int64(1), payments)
}

func TestPayment_RetryRejectsStrangerAndPaidOrder(t *testing.T) {
	f := newFixture(t)
	f.expectIntent()
	ctx := context.Background()
	owner := model.AccountOwner("acc-1")
	mug := testutil.SeedProduct(t, f.db, "Mug", "10.00", 5)

	out := f.placeOrder(t, owner, map[int64]int64{mug.ID: 1})

	_, err := f.payments.RetryForOwner(ctx, model.AccountOwner("acc-2"), out.Order.OrderNumber)
	assert.True(t, IsNotFound(err))

	order := f.loadOrder(t, out.Order.OrderNumber)
	ok, err := f.repos.Orders().CompareAndSetStatus(ctx, order.ID, model.OrderStatusPending, model.OrderStatusPaid)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.payments.RetryForOwner(ctx, owner, out.Order.OrderNumber)
	assert.True(t, IsConflict(err))
}

func TestPayment_CreateIntentValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.payments.CreatePaymentIntent(ctx, 1, decimal.Zero, "usd", "")
	assert.True(t, IsValidation(err))

	_, err = f.payments.CreatePaymentIntent(ctx, 1, decimal.NewFromInt(5), "dollars", "")
	assert.True(t, IsValidation(err))

	_, err = f.payments.CreatePaymentIntent(ctx, 404, decimal.NewFromInt(5), "usd", "")
	assert.True(t, IsNotFound(err))
}
