package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"storefront/internal/domain/model"
	"storefront/internal/infra/cache"
	"storefront/internal/infra/payment"
	gormrepo "storefront/internal/infra/repository"
	repo "storefront/internal/repository"
	"storefront/internal/testutil"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// =====================
// Fakes
// =====================

type fixedClock struct{ now time.Time }

func (c *fixedClock) Now() time.Time { return c.now }

func (c *fixedClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type ProcessorMock struct{ mock.Mock }

func (m *ProcessorMock) CreateIntent(ctx context.Context, p payment.CreateIntentParams) (payment.Intent, error) {
	args := m.Called(ctx, p)
	if fn, ok := args.Get(0).(func(payment.CreateIntentParams) payment.Intent); ok {
		return fn(p), args.Error(1)
	}
	intent, _ := args.Get(0).(payment.Intent)
	return intent, args.Error(1)
}

func (m *ProcessorMock) RetrieveIntent(ctx context.Context, intentID string) (payment.Intent, error) {
	args := m.Called(ctx, intentID)
	intent, _ := args.Get(0).(payment.Intent)
	return intent, args.Error(1)
}

type recordingNotifier struct {
	mu     sync.Mutex
	paid   []string
	failed []string
}

func (n *recordingNotifier) OrderPaid(_ context.Context, o model.Order) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.paid = append(n.paid, o.OrderNumber)
}

func (n *recordingNotifier) PaymentFailed(_ context.Context, o model.Order) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failed = append(n.failed, o.OrderNumber)
}

const testWebhookSecret = "whsec_test"

// =====================
// Fixture
// =====================

type fixture struct {
	db        *gorm.DB
	repos     repo.TxRepos
	clock     *fixedClock
	processor *ProcessorMock
	notifier  *recordingNotifier
	logs      *logtest.Hook

	carts    *CartUsecase
	checkout *CheckoutUsecase
	payments *PaymentUsecase
	orders   *OrderUsecase
	admin    *AdminOrderUsecase
	webhooks *WebhookReconciler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testutil.NewDB(t)
	repos := gormrepo.NewRepos(db)
	tx := gormrepo.NewTxManagerGorm(db)

	clock := &fixedClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	log, hook := logtest.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)

	processor := &ProcessorMock{}
	notifier := &recordingNotifier{}

	guard := NewInventoryGuard()
	transitioner := NewOrderTransitioner(guard, clock, log)
	builder := NewOrderBuilder(guard, clock, "usd")
	payments := NewPaymentUsecase(tx, repos, processor, time.Second, log)
	verifier := payment.NewVerifier(testWebhookSecret, 5*time.Minute).WithClock(clock.Now)

	return &fixture{
		db:        db,
		repos:     repos,
		clock:     clock,
		processor: processor,
		notifier:  notifier,
		logs:      hook,

		carts:    NewCartUsecase(tx, repos, cache.Noop{}, guard, clock, 30*24*time.Hour, log),
		checkout: NewCheckoutUsecase(tx, repos, builder, payments, cache.Noop{}, clock, log),
		payments: payments,
		orders:   NewOrderUsecase(tx, repos, transitioner, log),
		admin:    NewAdminOrderUsecase(tx, repos, transitioner, log),
		webhooks: NewWebhookReconciler(tx, repos, verifier, processor, transitioner, notifier, clock, time.Second, log),
	}
}

func testAddress() model.ShippingAddress {
	return model.ShippingAddress{
		Name:       "Ada Lovelace",
		Line1:      "1 Test Street",
		City:       "London",
		PostalCode: "N1 1AA",
		Country:    "GB",
	}
}

func intentFor(p payment.CreateIntentParams) payment.Intent {
	id := "pi_" + p.OrderNumber
	return payment.Intent{ID: id, ClientSecret: id + "_secret", Status: "requires_payment_method", Amount: p.AmountMinor, Currency: p.Currency}
}

// intent作成を成功させる。idは注文番号から作る。
func (f *fixture) expectIntent() {
	f.processor.On("CreateIntent", mock.Anything, mock.Anything).Return(intentFor, nil)
}

// カートに入れてcheckoutまで進める
func (f *fixture) placeOrder(t *testing.T, owner model.Owner, lines map[int64]int64) CheckoutOutput {
	t.Helper()
	ctx := context.Background()

	for productID, qty := range lines {
		_, err := f.carts.AddLine(ctx, owner, productID, qty)
		require.NoError(t, err)
	}
	out, err := f.checkout.Checkout(ctx, owner, CheckoutInput{Email: "ada@example.com", Address: testAddress()})
	require.NoError(t, err)
	return out
}

func (f *fixture) loadOrder(t *testing.T, number string) model.Order {
	t.Helper()
	o, err := f.repos.Orders().FindByNumber(context.Background(), number)
	require.NoError(t, err)
	return o
}

func (f *fixture) loadPayment(t *testing.T, orderID int64) model.Payment {
	t.Helper()
	p, err := f.repos.Payments().FindByOrderID(context.Background(), orderID)
	require.NoError(t, err)
	return p
}
