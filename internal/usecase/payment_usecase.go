package usecase

import (
	"context"
	"strings"
	"time"

	"storefront/internal/domain/model"
	"storefront/internal/infra/payment"
	repo "storefront/internal/repository"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"
)

// 決済代行のAPI
type PaymentProcessor interface {
	CreateIntent(ctx context.Context, p payment.CreateIntentParams) (payment.Intent, error)
	RetrieveIntent(ctx context.Context, intentID string) (payment.Intent, error)
}

type PaymentIntentOutput struct {
	OrderNumber  string `json:"order_number"`
	IntentID     string `json:"intent_id"`
	ClientSecret string `json:"client_secret"`
}

type PaymentUsecase struct {
	tx        repo.TransactionManager
	repos     repo.TxRepos
	processor PaymentProcessor
	timeout   time.Duration
	log       logrus.FieldLogger
}

func NewPaymentUsecase(tx repo.TransactionManager, repos repo.TxRepos, processor PaymentProcessor, timeout time.Duration, log logrus.FieldLogger) *PaymentUsecase {
	return &PaymentUsecase{tx: tx, repos: repos, processor: processor, timeout: timeout, log: log}
}

// 小数の金額を最小単位の整数にする（0.5は切り上げ）
func toMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// CreatePaymentIntentは注文1件につき決済1行。何度呼んでも同じ行を更新する。
// 決済代行が失敗したら注文も決済も変えない。
func (u *PaymentUsecase) CreatePaymentIntent(ctx context.Context, orderID int64, amount decimal.Decimal, currency string, receiptEmail string) (PaymentIntentOutput, error) {
	currency = strings.ToLower(strings.TrimSpace(currency))
	if !amount.IsPositive() {
		return PaymentIntentOutput{}, NewValidationError("amount must be positive")
	}
	if len(currency) != 3 {
		return PaymentIntentOutput{}, NewValidationError("invalid currency")
	}

	order, err := u.repos.Orders().FindByID(ctx, orderID)
	if errors.Is(err, repo.ErrNotFound) {
		return PaymentIntentOutput{}, notFound("order", orderID)
	}
	if err != nil {
		return PaymentIntentOutput{}, errors.Wrapf(err, "find order %d", orderID)
	}
	if order.Status != model.OrderStatusPending {
		return PaymentIntentOutput{}, NewConflictError("order %s is %s, not awaiting payment", order.OrderNumber, order.Status)
	}

	minor := toMinorUnits(amount)
	log := u.log.WithFields(logrus.Fields{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
		"amount_minor": minor,
	})

	callCtx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	intent, err := u.processor.CreateIntent(callCtx, payment.CreateIntentParams{
		AmountMinor:  minor,
		Currency:     currency,
		ReceiptEmail: strings.TrimSpace(receiptEmail),
		OrderID:      order.ID,
		OrderNumber:  order.OrderNumber,
	})
	if err != nil {
		log.WithError(err).Warn("create payment intent failed")
		return PaymentIntentOutput{}, gatewayError(err, order.OrderNumber)
	}

	save := func(r repo.TxRepos) error {
		return upsertPendingPayment(ctx, r, order.ID, intent.ID, amount, minor, currency)
	}
	err = u.tx.WithinTx(ctx, save)
	if errors.Is(err, repo.ErrDuplicate) {
		// 同時に作られた行があるので更新でやり直す
		err = u.tx.WithinTx(ctx, save)
	}
	if err != nil {
		return PaymentIntentOutput{}, err
	}

	log.WithField("intent_id", intent.ID).Info("payment intent created")
	return PaymentIntentOutput{
		OrderNumber:  order.OrderNumber,
		IntentID:     intent.ID,
		ClientSecret: intent.ClientSecret,
	}, nil
}

// 持ち主からの再試行
func (u *PaymentUsecase) RetryForOwner(ctx context.Context, owner model.Owner, orderNumber string) (PaymentIntentOutput, error) {
	order, err := findOwnedOrder(ctx, u.repos, owner, orderNumber)
	if err != nil {
		return PaymentIntentOutput{}, err
	}
	return u.CreatePaymentIntent(ctx, order.ID, order.Total, order.Currency, order.Email)
}

// 注文をロックしてからWebhookと同じ順で触る。既存の行はintentだけ差し替え、statusは残す。
func upsertPendingPayment(ctx context.Context, r repo.TxRepos, orderID int64, intentID string, amount decimal.Decimal, minor int64, currency string) error {
	if _, err := r.Orders().FindByIDForUpdate(ctx, orderID); err != nil {
		return errors.Wrapf(err, "lock order %d", orderID)
	}

	existing, err := r.Payments().FindByOrderID(ctx, orderID)
	switch {
	case err == nil:
		if err := r.Payments().SetIntent(ctx, existing.ID, intentID, amount, minor, currency); err != nil {
			return errors.Wrapf(err, "update payment of order %d", orderID)
		}
	case errors.Is(err, repo.ErrNotFound):
		p := &model.Payment{
			OrderID:     orderID,
			IntentID:    &intentID,
			Status:      model.PaymentStatusPending,
			Amount:      amount,
			AmountMinor: minor,
			Currency:    currency,
		}
		if err := r.Payments().Create(ctx, p); err != nil {
			return errors.Wrapf(err, "create payment of order %d", orderID)
		}
	default:
		return errors.Wrapf(err, "find payment of order %d", orderID)
	}

	if err := r.Orders().SetPaymentIntentID(ctx, orderID, intentID); err != nil {
		return errors.Wrapf(err, "store intent on order %d", orderID)
	}
	return nil
}

func gatewayError(err error, orderNumber string) error {
	msg := "payment processor error"
	var pe *payment.ProcessorError
	switch {
	case errors.As(err, &pe):
		msg = pe.Error()
	case errors.Is(err, context.DeadlineExceeded):
		msg = "payment processor timed out"
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		msg = "payment processor unavailable"
	}
	return &GatewayError{Message: msg, OrderNumber: orderNumber, cause: err}
}

// 他人の注文は「存在しない扱い」にする
func findOwnedOrder(ctx context.Context, repos repo.TxRepos, owner model.Owner, orderNumber string) (model.Order, error) {
	if !owner.Valid() {
		return model.Order{}, NewValidationError("order owner is required")
	}
	orderNumber = strings.TrimSpace(orderNumber)
	if orderNumber == "" {
		return model.Order{}, NewValidationError("order number is required")
	}

	order, err := repos.Orders().FindByNumber(ctx, orderNumber)
	if errors.Is(err, repo.ErrNotFound) || (err == nil && !order.OwnedBy(owner)) {
		return model.Order{}, notFound("order", orderNumber)
	}
	if err != nil {
		return model.Order{}, errors.Wrapf(err, "find order %s", orderNumber)
	}
	return order, nil
}
