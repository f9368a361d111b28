package usecase

import (
	"context"
	"strings"
	"time"

	"storefront/internal/domain/model"
	"storefront/internal/infra/payment"
	repo "storefront/internal/repository"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type SignatureVerifier interface {
	Verify(payload []byte, header string) error
}

// メール送信側への通知。送りっぱなし。
type Notifier interface {
	OrderPaid(ctx context.Context, order model.Order)
	PaymentFailed(ctx context.Context, order model.Order)
}

type WebhookOutcome string

const (
	OutcomeApplied      WebhookOutcome = "applied"
	OutcomeNoop         WebhookOutcome = "noop"
	OutcomeAnomaly      WebhookOutcome = "anomaly"
	OutcomeDuplicate    WebhookOutcome = "duplicate"
	OutcomeIgnored      WebhookOutcome = "ignored"
	OutcomeUnresolvable WebhookOutcome = "unresolvable"
	OutcomeMalformed    WebhookOutcome = "malformed"
)

// 署名が正しければ業務的に失敗してもAccepted扱い
type WebhookResult struct {
	EventID   string         `json:"event_id,omitempty"`
	EventType string         `json:"event_type,omitempty"`
	Outcome   WebhookOutcome `json:"outcome"`
}

type signalKind int

const (
	signalSucceeded signalKind = iota + 1
	signalFailed
	signalRefunded
)

func (k signalKind) String() string {
	switch k {
	case signalSucceeded:
		return "succeeded"
	case signalFailed:
		return "failed"
	case signalRefunded:
		return "refunded"
	}
	return "unknown"
}

// Webhookでもpull照合でも同じ形にして適用する
type paymentSignal struct {
	Source      string
	Kind        signalKind
	IntentID    string
	AmountMinor int64
	Currency    string
}

var (
	errUnresolvableOrder = errors.New("webhook target order not found")
	errDuplicateDelivery = errors.New("webhook event already processed")
)

type WebhookReconciler struct {
	tx           repo.TransactionManager
	repos        repo.TxRepos
	verifier     SignatureVerifier
	processor    PaymentProcessor
	transitioner *OrderTransitioner
	notifier     Notifier
	clock        Clock
	timeout      time.Duration
	log          logrus.FieldLogger
}

func NewWebhookReconciler(
	tx repo.TransactionManager,
	repos repo.TxRepos,
	verifier SignatureVerifier,
	processor PaymentProcessor,
	transitioner *OrderTransitioner,
	notifier Notifier,
	clock Clock,
	timeout time.Duration,
	log logrus.FieldLogger,
) *WebhookReconciler {
	return &WebhookReconciler{
		tx:           tx,
		repos:        repos,
		verifier:     verifier,
		processor:    processor,
		transitioner: transitioner,
		notifier:     notifier,
		clock:        clock,
		timeout:      timeout,
		log:          log,
	}
}

// HandleWebhookは生のbodyで署名を検証してからだけ中身を読む。
// 署名不正は SignatureError。DB障害などはそのままエラーで返す（代行側に再送させる）。
// それ以外は全部 Accepted。
func (u *WebhookReconciler) HandleWebhook(ctx context.Context, rawBody []byte, signatureHeader string) (WebhookResult, error) {
	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	if err := u.verifier.Verify(rawBody, signatureHeader); err != nil {
		u.log.WithFields(logrus.Fields{
			"category": "security",
			"reason":   err.Error(),
			"size":     len(rawBody),
		}).Warn("webhook signature rejected")
		return WebhookResult{}, &SignatureError{Reason: err.Error(), cause: err}
	}

	ev, err := payment.ParseEvent(rawBody)
	if err != nil {
		u.log.WithError(err).WithField("category", "reconcile").Error("signed webhook payload could not be decoded")
		return WebhookResult{Outcome: OutcomeMalformed}, nil
	}

	result := WebhookResult{EventID: ev.ID, EventType: ev.Type}
	log := u.log.WithFields(logrus.Fields{
		"category":   "reconcile",
		"event_id":   ev.ID,
		"event_type": ev.Type,
	})

	kind, ok := signalFor(ev.Type)
	if !ok {
		log.Debug("webhook event ignored")
		result.Outcome = OutcomeIgnored
		return result, nil
	}

	// 早めの重複チェック。確定はTx内のinsert。
	if _, err := u.repos.WebhookEvents().FindByID(ctx, ev.ID); err == nil {
		log.Info("webhook event already processed")
		result.Outcome = OutcomeDuplicate
		return result, nil
	} else if !errors.Is(err, repo.ErrNotFound) {
		return result, errors.Wrapf(err, "check webhook event %s", ev.ID)
	}

	orderID, err := u.resolveOrderID(ctx, ev)
	if err != nil {
		return result, err
	}
	if orderID == 0 {
		log.WithField("intent_id", ev.IntentID()).Error("webhook event carries no resolvable order reference")
		result.Outcome = OutcomeUnresolvable
		return result, nil
	}
	log = log.WithField("order_id", orderID)

	sig := paymentSignal{
		Source:      ev.ID,
		Kind:        kind,
		IntentID:    ev.IntentID(),
		AmountMinor: ev.Data.Object.Amount,
		Currency:    strings.ToLower(ev.Data.Object.Currency),
	}
	record := &model.WebhookEvent{
		EventID:   ev.ID,
		EventType: ev.Type,
		OrderID:   &orderID,
	}

	outcome, err := u.apply(ctx, orderID, sig, record, log)
	switch {
	case errors.Is(err, errDuplicateDelivery):
		log.Info("webhook event processed concurrently")
		result.Outcome = OutcomeDuplicate
		return result, nil
	case errors.Is(err, errUnresolvableOrder):
		log.Error("webhook event references an unknown order")
		result.Outcome = OutcomeUnresolvable
		return result, nil
	case err != nil:
		log.WithError(err).Error("webhook event could not be applied")
		return result, err
	}

	result.Outcome = outcome
	return result, nil
}

// ReconcileFromProcessorはWebhookが届かなかったときに代行側へ状態を取りに行く。
func (u *WebhookReconciler) ReconcileFromProcessor(ctx context.Context, orderNumber string) (WebhookResult, error) {
	order, err := u.repos.Orders().FindByNumber(ctx, strings.TrimSpace(orderNumber))
	if errors.Is(err, repo.ErrNotFound) {
		return WebhookResult{}, notFound("order", orderNumber)
	}
	if err != nil {
		return WebhookResult{}, errors.Wrapf(err, "find order %s", orderNumber)
	}
	if order.PaymentIntentID == nil || *order.PaymentIntentID == "" {
		return WebhookResult{}, NewConflictError("order %s has no payment intent", order.OrderNumber)
	}

	callCtx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	intent, err := u.processor.RetrieveIntent(callCtx, *order.PaymentIntentID)
	if err != nil {
		return WebhookResult{}, gatewayError(err, order.OrderNumber)
	}

	result := WebhookResult{EventID: "pull:" + intent.ID, EventType: "payment_intent." + intent.Status}
	var kind signalKind
	switch intent.Status {
	case "succeeded":
		kind = signalSucceeded
	case "canceled":
		kind = signalFailed
	default:
		// まだ途中
		result.Outcome = OutcomeNoop
		return result, nil
	}

	log := u.log.WithFields(logrus.Fields{
		"category":  "reconcile",
		"order_id":  order.ID,
		"intent_id": intent.ID,
		"source":    "pull",
	})
	sig := paymentSignal{
		Source:      result.EventID,
		Kind:        kind,
		IntentID:    intent.ID,
		AmountMinor: intent.Amount,
		Currency:    strings.ToLower(intent.Currency),
	}

	outcome, err := u.apply(ctx, order.ID, sig, nil, log)
	if err != nil {
		return result, err
	}
	result.Outcome = outcome
	return result, nil
}

func signalFor(eventType string) (signalKind, bool) {
	switch eventType {
	case payment.EventIntentSucceeded:
		return signalSucceeded, true
	case payment.EventIntentFailed:
		return signalFailed, true
	case payment.EventChargeRefunded:
		return signalRefunded, true
	}
	return 0, false
}

// metadata.order_id が無ければintent idから引く。引けなければ0。
func (u *WebhookReconciler) resolveOrderID(ctx context.Context, ev payment.Event) (int64, error) {
	if id, ok := ev.OrderID(); ok {
		return id, nil
	}

	intentID := ev.IntentID()
	if intentID == "" {
		return 0, nil
	}
	p, err := u.repos.Payments().FindByIntentID(ctx, intentID)
	if errors.Is(err, repo.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrapf(err, "find payment by intent %s", intentID)
	}
	return p.OrderID, nil
}

// 1イベントの適用は1Tx。注文行をロックしてから読むので同じ注文の同時配信は直列になる。
func (u *WebhookReconciler) apply(ctx context.Context, orderID int64, sig paymentSignal, record *model.WebhookEvent, log logrus.FieldLogger) (WebhookOutcome, error) {
	var (
		outcome   WebhookOutcome
		after     model.Order
		notifyFor signalKind
	)

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		order, err := r.Orders().FindByIDForUpdate(ctx, orderID)
		if errors.Is(err, repo.ErrNotFound) {
			return errUnresolvableOrder
		}
		if err != nil {
			return errors.Wrapf(err, "lock order %d", orderID)
		}

		res, err := u.applySignal(ctx, r, order, sig, log)
		if err != nil {
			return err
		}
		outcome, after, notifyFor = res.outcome, res.order, res.notify

		if record != nil {
			record.Outcome = string(outcome)
			record.ProcessedAt = u.clock.Now()
			if err := r.WebhookEvents().Create(ctx, *record); err != nil {
				if errors.Is(err, repo.ErrDuplicate) {
					return errDuplicateDelivery
				}
				return errors.Wrapf(err, "record webhook event %s", record.EventID)
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	switch notifyFor {
	case signalSucceeded:
		u.notifier.OrderPaid(ctx, after)
	case signalFailed:
		u.notifier.PaymentFailed(ctx, after)
	}

	log.WithFields(logrus.Fields{
		"signal":       sig.Kind.String(),
		"outcome":      outcome,
		"order_status": after.Status,
	}).Info("payment signal reconciled")
	return outcome, nil
}

type applyResult struct {
	outcome WebhookOutcome
	order   model.Order
	notify  signalKind
}

func (u *WebhookReconciler) applySignal(ctx context.Context, r repo.TxRepos, order model.Order, sig paymentSignal, log logrus.FieldLogger) (applyResult, error) {
	p, err := u.ensurePayment(ctx, r, order, sig)
	if err != nil {
		return applyResult{}, err
	}

	if p.IntentID != nil && sig.IntentID != "" && *p.IntentID != sig.IntentID {
		log.WithFields(logrus.Fields{"intent_id": sig.IntentID, "stored_intent_id": *p.IntentID}).Warn("webhook intent does not match stored payment")
	}
	if sig.Kind != signalRefunded && sig.AmountMinor > 0 && sig.AmountMinor != p.AmountMinor {
		log.WithFields(logrus.Fields{"amount_minor": sig.AmountMinor, "stored_amount_minor": p.AmountMinor}).Warn("webhook amount does not match stored payment")
	}

	res := applyResult{outcome: OutcomeNoop, order: order}
	anomaly := func(msg string) {
		res.outcome = OutcomeAnomaly
		log.WithFields(logrus.Fields{
			"anomaly":        true,
			"signal":         sig.Kind.String(),
			"payment_status": p.Status,
			"order_status":   order.Status,
		}).Warn(msg)
	}
	changed := func() {
		if res.outcome == OutcomeNoop {
			res.outcome = OutcomeApplied
		}
	}

	switch sig.Kind {
	case signalSucceeded:
		switch p.Status {
		case model.PaymentStatusSucceeded:
		case model.PaymentStatusRefunded:
			anomaly("payment success received after refund")
		default:
			if err := u.setPaymentStatus(ctx, r, &p, model.PaymentStatusSucceeded, sig.Source); err != nil {
				return applyResult{}, err
			}
			changed()
		}

		switch order.Status {
		case model.OrderStatusPending:
			updated, ok, err := u.transitioner.Transition(ctx, r, order, model.OrderStatusPaid, model.ActorWebhook, sig.Source)
			if err != nil {
				return applyResult{}, err
			}
			if ok {
				res.order = updated
				res.notify = signalSucceeded
				changed()
			}
		case model.OrderStatusFailed, model.OrderStatusCancelled:
			anomaly("payment success received for a closed order")
		}

	case signalFailed:
		switch p.Status {
		case model.PaymentStatusSucceeded, model.PaymentStatusRefunded:
			// 成功の後に届いた失敗では上書きしない
			anomaly("payment failure received after success")
			return res, nil
		case model.PaymentStatusPending:
			if err := u.setPaymentStatus(ctx, r, &p, model.PaymentStatusFailed, sig.Source); err != nil {
				return applyResult{}, err
			}
			changed()
		}

		switch order.Status {
		case model.OrderStatusPending:
			updated, ok, err := u.transitioner.Transition(ctx, r, order, model.OrderStatusFailed, model.ActorWebhook, sig.Source)
			if err != nil {
				return applyResult{}, err
			}
			if ok {
				res.order = updated
				res.notify = signalFailed
				changed()
			}
		case model.OrderStatusFailed:
		default:
			anomaly("payment failure received for an order past payment")
		}

	case signalRefunded:
		switch p.Status {
		case model.PaymentStatusRefunded:
		case model.PaymentStatusSucceeded:
			if err := u.setPaymentStatus(ctx, r, &p, model.PaymentStatusRefunded, sig.Source); err != nil {
				return applyResult{}, err
			}
			changed()
		default:
			anomaly("refund received for a payment that never succeeded")
			if err := u.setPaymentStatus(ctx, r, &p, model.PaymentStatusRefunded, sig.Source); err != nil {
				return applyResult{}, err
			}
		}

		switch order.Status {
		case model.OrderStatusPending, model.OrderStatusPaid, model.OrderStatusProcessing, model.OrderStatusShipped:
			updated, ok, err := u.transitioner.Transition(ctx, r, order, model.OrderStatusCancelled, model.ActorWebhook, sig.Source)
			if err != nil {
				return applyResult{}, err
			}
			if ok {
				res.order = updated
				changed()
			}
		case model.OrderStatusDelivered:
			// 配送済みは返品フローの管轄。決済だけ返金済みにする。
			anomaly("refund received for a delivered order")
		}
	}

	return res, nil
}

// 決済行がまだ無い（intent作成より先にWebhookが来た）ならイベントから作る
func (u *WebhookReconciler) ensurePayment(ctx context.Context, r repo.TxRepos, order model.Order, sig paymentSignal) (model.Payment, error) {
	p, err := r.Payments().FindByOrderID(ctx, order.ID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return model.Payment{}, errors.Wrapf(err, "find payment of order %d", order.ID)
	}

	p = model.Payment{
		OrderID:     order.ID,
		Status:      model.PaymentStatusPending,
		Amount:      order.Total,
		AmountMinor: toMinorUnits(order.Total),
		Currency:    order.Currency,
	}
	if sig.IntentID != "" {
		intentID := sig.IntentID
		p.IntentID = &intentID
	}
	if sig.Kind != signalRefunded && sig.AmountMinor > 0 {
		p.AmountMinor = sig.AmountMinor
	}
	if sig.Currency != "" {
		p.Currency = sig.Currency
	}

	if err := r.Payments().Create(ctx, &p); err != nil {
		return model.Payment{}, errors.Wrapf(err, "create payment of order %d from event %s", order.ID, sig.Source)
	}
	if p.IntentID != nil && order.PaymentIntentID == nil {
		if err := r.Orders().SetPaymentIntentID(ctx, order.ID, *p.IntentID); err != nil {
			return model.Payment{}, errors.Wrapf(err, "store intent on order %d", order.ID)
		}
	}
	return p, nil
}

func (u *WebhookReconciler) setPaymentStatus(ctx context.Context, r repo.TxRepos, p *model.Payment, to model.PaymentStatus, source string) error {
	from := p.Status
	p.Status = to
	p.LastEventID = source
	if err := r.Payments().Update(ctx, p); err != nil {
		return errors.Wrapf(err, "update payment %d", p.ID)
	}
	return writeAudit(ctx, r, u.clock, model.ActorWebhook, model.AuditActionUpdatePaymentStatus, model.AuditResourcePayment, p.ID,
		map[string]model.PaymentStatus{"status": from}, map[string]model.PaymentStatus{"status": to}, source)
}
