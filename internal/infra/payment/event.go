package payment

import (
	"encoding/json"
	"strconv"

	"github.com/pkg/errors"
)

const (
	EventIntentSucceeded = "payment_intent.succeeded"
	EventIntentFailed    = "payment_intent.payment_failed"
	EventChargeRefunded  = "charge.refunded"
)

// Webhookで届くイベント
type Event struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object EventObject `json:"object"`
	} `json:"data"`
}

// payment_intent か charge
type EventObject struct {
	ID               string            `json:"id"`
	Object           string            `json:"object"`
	Amount           int64             `json:"amount"`
	Currency         string            `json:"currency"`
	Status           string            `json:"status"`
	PaymentIntent    string            `json:"payment_intent"`
	Metadata         map[string]string `json:"metadata"`
	LastPaymentError *struct {
		Message string `json:"message"`
	} `json:"last_payment_error"`
}

// 署名検証が通った後にだけ呼ぶ
func ParseEvent(payload []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return Event{}, errors.Wrap(err, "decode webhook event")
	}
	if ev.ID == "" || ev.Type == "" {
		return Event{}, errors.New("webhook event without id or type")
	}
	return ev, nil
}

// metadata.order_id。無い・数値でなければ false。
func (e Event) OrderID() (int64, bool) {
	raw, ok := e.Data.Object.Metadata["order_id"]
	if !ok || raw == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// intent id。chargeイベントなら payment_intent を見る。
func (e Event) IntentID() string {
	if e.Data.Object.Object == "charge" || e.Data.Object.PaymentIntent != "" {
		return e.Data.Object.PaymentIntent
	}
	return e.Data.Object.ID
}
