package notify

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"storefront/internal/domain/model"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	EventOrderPaid     = "order.paid"
	EventPaymentFailed = "order.payment_failed"
)

// メール側が読むメッセージ
type OrderEvent struct {
	Type        string          `json:"type"`
	OrderID     int64           `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	Email       string          `json:"email,omitempty"`
	Total       decimal.Decimal `json:"total"`
	Currency    string          `json:"currency"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifierは送りっぱなし。失敗はログだけ残して注文処理には返さない。
type KafkaNotifier struct {
	writer  messageWriter
	log     logrus.FieldLogger
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewKafkaNotifier(brokers []string, topic string, log logrus.FieldLogger) *KafkaNotifier {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
	return newKafkaNotifier(w, log)
}

func newKafkaNotifier(w messageWriter, log logrus.FieldLogger) *KafkaNotifier {
	return &KafkaNotifier{writer: w, log: log, timeout: 5 * time.Second}
}

func (n *KafkaNotifier) OrderPaid(ctx context.Context, order model.Order) {
	n.publish(EventOrderPaid, order)
}

func (n *KafkaNotifier) PaymentFailed(ctx context.Context, order model.Order) {
	n.publish(EventPaymentFailed, order)
}

func (n *KafkaNotifier) publish(eventType string, order model.Order) {
	ev := OrderEvent{
		Type:        eventType,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Email:       order.Email,
		Total:       order.Total,
		Currency:    order.Currency,
		OccurredAt:  time.Now().UTC(),
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		n.log.WithError(err).WithField("order_id", order.ID).Error("marshal notification")
		return
	}

	msg := kafka.Message{
		// 同じ注文は同じパーティションへ
		Key:   []byte(strconv.FormatInt(order.ID, 10)),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(eventType)},
		},
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()

		// リクエストのctxとは切り離す
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		defer cancel()

		if err := n.writer.WriteMessages(ctx, msg); err != nil {
			n.log.WithError(err).WithFields(logrus.Fields{
				"order_id":   order.ID,
				"event_type": eventType,
			}).Warn("publish notification failed")
		}
	}()
}

// 送信中のメッセージを待ってから閉じる
func (n *KafkaNotifier) Close() error {
	n.wg.Wait()
	return n.writer.Close()
}

// KAFKA_BROKERSが無いときに使う
type Noop struct{}

func (Noop) OrderPaid(context.Context, model.Order)     {}
func (Noop) PaymentFailed(context.Context, model.Order) {}
func (Noop) Close() error                               { return nil }
