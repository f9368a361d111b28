package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sony/gobreaker/v2"
)

// 決済代行側のpayment intent
type Intent struct {
	ID           string            `json:"id"`
	ClientSecret string            `json:"client_secret"`
	Status       string            `json:"status"`
	Amount       int64             `json:"amount"`
	Currency     string            `json:"currency"`
	Metadata     map[string]string `json:"metadata"`
}

type CreateIntentParams struct {
	AmountMinor  int64
	Currency     string
	ReceiptEmail string
	OrderID      int64
	OrderNumber  string
}

// 同じ注文・同じ金額なら同じキーになる
func (p CreateIntentParams) IdempotencyKey() string {
	return fmt.Sprintf("order-%d-%d", p.OrderID, p.AmountMinor)
}

// 決済代行が返したエラー
type ProcessorError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *ProcessorError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("payment processor returned %d", e.StatusCode)
	}
	return e.Message
}

// 4xxはこちらの入力の問題なのでブレーカーを開けない
func (e *ProcessorError) clientSide() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

type ClientConfig struct {
	BaseURL   string
	SecretKey string
	Timeout   time.Duration
}

type Client struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
	cb         *gobreaker.CircuitBreaker[Intent]
}

func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	cb := gobreaker.NewCircuitBreaker[Intent](gobreaker.Settings{
		Name:        "payment-processor",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var pe *ProcessorError
			return errors.As(err, &pe) && pe.clientSide()
		},
	})

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		secretKey:  cfg.SecretKey,
		httpClient: &http.Client{Timeout: timeout},
		cb:         cb,
	}
}

// POST /v1/payment_intents
func (c *Client) CreateIntent(ctx context.Context, p CreateIntentParams) (Intent, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(p.AmountMinor, 10))
	form.Set("currency", p.Currency)
	if p.ReceiptEmail != "" {
		form.Set("receipt_email", p.ReceiptEmail)
	}
	form.Set("metadata[order_id]", strconv.FormatInt(p.OrderID, 10))
	form.Set("metadata[order_number]", p.OrderNumber)

	return c.cb.Execute(func() (Intent, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/payment_intents", strings.NewReader(form.Encode()))
		if err != nil {
			return Intent{}, errors.Wrap(err, "build create intent request")
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Idempotency-Key", p.IdempotencyKey())
		return c.do(req)
	})
}

// GET /v1/payment_intents/{id}
func (c *Client) RetrieveIntent(ctx context.Context, intentID string) (Intent, error) {
	return c.cb.Execute(func() (Intent, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/payment_intents/"+url.PathEscape(intentID), nil)
		if err != nil {
			return Intent{}, errors.Wrap(err, "build retrieve intent request")
		}
		return c.do(req)
	})
}

func (c *Client) do(req *http.Request) (Intent, error) {
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Intent{}, errors.Wrapf(err, "%s %s", req.Method, req.URL.Path)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Intent{}, errors.Wrap(err, "read processor response")
	}

	if resp.StatusCode >= 300 {
		var env struct {
			Error struct {
				Type    string `json:"type"`
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.Unmarshal(body, &env)
		return Intent{}, &ProcessorError{
			StatusCode: resp.StatusCode,
			Type:       env.Error.Type,
			Message:    env.Error.Message,
		}
	}

	var intent Intent
	if err := json.Unmarshal(body, &intent); err != nil {
		return Intent{}, errors.Wrap(err, "decode payment intent")
	}
	if intent.ID == "" {
		return Intent{}, errors.New("payment intent response without id")
	}
	return intent, nil
}
