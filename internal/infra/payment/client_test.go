package payment

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateIntent_SendsFormAndHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/payment_intents", r.URL.Path)
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		assert.Equal(t, "order-42-6480", r.Header.Get("Idempotency-Key"))

		require.NoError(t, r.ParseForm())
		assert.Equal(t, "6480", r.PostForm.Get("amount"))
		assert.Equal(t, "usd", r.PostForm.Get("currency"))
		assert.Equal(t, "a@example.com", r.PostForm.Get("receipt_email"))
		assert.Equal(t, "42", r.PostForm.Get("metadata[order_id]"))
		assert.Equal(t, "ORD-1", r.PostForm.Get("metadata[order_number]"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"pi_123","client_secret":"pi_123_secret","status":"requires_payment_method","amount":6480,"currency":"usd"}`))
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL, SecretKey: "sk_test", Timeout: time.Second})
	intent, err := c.CreateIntent(context.Background(), CreateIntentParams{
		AmountMinor:  6480,
		Currency:     "usd",
		ReceiptEmail: "a@example.com",
		OrderID:      42,
		OrderNumber:  "ORD-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "pi_123", intent.ID)
	assert.Equal(t, "pi_123_secret", intent.ClientSecret)
	assert.Equal(t, int64(6480), intent.Amount)
}

func TestCreateIntent_ProcessorErrorMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"error":{"type":"card_error","message":"Your card was declined."}}`))
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL, SecretKey: "sk"})
	_, err := c.CreateIntent(context.Background(), CreateIntentParams{AmountMinor: 100, Currency: "usd", OrderID: 1})
	require.Error(t, err)

	var pe *ProcessorError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, http.StatusPaymentRequired, pe.StatusCode)
	assert.Equal(t, "Your card was declined.", pe.Error())
}

func TestRetrieveIntent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/payment_intents/pi_9", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":"pi_9","status":"succeeded","amount":500,"currency":"usd","metadata":{"order_id":"7"}}`))
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL + "/", SecretKey: "sk"})
	intent, err := c.RetrieveIntent(context.Background(), "pi_9")
	require.NoError(t, err)
	assert.Equal(t, "succeeded", intent.Status)
	assert.Equal(t, "7", intent.Metadata["order_id"])
}

func TestClient_ContextTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL, SecretKey: "sk"})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.CreateIntent(ctx, CreateIntentParams{AmountMinor: 100, Currency: "usd", OrderID: 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_BreakerOpensOnServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL, SecretKey: "sk"})
	for i := 0; i < 5; i++ {
		_, err := c.RetrieveIntent(context.Background(), "pi_x")
		require.Error(t, err)
	}

	_, err := c.RetrieveIntent(context.Background(), "pi_x")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(5), atomic.LoadInt32(&calls))
}

func TestClient_ClientErrorsDoNotTripBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad amount"}}`))
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL, SecretKey: "sk"})
	for i := 0; i < 8; i++ {
		_, err := c.RetrieveIntent(context.Background(), "pi_x")
		var pe *ProcessorError
		require.True(t, errors.As(err, &pe))
	}
}
