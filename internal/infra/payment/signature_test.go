package payment

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestVerifier(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	payload := []byte(`{"id":"evt_1","type":"payment_intent.succeeded"}`)
	v := NewVerifier("whsec", 5*time.Minute).WithClock(func() time.Time { return now })

	tests := []struct {
		name    string
		payload []byte
		header  string
		wantErr error
	}{
		{name: "valid", payload: payload, header: Sign("whsec", payload, now)},
		{name: "missing", payload: payload, header: "", wantErr: ErrMissingSignature},
		{name: "garbage", payload: payload, header: "nonsense", wantErr: ErrMalformedSignature},
		{name: "no v1", payload: payload, header: "t=1700000000", wantErr: ErrMalformedSignature},
		{name: "wrong secret", payload: payload, header: Sign("other", payload, now), wantErr: ErrSignatureMismatch},
		{name: "body changed", payload: []byte(`{"id":"evt_1", "type":"payment_intent.succeeded"}`), header: Sign("whsec", payload, now), wantErr: ErrSignatureMismatch},
		{name: "too old", payload: payload, header: Sign("whsec", payload, now.Add(-10*time.Minute)), wantErr: ErrSignatureExpired},
		{name: "from the future", payload: payload, header: Sign("whsec", payload, now.Add(10*time.Minute)), wantErr: ErrSignatureExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Verify(tt.payload, tt.header)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestVerifier_AcceptsAnyMatchingV1(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	payload := []byte(`{}`)
	v := NewVerifier("whsec", time.Minute).WithClock(func() time.Time { return now })

	good := Sign("whsec", payload, now)
	sig := strings.SplitN(good, "v1=", 2)[1]
	header := "t=1700000000,v1=deadbeef,v1=" + sig

	assert.NoError(t, v.Verify(payload, header))
}

func TestParseEvent(t *testing.T) {
	ev, err := ParseEvent([]byte(`{"id":"evt_1","type":"charge.refunded","data":{"object":{"id":"ch_1","object":"charge","payment_intent":"pi_1","amount":500,"metadata":{"order_id":"12"}}}}`))
	assert.NoError(t, err)

	id, ok := ev.OrderID()
	assert.True(t, ok)
	assert.Equal(t, int64(12), id)
	assert.Equal(t, "pi_1", ev.IntentID())

	ev, err = ParseEvent([]byte(`{"id":"evt_2","type":"payment_intent.succeeded","data":{"object":{"id":"pi_2","object":"payment_intent","metadata":{"order_id":"x"}}}}`))
	assert.NoError(t, err)
	_, ok = ev.OrderID()
	assert.False(t, ok)
	assert.Equal(t, "pi_2", ev.IntentID())

	_, err = ParseEvent([]byte(`{"type":"x"}`))
	assert.Error(t, err)
}
