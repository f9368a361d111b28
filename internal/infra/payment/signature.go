package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const SignatureHeader = "Payment-Signature"

var (
	ErrMissingSignature   = errors.New("missing signature header")
	ErrMalformedSignature = errors.New("malformed signature header")
	ErrSignatureExpired   = errors.New("signature timestamp outside tolerance")
	ErrSignatureMismatch  = errors.New("signature mismatch")
)

// Verifierは "t=<unix>,v1=<hex>" 形式の署名を検証する。
// 署名対象は t + "." + 受け取ったままのbody。
type Verifier struct {
	secret    []byte
	tolerance time.Duration
	now       func() time.Time
}

func NewVerifier(secret string, tolerance time.Duration) *Verifier {
	return &Verifier{secret: []byte(secret), tolerance: tolerance, now: time.Now}
}

// テスト用
func (v *Verifier) WithClock(now func() time.Time) *Verifier {
	cp := *v
	cp.now = now
	return &cp
}

func (v *Verifier) Verify(payload []byte, header string) error {
	header = strings.TrimSpace(header)
	if header == "" {
		return ErrMissingSignature
	}

	var (
		ts     int64
		hasTS  bool
		v1Sigs [][]byte
	)
	for _, part := range strings.Split(header, ",") {
		k, val, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return ErrMalformedSignature
		}
		switch k {
		case "t":
			n, err := strconv.ParseInt(val, 10, 64)
			if err != nil {
				return ErrMalformedSignature
			}
			ts, hasTS = n, true
		case "v1":
			sig, err := hex.DecodeString(val)
			if err != nil {
				// 他の署名が正しい可能性があるので読み飛ばす
				continue
			}
			v1Sigs = append(v1Sigs, sig)
		}
	}
	if !hasTS || len(v1Sigs) == 0 {
		return ErrMalformedSignature
	}

	if v.tolerance > 0 {
		signedAt := time.Unix(ts, 0)
		if d := v.now().Sub(signedAt); d > v.tolerance || d < -v.tolerance {
			return ErrSignatureExpired
		}
	}

	expected := computeMAC(v.secret, ts, payload)
	for _, sig := range v1Sigs {
		if hmac.Equal(expected, sig) {
			return nil
		}
	}
	return ErrSignatureMismatch
}

// Signは送る側と同じ形のヘッダを作る（テストと手動検証用）
func Sign(secret string, payload []byte, at time.Time) string {
	ts := at.Unix()
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(computeMAC([]byte(secret), ts, payload)))
}

func computeMAC(secret []byte, ts int64, payload []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return mac.Sum(nil)
}
