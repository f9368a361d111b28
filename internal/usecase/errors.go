package usecase

import (
	"fmt"

	"github.com/pkg/errors"
)

// 入力の形がおかしい。部分的な書き込みは起きない。
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func NewValidationError(format string, args ...interface{}) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ErrEmptyCartは明細の無いカートでの注文
var ErrEmptyCart error = &ValidationError{Message: "cart is empty"}

// 見つからなかった対象を名指しする
type NotFoundError struct {
	Entity string
	Key    string
}

func (e *NotFoundError) Error() string {
	if e.Key == "" {
		return e.Entity + " not found"
	}
	return fmt.Sprintf("%s %s not found", e.Entity, e.Key)
}

func notFound(entity string, key interface{}) error {
	return &NotFoundError{Entity: entity, Key: fmt.Sprint(key)}
}

// Availableを返して減らした数量で再試行できるようにする
type InsufficientStockError struct {
	ProductID int64
	Requested int64
	Available int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: requested %d, available %d", e.ProductID, e.Requested, e.Available)
}

// 状態が合わない（二重操作など）。リトライしても同じ。
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

func NewConflictError(format string, args ...interface{}) error {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}

// 決済代行の失敗。クライアントから再試行してよい。
type GatewayError struct {
	Message     string
	OrderNumber string
	cause       error
}

func (e *GatewayError) Error() string {
	return "payment gateway: " + e.Message
}

func (e *GatewayError) Unwrap() error { return e.cause }

// Webhookの署名不正。業務エラーではなくセキュリティイベント。
type SignatureError struct {
	Reason string
	cause  error
}

func (e *SignatureError) Error() string {
	return "invalid webhook signature: " + e.Reason
}

func (e *SignatureError) Unwrap() error { return e.cause }

func IsValidation(err error) bool {
	var e *ValidationError
	return errors.As(err, &e)
}

func IsNotFound(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e)
}

func IsConflict(err error) bool {
	var e *ConflictError
	return errors.As(err, &e)
}
