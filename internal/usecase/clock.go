package usecase

import (
	"time"

	"github.com/oklog/ulid/v2"
)

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

func SystemClock() Clock { return systemClock{} }

// 注文番号。ULIDなので時刻順に並び、衝突しない。
func newOrderNumber() string {
	return "ORD-" + ulid.Make().String()
}
