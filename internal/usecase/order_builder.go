package usecase

import (
	"context"
	"sort"
	"strings"

	"storefront/internal/domain/model"
	"storefront/internal/domain/pricing"
	repo "storefront/internal/repository"
	"storefront/internal/validator"

	"github.com/pkg/errors"
)

const (
	maxGiftMessageLen    = 500
	maxIdempotencyKeyLen = 255
)

type BuildLine struct {
	ProductID int64
	Quantity  int64
}

type BuildOrderInput struct {
	Owner          model.Owner
	Email          string
	Address        model.ShippingAddress
	PromoCode      string
	GiftOccasion   string
	GiftMessage    string
	IdempotencyKey string
	Lines          []BuildLine
}

// OrderBuilderはカートの中身から注文を1件作る。
// 呼び出し側のTxの中で動き、どこで失敗しても注文も在庫変更も残らない。
type OrderBuilder struct {
	guard    *InventoryGuard
	clock    Clock
	currency string
}

func NewOrderBuilder(guard *InventoryGuard, clock Clock, currency string) *OrderBuilder {
	return &OrderBuilder{guard: guard, clock: clock, currency: currency}
}

// 価格はカートのスナップショットではなく、この時点のカタログ価格で確定する。
func (b *OrderBuilder) Build(ctx context.Context, r repo.TxRepos, in BuildOrderInput) (model.Order, []model.OrderItem, error) {
	lines := mergeLines(in.Lines)
	if len(lines) == 0 {
		return model.Order{}, nil, ErrEmptyCart
	}
	if err := validateBuildInput(in); err != nil {
		return model.Order{}, nil, err
	}

	now := b.clock.Now()

	//在庫を確認して確保（商品IDの昇順でロックを取る）
	priced := make([]pricing.Line, 0, len(lines))
	items := make([]model.OrderItem, 0, len(lines))
	for _, l := range lines {
		p, err := r.Products().FindByID(ctx, l.ProductID)
		if errors.Is(err, repo.ErrNotFound) || (err == nil && !p.IsActive) {
			return model.Order{}, nil, notFound("product", l.ProductID)
		}
		if err != nil {
			return model.Order{}, nil, errors.Wrapf(err, "find product %d", l.ProductID)
		}

		if err := b.guard.Reserve(ctx, r, l.ProductID, l.Quantity); err != nil {
			return model.Order{}, nil, err
		}

		priced = append(priced, pricing.Line{ProductID: p.ID, Price: p.Price, Quantity: l.Quantity})
		items = append(items, model.OrderItem{
			ProductID:           p.ID,
			ProductNameSnapshot: p.Name,
			UnitPriceSnapshot:   p.Price,
			Quantity:            l.Quantity,
		})
	}

	var promo *model.PromoCode
	if code := model.NormalizePromoCode(in.PromoCode); code != "" {
		found, err := r.Promos().FindByCode(ctx, code)
		if errors.Is(err, repo.ErrNotFound) {
			return model.Order{}, nil, notFound("promo code", code)
		}
		if err != nil {
			return model.Order{}, nil, errors.Wrapf(err, "find promo code %s", code)
		}
		promo = &found
	}

	totals := pricing.Compute(priced, promo, in.Address.Country, now)

	// 割引が効いたときだけ使用回数を数える
	appliedCode := ""
	if promo != nil && promo.UsableFor(totals.Subtotal, now) {
		ok, err := r.Promos().Redeem(ctx, promo.ID)
		if err != nil {
			return model.Order{}, nil, errors.Wrapf(err, "redeem promo code %s", promo.Code)
		}
		if !ok {
			return model.Order{}, nil, NewConflictError("promo code %s has reached its usage limit", promo.Code)
		}
		appliedCode = promo.Code
	}

	order := model.Order{
		OrderNumber:  newOrderNumber(),
		AccountID:    in.Owner.AccountPtr(),
		SessionID:    in.Owner.SessionPtr(),
		Email:        strings.TrimSpace(in.Email),
		Status:       model.OrderStatusPending,
		Subtotal:     totals.Subtotal,
		Discount:     totals.Discount,
		Tax:          totals.Tax,
		Shipping:     totals.Shipping,
		Total:        totals.Total,
		Currency:     b.currency,
		PromoCode:    appliedCode,
		Address:      trimAddress(in.Address),
		GiftOccasion: strings.TrimSpace(in.GiftOccasion),
		GiftMessage:  strings.TrimSpace(in.GiftMessage),
	}
	if key := strings.TrimSpace(in.IdempotencyKey); key != "" {
		order.IdempotencyKey = &key
	}

	if err := r.Orders().Create(ctx, &order); err != nil {
		// 同じキーの注文が同時に作られた場合は呼び出し側で拾う
		if errors.Is(err, repo.ErrDuplicate) {
			return model.Order{}, nil, err
		}
		return model.Order{}, nil, errors.Wrapf(err, "create order %s", order.OrderNumber)
	}

	if err := r.OrderItems().CreateBulk(ctx, order.ID, items); err != nil {
		return model.Order{}, nil, errors.Wrapf(err, "create items of order %d", order.ID)
	}
	if err := b.guard.RecordReservation(ctx, r, order.ID, items); err != nil {
		return model.Order{}, nil, err
	}

	return order, items, nil
}

// 同じ商品はまとめて、商品ID順に並べる
func mergeLines(in []BuildLine) []BuildLine {
	qty := make(map[int64]int64, len(in))
	for _, l := range in {
		qty[l.ProductID] += l.Quantity
	}

	out := make([]BuildLine, 0, len(qty))
	for id, q := range qty {
		out = append(out, BuildLine{ProductID: id, Quantity: q})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}

func validateBuildInput(in BuildOrderInput) error {
	if !in.Owner.Valid() {
		return NewValidationError("order owner is required")
	}
	for _, l := range in.Lines {
		if l.ProductID <= 0 || l.Quantity <= 0 {
			return NewValidationError("invalid line for product %d", l.ProductID)
		}
	}
	if missing := in.Address.Missing(); len(missing) > 0 {
		return NewValidationError("address is missing %s", strings.Join(missing, ", "))
	}
	if !validator.Email(in.Email) {
		return NewValidationError("invalid email")
	}
	if !validator.Phone(in.Address.Phone) {
		return NewValidationError("invalid phone")
	}
	if !validator.MaxRunes(strings.TrimSpace(in.GiftMessage), maxGiftMessageLen) {
		return NewValidationError("gift message is too long")
	}
	if len(in.IdempotencyKey) > maxIdempotencyKeyLen {
		return NewValidationError("invalid idempotency key")
	}
	return nil
}

func trimAddress(a model.ShippingAddress) model.ShippingAddress {
	return model.ShippingAddress{
		Name:       strings.TrimSpace(a.Name),
		Line1:      strings.TrimSpace(a.Line1),
		Line2:      strings.TrimSpace(a.Line2),
		City:       strings.TrimSpace(a.City),
		PostalCode: strings.TrimSpace(a.PostalCode),
		Country:    strings.TrimSpace(a.Country),
		Phone:      strings.TrimSpace(a.Phone),
	}
}
