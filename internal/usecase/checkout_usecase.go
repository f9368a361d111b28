package usecase

import (
	"context"
	"strings"

	"storefront/internal/domain/model"
	"storefront/internal/infra/cache"
	repo "storefront/internal/repository"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type CheckoutInput struct {
	Email          string
	Address        model.ShippingAddress
	PromoCode      string
	GiftOccasion   string
	GiftMessage    string
	IdempotencyKey string
}

type CheckoutOutput struct {
	Order        OrderOutput `json:"order"`
	IntentID     string      `json:"intent_id,omitempty"`
	ClientSecret string      `json:"client_secret,omitempty"`
}

type CheckoutUsecase struct {
	tx       repo.TransactionManager
	repos    repo.TxRepos
	builder  *OrderBuilder
	payments *PaymentUsecase
	cache    cache.CartCache
	clock    Clock
	log      logrus.FieldLogger
}

func NewCheckoutUsecase(tx repo.TransactionManager, repos repo.TxRepos, builder *OrderBuilder, payments *PaymentUsecase, c cache.CartCache, clock Clock, log logrus.FieldLogger) *CheckoutUsecase {
	return &CheckoutUsecase{
		tx:       tx,
		repos:    repos,
		builder:  builder,
		payments: payments,
		cache:    c,
		clock:    clock,
		log:      log,
	}
}

// Checkoutはカートから注文を作り、commit後に決済intentを作る。
// 注文作成に失敗したらカートも在庫もそのまま。
// intent作成だけ失敗した場合は注文はpendingで残り、GatewayErrorに注文番号を載せて返す。
func (u *CheckoutUsecase) Checkout(ctx context.Context, owner model.Owner, in CheckoutInput) (CheckoutOutput, error) {
	if !owner.Valid() {
		return CheckoutOutput{}, NewValidationError("order owner is required")
	}
	key := strings.TrimSpace(in.IdempotencyKey)
	if len(key) > maxIdempotencyKeyLen {
		return CheckoutOutput{}, NewValidationError("invalid idempotency key")
	}

	var (
		order   model.Order
		items   []model.OrderItem
		created bool
	)

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		// 同じキーなら同じ結果
		if key != "" {
			existing, found, err := r.Orders().FindByIdempotencyKey(ctx, key)
			if err != nil {
				return errors.Wrap(err, "find order by idempotency key")
			}
			if found {
				if !existing.OwnedBy(owner) {
					return NewConflictError("idempotency key already used")
				}
				order = existing
				items, err = r.OrderItems().ListByOrderID(ctx, existing.ID)
				return errors.Wrapf(err, "list items of order %d", existing.ID)
			}
		}

		cart, err := r.Carts().FindByOwner(ctx, owner)
		if errors.Is(err, repo.ErrNotFound) || (err == nil && cart.IsExpired(u.clock.Now())) {
			return ErrEmptyCart
		}
		if err != nil {
			return errors.Wrapf(err, "find cart of %s", owner.Key())
		}

		cartItems, err := r.CartItems().ListByCartID(ctx, cart.ID)
		if err != nil {
			return errors.Wrapf(err, "list items of cart %d", cart.ID)
		}

		lines := make([]BuildLine, 0, len(cartItems))
		for _, ci := range cartItems {
			lines = append(lines, BuildLine{ProductID: ci.ProductID, Quantity: ci.Quantity})
		}

		order, items, err = u.builder.Build(ctx, r, BuildOrderInput{
			Owner:          owner,
			Email:          in.Email,
			Address:        in.Address,
			PromoCode:      in.PromoCode,
			GiftOccasion:   in.GiftOccasion,
			GiftMessage:    in.GiftMessage,
			IdempotencyKey: key,
			Lines:          lines,
		})
		if err != nil {
			return err
		}

		//注文と同じTxでカートを捨てる
		if err := r.Carts().Delete(ctx, cart.ID); err != nil {
			return errors.Wrapf(err, "discard cart %d", cart.ID)
		}
		created = true
		return nil
	})

	// 同じキーで同時に来た場合、後から来た方は先の注文を返す
	if errors.Is(err, repo.ErrDuplicate) && key != "" {
		existing, found, ferr := u.repos.Orders().FindByIdempotencyKey(ctx, key)
		switch {
		case ferr != nil:
			err = errors.Wrap(ferr, "find order by idempotency key")
		case found && !existing.OwnedBy(owner):
			err = NewConflictError("idempotency key already used")
		case found:
			order = existing
			items, err = u.repos.OrderItems().ListByOrderID(ctx, existing.ID)
		}
	}
	if err != nil {
		return CheckoutOutput{}, err
	}

	log := u.log.WithFields(logrus.Fields{"order_id": order.ID, "order_number": order.OrderNumber})
	if created {
		if err := u.cache.Delete(ctx, owner.Key()); err != nil {
			log.WithError(err).Warn("cart cache invalidation failed")
		}
		log.WithField("total", order.Total.StringFixed(2)).Info("order created")
	}

	out := CheckoutOutput{Order: toOrderOutput(order, items)}
	if order.Status != model.OrderStatusPending {
		return out, nil
	}

	intent, err := u.payments.CreatePaymentIntent(ctx, order.ID, order.Total, order.Currency, order.Email)
	if err != nil {
		return out, err
	}
	out.IntentID = intent.IntentID
	out.ClientSecret = intent.ClientSecret
	return out, nil
}
