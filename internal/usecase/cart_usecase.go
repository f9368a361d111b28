package usecase

import (
	"context"
	"time"

	"storefront/internal/domain/model"
	"storefront/internal/infra/cache"
	repo "storefront/internal/repository"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

type CartUsecase struct {
	tx    repo.TransactionManager
	repos repo.TxRepos
	cache cache.CartCache
	guard *InventoryGuard
	clock Clock
	ttl   time.Duration
	log   logrus.FieldLogger
	reads singleflight.Group
}

func NewCartUsecase(tx repo.TransactionManager, repos repo.TxRepos, c cache.CartCache, guard *InventoryGuard, clock Clock, ttl time.Duration, log logrus.FieldLogger) *CartUsecase {
	return &CartUsecase{
		tx:    tx,
		repos: repos,
		cache: c,
		guard: guard,
		clock: clock,
		ttl:   ttl,
		log:   log,
	}
}

// カートを取得（無ければ空）。読むだけなので作らない。
func (u *CartUsecase) Get(ctx context.Context, owner model.Owner) (model.CartView, error) {
	if !owner.Valid() {
		return model.CartView{}, NewValidationError("cart owner is required")
	}

	cached, err := u.cache.Get(ctx, owner.Key())
	switch {
	case err == nil && !cached.IsExpired(u.clock.Now()):
		return *cached, nil
	case err == nil:
		// 期限切れのカートはミス扱い
		u.invalidate(ctx, owner)
	case !errors.Is(err, cache.ErrCacheMiss):
		u.log.WithError(err).WithField("owner", owner.Key()).Warn("cart cache read failed")
	}

	// 同じ持ち主の同時ミスは1回のDB読みにまとめる
	v, err, _ := u.reads.Do(owner.Key(), func() (interface{}, error) {
		view, err := u.load(ctx, owner)
		if err != nil {
			return nil, err
		}
		if err := u.cache.Set(ctx, owner.Key(), &view); err != nil {
			u.log.WithError(err).WithField("owner", owner.Key()).Warn("cart cache write failed")
		}
		return view, nil
	})
	if err != nil {
		return model.CartView{}, err
	}
	return v.(model.CartView), nil
}

func (u *CartUsecase) load(ctx context.Context, owner model.Owner) (model.CartView, error) {
	cart, err := u.repos.Carts().FindByOwner(ctx, owner)
	if errors.Is(err, repo.ErrNotFound) {
		return model.EmptyCartView(), nil
	}
	if err != nil {
		return model.CartView{}, errors.Wrapf(err, "find cart of %s", owner.Key())
	}
	if cart.IsExpired(u.clock.Now()) {
		return model.EmptyCartView(), nil
	}

	items, err := u.repos.CartItems().ListByCartID(ctx, cart.ID)
	if err != nil {
		return model.CartView{}, errors.Wrapf(err, "list items of cart %d", cart.ID)
	}

	ids := make([]int64, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}
	products, err := u.repos.Products().FindByIDs(ctx, ids)
	if err != nil {
		return model.CartView{}, errors.Wrapf(err, "load products of cart %d", cart.ID)
	}

	view := buildCartView(cart.ID, items, products)
	expiresAt := cart.ExpiresAt
	view.ExpiresAt = &expiresAt
	return view, nil
}

// 表示用の金額は明細のスナップショットで出す
func buildCartView(cartID int64, items []model.CartItem, products map[int64]model.Product) model.CartView {
	view := model.EmptyCartView()
	view.CartID = cartID
	for _, it := range items {
		lineTotal := it.UnitPriceSnapshot.Mul(decimal.NewFromInt(it.Quantity)).Round(2)
		view.Lines = append(view.Lines, model.CartLineView{
			ItemID:    it.ID,
			ProductID: it.ProductID,
			Name:      products[it.ProductID].Name,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPriceSnapshot,
			LineTotal: lineTotal,
		})
		view.ItemCount += it.Quantity
		view.Subtotal = view.Subtotal.Add(lineTotal)
	}
	view.Subtotal = view.Subtotal.Round(2)
	return view
}

// 同一商品は数量加算
func (u *CartUsecase) AddLine(ctx context.Context, owner model.Owner, productID int64, qty int64) (model.CartView, error) {
	if !owner.Valid() {
		return model.CartView{}, NewValidationError("cart owner is required")
	}
	if productID <= 0 {
		return model.CartView{}, NewValidationError("invalid product_id")
	}
	if qty <= 0 {
		return model.CartView{}, NewValidationError("quantity must be positive")
	}

	now := u.clock.Now()
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		p, err := r.Products().FindByID(ctx, productID)
		if errors.Is(err, repo.ErrNotFound) || (err == nil && !p.IsActive) {
			return notFound("product", productID)
		}
		if err != nil {
			return errors.Wrapf(err, "find product %d", productID)
		}

		cart, err := r.Carts().GetOrCreateByOwner(ctx, owner, now, u.ttl)
		if err != nil {
			return errors.Wrapf(err, "get cart of %s", owner.Key())
		}

		var current int64
		existing, err := r.CartItems().FindByProductForUpdate(ctx, cart.ID, productID)
		switch {
		case err == nil:
			current = existing.Quantity
		case errors.Is(err, repo.ErrNotFound):
		default:
			return errors.Wrapf(err, "find line of product %d in cart %d", productID, cart.ID)
		}

		// 明細の合計数量で在庫を見る
		if err := u.guard.Check(ctx, r.Inventory(), productID, current+qty); err != nil {
			return err
		}

		if err := r.CartItems().UpsertByCartAndProduct(ctx, cart.ID, productID, qty, p.Price); err != nil {
			return errors.Wrapf(err, "upsert line of product %d in cart %d", productID, cart.ID)
		}
		return r.Carts().Touch(ctx, cart.ID, now.Add(u.ttl))
	})
	if err != nil {
		return model.CartView{}, err
	}

	u.invalidate(ctx, owner)
	return u.Get(ctx, owner)
}

func (u *CartUsecase) UpdateLine(ctx context.Context, owner model.Owner, itemID int64, qty int64) (model.CartView, error) {
	if !owner.Valid() {
		return model.CartView{}, NewValidationError("cart owner is required")
	}
	if qty <= 0 {
		return model.CartView{}, NewValidationError("quantity must be positive")
	}

	now := u.clock.Now()
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		cart, err := r.Carts().FindByOwner(ctx, owner)
		if errors.Is(err, repo.ErrNotFound) || (err == nil && cart.IsExpired(now)) {
			return notFound("cart line", itemID)
		}
		if err != nil {
			return errors.Wrapf(err, "find cart of %s", owner.Key())
		}

		// 他人のカートの明細は見えない
		item, err := r.CartItems().FindByID(ctx, cart.ID, itemID)
		if errors.Is(err, repo.ErrNotFound) {
			return notFound("cart line", itemID)
		}
		if err != nil {
			return errors.Wrapf(err, "find line %d in cart %d", itemID, cart.ID)
		}

		if err := u.guard.Check(ctx, r.Inventory(), item.ProductID, qty); err != nil {
			return err
		}

		if err := r.CartItems().UpdateQuantity(ctx, cart.ID, itemID, qty); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return notFound("cart line", itemID)
			}
			return errors.Wrapf(err, "update line %d in cart %d", itemID, cart.ID)
		}
		return r.Carts().Touch(ctx, cart.ID, now.Add(u.ttl))
	})
	if err != nil {
		return model.CartView{}, err
	}

	u.invalidate(ctx, owner)
	return u.Get(ctx, owner)
}

// 無い明細の削除はエラーにしない
func (u *CartUsecase) RemoveLine(ctx context.Context, owner model.Owner, itemID int64) error {
	if !owner.Valid() {
		return NewValidationError("cart owner is required")
	}

	cart, err := u.repos.Carts().FindByOwner(ctx, owner)
	if errors.Is(err, repo.ErrNotFound) {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "find cart of %s", owner.Key())
	}

	if _, err := u.repos.CartItems().DeleteByID(ctx, cart.ID, itemID); err != nil {
		return errors.Wrapf(err, "delete line %d in cart %d", itemID, cart.ID)
	}

	u.invalidate(ctx, owner)
	return nil
}

// ログイン時に一度だけ呼ばれる。ゲストカートが無ければ何もしない。
func (u *CartUsecase) MergeGuestIntoUser(ctx context.Context, accountID string, guestSessionID string) (model.CartView, error) {
	user := model.AccountOwner(accountID)
	guest := model.SessionOwner(guestSessionID)
	if user.AccountID == "" || guest.SessionID == "" {
		return model.CartView{}, NewValidationError("account id and guest session id are required")
	}

	now := u.clock.Now()
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		guestCart, err := r.Carts().FindByOwner(ctx, guest)
		if errors.Is(err, repo.ErrNotFound) {
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, "find guest cart of %s", guest.Key())
		}

		if guestCart.IsExpired(now) {
			return r.Carts().Delete(ctx, guestCart.ID)
		}

		guestItems, err := r.CartItems().ListByCartID(ctx, guestCart.ID)
		if err != nil {
			return errors.Wrapf(err, "list items of guest cart %d", guestCart.ID)
		}

		if len(guestItems) > 0 {
			userCart, err := r.Carts().GetOrCreateByOwner(ctx, user, now, u.ttl)
			if err != nil {
				return errors.Wrapf(err, "get cart of %s", user.Key())
			}

			// 同じ商品は数量を足す（在庫は注文時に見る）。無ければ移す。
			for _, it := range guestItems {
				if err := r.CartItems().UpsertByCartAndProduct(ctx, userCart.ID, it.ProductID, it.Quantity, it.UnitPriceSnapshot); err != nil {
					return errors.Wrapf(err, "merge product %d into cart %d", it.ProductID, userCart.ID)
				}
			}
			if err := r.Carts().Touch(ctx, userCart.ID, now.Add(u.ttl)); err != nil {
				return errors.Wrapf(err, "touch cart %d", userCart.ID)
			}
		}

		return r.Carts().Delete(ctx, guestCart.ID)
	})
	if err != nil {
		return model.CartView{}, err
	}

	u.invalidate(ctx, guest)
	u.invalidate(ctx, user)
	return u.Get(ctx, user)
}

// commit後に呼ぶ。失敗してもTTLで消える。
func (u *CartUsecase) invalidate(ctx context.Context, owner model.Owner) {
	if err := u.cache.Delete(ctx, owner.Key()); err != nil {
		u.log.WithError(err).WithField("owner", owner.Key()).Warn("cart cache invalidation failed")
	}
}
