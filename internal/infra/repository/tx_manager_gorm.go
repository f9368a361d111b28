package repository

import (
	"context"

	repo "storefront/internal/repository"

	"gorm.io/gorm"
)

type reposGorm struct {
	orders        repo.OrderRepository
	orderItems    repo.OrderItemRepository
	carts         repo.CartRepository
	cartItems     repo.CartItemRepository
	inventory     repo.InventoryRepository
	products      repo.ProductRepository
	payments      repo.PaymentRepository
	promos        repo.PromoCodeRepository
	webhookEvents repo.WebhookEventRepository
	auditLogs     repo.AuditLogRepository
}

func (r *reposGorm) Orders() repo.OrderRepository               { return r.orders }
func (r *reposGorm) OrderItems() repo.OrderItemRepository       { return r.orderItems }
func (r *reposGorm) Carts() repo.CartRepository                 { return r.carts }
func (r *reposGorm) CartItems() repo.CartItemRepository         { return r.cartItems }
func (r *reposGorm) Inventory() repo.InventoryRepository        { return r.inventory }
func (r *reposGorm) Products() repo.ProductRepository           { return r.products }
func (r *reposGorm) Payments() repo.PaymentRepository           { return r.payments }
func (r *reposGorm) Promos() repo.PromoCodeRepository           { return r.promos }
func (r *reposGorm) WebhookEvents() repo.WebhookEventRepository { return r.webhookEvents }
func (r *reposGorm) AuditLogs() repo.AuditLogRepository         { return r.auditLogs }

// NewReposはdb(またはtx)を持ったリポジトリ一式を作る
func NewRepos(db *gorm.DB) repo.TxRepos {
	cart := NewCartGormRepository(db)
	return &reposGorm{
		orders:        NewOrderGormRepository(db),
		orderItems:    NewOrderItemGormRepository(db),
		carts:         cart,
		cartItems:     cart,
		inventory:     NewInventoryGormRepository(db),
		products:      NewProductGormRepository(db),
		payments:      NewPaymentGormRepository(db),
		promos:        NewPromoCodeGormRepository(db),
		webhookEvents: NewWebhookEventGormRepository(db),
		auditLogs:     NewAuditLogGormRepository(db),
	}
}

type TxManagerGorm struct {
	db *gorm.DB
}

func NewTxManagerGorm(db *gorm.DB) *TxManagerGorm {
	return &TxManagerGorm{db: db}
}

func (tm *TxManagerGorm) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	return tm.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		//repoはtxを持ったDBで作り直す
		return fn(NewRepos(tx))
	})
}
