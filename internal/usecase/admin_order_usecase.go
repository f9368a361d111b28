package usecase

import (
	"context"
	"strings"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type AdminOrderUsecase struct {
	tx           repo.TransactionManager
	repos        repo.TxRepos
	transitioner *OrderTransitioner
	log          logrus.FieldLogger
}

func NewAdminOrderUsecase(tx repo.TransactionManager, repos repo.TxRepos, transitioner *OrderTransitioner, log logrus.FieldLogger) *AdminOrderUsecase {
	return &AdminOrderUsecase{tx: tx, repos: repos, transitioner: transitioner, log: log}
}

type AdminOrderList struct {
	Items []OrderOutput `json:"items"`
	Total int64         `json:"total"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
}

// 注文一覧
func (u *AdminOrderUsecase) List(ctx context.Context, f repo.AdminOrderListFilter) (AdminOrderList, error) {
	// page/limitの最低限チェック
	if f.Page < 1 {
		return AdminOrderList{}, NewValidationError("invalid page")
	}
	if f.Limit < 1 || f.Limit > 100 {
		return AdminOrderList{}, NewValidationError("invalid limit")
	}
	if f.Status != "" {
		if _, ok := model.ParseOrderStatus(f.Status); !ok {
			return AdminOrderList{}, NewValidationError("invalid status")
		}
	}

	orders, total, err := u.repos.Orders().ListAdmin(ctx, f)
	if err != nil {
		return AdminOrderList{}, errors.Wrap(err, "list orders")
	}

	outs := make([]OrderOutput, 0, len(orders))
	for _, o := range orders {
		items, err := u.repos.OrderItems().ListByOrderID(ctx, o.ID)
		if err != nil {
			return AdminOrderList{}, errors.Wrapf(err, "list items of order %d", o.ID)
		}
		outs = append(outs, toOrderOutput(o, items))
	}
	return AdminOrderList{Items: outs, Total: total, Page: f.Page, Limit: f.Limit}, nil
}

// 管理者が進められるのは発送系とキャンセルだけ。paid / failed は決済からしか来ない。
var adminTargets = map[model.OrderStatus]bool{
	model.OrderStatusProcessing: true,
	model.OrderStatusShipped:    true,
	model.OrderStatusDelivered:  true,
	model.OrderStatusCancelled:  true,
}

// ステータス更新（cancelled なら在庫戻し）
func (u *AdminOrderUsecase) UpdateStatus(ctx context.Context, actorAccountID string, orderNumber string, status string) (OrderOutput, error) {
	actorAccountID = strings.TrimSpace(actorAccountID)
	if actorAccountID == "" {
		return OrderOutput{}, NewValidationError("actor is required")
	}
	to, ok := model.ParseOrderStatus(strings.ToLower(strings.TrimSpace(status)))
	if !ok || !adminTargets[to] {
		return OrderOutput{}, NewValidationError("invalid status")
	}

	order, err := u.repos.Orders().FindByNumber(ctx, strings.TrimSpace(orderNumber))
	if errors.Is(err, repo.ErrNotFound) {
		return OrderOutput{}, notFound("order", orderNumber)
	}
	if err != nil {
		return OrderOutput{}, errors.Wrapf(err, "find order %s", orderNumber)
	}

	var out OrderOutput
	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		locked, err := r.Orders().FindByIDForUpdate(ctx, order.ID)
		if err != nil {
			return errors.Wrapf(err, "lock order %d", order.ID)
		}

		updated, _, err := u.transitioner.Transition(ctx, r, locked, to, actorAccountID, "admin update")
		if err != nil {
			return err
		}

		items, err := r.OrderItems().ListByOrderID(ctx, order.ID)
		if err != nil {
			return errors.Wrapf(err, "list items of order %d", order.ID)
		}
		out = toOrderOutput(updated, items)
		return nil
	})
	if err != nil {
		return OrderOutput{}, err
	}

	u.log.WithFields(logrus.Fields{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
		"status":       to,
		"actor":        actorAccountID,
	}).Info("order status updated by admin")
	return out, nil
}

type AuditLogList struct {
	Items  []model.AuditLog `json:"items"`
	Limit  int              `json:"limit"`
	Offset int              `json:"offset"`
}

// 監査ログ一覧（新しい順）
func (u *AdminOrderUsecase) ListAuditLogs(ctx context.Context, f repo.AuditLogFilter) (AuditLogList, error) {
	if f.Limit < 1 || f.Limit > 200 {
		return AuditLogList{}, NewValidationError("invalid limit")
	}
	if f.Offset < 0 {
		return AuditLogList{}, NewValidationError("invalid offset")
	}
	if f.Action != nil {
		switch *f.Action {
		case model.AuditActionUpdateOrderStatus, model.AuditActionUpdatePaymentStatus:
		default:
			return AuditLogList{}, NewValidationError("invalid action")
		}
	}
	if f.ResourceType != nil {
		switch *f.ResourceType {
		case model.AuditResourceOrder, model.AuditResourcePayment:
		default:
			return AuditLogList{}, NewValidationError("invalid resource_type")
		}
	}
	if f.CreatedFrom != nil && f.CreatedTo != nil && f.CreatedFrom.After(*f.CreatedTo) {
		return AuditLogList{}, NewValidationError("from must not be after to")
	}

	logs, err := u.repos.AuditLogs().List(ctx, f)
	if err != nil {
		return AuditLogList{}, errors.Wrap(err, "list audit logs")
	}
	if logs == nil {
		logs = []model.AuditLog{}
	}
	return AuditLogList{Items: logs, Limit: f.Limit, Offset: f.Offset}, nil
}
