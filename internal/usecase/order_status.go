package usecase

import (
	"context"
	"encoding/json"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// 注文ステータスの書き換えはすべてここを通す。
type OrderTransitioner struct {
	guard *InventoryGuard
	clock Clock
	log   logrus.FieldLogger
}

func NewOrderTransitioner(guard *InventoryGuard, clock Clock, log logrus.FieldLogger) *OrderTransitioner {
	return &OrderTransitioner{guard: guard, clock: clock, log: log}
}

type statusSnapshot struct {
	Status model.OrderStatus `json:"status"`
}

// Transitionは遷移表にある遷移だけ通す。
// 同じステータスへの遷移は何もしないで changed=false。
// cancelled / failed へ移るとき、在庫を押さえていた注文なら戻す。
// shipped からは戻さず、警告だけ残す。
func (t *OrderTransitioner) Transition(ctx context.Context, r repo.TxRepos, order model.Order, to model.OrderStatus, actor string, reason string) (model.Order, bool, error) {
	from := order.Status
	if from == to {
		return order, false, nil
	}
	if !from.CanTransitionTo(to) {
		return order, false, NewConflictError("order %s cannot move from %s to %s", order.OrderNumber, from, to)
	}

	ok, err := r.Orders().CompareAndSetStatus(ctx, order.ID, from, to)
	if err != nil {
		return order, false, errors.Wrapf(err, "update status of order %d", order.ID)
	}
	if !ok {
		return order, false, NewConflictError("order %s was modified concurrently", order.OrderNumber)
	}

	if to == model.OrderStatusCancelled || to == model.OrderStatusFailed {
		switch {
		case from.HoldsStock():
			if err := t.guard.Release(ctx, r, order.ID); err != nil {
				return order, false, err
			}
		case from == model.OrderStatusShipped:
			t.log.WithFields(logrus.Fields{
				"anomaly":      true,
				"order_number": order.OrderNumber,
				"from":         from,
				"to":           to,
				"actor":        actor,
			}).Warn("stock not returned for shipped order")
		}
	}

	if err := writeAudit(ctx, r, t.clock, actor, model.AuditActionUpdateOrderStatus, model.AuditResourceOrder, order.ID,
		statusSnapshot{Status: from}, statusSnapshot{Status: to}, reason); err != nil {
		return order, false, err
	}

	order.Status = to
	return order, true, nil
}

func writeAudit(ctx context.Context, r repo.TxRepos, clock Clock, actor string, action model.AuditAction, resource model.AuditResourceType, resourceID int64, before, after interface{}, reason string) error {
	beforeJSON, err := json.Marshal(before)
	if err != nil {
		return errors.Wrap(err, "marshal audit before")
	}
	afterJSON, err := json.Marshal(after)
	if err != nil {
		return errors.Wrap(err, "marshal audit after")
	}

	if err := r.AuditLogs().Create(ctx, model.AuditLog{
		Actor:        actor,
		Action:       action,
		ResourceType: resource,
		ResourceID:   resourceID,
		BeforeJSON:   string(beforeJSON),
		AfterJSON:    string(afterJSON),
		Reason:       reason,
		CreatedAt:    clock.Now(),
	}); err != nil {
		return errors.Wrapf(err, "write audit log for %s %d", resource, resourceID)
	}
	return nil
}
