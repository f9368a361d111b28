package usecase

import (
	"context"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type OrderUsecase struct {
	tx           repo.TransactionManager
	repos        repo.TxRepos
	transitioner *OrderTransitioner
	log          logrus.FieldLogger
}

func NewOrderUsecase(tx repo.TransactionManager, repos repo.TxRepos, transitioner *OrderTransitioner, log logrus.FieldLogger) *OrderUsecase {
	return &OrderUsecase{tx: tx, repos: repos, transitioner: transitioner, log: log}
}

func (u *OrderUsecase) GetForOwner(ctx context.Context, owner model.Owner, orderNumber string) (OrderOutput, error) {
	order, err := findOwnedOrder(ctx, u.repos, owner, orderNumber)
	if err != nil {
		return OrderOutput{}, err
	}

	items, err := u.repos.OrderItems().ListByOrderID(ctx, order.ID)
	if err != nil {
		return OrderOutput{}, errors.Wrapf(err, "list items of order %d", order.ID)
	}
	return toOrderOutput(order, items), nil
}

// 支払い前（pending）の注文だけ持ち主がキャンセルできる。在庫は戻す。
func (u *OrderUsecase) CancelForOwner(ctx context.Context, owner model.Owner, orderNumber string) (OrderOutput, error) {
	order, err := findOwnedOrder(ctx, u.repos, owner, orderNumber)
	if err != nil {
		return OrderOutput{}, err
	}

	var out OrderOutput
	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		locked, err := r.Orders().FindByIDForUpdate(ctx, order.ID)
		if err != nil {
			return errors.Wrapf(err, "lock order %d", order.ID)
		}
		if locked.Status != model.OrderStatusPending {
			return NewConflictError("order %s is %s and can no longer be cancelled", locked.OrderNumber, locked.Status)
		}

		updated, _, err := u.transitioner.Transition(ctx, r, locked, model.OrderStatusCancelled, model.ActorOwner, "cancelled by owner")
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

	u.log.WithFields(logrus.Fields{"order_id": order.ID, "order_number": order.OrderNumber}).Info("order cancelled by owner")
	return out, nil
}
