package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrderStatus_HappyPath(t *testing.T) {
	path := []OrderStatus{
		OrderStatusPending,
		OrderStatusPaid,
		OrderStatusProcessing,
		OrderStatusShipped,
		OrderStatusDelivered,
	}
	for i := 0; i < len(path)-1; i++ {
		assert.True(t, path[i].CanTransitionTo(path[i+1]), "%s -> %s", path[i], path[i+1])
	}
}

func TestOrderStatus_TerminalStatesRejectEverything(t *testing.T) {
	all := []OrderStatus{
		OrderStatusPending, OrderStatusPaid, OrderStatusProcessing, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCancelled, OrderStatusFailed,
	}
	for _, terminal := range []OrderStatus{OrderStatusDelivered, OrderStatusCancelled, OrderStatusFailed} {
		assert.True(t, terminal.IsTerminal())
		for _, next := range all {
			assert.False(t, terminal.CanTransitionTo(next), "%s -> %s", terminal, next)
		}
	}
}

func TestOrderStatus_NoSkippingOrBackwards(t *testing.T) {
	assert.False(t, OrderStatusPending.CanTransitionTo(OrderStatusShipped))
	assert.False(t, OrderStatusPaid.CanTransitionTo(OrderStatusPending))
	assert.False(t, OrderStatusShipped.CanTransitionTo(OrderStatusPaid))
	assert.False(t, OrderStatusPending.CanTransitionTo(OrderStatusPending))
}

func TestOrderStatus_FailedReachableBeforeDelivery(t *testing.T) {
	for _, s := range []OrderStatus{OrderStatusPending, OrderStatusPaid, OrderStatusProcessing, OrderStatusShipped} {
		assert.True(t, s.CanTransitionTo(OrderStatusFailed), s)
	}
}

func TestOrderStatus_HoldsStock(t *testing.T) {
	for _, s := range []OrderStatus{OrderStatusPending, OrderStatusPaid, OrderStatusProcessing} {
		assert.True(t, s.HoldsStock(), s)
	}
	for _, s := range []OrderStatus{OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled, OrderStatusFailed} {
		assert.False(t, s.HoldsStock(), s)
	}
}

func TestParseOrderStatus(t *testing.T) {
	st, ok := ParseOrderStatus("shipped")
	assert.True(t, ok)
	assert.Equal(t, OrderStatusShipped, st)

	_, ok = ParseOrderStatus("SHIPPED")
	assert.False(t, ok)
}

func TestOrder_OwnedBy(t *testing.T) {
	acc := "acc-1"
	sid := "sess-1"

	accountOrder := Order{AccountID: &acc}
	assert.True(t, accountOrder.OwnedBy(AccountOwner("acc-1")))
	assert.False(t, accountOrder.OwnedBy(AccountOwner("acc-2")))
	assert.False(t, accountOrder.OwnedBy(SessionOwner("acc-1")))

	guestOrder := Order{SessionID: &sid}
	assert.True(t, guestOrder.OwnedBy(SessionOwner("sess-1")))
	assert.False(t, guestOrder.OwnedBy(SessionOwner("sess-2")))
}
