package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// 遷移表の検証
func TestOrderStatus_Transitions(t *testing.T) {
	cases := []struct {
		from OrderStatus
		to   OrderStatus
		ok   bool
	}{
		{OrderStatusDraft, OrderStatusPending, true},
		{OrderStatusDraft, OrderStatusCancelled, true},
		{OrderStatusDraft, OrderStatusConfirmed, false},
		{OrderStatusPending, OrderStatusConfirmed, true},
		{OrderStatusPending, OrderStatusShipped, false},
		{OrderStatusConfirmed, OrderStatusProcessing, true},
		{OrderStatusConfirmed, OrderStatusDelivered, true},
		{OrderStatusProcessing, OrderStatusShipped, true},
		{OrderStatusShipped, OrderStatusReturned, true},
		{OrderStatusShipped, OrderStatusPending, false},
		{OrderStatusDelivered, OrderStatusReturned, true},
		{OrderStatusDelivered, OrderStatusCancelled, false},
		{OrderStatusCancelled, OrderStatusPending, false},
		{OrderStatusReturned, OrderStatusPending, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.ok, tc.from.CanTransitionTo(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestOrderStatus_TerminalAndModifiable(t *testing.T) {
	for _, s := range []OrderStatus{OrderStatusDelivered, OrderStatusCancelled, OrderStatusReturned} {
		assert.True(t, s.IsTerminal(), string(s))
		assert.False(t, s.IsModifiable(), string(s))
	}
	for _, s := range []OrderStatus{OrderStatusDraft, OrderStatusPending} {
		assert.False(t, s.IsTerminal(), string(s))
		assert.True(t, s.IsModifiable(), string(s))
	}
	for _, s := range []OrderStatus{OrderStatusConfirmed, OrderStatusProcessing, OrderStatusShipped} {
		assert.False(t, s.IsModifiable(), string(s))
	}
}

func TestParseOrderStatus(t *testing.T) {
	s, ok := ParseOrderStatus("shipped")
	assert.True(t, ok)
	assert.Equal(t, OrderStatusShipped, s)

	_, ok = ParseOrderStatus("SHIPPED")
	assert.False(t, ok)
	_, ok = ParseOrderStatus("")
	assert.False(t, ok)
}

func TestOrder_HasCustomerInfo(t *testing.T) {
	assert.False(t, Order{}.HasCustomerInfo())
	assert.False(t, Order{CustomerName: "Jane"}.HasCustomerInfo())
	assert.True(t, Order{CustomerName: "Jane", CustomerPhone: "0712345678"}.HasCustomerInfo())
}
