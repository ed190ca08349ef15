package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func payment(kind PaymentKind, status PaymentStatus) *Payment {
	return &Payment{Kind: kind, Status: status}
}

func TestDerivePaymentState(t *testing.T) {
	open := &Order{Status: OrderStatusConfirmed}

	tests := []struct {
		name     string
		order    *Order
		payments []*Payment
		want     OrderPaymentState
	}{
		{"no payments", open, nil, StateNone},
		{"deposit pending", open, []*Payment{payment(PaymentKindDeposit, PaymentStatusPending)}, StateDepositPending},
		{"deposit paid", open, []*Payment{payment(PaymentKindDeposit, PaymentStatusPaid)}, StateDepositPaid},
		{"expired deposit falls back", open, []*Payment{payment(PaymentKindDeposit, PaymentStatusExpired)}, StateNone},
		{"failed final falls back", open, []*Payment{
			payment(PaymentKindDeposit, PaymentStatusPaid),
			payment(PaymentKindFinal, PaymentStatusFailed),
		}, StateDepositPaid},
		{"final pending", open, []*Payment{
			payment(PaymentKindDeposit, PaymentStatusPaid),
			payment(PaymentKindFinal, PaymentStatusPending),
		}, StateFinalPending},
		{"final paid", open, []*Payment{
			payment(PaymentKindDeposit, PaymentStatusPaid),
			payment(PaymentKindFinal, PaymentStatusPaid),
		}, StateFinalPaid},
		{"deposit refunded", open, []*Payment{payment(PaymentKindDeposit, PaymentStatusRefunded)}, StateRefunded},
		{"final refunded", open, []*Payment{
			payment(PaymentKindDeposit, PaymentStatusPaid),
			payment(PaymentKindFinal, PaymentStatusRefunded),
		}, StateRefunded},
		{"refund rows are ignored", open, []*Payment{
			payment(PaymentKindDeposit, PaymentStatusPaid),
			payment(PaymentKindRefund, PaymentStatusRefunded),
		}, StateDepositPaid},
		{"cancelled order", &Order{Status: OrderStatusCancelled}, []*Payment{payment(PaymentKindDeposit, PaymentStatusPaid)}, StateCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DerivePaymentState(tt.order, tt.payments))
		})
	}
}

func TestOrderPaymentState_Terminal(t *testing.T) {
	assert.True(t, StateFinalPaid.Terminal())
	assert.True(t, StateRefunded.Terminal())
	assert.True(t, StateCancelled.Terminal())
	assert.False(t, StateDepositPaid.Terminal())
	assert.False(t, StateNone.Terminal())
}

func TestPayment_Amounts(t *testing.T) {
	p := &Payment{Amount: 7000, CreditApplied: 3000, RefundedAmount: 2500}
	assert.Equal(t, int64(10000), p.Gross())
	assert.Equal(t, int64(4500), p.Refundable())
	assert.Equal(t, "o1:deposit", SlotKeyFor("o1", PaymentKindDeposit))
}
