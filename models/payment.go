package models

import "time"

// PaymentKind distinguishes the deposit, the final balance and refunds of an order
type PaymentKind string

const (
	PaymentKindDeposit PaymentKind = "deposit"
	PaymentKindFinal   PaymentKind = "final"
	PaymentKindRefund  PaymentKind = "refund"
)

// PaymentStatus is the lifecycle status of a single payment row
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusRefunded PaymentStatus = "refunded"
	PaymentStatusExpired  PaymentStatus = "expired"
	PaymentStatusFailed   PaymentStatus = "failed"
)

// HoldsSlot reports whether a payment in this status blocks a new attempt of the same kind
func (s PaymentStatus) HoldsSlot() bool {
	return s == PaymentStatusPending || s == PaymentStatusPaid || s == PaymentStatusRefunded
}

// Payment model
type Payment struct {
	ID                string        `json:"id" bson:"_id"`
	OrderID           string        `json:"orderId" bson:"orderId"`
	UserID            string        `json:"userId" bson:"userId"`
	Kind              PaymentKind   `json:"kind" bson:"kind"`
	Amount            int64         `json:"amount" bson:"amount"`               // charged through the gateway, in cents
	CreditApplied     int64         `json:"creditApplied" bson:"creditApplied"` // referral credit debited for this payment
	Status            PaymentStatus `json:"status" bson:"status"`
	Method            string        `json:"method,omitempty" bson:"method,omitempty"`
	GatewayIntentID   string        `json:"gatewayIntentId,omitempty" bson:"gatewayIntentId,omitempty"`
	ClientSecret      string        `json:"-" bson:"clientSecret,omitempty"`
	GatewayRefundID   string        `json:"gatewayRefundId,omitempty" bson:"gatewayRefundId,omitempty"`
	RefundOf          string        `json:"refundOf,omitempty" bson:"refundOf,omitempty"`
	RefundedAmount    int64         `json:"refundedAmount" bson:"refundedAmount"`
	Reason            string        `json:"reason,omitempty" bson:"reason,omitempty"`
	OverrideReason    string        `json:"overrideReason,omitempty" bson:"overrideReason,omitempty"`
	SlotKey           string        `json:"-" bson:"slotKey,omitempty"`
	CompletionApplied bool          `json:"completionApplied" bson:"completionApplied"`
	Version           int64         `json:"version" bson:"version"`
	CreatedAt         time.Time     `json:"createdAt" bson:"createdAt"`
	UpdatedAt         time.Time     `json:"updatedAt" bson:"updatedAt"`
	PaidAt            *time.Time    `json:"paidAt,omitempty" bson:"paidAt,omitempty"`
}

// Gross is the full price covered by this payment, gateway charge plus credit
func (p *Payment) Gross() int64 {
	return p.Amount + p.CreditApplied
}

// Refundable is the part of the gateway charge not yet refunded
func (p *Payment) Refundable() int64 {
	return p.Amount - p.RefundedAmount
}

// SlotKeyFor builds the unique key that limits an order to one active payment per kind
func SlotKeyFor(orderID string, kind PaymentKind) string {
	return orderID + ":" + string(kind)
}

// OrderPaymentState is the payment state of an order derived from its payments
type OrderPaymentState string

const (
	StateNone           OrderPaymentState = "NONE"
	StateDepositPending OrderPaymentState = "DEPOSIT_PENDING"
	StateDepositPaid    OrderPaymentState = "DEPOSIT_PAID"
	StateFinalPending   OrderPaymentState = "FINAL_PENDING"
	StateFinalPaid      OrderPaymentState = "FINAL_PAID"
	StateRefunded       OrderPaymentState = "REFUNDED"
	StateCancelled      OrderPaymentState = "CANCELLED"
)

// Terminal reports whether no further payment transition is possible
func (s OrderPaymentState) Terminal() bool {
	return s == StateFinalPaid || s == StateRefunded || s == StateCancelled
}

// DerivePaymentState computes the order payment state from the order and its payments.
// Expired and failed attempts are ignored so the order falls back to the prior state.
func DerivePaymentState(order *Order, payments []*Payment) OrderPaymentState {
	if order != nil && order.Status == OrderStatusCancelled {
		return StateCancelled
	}

	var deposit, final *Payment
	for _, p := range payments {
		if !p.Status.HoldsSlot() {
			continue
		}
		switch p.Kind {
		case PaymentKindDeposit:
			deposit = p
		case PaymentKindFinal:
			final = p
		}
	}

	switch {
	case final != nil && final.Status == PaymentStatusRefunded:
		return StateRefunded
	case final != nil && final.Status == PaymentStatusPaid:
		return StateFinalPaid
	case final != nil:
		return StateFinalPending
	case deposit != nil && deposit.Status == PaymentStatusRefunded:
		return StateRefunded
	case deposit != nil && deposit.Status == PaymentStatusPaid:
		return StateDepositPaid
	case deposit != nil:
		return StateDepositPending
	default:
		return StateNone
	}
}

// StartPaymentRequest is the input of a deposit or final payment start
type StartPaymentRequest struct {
	OrderID       string `json:"-" param:"orderId"`
	UserID        string `json:"-"`
	Method        string `json:"method" validate:"required,oneof=whish card"`
	CreditToApply int64  `json:"creditToApply" validate:"min=0"`
}

// PaymentIntentResult is returned to the client after a payment start
type PaymentIntentResult struct {
	PaymentID     string        `json:"paymentId"`
	ClientSecret  string        `json:"clientSecret,omitempty"`
	IntentID      string        `json:"intentId,omitempty"`
	Amount        int64         `json:"amount"`
	CreditApplied int64         `json:"creditApplied"`
	Status        PaymentStatus `json:"status"`
}

// ConfirmRequest is the body of a payment confirmation or gateway callback
type ConfirmRequest struct {
	IntentID string `json:"intentId" validate:"required"`
}

// ConfirmResult is the outcome of a successful confirmation, replayed verbatim on retries
type ConfirmResult struct {
	PaymentID  string            `json:"paymentId"`
	IntentID   string            `json:"intentId"`
	UserID     string            `json:"userId"`
	Kind       PaymentKind       `json:"kind"`
	Status     PaymentStatus     `json:"status"`
	OrderState OrderPaymentState `json:"orderState"`
	PaidAt     time.Time         `json:"paidAt"`
}

// RefundReason is the declared reason for a refund request
type RefundReason string

const (
	RefundReasonCustomerCancel RefundReason = "customer_cancel"
	RefundReasonServiceIssue   RefundReason = "service_issue"
	RefundReasonForceMajeure   RefundReason = "force_majeure"
)

// RefundRequest is the input of a refund request
type RefundRequest struct {
	PaymentID string       `json:"-" param:"paymentId"`
	UserID    string       `json:"-"`
	ActorType string       `json:"-"`
	Amount    int64        `json:"amount" validate:"min=0"`
	Reason    RefundReason `json:"reason" validate:"required,oneof=customer_cancel service_issue force_majeure"`
	Override  bool         `json:"override"`
	Note      string       `json:"note" validate:"max=500"`
}

// RefundResult describes an issued refund
type RefundResult struct {
	RefundID        string  `json:"refundId"`
	PaymentID       string  `json:"paymentId"`
	Amount          int64   `json:"amount"`
	Fraction        string  `json:"fraction"`
	GatewayRefundID string  `json:"gatewayRefundId"`
	TotalRefunded   int64   `json:"totalRefunded"`
	Overridden      bool    `json:"overridden"`
	HoursToService  float64 `json:"hoursToService"`
}

// ActorAdmin is the user type allowed to override refund policy
const ActorAdmin = "admin"

// OrderPaymentView is the payment state of an order with its payment history
type OrderPaymentView struct {
	OrderID     string            `json:"orderId"`
	OrderStatus OrderStatus       `json:"orderStatus"`
	State       OrderPaymentState `json:"state"`
	Payments    []*Payment        `json:"payments"`
}
