package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lvanfai123/moving-service-sub001/models"
)

const (
	orderTotal   = int64(50000)
	orderDeposit = int64(10000)
)

func startReq(order *models.Order, credit int64) models.StartPaymentRequest {
	return models.StartPaymentRequest{OrderID: order.ID, UserID: order.UserID, Method: "card", CreditToApply: credit}
}

func orderState(t *testing.T, h *harness, order *models.Order) models.OrderPaymentState {
	t.Helper()
	view, err := h.svc.OrderState(context.Background(), order.ID, order.UserID)
	require.NoError(t, err)
	return view.State
}

func TestStartDeposit_OneActiveAttemptPerOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	order := h.newOrder("u1", orderTotal, orderDeposit, 72*time.Hour)

	intent, err := h.svc.StartDeposit(ctx, startReq(order, 0))
	require.NoError(t, err)
	assert.Equal(t, orderDeposit, intent.Amount)
	assert.Equal(t, models.PaymentStatusPending, intent.Status)
	assert.NotEmpty(t, intent.IntentID)
	assert.NotEmpty(t, intent.ClientSecret)
	assert.Equal(t, models.StateDepositPending, orderState(t, h, order))

	_, err = h.svc.StartDeposit(ctx, startReq(order, 0))
	requireKind(t, err, models.ErrConflict)
	assert.Equal(t, models.ActionFixInput, models.AsAppError(err).Action())
}

func TestStartDeposit_RejectsForeignAndUnknownOrders(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	order := h.newOrder("u1", orderTotal, orderDeposit, 72*time.Hour)

	req := startReq(order, 0)
	req.UserID = "someone-else"
	_, err := h.svc.StartDeposit(ctx, req)
	requireKind(t, err, models.ErrUnauthorized)

	req = startReq(order, 0)
	req.OrderID = "missing"
	_, err = h.svc.StartDeposit(ctx, req)
	requireKind(t, err, models.ErrNotFound)
}

func TestStartFinal_RequiresPaidDeposit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	order := h.newOrder("u1", orderTotal, orderDeposit, 72*time.Hour)

	_, err := h.svc.StartFinal(ctx, startReq(order, 0))
	requireKind(t, err, models.ErrConflict)

	h.payDeposit(t, order)
	intent, err := h.svc.StartFinal(ctx, startReq(order, 0))
	require.NoError(t, err)
	assert.Equal(t, orderTotal-orderDeposit, intent.Amount)
	assert.Equal(t, models.StateFinalPending, orderState(t, h, order))
}

func TestConfirm_PendingIntentIsRetryable(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	order := h.newOrder("u1", orderTotal, orderDeposit, 72*time.Hour)

	intent, err := h.svc.StartDeposit(ctx, startReq(order, 0))
	require.NoError(t, err)

	_, err = h.svc.ConfirmCompletion(ctx, intent.PaymentID, intent.IntentID, "u1")
	requireKind(t, err, models.ErrGatewayPending)
	assert.True(t, models.AsAppError(err).Retryable())

	p, err := h.svc.GetPayment(ctx, intent.PaymentID, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, p.Status)
}

func TestConfirm_ChecksOwnerAndIntent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	order := h.newOrder("u1", orderTotal, orderDeposit, 72*time.Hour)

	intent, err := h.svc.StartDeposit(ctx, startReq(order, 0))
	require.NoError(t, err)
	h.gateway.Settle(intent.IntentID)

	_, err = h.svc.ConfirmCompletion(ctx, intent.PaymentID, intent.IntentID, "u2")
	requireKind(t, err, models.ErrUnauthorized)

	_, err = h.svc.ConfirmCompletion(ctx, intent.PaymentID, "pi_other", "u1")
	requireKind(t, err, models.ErrGatewayMismatch)

	_, err = h.svc.ConfirmCompletion(ctx, intent.PaymentID, intent.IntentID, "")
	requireKind(t, err, models.ErrUnauthorized)

	_, err = h.svc.ConfirmCompletion(ctx, "missing", intent.IntentID, "u1")
	requireKind(t, err, models.ErrNotFound)
}

func TestConfirm_ReplayReturnsSameResultAndCompletesOrderOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	order := h.newOrder("u1", orderTotal, orderDeposit, 72*time.Hour)

	deposit := h.payDeposit(t, order)
	assert.Equal(t, models.StateDepositPaid, deposit.OrderState)
	assert.Zero(t, h.orders.StatusUpdates(order.ID))

	intent, err := h.svc.StartFinal(ctx, startReq(order, 0))
	require.NoError(t, err)
	h.gateway.Settle(intent.IntentID)

	first, err := h.svc.ConfirmCompletion(ctx, intent.PaymentID, intent.IntentID, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.StateFinalPaid, first.OrderState)
	assert.Equal(t, models.PaymentStatusPaid, first.Status)

	h.clock.Advance(time.Minute)
	second, err := h.svc.ConfirmCompletion(ctx, intent.PaymentID, intent.IntentID, "u1")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// without the cache the stored payment yields the same answer
	h.svc.cache = NewMemoryIdempotencyStore(time.Hour)
	third, err := h.svc.ConfirmCompletion(ctx, intent.PaymentID, intent.IntentID, "u1")
	require.NoError(t, err)
	assert.Equal(t, first, third)

	fromCallback, err := h.svc.ConfirmFromGateway(ctx, intent.PaymentID, intent.IntentID)
	require.NoError(t, err)
	assert.Equal(t, first, fromCallback)

	assert.Equal(t, 1, h.orders.StatusUpdates(order.ID))
	stored, err := h.orders.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCompleted, stored.Status)
	assert.Equal(t, models.StateFinalPaid, orderState(t, h, order))

	p, err := h.svc.GetPayment(ctx, intent.PaymentID, "u1")
	require.NoError(t, err)
	assert.True(t, p.CompletionApplied)
}

func TestConfirm_FailedIntentFreesSlotAndCredit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	grant(t, h, "u1", 3000, 0)
	order := h.newOrder("u1", orderTotal, orderDeposit, 72*time.Hour)

	intent, err := h.svc.StartDeposit(ctx, startReq(order, 3000))
	require.NoError(t, err)
	assert.Equal(t, orderDeposit-3000, intent.Amount)
	assert.Equal(t, int64(3000), intent.CreditApplied)
	assert.Zero(t, h.balance(t, "u1"))

	h.gateway.Fail(intent.IntentID)
	_, err = h.svc.ConfirmCompletion(ctx, intent.PaymentID, intent.IntentID, "u1")
	requireKind(t, err, models.ErrGatewayFailed)

	assert.Equal(t, int64(3000), h.balance(t, "u1"))
	assert.Equal(t, models.StateNone, orderState(t, h, order))

	// confirming again reports the stored failure
	_, err = h.svc.ConfirmCompletion(ctx, intent.PaymentID, intent.IntentID, "u1")
	requireKind(t, err, models.ErrGatewayFailed)

	_, err = h.svc.StartDeposit(ctx, startReq(order, 0))
	require.NoError(t, err)
}

func TestExpireStale_ReleasesCreditAndLateConfirmConflicts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	grant(t, h, "u1", 2000, 0)
	order := h.newOrder("u1", orderTotal, orderDeposit, 72*time.Hour)

	intent, err := h.svc.StartDeposit(ctx, startReq(order, 2000))
	require.NoError(t, err)
	assert.Zero(t, h.balance(t, "u1"))

	h.clock.Advance(10 * time.Minute)
	n, err := h.svc.ExpireStale(ctx, h.clock.Now())
	require.NoError(t, err)
	assert.Zero(t, n)

	h.clock.Advance(25 * time.Minute)
	report, err := h.sweeper.RunOnce(ctx, h.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Payments)
	assert.Equal(t, int64(2000), h.balance(t, "u1"))
	assert.Equal(t, models.StateNone, orderState(t, h, order))

	h.gateway.Settle(intent.IntentID)
	_, err = h.svc.ConfirmCompletion(ctx, intent.PaymentID, intent.IntentID, "u1")
	requireKind(t, err, models.ErrConflict)

	p, err := h.svc.GetPayment(ctx, intent.PaymentID, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusExpired, p.Status)
}

func TestExpireStale_FinalExpiryKeepsDepositCredit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	grant(t, h, "u1", 2000, 0)
	order := h.newOrder("u1", orderTotal, orderDeposit, 72*time.Hour)

	h.pay(t, order, h.svc.StartDeposit, 1000)
	_, err := h.svc.StartFinal(ctx, startReq(order, 1000))
	require.NoError(t, err)
	assert.Zero(t, h.balance(t, "u1"))

	h.clock.Advance(31 * time.Minute)
	n, err := h.svc.ExpireStale(ctx, h.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, int64(1000), h.balance(t, "u1"))
	assert.Equal(t, models.StateDepositPaid, orderState(t, h, order))
}

func TestStart_CreditCoveringTheWholeAmountPaysImmediately(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	grant(t, h, "u1", 15000, 0)
	order := h.newOrder("u1", orderTotal, orderDeposit, 72*time.Hour)

	result, err := h.svc.StartDeposit(ctx, startReq(order, 15000))
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPaid, result.Status)
	assert.Zero(t, result.Amount)
	assert.Equal(t, orderDeposit, result.CreditApplied)
	assert.Empty(t, result.IntentID)

	assert.Equal(t, int64(5000), h.balance(t, "u1"))
	assert.Equal(t, models.StateDepositPaid, orderState(t, h, order))
}

func TestStart_InsufficientCreditLeavesOrderStartable(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	grant(t, h, "u1", 100, 0)
	order := h.newOrder("u1", orderTotal, orderDeposit, 72*time.Hour)

	_, err := h.svc.StartDeposit(ctx, startReq(order, 500))
	requireKind(t, err, models.ErrInsufficientCredit)
	assert.Equal(t, int64(100), h.balance(t, "u1"))

	_, err = h.svc.StartDeposit(ctx, startReq(order, 0))
	require.NoError(t, err)
}

func TestStart_GatewayErrorReleasesCredit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	grant(t, h, "u1", 1000, 0)
	order := h.newOrder("u1", orderTotal, orderDeposit, 72*time.Hour)

	h.gateway.CreateErr = errors.New("provider down")
	_, err := h.svc.StartDeposit(ctx, startReq(order, 1000))
	requireKind(t, err, models.ErrGatewayFailed)
	assert.Equal(t, int64(1000), h.balance(t, "u1"))

	h.gateway.CreateErr = nil
	_, err = h.svc.StartDeposit(ctx, startReq(order, 1000))
	require.NoError(t, err)
}

func TestStart_RejectsCompletedOrder(t *testing.T) {
	h := newHarness(t)
	order := h.newOrder("u1", orderTotal, orderDeposit, 72*time.Hour)
	order.Status = models.OrderStatusCompleted
	h.orders.Put(order)

	_, err := h.svc.StartDeposit(context.Background(), startReq(order, 0))
	requireKind(t, err, models.ErrConflict)
}

func refundReq(paymentID, userID string) models.RefundRequest {
	return models.RefundRequest{PaymentID: paymentID, UserID: userID, Reason: models.RefundReasonCustomerCancel}
}

func TestRequestRefund_TimeTiers(t *testing.T) {
	tests := []struct {
		name         string
		untilService time.Duration
		wantAmount   int64
		wantFraction string
	}{
		{"thirty hours out", 30 * time.Hour, 10000, "1"},
		{"ten hours out", 10 * time.Hour, 9000, "0.9"},
		{"two hours out", 2 * time.Hour, 8000, "0.8"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			ctx := context.Background()
			order := h.newOrder("u1", orderTotal, orderDeposit, tt.untilService)
			paid := h.payDeposit(t, order)

			result, err := h.svc.RequestRefund(ctx, refundReq(paid.PaymentID, "u1"))
			require.NoError(t, err)
			assert.Equal(t, tt.wantAmount, result.Amount)
			assert.Equal(t, tt.wantFraction, result.Fraction)
			assert.Equal(t, tt.wantAmount, result.TotalRefunded)
			assert.NotEmpty(t, result.GatewayRefundID)
			assert.False(t, result.Overridden)

			p, err := h.svc.GetPayment(ctx, paid.PaymentID, "u1")
			require.NoError(t, err)
			assert.Equal(t, models.PaymentStatusRefunded, p.Status)
			assert.Equal(t, tt.wantAmount, h.gateway.Refunded(p.GatewayIntentID))
			assert.Equal(t, models.StateRefunded, orderState(t, h, order))
		})
	}
}

func TestRequestRefund_AfterServiceStartIsRefused(t *testing.T) {
	h := newHarness(t)
	order := h.newOrder("u1", orderTotal, orderDeposit, 2*time.Hour)
	paid := h.payDeposit(t, order)
	h.clock.Advance(3 * time.Hour)

	_, err := h.svc.RequestRefund(context.Background(), refundReq(paid.PaymentID, "u1"))
	requireKind(t, err, models.ErrConflict)
}

func TestRequestRefund_PartialRefundsStayWithinCap(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	order := h.newOrder("u1", orderTotal, orderDeposit, 10*time.Hour)
	paid := h.payDeposit(t, order)

	req := refundReq(paid.PaymentID, "u1")
	req.Amount = 9500
	_, err := h.svc.RequestRefund(ctx, req)
	requireKind(t, err, models.ErrConflict)

	req.Amount = 4000
	result, err := h.svc.RequestRefund(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, int64(4000), result.TotalRefunded)

	req.Amount = 5000
	result, err = h.svc.RequestRefund(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, int64(9000), result.TotalRefunded)

	req.Amount = 1
	_, err = h.svc.RequestRefund(ctx, req)
	requireKind(t, err, models.ErrConflict)
	assert.Equal(t, models.ActionFixInput, models.AsAppError(err).Action())
}

func TestRequestRefund_GoodwillRefundKeepsOrderPayable(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	order := h.newOrder("u1", orderTotal, orderDeposit, 48*time.Hour)
	paid := h.payDeposit(t, order)

	req := refundReq(paid.PaymentID, "u1")
	req.Reason = models.RefundReasonServiceIssue
	req.Amount = 100
	result, err := h.svc.RequestRefund(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, int64(100), result.TotalRefunded)

	p, err := h.svc.GetPayment(ctx, paid.PaymentID, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPaid, p.Status)
	assert.Equal(t, int64(100), p.RefundedAmount)
	assert.Equal(t, models.StateDepositPaid, orderState(t, h, order))

	final := h.payFinal(t, order)
	assert.Equal(t, models.StateFinalPaid, final.OrderState)

	// returning the rest of the charge closes the deposit
	req.Amount = 0
	result, err = h.svc.RequestRefund(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, orderDeposit, result.TotalRefunded)

	p, err = h.svc.GetPayment(ctx, paid.PaymentID, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusRefunded, p.Status)
}

func TestRequestRefund_AdminOverride(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	order := h.newOrder("u1", orderTotal, orderDeposit, 2*time.Hour)
	paid := h.payDeposit(t, order)
	h.clock.Advance(3 * time.Hour)

	req := refundReq(paid.PaymentID, "u1")
	req.Override = true
	req.Reason = models.RefundReasonForceMajeure
	_, err := h.svc.RequestRefund(ctx, req)
	requireKind(t, err, models.ErrUnauthorized)

	admin := models.RefundRequest{
		PaymentID: paid.PaymentID,
		UserID:    "admin-1",
		ActorType: models.ActorAdmin,
		Reason:    models.RefundReasonCustomerCancel,
		Override:  true,
	}
	_, err = h.svc.RequestRefund(ctx, admin)
	requireKind(t, err, models.ErrInvalid)

	admin.Reason = models.RefundReasonForceMajeure
	admin.Note = "storm closed the highway"
	result, err := h.svc.RequestRefund(ctx, admin)
	require.NoError(t, err)
	assert.True(t, result.Overridden)
	assert.Equal(t, orderDeposit, result.Amount)

	payments, err := h.payments.ListByOrder(ctx, order.ID)
	require.NoError(t, err)
	var refund *models.Payment
	for _, p := range payments {
		if p.Kind == models.PaymentKindRefund {
			refund = p
		}
	}
	require.NotNil(t, refund)
	assert.Equal(t, "storm closed the highway", refund.OverrideReason)
	assert.Equal(t, models.PaymentStatusRefunded, refund.Status)
	assert.Equal(t, paid.PaymentID, refund.RefundOf)
}

func TestRequestRefund_GatewayFailureRollsBack(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	order := h.newOrder("u1", orderTotal, orderDeposit, 48*time.Hour)
	paid := h.payDeposit(t, order)

	h.gateway.RefundErr = errors.New("refund rail down")
	_, err := h.svc.RequestRefund(ctx, refundReq(paid.PaymentID, "u1"))
	requireKind(t, err, models.ErrGatewayFailed)

	p, err := h.svc.GetPayment(ctx, paid.PaymentID, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPaid, p.Status)
	assert.Zero(t, p.RefundedAmount)
	assert.Equal(t, models.StateDepositPaid, orderState(t, h, order))

	payments, err := h.payments.ListByOrder(ctx, order.ID)
	require.NoError(t, err)
	for _, rp := range payments {
		if rp.Kind == models.PaymentKindRefund {
			assert.Equal(t, models.PaymentStatusFailed, rp.Status)
		}
	}

	h.gateway.RefundErr = nil
	result, err := h.svc.RequestRefund(ctx, refundReq(paid.PaymentID, "u1"))
	require.NoError(t, err)
	assert.Equal(t, orderDeposit, result.TotalRefunded)
}

func TestRequestRefund_RejectsInvalidRequests(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	order := h.newOrder("u1", orderTotal, orderDeposit, 48*time.Hour)

	intent, err := h.svc.StartDeposit(ctx, startReq(order, 0))
	require.NoError(t, err)
	_, err = h.svc.RequestRefund(ctx, refundReq(intent.PaymentID, "u1"))
	requireKind(t, err, models.ErrConflict)

	_, err = h.svc.RequestRefund(ctx, refundReq(intent.PaymentID, "u2"))
	requireKind(t, err, models.ErrUnauthorized)

	req := refundReq(intent.PaymentID, "u1")
	req.Reason = "changed_my_mind"
	_, err = h.svc.RequestRefund(ctx, req)
	requireKind(t, err, models.ErrInvalid)
}

func TestGetPayment_OwnerOnly(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	order := h.newOrder("u1", orderTotal, orderDeposit, 48*time.Hour)
	intent, err := h.svc.StartDeposit(ctx, startReq(order, 0))
	require.NoError(t, err)

	_, err = h.svc.GetPayment(ctx, intent.PaymentID, "u2")
	requireKind(t, err, models.ErrUnauthorized)

	_, err = h.svc.OrderState(ctx, order.ID, "u2")
	requireKind(t, err, models.ErrUnauthorized)

	_, err = h.svc.GetPayment(ctx, "missing", "u1")
	requireKind(t, err, models.ErrNotFound)
}
