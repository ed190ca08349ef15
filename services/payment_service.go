package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lvanfai123/moving-service-sub001/config"
	"github.com/lvanfai123/moving-service-sub001/models"
	"github.com/lvanfai123/moving-service-sub001/monitoring"
	"github.com/lvanfai123/moving-service-sub001/repositories"
)

const expireBatchSize = 500

// CreditSpender is the part of the credit ledger used to pay for orders
type CreditSpender interface {
	DebitPayment(ctx context.Context, userID string, amount int64, orderID, paymentID string) (*models.DebitResult, error)
	Release(ctx context.Context, userID, orderID, paymentID string) (int64, error)
}

// FirstOrderHook is called once an order's final payment is confirmed
type FirstOrderHook interface {
	ProcessFirstOrderReward(ctx context.Context, userID, orderID string) (*models.RewardOutcome, error)
}

// PaymentService drives the deposit, final and refund payments of an order
type PaymentService struct {
	payments repositories.PaymentRepository
	orders   repositories.OrderStore
	gateway  Gateway
	credit   CreditSpender
	rewards  FirstOrderHook
	cache    IdempotencyStore
	timeout  time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

func NewPaymentService(
	payments repositories.PaymentRepository,
	orders repositories.OrderStore,
	gateway Gateway,
	credit CreditSpender,
	rewards FirstOrderHook,
	cache IdempotencyStore,
	cfg *config.Config,
	logger *zap.Logger,
) *PaymentService {
	timeout := cfg.PaymentTimeout
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	return &PaymentService{
		payments: payments,
		orders:   orders,
		gateway:  gateway,
		credit:   credit,
		rewards:  rewards,
		cache:    cache,
		timeout:  timeout,
		logger:   logger.Named("payments"),
		now:      time.Now,
	}
}

func statusPtr(s models.PaymentStatus) *models.PaymentStatus { return &s }
func boolPtr(b bool) *bool                                   { return &b }

// StartDeposit opens the deposit payment of an order
func (s *PaymentService) StartDeposit(ctx context.Context, req models.StartPaymentRequest) (*models.PaymentIntentResult, error) {
	return s.start(ctx, req, models.PaymentKindDeposit)
}

// StartFinal opens the final payment of an order whose deposit is paid. The
// order is marked completed only when this payment is confirmed.
func (s *PaymentService) StartFinal(ctx context.Context, req models.StartPaymentRequest) (*models.PaymentIntentResult, error) {
	return s.start(ctx, req, models.PaymentKindFinal)
}

func (s *PaymentService) start(ctx context.Context, req models.StartPaymentRequest, kind models.PaymentKind) (*models.PaymentIntentResult, error) {
	if req.OrderID == "" {
		return nil, models.NewError(models.ErrInvalid, "order id is required")
	}
	if req.UserID == "" {
		return nil, models.NewError(models.ErrUnauthorized, "authentication required")
	}
	if req.CreditToApply < 0 {
		return nil, models.NewError(models.ErrInvalid, "credit to apply cannot be negative")
	}

	order, err := s.loadOrder(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != req.UserID {
		return nil, models.NewError(models.ErrUnauthorized, "order belongs to another user")
	}
	if order.Status == models.OrderStatusCancelled || order.Status == models.OrderStatusCompleted {
		return nil, models.StateConflict("order is %s", order.Status)
	}

	existing, err := s.payments.ListByOrder(ctx, order.ID)
	if err != nil {
		return nil, models.WrapError(models.ErrInternal, err, "failed to load payments")
	}
	state := models.DerivePaymentState(order, existing)

	var gross int64
	switch kind {
	case models.PaymentKindDeposit:
		if state != models.StateNone {
			return nil, models.StateConflict("a deposit is already pending or paid for this order")
		}
		gross = order.DepositAmount
	case models.PaymentKindFinal:
		if state != models.StateDepositPaid {
			return nil, models.StateConflict("final payment requires a paid deposit, order is %s", state)
		}
		deposit := activePayment(existing, models.PaymentKindDeposit)
		gross = order.TotalAmount - deposit.Gross()
	}
	if gross < 0 {
		return nil, models.NewError(models.ErrInvalid, "order amounts are inconsistent")
	}

	credit := req.CreditToApply
	if credit > gross {
		credit = gross
	}

	now := s.now()
	payment := &models.Payment{
		ID:            uuid.NewString(),
		OrderID:       order.ID,
		UserID:        req.UserID,
		Kind:          kind,
		Amount:        gross - credit,
		CreditApplied: credit,
		Status:        models.PaymentStatusPending,
		Method:        req.Method,
		SlotKey:       models.SlotKeyFor(order.ID, kind),
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.payments.Create(ctx, payment); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, models.StateConflict("a %s payment is already in progress for this order", kind)
		}
		return nil, models.WrapError(models.ErrInternal, err, "failed to create payment")
	}
	monitoring.PaymentsStarted.WithLabelValues(string(kind)).Inc()

	log := s.logger.With(
		zap.String("paymentId", payment.ID),
		zap.String("orderId", order.ID),
		zap.String("kind", string(kind)))

	if credit > 0 {
		if _, err := s.credit.DebitPayment(ctx, req.UserID, credit, order.ID, payment.ID); err != nil {
			s.abandon(ctx, payment, false)
			return nil, err
		}
	}

	if payment.Amount == 0 {
		paid, err := s.markPaid(ctx, payment)
		if err != nil {
			return nil, err
		}
		log.Info("payment covered by credit", zap.Int64("credit", credit))
		return &models.PaymentIntentResult{
			PaymentID:     paid.ID,
			Amount:        paid.Amount,
			CreditApplied: paid.CreditApplied,
			Status:        paid.Status,
		}, nil
	}

	intent, err := s.gateway.CreateIntent(ctx, IntentRequest{
		Amount:    payment.Amount,
		Method:    req.Method,
		PaymentID: payment.ID,
		OrderID:   order.ID,
	})
	if err != nil {
		log.Error("failed to create gateway intent", zap.Error(err))
		s.abandon(ctx, payment, true)
		return nil, models.WrapError(models.ErrGatewayFailed, err, "payment provider rejected the payment")
	}

	updated, err := s.payments.Transition(ctx, payment.ID, payment.Version, repositories.PaymentChange{
		GatewayIntentID: &intent.IntentID,
		ClientSecret:    &intent.ClientSecret,
		UpdatedAt:       s.now(),
	})
	if err != nil {
		if errors.Is(err, repositories.ErrVersionConflict) {
			return nil, models.NewError(models.ErrConflict, "payment changed while it was being created")
		}
		return nil, models.WrapError(models.ErrInternal, err, "failed to store gateway intent")
	}

	log.Info("payment started",
		zap.Int64("amount", updated.Amount),
		zap.Int64("credit", updated.CreditApplied),
		zap.String("intentId", intent.IntentID))

	return &models.PaymentIntentResult{
		PaymentID:     updated.ID,
		ClientSecret:  intent.ClientSecret,
		IntentID:      intent.IntentID,
		Amount:        updated.Amount,
		CreditApplied: updated.CreditApplied,
		Status:        updated.Status,
	}, nil
}

// abandon fails a payment that never reached the gateway, freeing its slot
// and, when debited, its credit
func (s *PaymentService) abandon(ctx context.Context, p *models.Payment, release bool) {
	_, err := s.payments.Transition(ctx, p.ID, p.Version, repositories.PaymentChange{
		Status:    statusPtr(models.PaymentStatusFailed),
		ClearSlot: true,
		UpdatedAt: s.now(),
	})
	if err != nil {
		s.logger.Error("failed to abandon payment", zap.String("paymentId", p.ID), zap.Error(err))
	}
	if release {
		s.releaseCredit(ctx, p)
	}
}

func (s *PaymentService) releaseCredit(ctx context.Context, p *models.Payment) {
	if p.CreditApplied == 0 {
		return
	}
	if _, err := s.credit.Release(ctx, p.UserID, p.OrderID, p.ID); err != nil {
		s.logger.Error("failed to release credit",
			zap.String("paymentId", p.ID),
			zap.String("userId", p.UserID),
			zap.Error(err))
	}
}

// markPaid moves a pending payment to paid and runs its completion
func (s *PaymentService) markPaid(ctx context.Context, p *models.Payment) (*models.Payment, error) {
	paidAt := s.now()
	paid, err := s.payments.Transition(ctx, p.ID, p.Version, repositories.PaymentChange{
		Status:    statusPtr(models.PaymentStatusPaid),
		PaidAt:    &paidAt,
		UpdatedAt: paidAt,
	})
	if err != nil {
		if !errors.Is(err, repositories.ErrVersionConflict) {
			return nil, models.WrapError(models.ErrInternal, err, "failed to record payment")
		}
		// another caller moved it first
		current, findErr := s.payments.FindByID(ctx, p.ID)
		if findErr != nil {
			return nil, models.WrapError(models.ErrInternal, findErr, "failed to reload payment")
		}
		switch current.Status {
		case models.PaymentStatusPaid, models.PaymentStatusRefunded:
			paid = current
		case models.PaymentStatusExpired:
			return nil, models.StateConflict("payment expired before it was confirmed")
		default:
			return nil, models.StateConflict("payment is %s", current.Status)
		}
	}

	monitoring.PaymentConfirmations.WithLabelValues(string(p.Kind), "paid").Inc()
	return s.complete(ctx, paid), nil
}

// complete applies the order side effects of a paid payment exactly once.
// Failures leave completionApplied unset so the next confirmation finishes it.
func (s *PaymentService) complete(ctx context.Context, p *models.Payment) *models.Payment {
	if p.CompletionApplied {
		return p
	}
	log := s.logger.With(zap.String("paymentId", p.ID), zap.String("orderId", p.OrderID))

	if p.Kind == models.PaymentKindFinal {
		order, err := s.orders.GetOrder(ctx, p.OrderID)
		if err != nil {
			log.Error("failed to load order for completion", zap.Error(err))
			return p
		}
		if order.Status != models.OrderStatusCompleted {
			if err := s.orders.SetOrderStatus(ctx, p.OrderID, models.OrderStatusCompleted, p.UserID); err != nil {
				log.Error("failed to complete order", zap.Error(err))
				return p
			}
			log.Info("order completed")
		}

		if s.rewards != nil {
			outcome, err := s.rewards.ProcessFirstOrderReward(ctx, p.UserID, p.OrderID)
			if err != nil {
				log.Error("first order reward failed", zap.Error(err))
				return p
			}
			if outcome.Granted {
				log.Info("first order reward granted", zap.String("relationshipId", outcome.RelationshipID))
			}
		}
	}

	updated, err := s.payments.Transition(ctx, p.ID, p.Version, repositories.PaymentChange{
		CompletionApplied: boolPtr(true),
		UpdatedAt:         s.now(),
	})
	if err != nil {
		log.Warn("failed to record completion", zap.Error(err))
		return p
	}
	return updated
}

// ConfirmCompletion records a settled gateway intent for a payment owned by
// userID. Repeating a successful confirmation returns the same result.
func (s *PaymentService) ConfirmCompletion(ctx context.Context, paymentID, intentID, userID string) (*models.ConfirmResult, error) {
	if userID == "" {
		return nil, models.NewError(models.ErrUnauthorized, "authentication required")
	}
	return s.confirm(ctx, paymentID, intentID, userID)
}

// ConfirmFromGateway is ConfirmCompletion for provider callbacks, which carry
// no user identity
func (s *PaymentService) ConfirmFromGateway(ctx context.Context, paymentID, intentID string) (*models.ConfirmResult, error) {
	return s.confirm(ctx, paymentID, intentID, "")
}

func (s *PaymentService) confirm(ctx context.Context, paymentID, intentID, userID string) (*models.ConfirmResult, error) {
	if paymentID == "" || intentID == "" {
		return nil, models.NewError(models.ErrInvalid, "payment id and intent id are required")
	}

	key := confirmKey(paymentID, intentID)
	if cached, ok, err := s.cache.Get(ctx, key); err != nil {
		s.logger.Warn("confirmation cache read failed", zap.Error(err))
	} else if ok {
		if userID != "" && cached.UserID != userID {
			return nil, models.NewError(models.ErrUnauthorized, "payment belongs to another user")
		}
		return cached, nil
	}

	p, err := s.loadPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if userID != "" && p.UserID != userID {
		return nil, models.NewError(models.ErrUnauthorized, "payment belongs to another user")
	}
	if p.Kind == models.PaymentKindRefund {
		return nil, models.NewError(models.ErrInvalid, "refunds are not confirmed")
	}
	if p.GatewayIntentID == "" || p.GatewayIntentID != intentID {
		return nil, models.NewError(models.ErrGatewayMismatch, "intent does not belong to this payment")
	}

	log := s.logger.With(zap.String("paymentId", p.ID), zap.String("intentId", intentID))

	switch p.Status {
	case models.PaymentStatusPaid, models.PaymentStatusRefunded:
		return s.confirmed(ctx, key, s.complete(ctx, p)), nil
	case models.PaymentStatusExpired:
		return nil, models.StateConflict("payment expired, start a new payment")
	case models.PaymentStatusFailed:
		return nil, models.NewError(models.ErrGatewayFailed, "payment failed")
	}

	status, err := s.gateway.GetIntentStatus(ctx, intentID)
	if err != nil {
		log.Warn("gateway status lookup failed", zap.Error(err))
		monitoring.PaymentConfirmations.WithLabelValues(string(p.Kind), "pending").Inc()
		return nil, models.WrapError(models.ErrGatewayPending, err, "payment provider unavailable, retry later")
	}

	switch status {
	case models.IntentPending:
		monitoring.PaymentConfirmations.WithLabelValues(string(p.Kind), "pending").Inc()
		return nil, models.NewError(models.ErrGatewayPending, "payment not settled yet, retry later")

	case models.IntentFailed:
		_, err := s.payments.Transition(ctx, p.ID, p.Version, repositories.PaymentChange{
			Status:    statusPtr(models.PaymentStatusFailed),
			ClearSlot: true,
			UpdatedAt: s.now(),
		})
		if err != nil && !errors.Is(err, repositories.ErrVersionConflict) {
			return nil, models.WrapError(models.ErrInternal, err, "failed to record payment failure")
		}
		if err == nil {
			s.releaseCredit(ctx, p)
			log.Info("payment failed at gateway")
		}
		monitoring.PaymentConfirmations.WithLabelValues(string(p.Kind), "failed").Inc()
		return nil, models.NewError(models.ErrGatewayFailed, "payment was declined by the provider")

	case models.IntentSettled:
		paid, err := s.markPaid(ctx, p)
		if err != nil {
			if models.IsKind(err, models.ErrConflict) {
				log.Warn("settled intent arrived for a payment that is no longer pending", zap.Error(err))
			}
			return nil, err
		}
		log.Info("payment confirmed", zap.String("kind", string(p.Kind)))
		return s.confirmed(ctx, key, paid), nil
	}

	return nil, models.NewError(models.ErrGatewayFailed, "unknown intent status %q", status)
}

// confirmed builds the result of a paid payment. It is derived only from
// fields fixed at confirmation so repeats are identical.
func (s *PaymentService) confirmed(ctx context.Context, key string, p *models.Payment) *models.ConfirmResult {
	state := models.StateDepositPaid
	if p.Kind == models.PaymentKindFinal {
		state = models.StateFinalPaid
	}
	result := &models.ConfirmResult{
		PaymentID:  p.ID,
		IntentID:   p.GatewayIntentID,
		UserID:     p.UserID,
		Kind:       p.Kind,
		Status:     models.PaymentStatusPaid,
		OrderState: state,
	}
	if p.PaidAt != nil {
		result.PaidAt = p.PaidAt.UTC()
	}

	// only finished completions are cached so an interrupted one is retried
	if p.CompletionApplied {
		if err := s.cache.Put(ctx, key, result); err != nil {
			s.logger.Warn("confirmation cache write failed", zap.Error(err))
		}
	}
	return result
}

// RequestRefund refunds part of a paid deposit or final payment within the
// time-to-service policy
func (s *PaymentService) RequestRefund(ctx context.Context, req models.RefundRequest) (*models.RefundResult, error) {
	switch req.Reason {
	case models.RefundReasonCustomerCancel, models.RefundReasonServiceIssue, models.RefundReasonForceMajeure:
	default:
		return nil, models.NewError(models.ErrInvalid, "unknown refund reason %q", req.Reason)
	}
	if req.Amount < 0 {
		return nil, models.NewError(models.ErrInvalid, "refund amount cannot be negative")
	}

	isAdmin := req.ActorType == models.ActorAdmin
	original, err := s.loadPayment(ctx, req.PaymentID)
	if err != nil {
		return nil, err
	}
	if original.UserID != req.UserID && !isAdmin {
		return nil, models.NewError(models.ErrUnauthorized, "payment belongs to another user")
	}
	if original.Kind == models.PaymentKindRefund {
		return nil, models.NewError(models.ErrInvalid, "a refund cannot be refunded")
	}
	if original.Status != models.PaymentStatusPaid && original.Status != models.PaymentStatusRefunded {
		return nil, models.StateConflict("only paid payments can be refunded, payment is %s", original.Status)
	}

	order, err := s.loadOrder(ctx, original.OrderID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	untilService := order.ScheduledAt.Sub(now)
	fraction := RefundFraction(untilService)

	log := s.logger.With(
		zap.String("paymentId", original.ID),
		zap.String("orderId", original.OrderID),
		zap.String("actorId", req.UserID),
		zap.String("reason", string(req.Reason)))

	overridden := false
	if req.Override {
		if !isAdmin {
			return nil, models.NewError(models.ErrUnauthorized, "only an administrator can override the refund policy")
		}
		if req.Reason != models.RefundReasonForceMajeure {
			return nil, models.NewError(models.ErrInvalid, "policy override requires reason %s", models.RefundReasonForceMajeure)
		}
		overridden = true
		log.Warn("refund policy overridden",
			zap.String("policyFraction", fraction.String()),
			zap.Float64("hoursToService", untilService.Hours()),
			zap.String("note", req.Note))
		fraction = FullRefund
	}

	limit := RefundCap(original.Amount, fraction) - original.RefundedAmount
	if limit <= 0 {
		if fraction.IsZero() {
			return nil, models.StateConflict("no refund is available once the service has started")
		}
		return nil, models.StateConflict("nothing left to refund on this payment")
	}
	amount := req.Amount
	if amount == 0 {
		amount = limit
	}
	if amount > limit {
		return nil, models.StateConflict("refund of %d exceeds the allowed %d", amount, limit)
	}

	// A cancellation or a fully returned charge closes the payment. Partial
	// goodwill refunds keep it paid so the order can still move forward.
	status := original.Status
	if req.Reason == models.RefundReasonCustomerCancel || original.RefundedAmount+amount >= original.Amount {
		status = models.PaymentStatusRefunded
	}

	// reserve the amount on the original before calling the gateway
	reserved, err := s.payments.Transition(ctx, original.ID, original.Version, repositories.PaymentChange{
		Status:              statusPtr(status),
		RefundedAmountDelta: amount,
		UpdatedAt:           now,
	})
	if err != nil {
		if errors.Is(err, repositories.ErrVersionConflict) {
			return nil, models.NewError(models.ErrConflict, "payment changed during the refund, retry")
		}
		return nil, models.WrapError(models.ErrInternal, err, "failed to reserve refund")
	}

	refund := &models.Payment{
		ID:        uuid.NewString(),
		OrderID:   original.OrderID,
		UserID:    original.UserID,
		Kind:      models.PaymentKindRefund,
		Amount:    amount,
		Status:    models.PaymentStatusPending,
		Method:    original.Method,
		RefundOf:  original.ID,
		Reason:    string(req.Reason),
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if overridden {
		refund.OverrideReason = req.Note
		if refund.OverrideReason == "" {
			refund.OverrideReason = string(req.Reason)
		}
	}
	if err := s.payments.Create(ctx, refund); err != nil {
		s.rollbackRefund(ctx, reserved, original.Status, amount)
		return nil, models.WrapError(models.ErrInternal, err, "failed to record refund")
	}

	gatewayRefundID, err := s.gateway.IssueRefund(ctx, original.GatewayIntentID, amount)
	if err != nil {
		log.Error("gateway refund failed", zap.Int64("amount", amount), zap.Error(err))
		s.rollbackRefund(ctx, reserved, original.Status, amount)
		if _, tErr := s.payments.Transition(ctx, refund.ID, refund.Version, repositories.PaymentChange{
			Status:    statusPtr(models.PaymentStatusFailed),
			UpdatedAt: s.now(),
		}); tErr != nil {
			log.Error("failed to mark refund failed", zap.String("refundId", refund.ID), zap.Error(tErr))
		}
		monitoring.RefundsIssued.WithLabelValues("failed").Inc()
		return nil, models.WrapError(models.ErrGatewayFailed, err, "payment provider could not issue the refund")
	}

	if _, err := s.payments.Transition(ctx, refund.ID, refund.Version, repositories.PaymentChange{
		Status:          statusPtr(models.PaymentStatusRefunded),
		GatewayRefundID: &gatewayRefundID,
		UpdatedAt:       s.now(),
	}); err != nil {
		// the money moved; the row is reconciled from the gateway id in the logs
		log.Error("failed to record issued refund",
			zap.String("refundId", refund.ID),
			zap.String("gatewayRefundId", gatewayRefundID),
			zap.Error(err))
	}

	monitoring.RefundsIssued.WithLabelValues("issued").Inc()
	monitoring.RefundedCents.Add(float64(amount))
	log.Info("refund issued",
		zap.String("refundId", refund.ID),
		zap.Int64("amount", amount),
		zap.String("fraction", fraction.String()),
		zap.Bool("overridden", overridden))

	return &models.RefundResult{
		RefundID:        refund.ID,
		PaymentID:       original.ID,
		Amount:          amount,
		Fraction:        fraction.String(),
		GatewayRefundID: gatewayRefundID,
		TotalRefunded:   reserved.RefundedAmount,
		Overridden:      overridden,
		HoursToService:  untilService.Hours(),
	}, nil
}

// rollbackRefund returns a reserved refund amount to the original payment.
// The prior status comes back only when nothing else touched the row since.
func (s *PaymentService) rollbackRefund(ctx context.Context, reserved *models.Payment, prior models.PaymentStatus, amount int64) {
	current := reserved
	for attempt := 0; attempt < 5; attempt++ {
		status := current.Status
		if current.Version == reserved.Version {
			status = prior
		}
		_, err := s.payments.Transition(ctx, current.ID, current.Version, repositories.PaymentChange{
			Status:              statusPtr(status),
			RefundedAmountDelta: -amount,
			UpdatedAt:           s.now(),
		})
		if err == nil {
			return
		}
		if !errors.Is(err, repositories.ErrVersionConflict) {
			break
		}
		if current, err = s.payments.FindByID(ctx, reserved.ID); err != nil {
			break
		}
	}
	s.logger.Error("failed to roll back refund reservation",
		zap.String("paymentId", reserved.ID),
		zap.Int64("amount", amount))
}

// GetPayment returns a payment visible to userID
func (s *PaymentService) GetPayment(ctx context.Context, paymentID, userID string) (*models.Payment, error) {
	p, err := s.loadPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if p.UserID != userID {
		return nil, models.NewError(models.ErrUnauthorized, "payment belongs to another user")
	}
	return p, nil
}

// OrderState derives the payment state of an order owned by userID
func (s *PaymentService) OrderState(ctx context.Context, orderID, userID string) (*models.OrderPaymentView, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, models.NewError(models.ErrUnauthorized, "order belongs to another user")
	}

	payments, err := s.payments.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, models.WrapError(models.ErrInternal, err, "failed to load payments")
	}
	return &models.OrderPaymentView{
		OrderID:     order.ID,
		OrderStatus: order.Status,
		State:       models.DerivePaymentState(order, payments),
		Payments:    payments,
	}, nil
}

// ExpireStale expires pending payments older than the payment timeout,
// freeing their slot and credit. A confirmation that wins the version race
// keeps its payment.
func (s *PaymentService) ExpireStale(ctx context.Context, now time.Time) (int, error) {
	stale, err := s.payments.ListPendingBefore(ctx, now.Add(-s.timeout), expireBatchSize)
	if err != nil {
		return 0, models.WrapError(models.ErrInternal, err, "failed to list pending payments")
	}

	expired := 0
	for _, p := range stale {
		_, err := s.payments.Transition(ctx, p.ID, p.Version, repositories.PaymentChange{
			Status:    statusPtr(models.PaymentStatusExpired),
			ClearSlot: true,
			UpdatedAt: now,
		})
		if errors.Is(err, repositories.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return expired, models.WrapError(models.ErrInternal, err, "failed to expire payment")
		}
		s.releaseCredit(ctx, p)
		expired++
		s.logger.Info("payment expired",
			zap.String("paymentId", p.ID),
			zap.String("orderId", p.OrderID),
			zap.String("kind", string(p.Kind)))
	}

	if expired > 0 {
		monitoring.SweepTransitions.WithLabelValues("payment").Add(float64(expired))
	}
	return expired, nil
}

func (s *PaymentService) loadOrder(ctx context.Context, orderID string) (*models.Order, error) {
	order, err := s.orders.GetOrder(ctx, orderID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, models.NewError(models.ErrNotFound, "order %s not found", orderID)
	}
	if err != nil {
		return nil, models.WrapError(models.ErrInternal, err, "failed to load order")
	}
	return order, nil
}

func (s *PaymentService) loadPayment(ctx context.Context, paymentID string) (*models.Payment, error) {
	p, err := s.payments.FindByID(ctx, paymentID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, models.NewError(models.ErrNotFound, "payment %s not found", paymentID)
	}
	if err != nil {
		return nil, models.WrapError(models.ErrInternal, err, "failed to load payment")
	}
	return p, nil
}

// activePayment returns the payment of kind holding the order's slot
func activePayment(payments []*models.Payment, kind models.PaymentKind) *models.Payment {
	for _, p := range payments {
		if p.Kind == kind && p.Status.HoldsSlot() {
			return p
		}
	}
	return nil
}
