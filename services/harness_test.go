package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lvanfai123/moving-service-sub001/config"
	"github.com/lvanfai123/moving-service-sub001/models"
	"github.com/lvanfai123/moving-service-sub001/repositories"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testConfig() *config.Config {
	return &config.Config{
		Currency:             "USD",
		ReferralRewardAmount: 10000,
		CreditExpiryMonths:   12,
		PaymentTimeout:       30 * time.Minute,
		ReferralWindow:       365 * 24 * time.Hour,
		CodeMaxAttempts:      5,
		DebitMaxAttempts:     64,
		IdempotencyTTL:       time.Hour,
		SweepInterval:        time.Minute,
		ReferralLinkBase:     "https://moving.test/referral?code=",
	}
}

// harness wires the services over the in-memory stores with a shared clock
type harness struct {
	clock        *testClock
	payments     *repositories.MemoryPaymentRepository
	orders       *repositories.MemoryOrderStore
	credits      *repositories.MemoryCreditRepository
	referralRepo *repositories.MemoryReferralRepository
	gateway      *LocalGateway
	cache        *MemoryIdempotencyStore

	ledger    *CreditLedger
	referrals *ReferralService
	svc       *PaymentService
	sweeper   *Sweeper
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	cfg := testConfig()
	logger := zap.NewNop()
	h := &harness{
		clock:        newTestClock(),
		payments:     repositories.NewMemoryPaymentRepository(),
		orders:       repositories.NewMemoryOrderStore(),
		credits:      repositories.NewMemoryCreditRepository(),
		referralRepo: repositories.NewMemoryReferralRepository(),
		gateway:      NewLocalGateway(),
		cache:        NewMemoryIdempotencyStore(cfg.IdempotencyTTL),
	}

	h.ledger = NewCreditLedger(h.credits, cfg, logger)
	h.ledger.now = h.clock.Now
	h.referrals = NewReferralService(h.referralRepo, h.payments, h.ledger, cfg, logger)
	h.referrals.now = h.clock.Now
	h.svc = NewPaymentService(h.payments, h.orders, h.gateway, h.ledger, h.referrals, h.cache, cfg, logger)
	h.svc.now = h.clock.Now
	h.sweeper = NewSweeper(h.svc, h.ledger, h.referrals, time.Minute, logger)
	return h
}

// newOrder stores a confirmed order of total cents, deposit cents, starting in untilService
func (h *harness) newOrder(userID string, total, deposit int64, untilService time.Duration) *models.Order {
	now := h.clock.Now()
	order := &models.Order{
		ID:            uuid.NewString(),
		UserID:        userID,
		Status:        models.OrderStatusConfirmed,
		TotalAmount:   total,
		DepositAmount: deposit,
		ScheduledAt:   now.Add(untilService),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	h.orders.Put(order)
	return order
}

// payDeposit starts and settles the deposit of order with no credit
func (h *harness) payDeposit(t *testing.T, order *models.Order) *models.ConfirmResult {
	t.Helper()
	return h.pay(t, order, h.svc.StartDeposit, 0)
}

func (h *harness) payFinal(t *testing.T, order *models.Order) *models.ConfirmResult {
	t.Helper()
	return h.pay(t, order, h.svc.StartFinal, 0)
}

func (h *harness) pay(t *testing.T, order *models.Order, start func(context.Context, models.StartPaymentRequest) (*models.PaymentIntentResult, error), credit int64) *models.ConfirmResult {
	t.Helper()
	ctx := context.Background()

	intent, err := start(ctx, models.StartPaymentRequest{
		OrderID:       order.ID,
		UserID:        order.UserID,
		Method:        "card",
		CreditToApply: credit,
	})
	require.NoError(t, err)
	require.NotEmpty(t, intent.IntentID)

	h.gateway.Settle(intent.IntentID)
	result, err := h.svc.ConfirmCompletion(ctx, intent.PaymentID, intent.IntentID, order.UserID)
	require.NoError(t, err)
	return result
}

func (h *harness) balance(t *testing.T, userID string) int64 {
	t.Helper()
	balance, err := h.ledger.AvailableBalance(context.Background(), userID)
	require.NoError(t, err)
	return balance
}

func requireKind(t *testing.T, err error, kind models.ErrorKind) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, models.KindOf(err), "unexpected error: %v", err)
}
