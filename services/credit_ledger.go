package services

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lvanfai123/moving-service-sub001/config"
	"github.com/lvanfai123/moving-service-sub001/models"
	"github.com/lvanfai123/moving-service-sub001/monitoring"
	"github.com/lvanfai123/moving-service-sub001/repositories"
)

const (
	sweepBatchSize = 500
	backoffBase    = time.Millisecond
	backoffCap     = 50 * time.Millisecond
)

// CreditLedger owns every mutation of a user's referral credit. Mutations
// read the user's active entries with the account version and commit only if
// that version has not moved.
type CreditLedger struct {
	repo         repositories.CreditRepository
	expiryMonths int
	maxAttempts  int
	logger       *zap.Logger
	now          func() time.Time
}

func NewCreditLedger(repo repositories.CreditRepository, cfg *config.Config, logger *zap.Logger) *CreditLedger {
	months := cfg.CreditExpiryMonths
	if months <= 0 {
		months = 12
	}
	attempts := cfg.DebitMaxAttempts
	if attempts <= 0 {
		attempts = 64
	}
	return &CreditLedger{
		repo:         repo,
		expiryMonths: months,
		maxAttempts:  attempts,
		logger:       logger.Named("ledger"),
		now:          time.Now,
	}
}

// ledgerPlan computes the row changes of one mutation from the active entries
type ledgerPlan func(ctx context.Context, active []*models.CreditEntry, now time.Time) ([]models.EntryUpdate, []*models.CreditEntry, error)

// mutate runs plan under compare-and-commit, retrying on version conflicts
// with capped exponential backoff
func (l *CreditLedger) mutate(ctx context.Context, userID string, plan ledgerPlan) error {
	for attempt := 0; attempt < l.maxAttempts; attempt++ {
		active, version, err := l.repo.Snapshot(ctx, userID)
		if err != nil {
			return models.WrapError(models.ErrInternal, err, "failed to read credit entries")
		}

		updates, inserts, err := plan(ctx, active, l.now())
		if err != nil {
			return err
		}
		if len(updates) == 0 && len(inserts) == 0 {
			return nil
		}

		err = l.repo.Commit(ctx, models.LedgerCommit{
			UserID:          userID,
			ExpectedVersion: version,
			Updates:         updates,
			Inserts:         inserts,
		})
		if err == nil {
			return nil
		}
		if !errors.Is(err, repositories.ErrVersionConflict) {
			return models.WrapError(models.ErrInternal, err, "failed to commit credit entries")
		}

		monitoring.CreditDebitConflicts.Inc()
		if err := sleepBackoff(ctx, attempt); err != nil {
			return models.WrapError(models.ErrInternal, err, "credit update cancelled")
		}
	}

	l.logger.Warn("ledger commit retries exhausted", zap.String("userId", userID), zap.Int("attempts", l.maxAttempts))
	return models.NewError(models.ErrConflict, "credit balance is busy, try again")
}

func sleepBackoff(ctx context.Context, attempt int) error {
	d := backoffBase << uint(attempt)
	if d <= 0 || d > backoffCap {
		d = backoffCap
	}
	d = d/2 + time.Duration(rand.Int63n(int64(d/2)+1))

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// expiredUpdates marks active entries that are past expiry
func expiredUpdates(active []*models.CreditEntry, now time.Time) []models.EntryUpdate {
	var updates []models.EntryUpdate
	for _, e := range active {
		if !e.ExpiresAt.After(now) {
			updates = append(updates, models.EntryUpdate{EntryID: e.ID, Amount: e.Amount, Status: models.CreditStatusExpired})
		}
	}
	return updates
}

// Grant adds an active entry. Grants carrying a referral id land at most once
// per referral and side; a repeated grant returns the stored entry.
func (l *CreditLedger) Grant(ctx context.Context, req models.GrantRequest) (*models.CreditEntry, error) {
	if req.UserID == "" {
		return nil, models.NewError(models.ErrInvalid, "user id is required")
	}
	if req.Amount <= 0 {
		return nil, models.NewError(models.ErrInvalid, "grant amount must be positive")
	}

	key := models.GrantKeyFor(req.ReferralID, req.Type)
	if key != "" {
		existing, err := l.repo.FindByGrantKey(ctx, key)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, repositories.ErrNotFound) {
			return nil, models.WrapError(models.ErrInternal, err, "failed to look up grant")
		}
	}

	now := l.now()
	expiresAt := now.AddDate(0, l.expiryMonths, 0)
	if req.TTL > 0 {
		expiresAt = now.Add(req.TTL)
	}

	entry := &models.CreditEntry{
		ID:         uuid.NewString(),
		UserID:     req.UserID,
		Amount:     req.Amount,
		Type:       req.Type,
		ReferralID: req.ReferralID,
		Status:     models.CreditStatusActive,
		GrantKey:   key,
		CreatedAt:  now,
		ExpiresAt:  expiresAt,
	}

	if err := l.repo.Insert(ctx, entry); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) && key != "" {
			existing, findErr := l.repo.FindByGrantKey(ctx, key)
			if findErr == nil {
				return existing, nil
			}
		}
		return nil, models.WrapError(models.ErrInternal, err, "failed to store credit grant")
	}

	monitoring.CreditGrantedCents.WithLabelValues(string(req.Type)).Add(float64(req.Amount))
	l.logger.Info("credit granted",
		zap.String("userId", req.UserID),
		zap.Int64("amount", req.Amount),
		zap.String("type", string(req.Type)),
		zap.String("referralId", req.ReferralID),
		zap.Time("expiresAt", expiresAt))
	return entry, nil
}

// AvailableBalance sums active entries that have not expired. Entries found
// past expiry are marked expired on a best-effort basis.
func (l *CreditLedger) AvailableBalance(ctx context.Context, userID string) (int64, error) {
	active, version, err := l.repo.Snapshot(ctx, userID)
	if err != nil {
		return 0, models.WrapError(models.ErrInternal, err, "failed to read credit entries")
	}

	now := l.now()
	var balance int64
	for _, e := range active {
		if e.Spendable(now) {
			balance += e.Amount
		}
	}

	if updates := expiredUpdates(active, now); len(updates) > 0 {
		err := l.repo.Commit(ctx, models.LedgerCommit{UserID: userID, ExpectedVersion: version, Updates: updates})
		if err != nil && !errors.Is(err, repositories.ErrVersionConflict) {
			l.logger.Warn("failed to mark expired credit", zap.String("userId", userID), zap.Error(err))
		}
	}
	return balance, nil
}

// Debit consumes amount from the user's credit, oldest expiry first. The last
// entry touched is split into a used part and an active remainder. Either the
// whole amount is debited or nothing is.
func (l *CreditLedger) Debit(ctx context.Context, userID string, amount int64, orderID string) (*models.DebitResult, error) {
	return l.DebitPayment(ctx, userID, amount, orderID, "")
}

// DebitPayment is Debit with the used entries also tagged with the payment
// they paid for, so the payment can later release exactly its own credit.
func (l *CreditLedger) DebitPayment(ctx context.Context, userID string, amount int64, orderID, paymentID string) (*models.DebitResult, error) {
	if amount <= 0 {
		return nil, models.NewError(models.ErrInvalid, "debit amount must be positive")
	}

	result := &models.DebitResult{UserID: userID, OrderID: orderID, PaymentID: paymentID, Amount: amount}
	err := l.mutate(ctx, userID, func(_ context.Context, active []*models.CreditEntry, now time.Time) ([]models.EntryUpdate, []*models.CreditEntry, error) {
		spendable := make([]*models.CreditEntry, 0, len(active))
		var available int64
		for _, e := range active {
			if e.Spendable(now) {
				spendable = append(spendable, e)
				available += e.Amount
			}
		}
		if available < amount {
			return nil, nil, models.NewError(models.ErrInsufficientCredit,
				"requested %d but only %d credit is available", amount, available)
		}

		sort.SliceStable(spendable, func(i, j int) bool {
			return spendable[i].ExpiresAt.Before(spendable[j].ExpiresAt)
		})

		updates := expiredUpdates(active, now)
		var inserts []*models.CreditEntry
		entryIDs := make([]string, 0, len(spendable))
		usedAt := now
		remaining := amount

		for _, e := range spendable {
			if remaining == 0 {
				break
			}
			take := e.Amount
			if take > remaining {
				take = remaining
			}
			updates = append(updates, models.EntryUpdate{
				EntryID:       e.ID,
				Amount:        take,
				Status:        models.CreditStatusUsed,
				UsedAt:        &usedAt,
				UsedOrderID:   orderID,
				UsedPaymentID: paymentID,
			})
			entryIDs = append(entryIDs, e.ID)

			if rest := e.Amount - take; rest > 0 {
				inserts = append(inserts, &models.CreditEntry{
					ID:         uuid.NewString(),
					UserID:     e.UserID,
					Amount:     rest,
					Type:       e.Type,
					ReferralID: e.ReferralID,
					Status:     models.CreditStatusActive,
					CreatedAt:  e.CreatedAt,
					ExpiresAt:  e.ExpiresAt,
				})
			}
			remaining -= take
		}

		result.EntryIDs = entryIDs
		result.Remaining = available - amount
		return updates, inserts, nil
	})
	if err != nil {
		if models.IsKind(err, models.ErrInsufficientCredit) {
			monitoring.CreditDebits.WithLabelValues("insufficient").Inc()
		} else {
			monitoring.CreditDebits.WithLabelValues("error").Inc()
		}
		return nil, err
	}

	monitoring.CreditDebits.WithLabelValues("ok").Inc()
	l.logger.Info("credit debited",
		zap.String("userId", userID),
		zap.String("orderId", orderID),
		zap.Int64("amount", amount),
		zap.Int64("remaining", result.Remaining))
	return result, nil
}

// Release returns the credit used for an order to the user; a non-empty
// paymentID limits it to what that payment consumed. Entries whose expiry
// passed in the meantime come back as expired.
func (l *CreditLedger) Release(ctx context.Context, userID, orderID, paymentID string) (int64, error) {
	var released int64
	err := l.mutate(ctx, userID, func(ctx context.Context, _ []*models.CreditEntry, now time.Time) ([]models.EntryUpdate, []*models.CreditEntry, error) {
		used, err := l.repo.ListUsed(ctx, userID, orderID, paymentID)
		if err != nil {
			return nil, nil, models.WrapError(models.ErrInternal, err, "failed to read used credit")
		}

		released = 0
		updates := make([]models.EntryUpdate, 0, len(used))
		for _, e := range used {
			status := models.CreditStatusActive
			if !e.ExpiresAt.After(now) {
				status = models.CreditStatusExpired
			} else {
				released += e.Amount
			}
			updates = append(updates, models.EntryUpdate{EntryID: e.ID, Amount: e.Amount, Status: status})
		}
		return updates, nil, nil
	})
	if err != nil {
		return 0, err
	}

	if released > 0 {
		l.logger.Info("credit released",
			zap.String("userId", userID),
			zap.String("orderId", orderID),
			zap.String("paymentId", paymentID),
			zap.Int64("amount", released))
	}
	return released, nil
}

// ExpireSweep marks every active entry with expiresAt <= now as expired.
// Running it again with the same now changes nothing.
func (l *CreditLedger) ExpireSweep(ctx context.Context, now time.Time) (int, error) {
	total := 0
	for {
		users, err := l.repo.UsersWithExpiring(ctx, now, sweepBatchSize)
		if err != nil {
			return total, models.WrapError(models.ErrInternal, err, "failed to list expiring credit")
		}

		for _, userID := range users {
			n := 0
			err := l.mutate(ctx, userID, func(_ context.Context, active []*models.CreditEntry, _ time.Time) ([]models.EntryUpdate, []*models.CreditEntry, error) {
				updates := expiredUpdates(active, now)
				n = len(updates)
				return updates, nil, nil
			})
			if err != nil {
				return total, err
			}
			total += n
		}

		if len(users) < sweepBatchSize {
			break
		}
	}

	if total > 0 {
		monitoring.SweepTransitions.WithLabelValues("credit").Add(float64(total))
		l.logger.Info("expired credit entries", zap.Int("count", total))
	}
	return total, nil
}

// Entries lists all ledger lines of a user, newest first
func (l *CreditLedger) Entries(ctx context.Context, userID string) ([]*models.CreditEntry, error) {
	entries, err := l.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, models.WrapError(models.ErrInternal, err, "failed to list credit entries")
	}
	return entries, nil
}
