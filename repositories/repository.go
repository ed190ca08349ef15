package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/lvanfai123/moving-service-sub001/models"
)

var (
	ErrNotFound        = errors.New("document not found")
	ErrDuplicate       = errors.New("duplicate key")
	ErrVersionConflict = errors.New("version conflict")
)

// PaymentChange is a partial update applied to a payment by a versioned transition
type PaymentChange struct {
	Status              *models.PaymentStatus
	GatewayIntentID     *string
	ClientSecret        *string
	GatewayRefundID     *string
	RefundedAmountDelta int64
	CompletionApplied   *bool
	PaidAt              *time.Time
	ClearSlot           bool
	UpdatedAt           time.Time
}

// Apply mutates p in place; stores use it to keep memory and mongo semantics aligned
func (c PaymentChange) Apply(p *models.Payment) {
	if c.Status != nil {
		p.Status = *c.Status
	}
	if c.GatewayIntentID != nil {
		p.GatewayIntentID = *c.GatewayIntentID
	}
	if c.ClientSecret != nil {
		p.ClientSecret = *c.ClientSecret
	}
	if c.GatewayRefundID != nil {
		p.GatewayRefundID = *c.GatewayRefundID
	}
	if c.CompletionApplied != nil {
		p.CompletionApplied = *c.CompletionApplied
	}
	if c.PaidAt != nil {
		t := *c.PaidAt
		p.PaidAt = &t
	}
	if c.ClearSlot {
		p.SlotKey = ""
	}
	p.RefundedAmount += c.RefundedAmountDelta
	p.UpdatedAt = c.UpdatedAt
	p.Version++
}

// PaymentRepository persists payments. Transition is the only mutation after
// creation and succeeds only when the stored version equals expectedVersion.
type PaymentRepository interface {
	Create(ctx context.Context, p *models.Payment) error
	FindByID(ctx context.Context, id string) (*models.Payment, error)
	ListByOrder(ctx context.Context, orderID string) ([]*models.Payment, error)
	Transition(ctx context.Context, id string, expectedVersion int64, change PaymentChange) (*models.Payment, error)
	ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]*models.Payment, error)
	CountCompletedFinals(ctx context.Context, userID string) (int64, error)
}

// OrderStore is the order record collaborator
type OrderStore interface {
	GetOrder(ctx context.Context, orderID string) (*models.Order, error)
	SetOrderStatus(ctx context.Context, orderID string, status models.OrderStatus, actorID string) error
}

// CreditRepository persists ledger lines and the per-user account version
type CreditRepository interface {
	// Insert stores a new entry and bumps the owner's account version.
	// ErrDuplicate is returned when the grant key already exists.
	Insert(ctx context.Context, e *models.CreditEntry) error
	FindByGrantKey(ctx context.Context, key string) (*models.CreditEntry, error)
	// Snapshot returns the user's active entries and the account version they were read at.
	Snapshot(ctx context.Context, userID string) ([]*models.CreditEntry, int64, error)
	// Commit applies all row changes at once, or returns ErrVersionConflict.
	Commit(ctx context.Context, commit models.LedgerCommit) error
	ListByUser(ctx context.Context, userID string) ([]*models.CreditEntry, error)
	// ListUsed returns used entries of an order; a non-empty paymentID narrows it to one payment.
	ListUsed(ctx context.Context, userID, orderID, paymentID string) ([]*models.CreditEntry, error)
	UsersWithExpiring(ctx context.Context, now time.Time, limit int) ([]string, error)
}

// ReferralRepository persists referral codes and relationships
type ReferralRepository interface {
	InsertCode(ctx context.Context, c *models.ReferralCode) error
	FindCodeByUser(ctx context.Context, userID string) (*models.ReferralCode, error)
	FindCode(ctx context.Context, code string) (*models.ReferralCode, error)
	InsertRelationship(ctx context.Context, r *models.ReferralRelationship) error
	FindRelationshipByReferee(ctx context.Context, refereeID string) (*models.ReferralRelationship, error)
	ListRelationshipsByReferrer(ctx context.Context, referrerID string) ([]*models.ReferralRelationship, error)
	// CompleteRelationship flips a pending, unrewarded relationship to completed.
	// It reports false when another caller already completed it.
	CompleteRelationship(ctx context.Context, id, orderID string, at time.Time) (bool, error)
	ExpirePendingBefore(ctx context.Context, cutoff, now time.Time) (int64, error)
}
