package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/lvanfai123/moving-service-sub001/models"
)

// IntentRequest describes a charge to open with the payment gateway
type IntentRequest struct {
	Amount    int64 // cents
	Method    string
	PaymentID string
	OrderID   string
}

// Gateway is the third-party payment provider used by the payment service
type Gateway interface {
	CreateIntent(ctx context.Context, req IntentRequest) (*models.GatewayIntent, error)
	GetIntentStatus(ctx context.Context, intentID string) (models.IntentStatus, error)
	IssueRefund(ctx context.Context, intentID string, amount int64) (string, error)
}

// LocalGateway is an in-process gateway for development and tests. Intents
// start in the configured status and can be moved with Settle or Fail.
type LocalGateway struct {
	mu       sync.Mutex
	statuses map[string]models.IntentStatus
	amounts  map[string]int64
	refunded map[string]int64

	// InitialStatus is assigned to new intents; empty means pending
	InitialStatus models.IntentStatus
	// CreateErr and RefundErr force the next calls to fail
	CreateErr error
	RefundErr error
}

func NewLocalGateway() *LocalGateway {
	return &LocalGateway{
		statuses: make(map[string]models.IntentStatus),
		amounts:  make(map[string]int64),
		refunded: make(map[string]int64),
	}
}

func (g *LocalGateway) CreateIntent(_ context.Context, req IntentRequest) (*models.GatewayIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.CreateErr != nil {
		return nil, g.CreateErr
	}
	status := g.InitialStatus
	if status == "" {
		status = models.IntentPending
	}

	id := "pi_" + uuid.NewString()
	g.statuses[id] = status
	g.amounts[id] = req.Amount
	return &models.GatewayIntent{IntentID: id, ClientSecret: id + "_secret"}, nil
}

func (g *LocalGateway) GetIntentStatus(_ context.Context, intentID string) (models.IntentStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	status, ok := g.statuses[intentID]
	if !ok {
		return "", fmt.Errorf("unknown intent %s", intentID)
	}
	return status, nil
}

func (g *LocalGateway) IssueRefund(_ context.Context, intentID string, amount int64) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.RefundErr != nil {
		return "", g.RefundErr
	}
	if g.statuses[intentID] != models.IntentSettled {
		return "", fmt.Errorf("intent %s is not settled", intentID)
	}
	if g.refunded[intentID]+amount > g.amounts[intentID] {
		return "", fmt.Errorf("refund exceeds captured amount of intent %s", intentID)
	}
	g.refunded[intentID] += amount
	return "re_" + uuid.NewString(), nil
}

// Settle marks an intent as paid
func (g *LocalGateway) Settle(intentID string) {
	g.setStatus(intentID, models.IntentSettled)
}

// Fail marks an intent as declined
func (g *LocalGateway) Fail(intentID string) {
	g.setStatus(intentID, models.IntentFailed)
}

// Refunded returns the total refunded against an intent
func (g *LocalGateway) Refunded(intentID string) int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.refunded[intentID]
}

func (g *LocalGateway) setStatus(intentID string, status models.IntentStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.statuses[intentID]; ok {
		g.statuses[intentID] = status
	}
}
