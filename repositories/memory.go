package repositories

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/lvanfai123/moving-service-sub001/models"
)

// In-memory stores used when no database is configured and by tests. Each
// store copies values on the way in and out so callers never share rows.

func clonePayment(p *models.Payment) *models.Payment {
	c := *p
	if p.PaidAt != nil {
		t := *p.PaidAt
		c.PaidAt = &t
	}
	return &c
}

func cloneEntry(e *models.CreditEntry) *models.CreditEntry {
	c := *e
	if e.UsedAt != nil {
		t := *e.UsedAt
		c.UsedAt = &t
	}
	return &c
}

func cloneRelationship(r *models.ReferralRelationship) *models.ReferralRelationship {
	c := *r
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

type MemoryPaymentRepository struct {
	mu       sync.RWMutex
	payments map[string]*models.Payment
}

func NewMemoryPaymentRepository() *MemoryPaymentRepository {
	return &MemoryPaymentRepository{payments: make(map[string]*models.Payment)}
}

func (r *MemoryPaymentRepository) Create(_ context.Context, p *models.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.payments[p.ID]; ok {
		return ErrDuplicate
	}
	if p.SlotKey != "" {
		for _, existing := range r.payments {
			if existing.SlotKey == p.SlotKey {
				return ErrDuplicate
			}
		}
	}
	r.payments[p.ID] = clonePayment(p)
	return nil
}

func (r *MemoryPaymentRepository) FindByID(_ context.Context, id string) (*models.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.payments[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clonePayment(p), nil
}

func (r *MemoryPaymentRepository) ListByOrder(_ context.Context, orderID string) ([]*models.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.Payment
	for _, p := range r.payments {
		if p.OrderID == orderID {
			out = append(out, clonePayment(p))
		}
	}
	sortPayments(out)
	return out, nil
}

func (r *MemoryPaymentRepository) Transition(_ context.Context, id string, expectedVersion int64, change PaymentChange) (*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.payments[id]
	if !ok {
		return nil, ErrNotFound
	}
	if p.Version != expectedVersion {
		return nil, ErrVersionConflict
	}
	change.Apply(p)
	return clonePayment(p), nil
}

func (r *MemoryPaymentRepository) ListPendingBefore(_ context.Context, cutoff time.Time, limit int) ([]*models.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.Payment
	for _, p := range r.payments {
		if p.Status != models.PaymentStatusPending || p.Kind == models.PaymentKindRefund {
			continue
		}
		if !p.CreatedAt.After(cutoff) {
			out = append(out, clonePayment(p))
		}
	}
	sortPayments(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryPaymentRepository) CountCompletedFinals(_ context.Context, userID string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var n int64
	for _, p := range r.payments {
		if p.UserID != userID || p.Kind != models.PaymentKindFinal {
			continue
		}
		if p.Status == models.PaymentStatusPaid || p.Status == models.PaymentStatusRefunded {
			n++
		}
	}
	return n, nil
}

func sortPayments(ps []*models.Payment) {
	sort.SliceStable(ps, func(i, j int) bool {
		if ps[i].CreatedAt.Equal(ps[j].CreatedAt) {
			return ps[i].ID < ps[j].ID
		}
		return ps[i].CreatedAt.Before(ps[j].CreatedAt)
	})
}

// MemoryOrderStore keeps orders in a map. SetOrderStatus calls are counted so
// callers can assert how often an order was touched.
type MemoryOrderStore struct {
	mu      sync.RWMutex
	orders  map[string]*models.Order
	updates map[string]int
}

func NewMemoryOrderStore() *MemoryOrderStore {
	return &MemoryOrderStore{
		orders:  make(map[string]*models.Order),
		updates: make(map[string]int),
	}
}

// Put stores or replaces an order
func (s *MemoryOrderStore) Put(o *models.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *o
	s.orders[o.ID] = &c
}

func (s *MemoryOrderStore) GetOrder(_ context.Context, orderID string) (*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[orderID]
	if !ok {
		return nil, ErrNotFound
	}
	c := *o
	return &c, nil
}

func (s *MemoryOrderStore) SetOrderStatus(_ context.Context, orderID string, status models.OrderStatus, actorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID]
	if !ok {
		return ErrNotFound
	}
	o.Status = status
	o.UpdatedBy = actorID
	o.UpdatedAt = time.Now()
	s.updates[orderID]++
	return nil
}

// StatusUpdates returns how many times SetOrderStatus succeeded for the order
func (s *MemoryOrderStore) StatusUpdates(orderID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updates[orderID]
}

type MemoryCreditRepository struct {
	mu       sync.Mutex
	entries  map[string]*models.CreditEntry
	versions map[string]int64
}

func NewMemoryCreditRepository() *MemoryCreditRepository {
	return &MemoryCreditRepository{
		entries:  make(map[string]*models.CreditEntry),
		versions: make(map[string]int64),
	}
}

func (r *MemoryCreditRepository) Insert(_ context.Context, e *models.CreditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[e.ID]; ok {
		return ErrDuplicate
	}
	if e.GrantKey != "" {
		for _, existing := range r.entries {
			if existing.GrantKey == e.GrantKey {
				return ErrDuplicate
			}
		}
	}
	r.entries[e.ID] = cloneEntry(e)
	r.versions[e.UserID]++
	return nil
}

func (r *MemoryCreditRepository) FindByGrantKey(_ context.Context, key string) (*models.CreditEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.entries {
		if key != "" && e.GrantKey == key {
			return cloneEntry(e), nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryCreditRepository) Snapshot(_ context.Context, userID string) ([]*models.CreditEntry, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*models.CreditEntry
	for _, e := range r.entries {
		if e.UserID == userID && e.Status == models.CreditStatusActive {
			out = append(out, cloneEntry(e))
		}
	}
	sortByExpiry(out)
	return out, r.versions[userID], nil
}

func (r *MemoryCreditRepository) Commit(_ context.Context, commit models.LedgerCommit) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.versions[commit.UserID] != commit.ExpectedVersion {
		return ErrVersionConflict
	}
	for _, u := range commit.Updates {
		e, ok := r.entries[u.EntryID]
		if !ok || e.UserID != commit.UserID {
			return ErrNotFound
		}
	}
	for _, u := range commit.Updates {
		e := r.entries[u.EntryID]
		e.Amount = u.Amount
		e.Status = u.Status
		if u.UsedAt != nil {
			t := *u.UsedAt
			e.UsedAt = &t
			e.UsedOrderID = u.UsedOrderID
			e.UsedPaymentID = u.UsedPaymentID
		} else {
			e.UsedAt = nil
			e.UsedOrderID = ""
			e.UsedPaymentID = ""
		}
	}
	for _, e := range commit.Inserts {
		r.entries[e.ID] = cloneEntry(e)
	}
	r.versions[commit.UserID]++
	return nil
}

func (r *MemoryCreditRepository) ListByUser(_ context.Context, userID string) ([]*models.CreditEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*models.CreditEntry
	for _, e := range r.entries {
		if e.UserID == userID {
			out = append(out, cloneEntry(e))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r *MemoryCreditRepository) ListUsed(_ context.Context, userID, orderID, paymentID string) ([]*models.CreditEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*models.CreditEntry
	for _, e := range r.entries {
		if e.UserID != userID || e.UsedOrderID != orderID || e.Status != models.CreditStatusUsed {
			continue
		}
		if paymentID == "" || e.UsedPaymentID == paymentID {
			out = append(out, cloneEntry(e))
		}
	}
	sortByExpiry(out)
	return out, nil
}

func (r *MemoryCreditRepository) UsersWithExpiring(_ context.Context, now time.Time, limit int) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]bool)
	var users []string
	for _, e := range r.entries {
		if e.Status != models.CreditStatusActive || e.ExpiresAt.After(now) || seen[e.UserID] {
			continue
		}
		seen[e.UserID] = true
		users = append(users, e.UserID)
	}
	sort.Strings(users)
	if limit > 0 && len(users) > limit {
		users = users[:limit]
	}
	return users, nil
}

func sortByExpiry(es []*models.CreditEntry) {
	sort.SliceStable(es, func(i, j int) bool {
		if !es[i].ExpiresAt.Equal(es[j].ExpiresAt) {
			return es[i].ExpiresAt.Before(es[j].ExpiresAt)
		}
		if !es[i].CreatedAt.Equal(es[j].CreatedAt) {
			return es[i].CreatedAt.Before(es[j].CreatedAt)
		}
		return es[i].ID < es[j].ID
	})
}

type MemoryReferralRepository struct {
	mu            sync.Mutex
	codes         map[string]*models.ReferralCode
	relationships map[string]*models.ReferralRelationship
}

func NewMemoryReferralRepository() *MemoryReferralRepository {
	return &MemoryReferralRepository{
		codes:         make(map[string]*models.ReferralCode),
		relationships: make(map[string]*models.ReferralRelationship),
	}
}

func (r *MemoryReferralRepository) InsertCode(_ context.Context, c *models.ReferralCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.codes {
		if existing.Code == c.Code || existing.ID == c.ID {
			return ErrDuplicate
		}
		if c.IsActive && existing.IsActive && existing.UserID == c.UserID {
			return ErrDuplicate
		}
	}
	cc := *c
	r.codes[c.ID] = &cc
	return nil
}

func (r *MemoryReferralRepository) FindCodeByUser(_ context.Context, userID string) (*models.ReferralCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range r.codes {
		if c.UserID == userID && c.IsActive {
			cc := *c
			return &cc, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryReferralRepository) FindCode(_ context.Context, code string) (*models.ReferralCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range r.codes {
		if c.Code == code {
			cc := *c
			return &cc, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryReferralRepository) InsertRelationship(_ context.Context, rel *models.ReferralRelationship) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.relationships {
		if existing.RefereeID == rel.RefereeID || existing.ID == rel.ID {
			return ErrDuplicate
		}
	}
	r.relationships[rel.ID] = cloneRelationship(rel)
	return nil
}

func (r *MemoryReferralRepository) FindRelationshipByReferee(_ context.Context, refereeID string) (*models.ReferralRelationship, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, rel := range r.relationships {
		if rel.RefereeID == refereeID {
			return cloneRelationship(rel), nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryReferralRepository) ListRelationshipsByReferrer(_ context.Context, referrerID string) ([]*models.ReferralRelationship, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*models.ReferralRelationship
	for _, rel := range r.relationships {
		if rel.ReferrerID == referrerID {
			out = append(out, cloneRelationship(rel))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryReferralRepository) CompleteRelationship(_ context.Context, id, orderID string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rel, ok := r.relationships[id]
	if !ok {
		return false, ErrNotFound
	}
	if rel.Status != models.ReferralStatusPending || rel.RewardGranted {
		return false, nil
	}
	t := at
	rel.Status = models.ReferralStatusCompleted
	rel.RewardGranted = true
	rel.FirstOrderID = orderID
	rel.CompletedAt = &t
	rel.UpdatedAt = at
	return true, nil
}

func (r *MemoryReferralRepository) ExpirePendingBefore(_ context.Context, cutoff, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for _, rel := range r.relationships {
		if rel.Status == models.ReferralStatusPending && !rel.RewardGranted && !rel.CreatedAt.After(cutoff) {
			rel.Status = models.ReferralStatusExpired
			rel.UpdatedAt = now
			n++
		}
	}
	return n, nil
}
