package models

import "time"

// CreditType records which side of a referral a credit was granted to
type CreditType string

const (
	CreditTypeReferrer CreditType = "referrer"
	CreditTypeReferee  CreditType = "referee"
)

// CreditStatus is the status of a ledger line
type CreditStatus string

const (
	CreditStatusActive  CreditStatus = "active"
	CreditStatusUsed    CreditStatus = "used"
	CreditStatusExpired CreditStatus = "expired"
)

// CreditEntry is a single grant of spendable referral credit
type CreditEntry struct {
	ID            string       `json:"id" bson:"_id"`
	UserID        string       `json:"userId" bson:"userId"`
	Amount        int64        `json:"amount" bson:"amount"`
	Type          CreditType   `json:"type" bson:"type"`
	ReferralID    string       `json:"referralId,omitempty" bson:"referralId,omitempty"`
	Status        CreditStatus `json:"status" bson:"status"`
	GrantKey      string       `json:"-" bson:"grantKey,omitempty"`
	CreatedAt     time.Time    `json:"createdAt" bson:"createdAt"`
	ExpiresAt     time.Time    `json:"expiresAt" bson:"expiresAt"`
	UsedAt        *time.Time   `json:"usedAt,omitempty" bson:"usedAt,omitempty"`
	UsedOrderID   string       `json:"usedOrderId,omitempty" bson:"usedOrderId,omitempty"`
	UsedPaymentID string       `json:"usedPaymentId,omitempty" bson:"usedPaymentId,omitempty"`
}

// Spendable reports whether the entry counts towards the balance at now
func (e *CreditEntry) Spendable(now time.Time) bool {
	return e.Status == CreditStatusActive && e.ExpiresAt.After(now)
}

// CreditAccount carries the per-user version that guards ledger commits
type CreditAccount struct {
	UserID    string    `json:"userId" bson:"_id"`
	Version   int64     `json:"version" bson:"version"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}

// GrantRequest is the input of a ledger grant
type GrantRequest struct {
	UserID     string
	Amount     int64
	Type       CreditType
	ReferralID string
	TTL        time.Duration // zero means the configured default expiry
}

// GrantKeyFor builds the idempotency key of a referral grant
func GrantKeyFor(referralID string, t CreditType) string {
	if referralID == "" {
		return ""
	}
	return referralID + ":" + string(t)
}

// EntryUpdate is one row change of a ledger commit
type EntryUpdate struct {
	EntryID       string
	Amount        int64
	Status        CreditStatus
	UsedAt        *time.Time // nil clears the usage fields
	UsedOrderID   string
	UsedPaymentID string
}

// LedgerCommit is the set of row changes applied atomically when the account
// version still equals ExpectedVersion
type LedgerCommit struct {
	UserID          string
	ExpectedVersion int64
	Updates         []EntryUpdate
	Inserts         []*CreditEntry
}

// DebitResult describes the entries consumed by a debit
type DebitResult struct {
	UserID    string   `json:"userId"`
	OrderID   string   `json:"orderId"`
	PaymentID string   `json:"paymentId,omitempty"`
	Amount    int64    `json:"amount"`
	EntryIDs  []string `json:"entryIds"`
	Remaining int64    `json:"remaining"`
}

// BalanceResponse is returned by the balance endpoint
type BalanceResponse struct {
	UserID    string `json:"userId"`
	Available int64  `json:"available"`
	Currency  string `json:"currency"`
}
