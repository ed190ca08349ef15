package models

import "time"

// ReferralCode is the invite code owned by a user. Each user has at most one active code.
type ReferralCode struct {
	ID        string    `json:"id" bson:"_id"`
	UserID    string    `json:"userId" bson:"userId"`
	Code      string    `json:"code" bson:"code"`
	IsActive  bool      `json:"isActive" bson:"isActive"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}

// ReferralStatus is the lifecycle status of a referral relationship
type ReferralStatus string

const (
	ReferralStatusPending   ReferralStatus = "pending"
	ReferralStatusCompleted ReferralStatus = "completed"
	ReferralStatusExpired   ReferralStatus = "expired"
)

// ReferralRelationship links a referrer to a referee. A user can only be referred once.
type ReferralRelationship struct {
	ID            string         `json:"id" bson:"_id"`
	ReferrerID    string         `json:"referrerId" bson:"referrerId"`
	RefereeID     string         `json:"refereeId" bson:"refereeId"`
	ReferralCode  string         `json:"referralCode" bson:"referralCode"`
	Status        ReferralStatus `json:"status" bson:"status"`
	RewardGranted bool           `json:"rewardGranted" bson:"rewardGranted"`
	FirstOrderID  string         `json:"firstOrderId,omitempty" bson:"firstOrderId,omitempty"`
	CreatedAt     time.Time      `json:"createdAt" bson:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt" bson:"updatedAt"`
	CompletedAt   *time.Time     `json:"completedAt,omitempty" bson:"completedAt,omitempty"`
}

// ReferralRequest is the body used to apply a referral code
type ReferralRequest struct {
	ReferralCode string `json:"referralCode" validate:"required,min=4,max=20"`
}

// CodeValidation is the result of a referral code lookup
type CodeValidation struct {
	Code       string `json:"code"`
	Valid      bool   `json:"valid"`
	ReferrerID string `json:"referrerId,omitempty"`
}

// RewardOutcome reports what a first-order reward call did
type RewardOutcome struct {
	Granted        bool   `json:"granted"`
	RelationshipID string `json:"relationshipId,omitempty"`
	ReferrerID     string `json:"referrerId,omitempty"`
	Amount         int64  `json:"amount,omitempty"`
	Reason         string `json:"reason,omitempty"`
}

// ReferralSummary is the referral data shown to a user
type ReferralSummary struct {
	ReferralCode      string `json:"referralCode"`
	ReferralLink      string `json:"referralLink"`
	QRCode            string `json:"qrCode,omitempty"`
	ReferralCount     int    `json:"referralCount"`
	CompletedCount    int    `json:"completedCount"`
	AvailableCredit   int64  `json:"availableCredit"`
	ReferredBy        string `json:"referredBy,omitempty"`
	RelationshipState string `json:"relationshipState,omitempty"`
}
