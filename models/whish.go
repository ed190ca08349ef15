package models

// WhishRequest represents the standard request structure for Whish API
type WhishRequest struct {
	Amount             *float64 `json:"amount,omitempty"`
	Currency           string   `json:"currency,omitempty"`
	Invoice            string   `json:"invoice,omitempty"`
	ExternalID         *int64   `json:"externalId,omitempty"`
	SuccessCallbackURL string   `json:"successCallbackUrl,omitempty"`
	FailureCallbackURL string   `json:"failureCallbackUrl,omitempty"`
	SuccessRedirectURL string   `json:"successRedirectUrl,omitempty"`
	FailureRedirectURL string   `json:"failureRedirectUrl,omitempty"`
}

// WhishResponse represents the standard response structure from Whish API
type WhishResponse struct {
	Status bool                   `json:"status"`
	Code   interface{}            `json:"code"`   // Can be string or null
	Dialog interface{}            `json:"dialog"` // Can be string, object, or null
	Extra  interface{}            `json:"extra"`
	Data   map[string]interface{} `json:"data"`
}

// Whish collect statuses
const (
	WhishCollectSuccess = "success"
	WhishCollectFailed  = "failed"
	WhishCollectPending = "pending"
)

// IntentStatus is the settlement state of a gateway intent
type IntentStatus string

const (
	IntentSettled IntentStatus = "settled"
	IntentPending IntentStatus = "pending"
	IntentFailed  IntentStatus = "failed"
)

// GatewayIntent is a created gateway payment intent
type GatewayIntent struct {
	IntentID     string `json:"intentId"`
	ClientSecret string `json:"clientSecret"`
}
