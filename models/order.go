package models

import "time"

// OrderStatus is the lifecycle status of a moving order
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Order model. Orders are authored by the quote flow; payments only read them
// and move them to completed.
type Order struct {
	ID            string      `json:"id" bson:"_id"`
	UserID        string      `json:"userId" bson:"userId"`
	CompanyID     string      `json:"companyId,omitempty" bson:"companyId,omitempty"`
	Status        OrderStatus `json:"status" bson:"status"`
	TotalAmount   int64       `json:"totalAmount" bson:"totalAmount"`
	DepositAmount int64       `json:"depositAmount" bson:"depositAmount"`
	ScheduledAt   time.Time   `json:"scheduledAt" bson:"scheduledAt"`
	UpdatedBy     string      `json:"updatedBy,omitempty" bson:"updatedBy,omitempty"`
	CreatedAt     time.Time   `json:"createdAt" bson:"createdAt"`
	UpdatedAt     time.Time   `json:"updatedAt" bson:"updatedAt"`
}
