package model

import "time"

// PaymentStatus is the state of a payment record.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
	PaymentCancelled PaymentStatus = "cancelled"
)

// Valid reports whether s is a known payment status.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentCompleted, PaymentFailed, PaymentRefunded, PaymentCancelled:
		return true
	}
	return false
}

// Discount is the coupon snapshot taken when the order was created.
type Discount struct {
	CouponCode         string `json:"coupon_code,omitempty" bson:"coupon_code,omitempty"`
	DiscountAmount     int64  `json:"discount_amount" bson:"discount_amount"`
	DiscountPercentage int64  `json:"discount_percentage" bson:"discount_percentage"`
}

// Payment is a gateway order and its outcome. Amount is what the customer is charged
// after discount, in minor units. TransactionID is the gateway's payment id and is the
// idempotency key for activation.
type Payment struct {
	ID             string        `json:"id" bson:"_id"`
	AccountID      string        `json:"account_id" bson:"account_id"`
	OrderID        string        `json:"order_id" bson:"order_id"`
	TransactionID  string        `json:"transaction_id,omitempty" bson:"transaction_id,omitempty"`
	Amount         int64         `json:"amount" bson:"amount"`
	OriginalAmount int64         `json:"original_amount" bson:"original_amount"`
	Currency       string        `json:"currency" bson:"currency"`
	Plan           Plan          `json:"plan" bson:"plan"`
	DurationDays   int           `json:"duration_days" bson:"duration_days"`
	Status         PaymentStatus `json:"status" bson:"status"`
	Discount       Discount      `json:"discount" bson:"discount"`
	Version        int64         `json:"-" bson:"version"`
	CreatedAt      time.Time     `json:"created_at" bson:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at" bson:"updated_at"`
	CompletedAt    *time.Time    `json:"completed_at,omitempty" bson:"completed_at,omitempty"`
}

// PaymentFilter narrows payment history queries. Empty fields match everything.
type PaymentFilter struct {
	AccountID string
	Status    PaymentStatus
	Plan      Plan
	Offset    int
	Limit     int
}

// CouponFilter narrows coupon listing queries.
type CouponFilter struct {
	ActiveOnly bool
	Offset     int
	Limit      int
}

// CouponStats summarises coupon usage across the catalogue.
type CouponStats struct {
	TotalCoupons  int64 `json:"total_coupons"`
	ActiveCoupons int64 `json:"active_coupons"`
	TotalUsage    int64 `json:"total_usage"`
}
