package model

import "time"

// QRStyling is the optional rendering configuration of a QR code.
type QRStyling struct {
	Size            int    `json:"size" bson:"size,omitempty" validate:"omitempty,gte=64,lte=2048"`
	ForegroundColor string `json:"foreground_color" bson:"foreground_color,omitempty" validate:"omitempty,hexcolor"`
	BackgroundColor string `json:"background_color" bson:"background_color,omitempty" validate:"omitempty,hexcolor"`
}

// GenerateQRRequest is the DTO for generating a single QR code.
type GenerateQRRequest struct {
	Content string    `json:"content" validate:"required,notblank,max=2953"`
	Title   string    `json:"title" validate:"max=255"`
	Type    string    `json:"type" validate:"omitempty,oneof=url text email phone sms wifi vcard"`
	Styling QRStyling `json:"styling"`
}

// BulkGenerateQRRequest is the DTO for generating a batch of QR codes.
type BulkGenerateQRRequest struct {
	Items []GenerateQRRequest `json:"items" validate:"required,min=1,max=1000,dive"`
}

// UpdateQRCodeRequest is the DTO for editing a stored QR code. Nil fields are left
// unchanged.
type UpdateQRCodeRequest struct {
	Title   *string    `json:"title" validate:"omitempty,max=255"`
	Content *string    `json:"content" validate:"omitempty,notblank,max=2953"`
	Styling *QRStyling `json:"styling"`
}

// QRCodeResponse describes one rendered QR code.
type QRCodeResponse struct {
	ID      string `json:"id"`
	BatchID string `json:"batch_id,omitempty"`
	Title   string `json:"title"`
	Content string `json:"content"`
	Type    string `json:"type"`
	Image   string `json:"image"`
}

// BulkGenerateQRResponse reports the outcome of a batch.
type BulkGenerateQRResponse struct {
	Requested  int              `json:"requested"`
	Successful int              `json:"successful"`
	Failed     int              `json:"failed"`
	Codes      []QRCodeResponse `json:"codes"`
}

// ValidateCouponRequest is the DTO for previewing a coupon against a plan.
type ValidateCouponRequest struct {
	CouponCode string `json:"coupon_code" validate:"required,couponcode"`
	Plan       string `json:"plan" validate:"omitempty,oneof=pro enterprise"`
}

// CouponQuote is the discount a coupon yields for a plan.
type CouponQuote struct {
	Coupon             *Coupon `json:"-"`
	Code               string  `json:"code"`
	Name               string  `json:"name"`
	Plan               Plan    `json:"plan,omitempty"`
	Amount             int64   `json:"amount"`
	DiscountAmount     int64   `json:"discount_amount"`
	DiscountPercentage int64   `json:"discount_percentage"`
	FinalAmount        int64   `json:"final_amount"`
}

// CreateCouponRequest is the DTO for creating a coupon. Money fields are minor units.
type CreateCouponRequest struct {
	Code            string    `json:"code" validate:"required,couponcode"`
	Name            string    `json:"name" validate:"required,notblank,max=255"`
	Description     string    `json:"description" validate:"max=1000"`
	Type            string    `json:"type" validate:"required,oneof=percentage fixed"`
	Value           *int64    `json:"value" validate:"required,gte=0"`
	MaxDiscount     *int64    `json:"max_discount" validate:"omitempty,gte=0"`
	MinAmount       int64     `json:"min_amount" validate:"gte=0"`
	ApplicablePlans []string  `json:"applicable_plans" validate:"omitempty,dive,oneof=pro enterprise"`
	UsageLimit      *int64    `json:"usage_limit" validate:"omitempty,gte=0"`
	UserUsageLimit  *int64    `json:"user_usage_limit" validate:"omitempty,gte=1"`
	ValidFrom       time.Time `json:"valid_from"`
	ValidUntil      time.Time `json:"valid_until" validate:"required"`
}

// UpdateCouponRequest is the DTO for editing a coupon. Nil fields are left unchanged.
// The code, type and usage ledger cannot be edited.
type UpdateCouponRequest struct {
	Name            *string    `json:"name" validate:"omitempty,notblank,max=255"`
	Description     *string    `json:"description" validate:"omitempty,max=1000"`
	Value           *int64     `json:"value" validate:"omitempty,gte=0"`
	MaxDiscount     *int64     `json:"max_discount" validate:"omitempty,gte=0"`
	MinAmount       *int64     `json:"min_amount" validate:"omitempty,gte=0"`
	ApplicablePlans []string   `json:"applicable_plans" validate:"omitempty,dive,oneof=pro enterprise"`
	UsageLimit      *int64     `json:"usage_limit" validate:"omitempty,gte=0"`
	UserUsageLimit  *int64     `json:"user_usage_limit" validate:"omitempty,gte=1"`
	ValidUntil      *time.Time `json:"valid_until"`
	IsActive        *bool      `json:"is_active"`
}

// UpdateRoleRequest is the DTO for changing an account's role.
type UpdateRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=user admin super_admin"`
}

// UpdateSubscriptionRequest is the DTO for an administrative subscription override.
// Nil fields are left unchanged.
type UpdateSubscriptionRequest struct {
	Plan    string     `json:"plan" validate:"omitempty,oneof=free pro enterprise"`
	Status  string     `json:"status" validate:"omitempty,oneof=active inactive cancelled expired"`
	EndDate *time.Time `json:"end_date"`
}

// AccountDetail is the administrative view of one account.
type AccountDetail struct {
	Account        *Account    `json:"account"`
	RecentPayments []Payment   `json:"recent_payments"`
	QRStats        QRCodeStats `json:"qr_stats"`
	RecentQRCodes  []QRCode    `json:"recent_qr_codes"`
}

// CreateOrderRequest is the DTO for starting a plan purchase.
type CreateOrderRequest struct {
	Plan       string `json:"plan" validate:"required,oneof=pro enterprise"`
	CouponCode string `json:"coupon_code" validate:"omitempty,couponcode"`
}

// OrderResponse is returned to the client to launch the gateway checkout.
type OrderResponse struct {
	PaymentID string   `json:"payment_id"`
	OrderID   string   `json:"order_id"`
	Amount    int64    `json:"amount"`
	Currency  string   `json:"currency"`
	Key       string   `json:"key"`
	Plan      Plan     `json:"plan"`
	Discount  Discount `json:"discount"`
}

// VerifyPaymentRequest carries the gateway checkout result.
type VerifyPaymentRequest struct {
	PaymentID     string `json:"payment_id" validate:"required,notblank"`
	OrderID       string `json:"order_id" validate:"required,notblank"`
	TransactionID string `json:"transaction_id" validate:"required,notblank"`
	Signature     string `json:"signature" validate:"required,notblank"`
}

// ConfirmResult is the outcome of confirming a payment.
type ConfirmResult struct {
	Payment      *Payment     `json:"payment"`
	Subscription Subscription `json:"subscription"`
	Duplicate    bool         `json:"duplicate"`
}

// WebhookEvent is the subset of a gateway webhook this service acts on.
type WebhookEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID      string `json:"id"`
				OrderID string `json:"order_id"`
				Amount  int64  `json:"amount"`
				Status  string `json:"status"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// SubscriptionStatusResponse is the account's subscription view.
type SubscriptionStatusResponse struct {
	Subscription     Subscription       `json:"subscription"`
	EffectiveStatus  SubscriptionStatus `json:"effective_status"`
	Usage            Usage              `json:"usage"`
	Limits           PlanLimits         `json:"limits"`
	CanGenerateQR    bool               `json:"can_generate_qr"`
	RemainingQRToday int64              `json:"remaining_qr_today"`
	HasAPIKey        bool               `json:"has_api_key"`
}

// Page is pagination metadata.
type Page struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
	Pages int64 `json:"pages"`
}

// NewPage computes pagination metadata.
func NewPage(page, limit int, total int64) Page {
	p := Page{Page: page, Limit: limit, Total: total}
	if limit > 0 {
		p.Pages = (total + int64(limit) - 1) / int64(limit)
	}
	return p
}
