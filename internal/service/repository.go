package service

import (
	"context"
	"time"

	"github.com/fairyhunter13/qr-saas-entitlement/internal/model"
)

// AccountRepositoryInterface defines the interface for account data access.
// Get methods return nil, nil when nothing matches. Save is a compare-and-swap on
// Version: it fails with ErrConflict when the stored version moved, and bumps
// account.Version on success.
type AccountRepositoryInterface interface {
	Create(ctx context.Context, account *model.Account) error
	GetByID(ctx context.Context, id string) (*model.Account, error)
	GetByExternalID(ctx context.Context, externalID string) (*model.Account, error)
	GetByAPIKey(ctx context.Context, apiKey string) (*model.Account, error)
	Save(ctx context.Context, account *model.Account) error
	List(ctx context.Context, filter model.AccountFilter) ([]model.Account, int64, error)
}

// CouponRepositoryInterface defines the interface for coupon data access.
// AppendRedemption increments used_count and records r in one compare-and-swap
// write guarded by coupon.Version.
type CouponRepositoryInterface interface {
	Create(ctx context.Context, coupon *model.Coupon) error
	GetByCode(ctx context.Context, code string) (*model.Coupon, error)
	Save(ctx context.Context, coupon *model.Coupon) error
	AppendRedemption(ctx context.Context, coupon *model.Coupon, r model.Redemption) error
	List(ctx context.Context, filter model.CouponFilter) ([]model.Coupon, int64, error)
	Stats(ctx context.Context) (model.CouponStats, error)
}

// PaymentRepositoryInterface defines the interface for payment data access.
type PaymentRepositoryInterface interface {
	Create(ctx context.Context, payment *model.Payment) error
	GetByID(ctx context.Context, id string) (*model.Payment, error)
	GetByOrderID(ctx context.Context, orderID string) (*model.Payment, error)
	GetByTransactionID(ctx context.Context, transactionID string) (*model.Payment, error)
	Save(ctx context.Context, payment *model.Payment) error
	List(ctx context.Context, filter model.PaymentFilter) ([]model.Payment, int64, error)
}

// QRCodeRepositoryInterface defines the interface for stored QR code data access.
// GetByID returns nil, nil when nothing matches and also returns deactivated codes;
// callers check IsActive. Save is a compare-and-swap on Version. List and
// Stats only see active codes.
type QRCodeRepositoryInterface interface {
	Create(ctx context.Context, code *model.QRCode) error
	CreateMany(ctx context.Context, codes []model.QRCode) error
	GetByID(ctx context.Context, id string) (*model.QRCode, error)
	Save(ctx context.Context, code *model.QRCode) error
	List(ctx context.Context, filter model.QRCodeFilter) ([]model.QRCode, int64, error)
	Stats(ctx context.Context, accountID string) (model.QRCodeStats, error)
}

// IdempotencyStore remembers keys that have already been processed.
type IdempotencyStore interface {
	// Acquire records key and reports whether it was newly recorded.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Release forgets key so the operation can be attempted again.
	Release(ctx context.Context, key string) error
}

// Renderer turns content into an image reference.
type Renderer interface {
	Render(content string, styling model.QRStyling) (string, error)
}

// Gateway is the payment provider as seen by this service.
type Gateway interface {
	KeyID() string
	CreateOrder(ctx context.Context, amount int64, currency, receipt string) (string, error)
	VerifyPayment(orderID, transactionID, signature string) bool
	VerifyWebhook(body []byte, signature string) bool
}
