package memstore

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/fairyhunter13/qr-saas-entitlement/internal/model"
	"github.com/fairyhunter13/qr-saas-entitlement/internal/service"
)

// CouponStore is an in-memory service.CouponRepositoryInterface.
type CouponStore struct {
	mu     sync.RWMutex
	byCode map[string]*model.Coupon
	order  []string
}

// NewCouponStore creates an empty CouponStore.
func NewCouponStore() *CouponStore {
	return &CouponStore{byCode: make(map[string]*model.Coupon)}
}

// Create stores a new coupon.
// Returns service.ErrCouponExists if the code is taken.
func (s *CouponStore) Create(ctx context.Context, coupon *model.Coupon) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byCode[coupon.Code]; ok {
		return service.ErrCouponExists
	}
	s.byCode[coupon.Code] = cloneCoupon(coupon)
	s.order = append(s.order, coupon.Code)
	return nil
}

// GetByCode returns nil, nil when the coupon does not exist.
func (s *CouponStore) GetByCode(ctx context.Context, code string) (*model.Coupon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.byCode[code]
	if !ok {
		return nil, nil
	}
	return cloneCoupon(c), nil
}

// Save replaces the editable fields when the version still matches.
// The usage counter and ledger are kept from the stored coupon.
func (s *CouponStore) Save(ctx context.Context, coupon *model.Coupon) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.byCode[coupon.Code]
	if !ok || current.Version != coupon.Version {
		return service.ErrConflict
	}

	coupon.Version++
	stored := cloneCoupon(coupon)
	stored.UsedCount = current.UsedCount
	stored.UsedBy = current.UsedBy
	s.byCode[coupon.Code] = stored
	return nil
}

// AppendRedemption records red and increments the usage counter when the version
// still matches and the usage limit has room.
func (s *CouponStore) AppendRedemption(ctx context.Context, coupon *model.Coupon, red model.Redemption) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.byCode[coupon.Code]
	if !ok || current.Version != coupon.Version {
		return service.ErrConflict
	}
	if current.UsageLimit != nil && current.UsedCount >= *current.UsageLimit {
		return service.ErrConflict
	}

	current.UsedCount++
	current.Version++
	current.UpdatedAt = red.UsedAt
	current.UsedBy = append(current.UsedBy, red)

	coupon.UsedCount = current.UsedCount
	coupon.Version = current.Version
	coupon.UpdatedAt = current.UpdatedAt
	coupon.UsedBy = slices.Clone(current.UsedBy)
	return nil
}

// List returns a page of coupons, newest first, and the total matching count.
func (s *CouponStore) List(ctx context.Context, filter model.CouponFilter) ([]model.Coupon, int64, error) {
	s.mu.RLock()
	matched := make([]model.Coupon, 0, len(s.order))
	for _, code := range s.order {
		c := s.byCode[code]
		if filter.ActiveOnly && !c.IsActive {
			continue
		}
		matched = append(matched, *cloneCoupon(c))
	}
	s.mu.RUnlock()

	newestFirst(matched, func(c model.Coupon) time.Time { return c.CreatedAt })
	return page(matched, filter.Offset, filter.Limit), int64(len(matched)), nil
}

// Stats summarises the stored coupons.
func (s *CouponStore) Stats(ctx context.Context) (model.CouponStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats model.CouponStats
	for _, c := range s.byCode {
		stats.TotalCoupons++
		if c.IsActive {
			stats.ActiveCoupons++
		}
		stats.TotalUsage += c.UsedCount
	}
	return stats, nil
}
