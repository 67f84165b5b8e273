// Package memstore keeps accounts, coupons, payments and QR codes in process memory.
// Every read and write copies, so callers never share state with the store.
// It backs STORE_DRIVER=memory and the concurrency tests of the service layer.
package memstore

import (
	"slices"
	"time"

	"github.com/fairyhunter13/qr-saas-entitlement/internal/model"
)

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneAccount(a *model.Account) *model.Account {
	c := *a
	c.Subscription.EndDate = clonePtr(a.Subscription.EndDate)
	return &c
}

func cloneCoupon(cp *model.Coupon) *model.Coupon {
	c := *cp
	c.MaxDiscount = clonePtr(cp.MaxDiscount)
	c.UsageLimit = clonePtr(cp.UsageLimit)
	c.ApplicablePlans = slices.Clone(cp.ApplicablePlans)
	c.UsedBy = slices.Clone(cp.UsedBy)
	if c.UsedBy == nil {
		c.UsedBy = []model.Redemption{}
	}
	return &c
}

func clonePayment(p *model.Payment) *model.Payment {
	c := *p
	c.CompletedAt = clonePtr(p.CompletedAt)
	return &c
}

// newestFirst orders by creation time, falling back to insertion order for ties.
func newestFirst[T any](items []T, createdAt func(T) time.Time) {
	slices.SortStableFunc(items, func(a, b T) int {
		return createdAt(b).Compare(createdAt(a))
	})
}

func page[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return []T{}
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}
