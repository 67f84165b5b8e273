package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/qr-saas-entitlement/internal/model"
)

func newTestEntitlementService(store AccountRepositoryInterface, now time.Time) (*EntitlementService, *UsageService) {
	usage := newTestUsageService(store, now)
	gate := NewEntitlementService(usage)
	gate.now = fixedClock(now)
	return gate, usage
}

func TestEntitlementService_CanGenerate_DeniesOverflowingBatch(t *testing.T) {
	account := freeAccount("acc-1", testNow)
	account.Usage.QRGeneratedToday = 98
	gate, _ := newTestEntitlementService(newAccountStore(account), testNow)

	decision, err := gate.CanGenerate(context.Background(), "acc-1", 3)

	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, int64(98), decision.Current)
	assert.Equal(t, int64(100), decision.Limit)
	assert.Equal(t, int64(3), decision.Requested)
	assert.Equal(t, int64(2), decision.Remaining)

	var limitErr *LimitError
	require.True(t, errors.As(decision.Err(), &limitErr))
	assert.True(t, errors.Is(decision.Err(), ErrLimitExceeded))
	assert.Equal(t, ResourceQRDaily, limitErr.Resource)
	assert.Equal(t, int64(2), limitErr.Remaining)
}

func TestEntitlementService_CanGenerate_AllowsExactFit(t *testing.T) {
	account := freeAccount("acc-1", testNow)
	account.Usage.QRGeneratedToday = 98
	gate, _ := newTestEntitlementService(newAccountStore(account), testNow)

	decision, err := gate.CanGenerate(context.Background(), "acc-1", 2)

	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.NoError(t, decision.Err())
}

func TestEntitlementService_CanGenerate_UsesPlanLimits(t *testing.T) {
	tests := []struct {
		name    string
		plan    model.Plan
		today   int64
		allowed bool
	}{
		{"free at limit", model.PlanFree, 100, false},
		{"pro above free limit", model.PlanPro, 100, true},
		{"pro at limit", model.PlanPro, 10000, false},
		{"enterprise above pro limit", model.PlanEnterprise, 10000, true},
		{"unknown plan falls back to free", model.Plan("platinum"), 100, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			account := planAccount("acc-1", tt.plan, testNow)
			account.Usage.QRGeneratedToday = tt.today
			gate, _ := newTestEntitlementService(newAccountStore(account), testNow)

			decision, err := gate.CanGenerate(context.Background(), "acc-1", 1)

			require.NoError(t, err)
			assert.Equal(t, tt.allowed, decision.Allowed)
		})
	}
}

func TestEntitlementService_CanGenerate_RollsOverFirst(t *testing.T) {
	account := freeAccount("acc-1", testNow.AddDate(0, 0, -1))
	account.Usage.QRGeneratedToday = 100
	gate, _ := newTestEntitlementService(newAccountStore(account), testNow)

	decision, err := gate.CanGenerate(context.Background(), "acc-1", 1)

	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, int64(0), decision.Current)
}

func TestEntitlementService_CanGenerate_NegativeRequest(t *testing.T) {
	gate, _ := newTestEntitlementService(newAccountStore(freeAccount("acc-1", testNow)), testNow)

	_, err := gate.CanGenerate(context.Background(), "acc-1", -1)

	assert.True(t, errors.Is(err, ErrInvalidCount))
}

func TestEntitlementService_CanGenerate_ReflectsIncrementsExactly(t *testing.T) {
	store := newAccountStore(freeAccount("acc-1", testNow))
	gate, usage := newTestEntitlementService(store, testNow)

	var expected int64
	for _, count := range []int64{1, 5, 17, 3} {
		_, err := usage.IncrementQR(context.Background(), "acc-1", count)
		require.NoError(t, err)
		expected += count

		decision, err := gate.CanGenerate(context.Background(), "acc-1", 0)
		require.NoError(t, err)
		assert.Equal(t, expected, decision.Current)
	}
}

func TestEntitlementService_CanCallAPI(t *testing.T) {
	account := freeAccount("acc-1", testNow)
	account.Usage.APICallsToday = 9
	gate, usage := newTestEntitlementService(newAccountStore(account), testNow)

	decision, err := gate.CanCallAPI(context.Background(), "acc-1", 10)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)

	_, err = usage.IncrementAPICalls(context.Background(), "acc-1", 1)
	require.NoError(t, err)

	decision, err = gate.CanCallAPI(context.Background(), "acc-1", 10)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, ResourceAPICalls, decision.Resource)
	assert.True(t, errors.Is(decision.Err(), ErrLimitExceeded))
}

func TestEntitlementService_RequireActiveSubscription(t *testing.T) {
	past := testNow.Add(-time.Hour)
	future := testNow.Add(time.Hour)

	tests := []struct {
		name    string
		sub     model.Subscription
		minimum model.Plan
		wantErr error
	}{
		{
			name:    "free account meets free",
			sub:     model.Subscription{Plan: model.PlanFree, Status: model.StatusActive},
			minimum: model.PlanFree,
		},
		{
			name:    "free account below pro",
			sub:     model.Subscription{Plan: model.PlanFree, Status: model.StatusActive},
			minimum: model.PlanPro,
			wantErr: ErrUpgradeRequired,
		},
		{
			name:    "enterprise meets pro",
			sub:     model.Subscription{Plan: model.PlanEnterprise, Status: model.StatusActive, EndDate: &future},
			minimum: model.PlanPro,
		},
		{
			name:    "cancelled pro denied even for free",
			sub:     model.Subscription{Plan: model.PlanPro, Status: model.StatusCancelled, EndDate: &past},
			minimum: model.PlanFree,
			wantErr: ErrSubscriptionInactive,
		},
		{
			name:    "lapsed active pro reads as expired",
			sub:     model.Subscription{Plan: model.PlanPro, Status: model.StatusActive, EndDate: &past},
			minimum: model.PlanPro,
			wantErr: ErrSubscriptionInactive,
		},
		{
			name:    "unknown minimum",
			sub:     model.Subscription{Plan: model.PlanPro, Status: model.StatusActive},
			minimum: model.Plan("gold"),
			wantErr: ErrInvalidPlan,
		},
	}

	gate := &EntitlementService{now: fixedClock(testNow)}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			account := &model.Account{Subscription: tt.sub}

			err := gate.RequireActiveSubscription(account, tt.minimum)

			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestEntitlementService_RequireActiveSubscription_ReportsPlans(t *testing.T) {
	gate := &EntitlementService{now: fixedClock(testNow)}
	account := &model.Account{Subscription: model.Subscription{Plan: model.PlanFree, Status: model.StatusActive}}

	err := gate.RequireActiveSubscription(account, model.PlanEnterprise)

	var subErr *SubscriptionError
	require.True(t, errors.As(err, &subErr))
	assert.Equal(t, model.PlanFree, subErr.CurrentPlan)
	assert.Equal(t, model.PlanEnterprise, subErr.RequiredPlan)
}
