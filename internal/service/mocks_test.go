package service

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fairyhunter13/qr-saas-entitlement/internal/model"
)

var testNow = time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func int64Ptr(i int64) *int64 {
	return &i
}

// mockAccountRepository is a mock implementation of AccountRepositoryInterface.
type mockAccountRepository struct {
	createFn          func(ctx context.Context, account *model.Account) error
	getByIDFn         func(ctx context.Context, id string) (*model.Account, error)
	getByExternalIDFn func(ctx context.Context, externalID string) (*model.Account, error)
	getByAPIKeyFn     func(ctx context.Context, apiKey string) (*model.Account, error)
	saveFn            func(ctx context.Context, account *model.Account) error
	listFn            func(ctx context.Context, filter model.AccountFilter) ([]model.Account, int64, error)
}

func (m *mockAccountRepository) Create(ctx context.Context, account *model.Account) error {
	if m.createFn != nil {
		return m.createFn(ctx, account)
	}
	return nil
}

func (m *mockAccountRepository) GetByID(ctx context.Context, id string) (*model.Account, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockAccountRepository) GetByExternalID(ctx context.Context, externalID string) (*model.Account, error) {
	if m.getByExternalIDFn != nil {
		return m.getByExternalIDFn(ctx, externalID)
	}
	return nil, nil
}

func (m *mockAccountRepository) GetByAPIKey(ctx context.Context, apiKey string) (*model.Account, error) {
	if m.getByAPIKeyFn != nil {
		return m.getByAPIKeyFn(ctx, apiKey)
	}
	return nil, nil
}

func (m *mockAccountRepository) Save(ctx context.Context, account *model.Account) error {
	if m.saveFn != nil {
		return m.saveFn(ctx, account)
	}
	return nil
}

func (m *mockAccountRepository) List(ctx context.Context, filter model.AccountFilter) ([]model.Account, int64, error) {
	if m.listFn != nil {
		return m.listFn(ctx, filter)
	}
	return []model.Account{}, 0, nil
}

// accountStore is an in-memory AccountRepositoryInterface with real compare-and-swap
// semantics, used where tests need concurrent writers.
type accountStore struct {
	mu       sync.Mutex
	accounts map[string]model.Account
	saves    int
}

func newAccountStore(accounts ...model.Account) *accountStore {
	s := &accountStore{accounts: make(map[string]model.Account)}
	for _, a := range accounts {
		s.accounts[a.ID] = a
	}
	return s
}

func (s *accountStore) Create(_ context.Context, account *model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.ExternalID == account.ExternalID {
			return ErrAccountExists
		}
	}
	s.accounts[account.ID] = *account
	return nil
}

func (s *accountStore) GetByID(_ context.Context, id string) (*model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (s *accountStore) GetByExternalID(_ context.Context, externalID string) (*model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.ExternalID == externalID {
			return &a, nil
		}
	}
	return nil, nil
}

func (s *accountStore) GetByAPIKey(_ context.Context, apiKey string) (*model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.APIKey != "" && a.APIKey == apiKey {
			return &a, nil
		}
	}
	return nil, nil
}

func (s *accountStore) Save(_ context.Context, account *model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.accounts[account.ID]
	if !ok || stored.Version != account.Version {
		return ErrConflict
	}
	account.Version++
	s.accounts[account.ID] = *account
	s.saves++
	return nil
}

func (s *accountStore) List(_ context.Context, filter model.AccountFilter) ([]model.Account, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Account
	for _, a := range s.accounts {
		if filter.Plan != "" && a.Subscription.Plan != filter.Plan {
			continue
		}
		if filter.Status != "" && a.Subscription.Status != filter.Status {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(a.Email), strings.ToLower(filter.Search)) {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return pageOf(out, filter.Offset, filter.Limit), int64(len(out)), nil
}

func (s *accountStore) get(id string) model.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accounts[id]
}

func (s *accountStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

// couponStore is an in-memory CouponRepositoryInterface with compare-and-swap saves.
type couponStore struct {
	mu      sync.Mutex
	coupons map[string]model.Coupon
}

func newCouponStore(coupons ...model.Coupon) *couponStore {
	s := &couponStore{coupons: make(map[string]model.Coupon)}
	for _, c := range coupons {
		s.coupons[c.Code] = c
	}
	return s
}

func (s *couponStore) Create(_ context.Context, coupon *model.Coupon) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.coupons[coupon.Code]; ok {
		return ErrCouponExists
	}
	s.coupons[coupon.Code] = *coupon
	return nil
}

func (s *couponStore) GetByCode(_ context.Context, code string) (*model.Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.coupons[code]
	if !ok {
		return nil, nil
	}
	c.UsedBy = slices.Clone(c.UsedBy)
	return &c, nil
}

func (s *couponStore) Save(_ context.Context, coupon *model.Coupon) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.coupons[coupon.Code]
	if !ok || stored.Version != coupon.Version {
		return ErrConflict
	}
	coupon.Version++
	s.coupons[coupon.Code] = *coupon
	return nil
}

func (s *couponStore) AppendRedemption(_ context.Context, coupon *model.Coupon, r model.Redemption) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.coupons[coupon.Code]
	if !ok || stored.Version != coupon.Version {
		return ErrConflict
	}
	coupon.UsedCount++
	coupon.UsedBy = append(coupon.UsedBy, r)
	coupon.Version++
	s.coupons[coupon.Code] = *coupon
	return nil
}

func (s *couponStore) List(_ context.Context, filter model.CouponFilter) ([]model.Coupon, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Coupon
	for _, c := range s.coupons {
		if filter.ActiveOnly && !c.IsActive {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	total := int64(len(out))
	if filter.Offset >= len(out) {
		return []model.Coupon{}, total, nil
	}
	out = out[filter.Offset:]
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, total, nil
}

func (s *couponStore) Stats(_ context.Context) (model.CouponStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var stats model.CouponStats
	for _, c := range s.coupons {
		stats.TotalCoupons++
		if c.IsActive {
			stats.ActiveCoupons++
		}
		stats.TotalUsage += c.UsedCount
	}
	return stats, nil
}

func (s *couponStore) get(code string) model.Coupon {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.coupons[code]
}

// paymentStore is an in-memory PaymentRepositoryInterface with compare-and-swap saves.
type paymentStore struct {
	mu       sync.Mutex
	payments map[string]model.Payment
}

func newPaymentStore(payments ...model.Payment) *paymentStore {
	s := &paymentStore{payments: make(map[string]model.Payment)}
	for _, p := range payments {
		s.payments[p.ID] = p
	}
	return s
}

func (s *paymentStore) Create(_ context.Context, payment *model.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payments[payment.ID] = *payment
	return nil
}

func (s *paymentStore) find(match func(model.Payment) bool) *model.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.payments {
		if match(p) {
			return &p
		}
	}
	return nil
}

func (s *paymentStore) GetByID(_ context.Context, id string) (*model.Payment, error) {
	return s.find(func(p model.Payment) bool { return p.ID == id }), nil
}

func (s *paymentStore) GetByOrderID(_ context.Context, orderID string) (*model.Payment, error) {
	return s.find(func(p model.Payment) bool { return p.OrderID == orderID }), nil
}

func (s *paymentStore) GetByTransactionID(_ context.Context, transactionID string) (*model.Payment, error) {
	return s.find(func(p model.Payment) bool { return p.TransactionID != "" && p.TransactionID == transactionID }), nil
}

func (s *paymentStore) Save(_ context.Context, payment *model.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.payments[payment.ID]
	if !ok || stored.Version != payment.Version {
		return ErrConflict
	}
	payment.Version++
	s.payments[payment.ID] = *payment
	return nil
}

func (s *paymentStore) List(_ context.Context, filter model.PaymentFilter) ([]model.Payment, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Payment
	for _, p := range s.payments {
		if filter.AccountID != "" && p.AccountID != filter.AccountID {
			continue
		}
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		if filter.Plan != "" && p.Plan != filter.Plan {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return pageOf(out, filter.Offset, filter.Limit), int64(len(out)), nil
}

func pageOf[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

func (s *paymentStore) get(id string) model.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.payments[id]
}

// mockKeys is an in-memory IdempotencyStore.
type mockKeys struct {
	mu       sync.Mutex
	keys     map[string]bool
	acquireE error
}

func newMockKeys() *mockKeys {
	return &mockKeys{keys: make(map[string]bool)}
}

func (m *mockKeys) Acquire(_ context.Context, key string, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.acquireE != nil {
		return false, m.acquireE
	}
	if m.keys[key] {
		return false, nil
	}
	m.keys[key] = true
	return true, nil
}

func (m *mockKeys) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}

// mockGateway is a mock implementation of Gateway.
type mockGateway struct {
	createOrderFn   func(ctx context.Context, amount int64, currency, receipt string) (string, error)
	verifyPaymentFn func(orderID, transactionID, signature string) bool
	verifyWebhookFn func(body []byte, signature string) bool
}

func (m *mockGateway) KeyID() string {
	return "key_test"
}

func (m *mockGateway) CreateOrder(ctx context.Context, amount int64, currency, receipt string) (string, error) {
	if m.createOrderFn != nil {
		return m.createOrderFn(ctx, amount, currency, receipt)
	}
	return "order_" + receipt, nil
}

func (m *mockGateway) VerifyPayment(orderID, transactionID, signature string) bool {
	if m.verifyPaymentFn != nil {
		return m.verifyPaymentFn(orderID, transactionID, signature)
	}
	return signature == "valid"
}

func (m *mockGateway) VerifyWebhook(body []byte, signature string) bool {
	if m.verifyWebhookFn != nil {
		return m.verifyWebhookFn(body, signature)
	}
	return signature == "valid"
}

// mockRenderer is a mock implementation of Renderer.
type mockRenderer struct {
	renderFn func(content string, styling model.QRStyling) (string, error)
}

func (m *mockRenderer) Render(content string, styling model.QRStyling) (string, error) {
	if m.renderFn != nil {
		return m.renderFn(content, styling)
	}
	return "data:image/png;base64,AAAA", nil
}

// testRetry keeps backoff short in tests.
func testRetry() RetryConfig {
	return RetryConfig{MaxAttempts: 8, BaseDelay: time.Microsecond, MaxDelay: 100 * time.Microsecond}
}

func freeAccount(id string, now time.Time) model.Account {
	return model.NewAccount(id, "ext-"+id, model.ProfileClaims{Email: id + "@example.com"}, now)
}

func planAccount(id string, plan model.Plan, now time.Time) model.Account {
	a := freeAccount(id, now)
	a.Subscription = model.ActivateSubscription(plan, 30, now.Add(-24*time.Hour))
	return a
}

// qrCodeStore is an in-memory QRCodeRepositoryInterface with compare-and-swap saves.
type qrCodeStore struct {
	mu        sync.Mutex
	codes     map[string]model.QRCode
	order     []string
	createErr error
}

func newQRCodeStore(codes ...model.QRCode) *qrCodeStore {
	s := &qrCodeStore{codes: make(map[string]model.QRCode)}
	for _, c := range codes {
		s.codes[c.ID] = c
		s.order = append(s.order, c.ID)
	}
	return s
}

func (s *qrCodeStore) Create(ctx context.Context, code *model.QRCode) error {
	return s.CreateMany(ctx, []model.QRCode{*code})
}

func (s *qrCodeStore) CreateMany(_ context.Context, codes []model.QRCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	for _, c := range codes {
		s.codes[c.ID] = c
		s.order = append(s.order, c.ID)
	}
	return nil
}

func (s *qrCodeStore) GetByID(_ context.Context, id string) (*model.QRCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.codes[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (s *qrCodeStore) Save(_ context.Context, code *model.QRCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.codes[code.ID]
	if !ok || stored.Version != code.Version {
		return ErrConflict
	}
	code.Version++
	s.codes[code.ID] = *code
	return nil
}

func (s *qrCodeStore) List(_ context.Context, filter model.QRCodeFilter) ([]model.QRCode, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.QRCode
	for i := len(s.order) - 1; i >= 0; i-- {
		c := s.codes[s.order[i]]
		if c.AccountID != filter.AccountID || !c.IsActive {
			continue
		}
		if filter.Type != "" && c.Type != filter.Type {
			continue
		}
		if filter.BatchID != "" && c.BatchID != filter.BatchID {
			continue
		}
		if filter.Search != "" && !strings.Contains(c.Title+c.Content, filter.Search) {
			continue
		}
		out = append(out, c)
	}
	return pageOf(out, filter.Offset, filter.Limit), int64(len(out)), nil
}

func (s *qrCodeStore) Stats(_ context.Context, accountID string) (model.QRCodeStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := map[string]int64{}
	stats := model.QRCodeStats{ByType: []model.QRTypeCount{}}
	for _, id := range s.order {
		c := s.codes[id]
		if c.AccountID != accountID || !c.IsActive {
			continue
		}
		if counts[c.Type] == 0 {
			stats.ByType = append(stats.ByType, model.QRTypeCount{Type: c.Type})
		}
		counts[c.Type]++
		stats.Total++
	}
	for i := range stats.ByType {
		stats.ByType[i].Count = counts[stats.ByType[i].Type]
	}
	sort.SliceStable(stats.ByType, func(i, j int) bool { return stats.ByType[i].Count > stats.ByType[j].Count })
	return stats, nil
}

func (s *qrCodeStore) active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.codes {
		if c.IsActive {
			n++
		}
	}
	return n
}
