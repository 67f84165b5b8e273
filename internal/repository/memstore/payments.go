package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/fairyhunter13/qr-saas-entitlement/internal/model"
	"github.com/fairyhunter13/qr-saas-entitlement/internal/service"
)

// PaymentStore is an in-memory service.PaymentRepositoryInterface.
type PaymentStore struct {
	mu      sync.RWMutex
	byID    map[string]*model.Payment
	byOrder map[string]string
	byTx    map[string]string
	order   []string
}

// NewPaymentStore creates an empty PaymentStore.
func NewPaymentStore() *PaymentStore {
	return &PaymentStore{
		byID:    make(map[string]*model.Payment),
		byOrder: make(map[string]string),
		byTx:    make(map[string]string),
	}
}

// Create stores a new payment.
// Returns service.ErrPaymentExists if the id, order id or transaction id is taken.
func (s *PaymentStore) Create(ctx context.Context, payment *model.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[payment.ID]; ok {
		return service.ErrPaymentExists
	}
	if _, ok := s.byOrder[payment.OrderID]; ok {
		return service.ErrPaymentExists
	}
	if payment.TransactionID != "" {
		if _, ok := s.byTx[payment.TransactionID]; ok {
			return service.ErrPaymentExists
		}
		s.byTx[payment.TransactionID] = payment.ID
	}

	s.byID[payment.ID] = clonePayment(payment)
	s.byOrder[payment.OrderID] = payment.ID
	s.order = append(s.order, payment.ID)
	return nil
}

// GetByID returns nil, nil when the payment does not exist.
func (s *PaymentStore) GetByID(ctx context.Context, id string) (*model.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.get(id), nil
}

// GetByOrderID returns nil, nil when no payment carries orderID.
func (s *PaymentStore) GetByOrderID(ctx context.Context, orderID string) (*model.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.get(s.byOrder[orderID]), nil
}

// GetByTransactionID returns nil, nil when no payment carries transactionID.
func (s *PaymentStore) GetByTransactionID(ctx context.Context, transactionID string) (*model.Payment, error) {
	if transactionID == "" {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.get(s.byTx[transactionID]), nil
}

func (s *PaymentStore) get(id string) *model.Payment {
	p, ok := s.byID[id]
	if !ok {
		return nil
	}
	return clonePayment(p)
}

// Save replaces the stored payment if its version still matches payment.Version.
func (s *PaymentStore) Save(ctx context.Context, payment *model.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.byID[payment.ID]
	if !ok || current.Version != payment.Version {
		return service.ErrConflict
	}
	if payment.TransactionID != "" && payment.TransactionID != current.TransactionID {
		if owner, taken := s.byTx[payment.TransactionID]; taken && owner != payment.ID {
			return service.ErrPaymentExists
		}
		delete(s.byTx, current.TransactionID)
		s.byTx[payment.TransactionID] = payment.ID
	}

	payment.Version++
	s.byID[payment.ID] = clonePayment(payment)
	return nil
}

// List returns payments newest first and the total matching count. An empty
// AccountID lists every account.
func (s *PaymentStore) List(ctx context.Context, filter model.PaymentFilter) ([]model.Payment, int64, error) {
	s.mu.RLock()
	matched := []model.Payment{}
	for _, id := range s.order {
		p := s.byID[id]
		if filter.AccountID != "" && p.AccountID != filter.AccountID {
			continue
		}
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		if filter.Plan != "" && p.Plan != filter.Plan {
			continue
		}
		matched = append(matched, *clonePayment(p))
	}
	s.mu.RUnlock()

	newestFirst(matched, func(p model.Payment) time.Time { return p.CreatedAt })
	return page(matched, filter.Offset, filter.Limit), int64(len(matched)), nil
}
