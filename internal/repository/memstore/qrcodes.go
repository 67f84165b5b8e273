package memstore

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fairyhunter13/qr-saas-entitlement/internal/model"
	"github.com/fairyhunter13/qr-saas-entitlement/internal/service"
)

var errQRCodeExists = errors.New("qr code id already stored")

// QRCodeStore is an in-memory service.QRCodeRepositoryInterface.
type QRCodeStore struct {
	mu    sync.RWMutex
	byID  map[string]model.QRCode
	order []string
}

// NewQRCodeStore creates an empty QRCodeStore.
func NewQRCodeStore() *QRCodeStore {
	return &QRCodeStore{byID: make(map[string]model.QRCode)}
}

// Create stores a new code.
func (s *QRCodeStore) Create(ctx context.Context, code *model.QRCode) error {
	return s.CreateMany(ctx, []model.QRCode{*code})
}

// CreateMany stores all codes or, if any id is taken, none of them.
func (s *QRCodeStore) CreateMany(ctx context.Context, codes []model.QRCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool, len(codes))
	for _, c := range codes {
		if _, ok := s.byID[c.ID]; ok || seen[c.ID] {
			return errQRCodeExists
		}
		seen[c.ID] = true
	}
	for _, c := range codes {
		s.byID[c.ID] = c
		s.order = append(s.order, c.ID)
	}
	return nil
}

// GetByID returns nil, nil when the code does not exist. Deleted codes are returned.
func (s *QRCodeStore) GetByID(ctx context.Context, id string) (*model.QRCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byID[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

// Save replaces the stored code if its version still matches code.Version.
func (s *QRCodeStore) Save(ctx context.Context, code *model.QRCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.byID[code.ID]
	if !ok || current.Version != code.Version {
		return service.ErrConflict
	}
	code.Version++
	s.byID[code.ID] = *code
	return nil
}

// List returns an account's active codes newest first and the total matching count.
func (s *QRCodeStore) List(ctx context.Context, filter model.QRCodeFilter) ([]model.QRCode, int64, error) {
	search := strings.ToLower(filter.Search)

	s.mu.RLock()
	matched := []model.QRCode{}
	for _, id := range s.order {
		c := s.byID[id]
		if c.AccountID != filter.AccountID || !c.IsActive {
			continue
		}
		if filter.Type != "" && c.Type != filter.Type {
			continue
		}
		if filter.BatchID != "" && c.BatchID != filter.BatchID {
			continue
		}
		if search != "" && !containsFold(search, c.Title, c.Content) {
			continue
		}
		matched = append(matched, c)
	}
	s.mu.RUnlock()

	newestFirst(matched, func(c model.QRCode) time.Time { return c.CreatedAt })
	return page(matched, filter.Offset, filter.Limit), int64(len(matched)), nil
}

// Stats counts an account's active codes per type.
func (s *QRCodeStore) Stats(ctx context.Context, accountID string) (model.QRCodeStats, error) {
	s.mu.RLock()
	counts := map[string]int64{}
	var total int64
	for _, c := range s.byID {
		if c.AccountID == accountID && c.IsActive {
			counts[c.Type]++
			total++
		}
	}
	s.mu.RUnlock()

	stats := model.QRCodeStats{Total: total, ByType: make([]model.QRTypeCount, 0, len(counts))}
	for typ, n := range counts {
		stats.ByType = append(stats.ByType, model.QRTypeCount{Type: typ, Count: n})
	}
	sort.Slice(stats.ByType, func(i, j int) bool {
		a, b := stats.ByType[i], stats.ByType[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Type < b.Type
	})
	return stats, nil
}
