package store

import (
	"context"
	"sort"
	"sync"

	"till/internal/checkout/models"
	"till/pkg/platform/sentinel"
)

// MemoryStore is an in-memory SaleStore for tests and single-node deployments.
type MemoryStore struct {
	mu    sync.RWMutex
	sales map[string]*models.Sale
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sales: make(map[string]*models.Sale)}
}

func (s *MemoryStore) Create(_ context.Context, sale *models.Sale) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sales[sale.ID]; exists {
		return sentinel.ErrConflict
	}
	s.sales[sale.ID] = sale.Clone()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, saleID string) (*models.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sale, ok := s.sales[saleID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return sale.Clone(), nil
}

func (s *MemoryStore) Update(_ context.Context, sale *models.Sale) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sales[sale.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.sales[sale.ID] = sale.Clone()
	return nil
}

func (s *MemoryStore) ListByFulfillmentStatus(_ context.Context, status models.FulfillmentStatus) ([]*models.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Sale
	for _, sale := range s.sales {
		if sale.Fulfillment.Status == status {
			out = append(out, sale.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
