package customer

import (
	"context"
	"sort"
	"strings"
	"sync"

	"till/pkg/platform/sentinel"
)

// MemoryStore is an in-memory customer store for tests and single-node
// deployments.
type MemoryStore struct {
	mu        sync.RWMutex
	customers map[string]*Customer
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{customers: make(map[string]*Customer)}
}

func (s *MemoryStore) Create(_ context.Context, customer *Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.customers[customer.ID]; exists {
		return sentinel.ErrConflict
	}
	clone := *customer
	s.customers[customer.ID] = &clone
	return nil
}

func (s *MemoryStore) Get(_ context.Context, customerID string) (*Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	customer, ok := s.customers[customerID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *customer
	return &clone, nil
}

func (s *MemoryStore) Search(_ context.Context, query string, limit int) ([]*Customer, error) {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Customer
	for _, customer := range s.customers {
		if strings.Contains(strings.ToLower(customer.DisplayName), query) ||
			strings.Contains(strings.ToLower(customer.Email), query) ||
			strings.Contains(customer.Phone, query) {
			clone := *customer
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DisplayName < out[j].DisplayName })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
