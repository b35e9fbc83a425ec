package registertoken

import (
	"context"
	"sync"

	"till/pkg/platform/sentinel"
)

// MemoryOperatorStore holds operators in memory, seeded at startup.
type MemoryOperatorStore struct {
	mu        sync.RWMutex
	operators map[string]*Operator
}

func NewMemoryOperatorStore(operators ...*Operator) *MemoryOperatorStore {
	s := &MemoryOperatorStore{operators: make(map[string]*Operator)}
	for _, op := range operators {
		s.operators[op.ID] = op
	}
	return s
}

func (s *MemoryOperatorStore) Add(operator *Operator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.operators[operator.ID] = operator
}

func (s *MemoryOperatorStore) FindOperator(_ context.Context, operatorID string) (*Operator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	operator, ok := s.operators[operatorID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *operator
	return &clone, nil
}
