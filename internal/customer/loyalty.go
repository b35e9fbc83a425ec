package customer

import (
	"context"
	"sync"

	dErrors "till/pkg/domain-errors"
)

// LoyaltyLedger tracks point balances. One point is worth one cent at
// redemption.
type LoyaltyLedger interface {
	Balance(ctx context.Context, customerID string) (int64, error)
	Accrue(ctx context.Context, customerID string, points int64) error
	Redeem(ctx context.Context, customerID string, points int64) error
}

// MemoryLedger is an in-memory loyalty ledger. Unknown customers have a zero
// balance rather than an error; the program treats everyone as enrolled.
type MemoryLedger struct {
	mu       sync.Mutex
	balances map[string]int64
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{balances: make(map[string]int64)}
}

func (l *MemoryLedger) Balance(_ context.Context, customerID string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[customerID], nil
}

func (l *MemoryLedger) Accrue(_ context.Context, customerID string, points int64) error {
	if points < 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "accrued points cannot be negative")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[customerID] += points
	return nil
}

func (l *MemoryLedger) Redeem(_ context.Context, customerID string, points int64) error {
	if points < 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "redeemed points cannot be negative")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.balances[customerID] < points {
		return dErrors.New(dErrors.CodeUnprocessable, "insufficient loyalty balance")
	}
	l.balances[customerID] -= points
	return nil
}
