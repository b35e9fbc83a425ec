package customer

import "context"

// Store is the persistence contract for customer records.
type Store interface {
	// Create inserts a new customer. Returns sentinel.ErrConflict on duplicate ID.
	Create(ctx context.Context, customer *Customer) error

	// Get fetches a customer by ID. Returns sentinel.ErrNotFound when absent.
	Get(ctx context.Context, customerID string) (*Customer, error)

	// Search matches the query against display name, email, and phone,
	// case-insensitively. An empty query returns nothing.
	Search(ctx context.Context, query string, limit int) ([]*Customer, error)
}
