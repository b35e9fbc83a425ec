// Package store persists sale documents for the embedded order backend. The
// sale is stored as one coarse document; the backend rewrites it wholesale on
// every draft update, so the store never needs partial updates.
package store

import (
	"context"

	"till/internal/checkout/models"
)

// SaleStore is the persistence contract for sale documents.
type SaleStore interface {
	// Create inserts a new sale. Returns sentinel.ErrConflict when the ID exists.
	Create(ctx context.Context, sale *models.Sale) error

	// Get fetches a sale by ID. Returns sentinel.ErrNotFound when absent.
	Get(ctx context.Context, saleID string) (*models.Sale, error)

	// Update replaces the stored document. Returns sentinel.ErrNotFound when absent.
	Update(ctx context.Context, sale *models.Sale) error

	// ListByFulfillmentStatus returns sales whose fulfillment is in the given
	// status, oldest first.
	ListByFulfillmentStatus(ctx context.Context, status models.FulfillmentStatus) ([]*models.Sale, error)
}
