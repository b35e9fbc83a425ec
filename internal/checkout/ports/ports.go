// Package ports declares the interfaces the checkout service consumes. The
// order backend, loyalty program, and audit trail are collaborators; the
// service depends on these contracts, never on concrete adapters.
package ports

import (
	"context"

	"till/internal/audit"
	"till/internal/checkout/models"
)

// SaleBackend is the remote system of record for sales. It owns pricing
// authority, coupon/loyalty policy, finalize atomicity, and age arithmetic.
// Implementations: the HTTP client for the remote order service, and the
// embedded backend for tests and single-node deployments.
type SaleBackend interface {
	// Create opens a new sale (NEW -> DRAFT) seeded from the cart snapshot.
	Create(ctx context.Context, req models.CreateSaleRequest) (*models.Sale, error)

	// Get fetches the current authoritative sale document.
	Get(ctx context.Context, saleID string) (*models.Sale, error)

	// DraftUpdate replaces the sale's draft content with the full snapshot and
	// returns the recomputed authoritative document.
	DraftUpdate(ctx context.Context, saleID string, req models.DraftUpdateRequest) (*models.Sale, error)

	// Finalize irreversibly completes the sale with the given payments.
	Finalize(ctx context.Context, saleID string, req models.FinalizeRequest) (*models.Sale, error)

	// ListByFulfillmentStatus returns sales whose fulfillment is in the given status.
	ListByFulfillmentStatus(ctx context.Context, status models.FulfillmentStatus) ([]*models.Sale, error)

	// UpdateFulfillment updates a single sale's fulfillment fields.
	UpdateFulfillment(ctx context.Context, saleID string, f models.FulfillmentInfo) (*models.Sale, error)
}

// LoyaltyReader fetches a customer's available point balance. The balance only
// informs the operator; it never validates the redemption client-side.
type LoyaltyReader interface {
	Balance(ctx context.Context, customerID string) (int64, error)
}

// AuditPublisher records sale lifecycle events.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}
