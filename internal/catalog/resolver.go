package catalog

import (
	"context"

	"golang.org/x/sync/errgroup"

	"till/internal/checkout/models"
	dErrors "till/pkg/domain-errors"
)

// resolveConcurrency bounds parallel catalog lookups per batch.
const resolveConcurrency = 8

// LineRef identifies one requested cart line before pricing.
type LineRef struct {
	ProductID string
	VariantID string
	Quantity  int64
}

// Resolver batches catalog lookups for cart building.
type Resolver struct {
	client Client
}

func NewResolver(client Client) *Resolver {
	return &Resolver{client: client}
}

// Resolve fetches all referenced products in parallel and returns sale items
// in the same order as the refs. One failed lookup fails the batch; a cart
// with half-priced lines is worse than an error.
func (r *Resolver) Resolve(ctx context.Context, refs []LineRef) ([]models.SaleItem, error) {
	if len(refs) == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "at least one product reference is required")
	}

	items := make([]models.SaleItem, len(refs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(resolveConcurrency)

	for i, ref := range refs {
		if ref.Quantity <= 0 {
			return nil, dErrors.New(dErrors.CodeInvalidInput, "line quantity must be positive")
		}
		g.Go(func() error {
			product, err := r.client.Product(gctx, ref.ProductID, ref.VariantID)
			if err != nil {
				return dErrors.Wrap(err, dErrors.CodeUnavailable, "catalog lookup failed for "+ref.ProductID)
			}
			items[i] = models.SaleItem{
				ProductID:       product.ID,
				VariantID:       product.VariantID,
				Name:            product.Name,
				Quantity:        ref.Quantity,
				UnitPriceCents:  product.PriceCents,
				TaxIDs:          product.TaxIDs,
				RequiresIDCheck: product.RequiresIDCheck,
				MinimumAge:      product.MinimumAge,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return items, nil
}
