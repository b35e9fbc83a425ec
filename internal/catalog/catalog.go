// Package catalog resolves product references into priced cart lines. The
// catalog is a separate system; the terminal only needs point lookups when
// lines are added, so the client surface is small.
package catalog

import (
	"context"
	"time"
)

// Product is the catalog's view of a sellable item.
type Product struct {
	ID              string   `json:"id"`
	VariantID       string   `json:"variant_id,omitempty"`
	Name            string   `json:"name"`
	PriceCents      int64    `json:"price_cents"`
	TaxIDs          []string `json:"tax_ids,omitempty"`
	RequiresIDCheck bool     `json:"requires_id_check,omitempty"`
	MinimumAge      int      `json:"minimum_age,omitempty"`
}

// Client queries the product catalog. Mock implementations use deterministic
// data and a configurable latency to mimic real-world calls.
type Client interface {
	Product(ctx context.Context, productID, variantID string) (Product, error)
}

// MockClient serves a fixed product set, falling back to deterministic
// synthetic products for unknown IDs.
type MockClient struct {
	Latency  time.Duration
	Products map[string]Product
}

func (c MockClient) Product(_ context.Context, productID, variantID string) (Product, error) {
	time.Sleep(c.Latency)
	if p, ok := c.Products[productID]; ok {
		p.VariantID = variantID
		return p, nil
	}
	return Product{
		ID:         productID,
		VariantID:  variantID,
		Name:       "Product " + productID,
		PriceCents: syntheticPrice(productID),
	}, nil
}

// syntheticPrice derives a stable price from the product ID so repeated
// lookups agree.
func syntheticPrice(productID string) int64 {
	var h int64
	for _, r := range productID {
		h = h*31 + int64(r)
	}
	if h < 0 {
		h = -h
	}
	return 100 + h%9900
}
