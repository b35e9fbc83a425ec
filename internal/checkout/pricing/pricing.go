// Package pricing previews sale totals with the same formula the order
// backend applies. All math is integer cents; percentages are basis points.
// This is pure domain logic - no I/O, no side effects.
package pricing

import "till/internal/checkout/models"

// BasisPointsDenominator converts basis points to a fraction (10000 bps = 100%).
const BasisPointsDenominator = 10000

// Quote is the previewed breakdown of a cart before sale creation. Tax and
// shipping are owned by the order backend and absent here.
type Quote struct {
	SubtotalCents      int64
	LineDiscountCents  int64
	OrderDiscountCents int64
	TotalCents         int64
}

// Subtotal sums unit price times quantity over all items. Exact, no rounding.
func Subtotal(items []models.SaleItem) int64 {
	var total int64
	for _, item := range items {
		total += item.LineTotalCents()
	}
	return total
}

// LineDiscount computes the discount for a single item, clamped so a line can
// never go negative. Percent discounts round half-up on cents.
func LineDiscount(item models.SaleItem) int64 {
	if item.Discount == nil {
		return 0
	}
	lineTotal := item.LineTotalCents()
	var discount int64
	switch item.Discount.Type {
	case models.DiscountPercent:
		discount = roundHalfUpBps(lineTotal, item.Discount.Value)
	case models.DiscountFixed:
		discount = item.Discount.Value
	}
	return clamp(discount, lineTotal)
}

// OrderDiscountAmount computes the order-level discount against the subtotal,
// clamped so the discount never exceeds it.
func OrderDiscountAmount(subtotalCents int64, discount *models.OrderDiscount) int64 {
	if discount == nil {
		return 0
	}
	var amount int64
	switch discount.Type {
	case models.DiscountPercent:
		amount = roundHalfUpBps(subtotalCents, discount.Value)
	case models.DiscountFixed:
		amount = discount.Value
	}
	return clamp(amount, subtotalCents)
}

// Preview computes the full quote:
//
//	total = max(subtotal - Σ lineDiscounts - orderDiscount, 0)
func Preview(items []models.SaleItem, orderDiscount *models.OrderDiscount) Quote {
	q := Quote{SubtotalCents: Subtotal(items)}
	for _, item := range items {
		q.LineDiscountCents += LineDiscount(item)
	}
	q.OrderDiscountCents = OrderDiscountAmount(q.SubtotalCents, orderDiscount)
	q.TotalCents = q.SubtotalCents - q.LineDiscountCents - q.OrderDiscountCents
	if q.TotalCents < 0 {
		q.TotalCents = 0
	}
	return q
}

// Tax computes tax on the discounted base at rateBps, round half-up.
func Tax(baseCents, rateBps int64) int64 {
	if rateBps <= 0 || baseCents <= 0 {
		return 0
	}
	return roundHalfUpBps(baseCents, rateBps)
}

// roundHalfUpBps computes amount*bps/10000 with round-half-up on the cent.
// Inputs are non-negative by validation.
func roundHalfUpBps(amountCents, bps int64) int64 {
	return (amountCents*bps + BasisPointsDenominator/2) / BasisPointsDenominator
}

func clamp(v, max int64) int64 {
	if v > max {
		return max
	}
	if v < 0 {
		return 0
	}
	return v
}
