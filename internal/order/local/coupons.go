package local

import (
	"sync"
	"time"

	"till/internal/checkout/models"
	"till/internal/checkout/pricing"
	dErrors "till/pkg/domain-errors"
)

// Coupon is a promotion rule the backend owns. Terminals never see these
// fields; they submit a raw code and read the effect off the refreshed sale.
type Coupon struct {
	Code             string
	Type             models.DiscountType
	Value            int64
	MinSubtotalCents int64
	ValidFrom        time.Time
	ValidUntil       time.Time
	// MaxRedemptions of 0 means unlimited.
	MaxRedemptions int
}

type couponState struct {
	coupon      Coupon
	redemptions int
}

// CouponRegistry holds the active promotion rules and their redemption counts.
type CouponRegistry struct {
	mu      sync.Mutex
	coupons map[string]*couponState
}

func NewCouponRegistry(coupons ...Coupon) *CouponRegistry {
	r := &CouponRegistry{coupons: make(map[string]*couponState)}
	for _, c := range coupons {
		r.coupons[c.Code] = &couponState{coupon: c}
	}
	return r
}

// Discount validates the code against the current subtotal and returns the
// discount it grants. Rejection messages are operator-facing; the terminal
// relays them verbatim.
func (r *CouponRegistry) Discount(code string, subtotalCents int64, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.coupons[code]
	if !ok {
		return 0, dErrors.New(dErrors.CodeUnprocessable, "coupon code not recognized")
	}
	c := state.coupon
	if !c.ValidFrom.IsZero() && now.Before(c.ValidFrom) {
		return 0, dErrors.New(dErrors.CodeUnprocessable, "coupon is not active yet")
	}
	if !c.ValidUntil.IsZero() && now.After(c.ValidUntil) {
		return 0, dErrors.New(dErrors.CodeUnprocessable, "coupon has expired")
	}
	if c.MaxRedemptions > 0 && state.redemptions >= c.MaxRedemptions {
		return 0, dErrors.New(dErrors.CodeUnprocessable, "coupon redemption limit reached")
	}
	if subtotalCents < c.MinSubtotalCents {
		return 0, dErrors.Newf(dErrors.CodeUnprocessable,
			"coupon requires a minimum subtotal of %d cents", c.MinSubtotalCents)
	}

	discount := pricing.OrderDiscountAmount(subtotalCents, &models.OrderDiscount{Type: c.Type, Value: c.Value})
	return discount, nil
}

// MarkRedeemed counts one redemption of the code. Called on finalize, not on
// draft application, so abandoned drafts never burn a redemption.
func (r *CouponRegistry) MarkRedeemed(code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if state, ok := r.coupons[code]; ok {
		state.redemptions++
	}
}
