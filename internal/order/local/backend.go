// Package local is the embedded order backend: the authoritative pricing,
// promotion, and finalize engine backed by a SaleStore. It serves single-node
// deployments and tests; multi-node deployments point the terminal at the
// remote order service instead.
package local

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"till/internal/checkout/compliance"
	"till/internal/checkout/models"
	"till/internal/checkout/pricing"
	"till/internal/checkout/tender"
	"till/internal/order/store"
	dErrors "till/pkg/domain-errors"
	"till/pkg/platform/sentinel"
)

// LoyaltyLedger is the point balance the backend debits on finalize. One point
// is worth one cent.
type LoyaltyLedger interface {
	Balance(ctx context.Context, customerID string) (int64, error)
	Redeem(ctx context.Context, customerID string, points int64) error
}

// CustomerResolver turns a customer ID into the reference embedded in the sale.
type CustomerResolver interface {
	Resolve(ctx context.Context, customerID string) (*models.CustomerRef, error)
}

type Backend struct {
	store     store.SaleStore
	coupons   *CouponRegistry
	loyalty   LoyaltyLedger
	customers CustomerResolver
	logger    *slog.Logger
	now       func() time.Time

	taxRateBps      int64
	allowBalanceDue bool

	// Finalize must be atomic per sale even when the store is shared.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

type Option func(*Backend)

func WithLogger(logger *slog.Logger) Option {
	return func(b *Backend) { b.logger = logger }
}

func WithCoupons(registry *CouponRegistry) Option {
	return func(b *Backend) { b.coupons = registry }
}

func WithLoyalty(ledger LoyaltyLedger) Option {
	return func(b *Backend) { b.loyalty = ledger }
}

func WithCustomers(resolver CustomerResolver) Option {
	return func(b *Backend) { b.customers = resolver }
}

// WithTaxRate sets a flat tax rate in basis points applied to the discounted
// goods total.
func WithTaxRate(bps int64) Option {
	return func(b *Backend) { b.taxRateBps = bps }
}

// WithAllowBalanceDue permits finalizing sales whose tenders fall short of the
// total (invoice-on-account).
func WithAllowBalanceDue(allow bool) Option {
	return func(b *Backend) { b.allowBalanceDue = allow }
}

// WithClock overrides wall-clock time for coupon windows and age checks.
func WithClock(now func() time.Time) Option {
	return func(b *Backend) { b.now = now }
}

func New(saleStore store.SaleStore, opts ...Option) (*Backend, error) {
	if saleStore == nil {
		return nil, fmt.Errorf("sale store is required")
	}

	b := &Backend{
		store:   saleStore,
		coupons: NewCouponRegistry(),
		logger:  slog.New(slog.DiscardHandler),
		now:     time.Now,
		locks:   make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

func (b *Backend) lock(saleID string) *sync.Mutex {
	b.mu.Lock()
	defer b.mu.Unlock()
	l, ok := b.locks[saleID]
	if !ok {
		l = &sync.Mutex{}
		b.locks[saleID] = l
	}
	return l
}

func (b *Backend) Create(ctx context.Context, req models.CreateSaleRequest) (*models.Sale, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := b.now()
	sale := &models.Sale{
		ID:            uuid.NewString(),
		State:         models.StateDraft,
		Channel:       req.Channel,
		LocationID:    req.LocationID,
		RegisterID:    req.RegisterID,
		Items:         append([]models.SaleItem(nil), req.Items...),
		OrderDiscount: req.OrderDiscount,
		Fulfillment: models.FulfillmentInfo{
			Type:   models.FulfillInStore,
			Status: models.FulfillPending,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := b.recompute(ctx, sale); err != nil {
		return nil, err
	}
	if err := b.store.Create(ctx, sale); err != nil {
		return nil, fmt.Errorf("create sale: %w", err)
	}

	b.logger.InfoContext(ctx, "sale opened",
		"sale_id", sale.ID,
		"location_id", sale.LocationID,
		"total_cents", sale.TotalCents,
	)
	return sale, nil
}

func (b *Backend) Get(ctx context.Context, saleID string) (*models.Sale, error) {
	return b.store.Get(ctx, saleID)
}

// DraftUpdate replaces the draft content wholesale with the snapshot and
// recomputes every derived amount. Resubmitting the same snapshot yields the
// same document, so client retries are harmless.
func (b *Backend) DraftUpdate(ctx context.Context, saleID string, req models.DraftUpdateRequest) (*models.Sale, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	l := b.lock(saleID)
	l.Lock()
	defer l.Unlock()

	sale, err := b.store.Get(ctx, saleID)
	if err != nil {
		return nil, err
	}
	if !sale.Mutable() {
		return nil, sentinel.ErrInvalidState
	}

	sale.Channel = req.Channel
	sale.Items = append([]models.SaleItem(nil), req.Items...)
	sale.OrderDiscount = req.OrderDiscount
	sale.CouponCode = req.CouponCode
	sale.LoyaltyPointsRedeemed = req.LoyaltyPointsRedeemed
	sale.Fulfillment = req.Fulfillment
	if sale.Fulfillment.Status == "" {
		sale.Fulfillment.Status = models.FulfillPending
	}

	if req.CustomerID == "" {
		sale.Customer = nil
	} else if sale.Customer == nil || sale.Customer.ID != req.CustomerID {
		ref, err := b.resolveCustomer(ctx, req.CustomerID)
		if err != nil {
			return nil, err
		}
		sale.Customer = ref
	}

	if err := b.recompute(ctx, sale); err != nil {
		return nil, err
	}
	sale.UpdatedAt = b.now()
	if err := b.store.Update(ctx, sale); err != nil {
		return nil, fmt.Errorf("update sale: %w", err)
	}
	return sale, nil
}

func (b *Backend) resolveCustomer(ctx context.Context, customerID string) (*models.CustomerRef, error) {
	if b.customers == nil {
		return &models.CustomerRef{ID: customerID, DisplayName: customerID}, nil
	}
	ref, err := b.customers.Resolve(ctx, customerID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnprocessable, "customer not found")
	}
	return ref, nil
}

// recompute rederives subtotal, discounts, tax, shipping, and total from the
// sale's current content. This is the single pricing authority; the terminal
// only previews with the same formula.
func (b *Backend) recompute(ctx context.Context, sale *models.Sale) error {
	quote := pricing.Preview(sale.Items, sale.OrderDiscount)
	sale.SubtotalCents = quote.SubtotalCents
	discount := quote.LineDiscountCents + quote.OrderDiscountCents
	goods := quote.TotalCents

	if sale.CouponCode != "" {
		couponDiscount, err := b.coupons.Discount(sale.CouponCode, sale.SubtotalCents, b.now())
		if err != nil {
			return err
		}
		if couponDiscount > goods {
			couponDiscount = goods
		}
		discount += couponDiscount
		goods -= couponDiscount
	}

	if sale.LoyaltyPointsRedeemed > 0 {
		credit, err := b.loyaltyCredit(ctx, sale, goods)
		if err != nil {
			return err
		}
		sale.LoyaltyPointsRedeemed = credit
		discount += credit
		goods -= credit
	}

	sale.DiscountCents = discount
	sale.TaxCents = pricing.Tax(goods, b.taxRateBps)
	sale.ShippingCents = sale.Fulfillment.ShippingCostCents
	sale.TotalCents = goods + sale.TaxCents + sale.ShippingCents
	return nil
}

// loyaltyCredit caps the requested points at the customer's balance and the
// remaining goods total. One point is one cent.
func (b *Backend) loyaltyCredit(ctx context.Context, sale *models.Sale, goodsCents int64) (int64, error) {
	if sale.Customer == nil {
		return 0, dErrors.New(dErrors.CodeUnprocessable, "loyalty redemption requires an attached customer")
	}
	if b.loyalty == nil {
		return 0, dErrors.New(dErrors.CodeUnprocessable, "loyalty program is not available")
	}
	balance, err := b.loyalty.Balance(ctx, sale.Customer.ID)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeUnavailable, "loyalty program unreachable")
	}
	credit := sale.LoyaltyPointsRedeemed
	if credit > balance {
		credit = balance
	}
	if credit > goodsCents {
		credit = goodsCents
	}
	return credit, nil
}

// Finalize atomically completes the sale: one state check, one payment
// validation, one write. Coupon redemptions and loyalty debits happen here,
// never during drafting.
func (b *Backend) Finalize(ctx context.Context, saleID string, req models.FinalizeRequest) (*models.Sale, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	l := b.lock(saleID)
	l.Lock()
	defer l.Unlock()

	sale, err := b.store.Get(ctx, saleID)
	if err != nil {
		return nil, err
	}
	if !sale.Mutable() {
		return nil, sentinel.ErrInvalidState
	}

	if err := b.checkAge(sale, req.IDVerification); err != nil {
		return nil, err
	}

	totals := tender.Compute(req.Payments, sale.TotalCents)
	if totals.BalanceDueCents > 0 && !b.allowBalanceDue {
		return nil, dErrors.Newf(dErrors.CodeUnprocessable,
			"payments cover %d of %d cents", totals.PaidTotalCents, sale.TotalCents)
	}

	if sale.LoyaltyPointsRedeemed > 0 {
		if err := b.loyalty.Redeem(ctx, sale.Customer.ID, sale.LoyaltyPointsRedeemed); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeUnprocessable, "loyalty redemption failed")
		}
	}
	if sale.CouponCode != "" {
		b.coupons.MarkRedeemed(sale.CouponCode)
	}

	now := b.now()
	sale.State = models.StateFinalized
	sale.Payments = append([]models.PaymentLine(nil), req.Payments...)
	sale.FinalizedAt = &now
	sale.UpdatedAt = now
	if err := b.store.Update(ctx, sale); err != nil {
		return nil, fmt.Errorf("finalize sale: %w", err)
	}

	b.logger.InfoContext(ctx, "sale finalized",
		"sale_id", sale.ID,
		"total_cents", sale.TotalCents,
		"paid_cents", totals.PaidTotalCents,
		"change_cents", totals.ChangeDueCents,
	)
	return sale, nil
}

// checkAge enforces the age restriction server-side. The terminal's gate only
// checks field presence; the arithmetic against the birth date happens here.
func (b *Backend) checkAge(sale *models.Sale, idv *models.IDVerification) error {
	requirement := compliance.Evaluate(sale.Items)
	if !requirement.Required {
		return nil
	}
	if !requirement.Satisfied(idv) {
		return dErrors.New(dErrors.CodeUnprocessable, "identity verification is required for this sale")
	}
	birthDate, err := time.Parse("2006-01-02", idv.BirthDate)
	if err != nil {
		return dErrors.New(dErrors.CodeUnprocessable, "birth date must be an ISO-8601 date")
	}
	if ageAt(birthDate, b.now()) < requirement.MinimumAge {
		return dErrors.Newf(dErrors.CodeUnprocessable,
			"customer does not meet the minimum age of %d", requirement.MinimumAge)
	}
	return nil
}

// ageAt computes whole years between birth date and now, calendar-aware.
func ageAt(birthDate, now time.Time) int {
	years := now.Year() - birthDate.Year()
	anniversary := birthDate.AddDate(years, 0, 0)
	if anniversary.After(now) {
		years--
	}
	return years
}

func (b *Backend) ListByFulfillmentStatus(ctx context.Context, status models.FulfillmentStatus) ([]*models.Sale, error) {
	return b.store.ListByFulfillmentStatus(ctx, status)
}

// UpdateFulfillment serves the fulfillment queue. Drafts accept any change and
// reprice; finalized sales accept disposition changes only, since the money is
// already settled.
func (b *Backend) UpdateFulfillment(ctx context.Context, saleID string, f models.FulfillmentInfo) (*models.Sale, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	l := b.lock(saleID)
	l.Lock()
	defer l.Unlock()

	sale, err := b.store.Get(ctx, saleID)
	if err != nil {
		return nil, err
	}

	if sale.Mutable() {
		sale.Fulfillment = f
		if sale.Fulfillment.Status == "" {
			sale.Fulfillment.Status = models.FulfillPending
		}
		if err := b.recompute(ctx, sale); err != nil {
			return nil, err
		}
	} else {
		if f.Type != sale.Fulfillment.Type {
			return nil, dErrors.New(dErrors.CodeConflict, "fulfillment type cannot change after finalize")
		}
		sale.Fulfillment.Status = f.Status
		sale.Fulfillment.Carrier = f.Carrier
		sale.Fulfillment.TrackingNumber = f.TrackingNumber
		sale.Fulfillment.DeliveryInstructions = f.DeliveryInstructions
		sale.Fulfillment.ScheduledFor = f.ScheduledFor
	}

	sale.UpdatedAt = b.now()
	if err := b.store.Update(ctx, sale); err != nil {
		return nil, fmt.Errorf("update fulfillment: %w", err)
	}
	return sale, nil
}
