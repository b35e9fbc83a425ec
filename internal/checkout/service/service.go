// Package service implements the sale lifecycle controller. It drives a sale
// through NEW -> DRAFT -> FINALIZING -> FINALIZED against the order backend,
// resending the full snapshot on every mutation and replacing local knowledge
// with the backend's authoritative response.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"till/internal/audit"
	"till/internal/checkout/metrics"
	"till/internal/checkout/models"
	"till/internal/checkout/ports"
	dErrors "till/pkg/domain-errors"
	"till/pkg/platform/sentinel"
)

// Capability is the explicit entitlement passed into the core for each
// request. The service never reads ambient session state.
type Capability struct {
	OperatorID  string
	LocationID  string
	RegisterID  string
	Device      string
	CanFinalize bool
}

type Service struct {
	backend        ports.SaleBackend
	loyalty        ports.LoyaltyReader
	auditPublisher ports.AuditPublisher
	metrics        *metrics.Metrics
	logger         *slog.Logger
	tracer         trace.Tracer

	// allowBalanceDue permits finalizing with tenders short of the total
	// (invoice-on-account). Default false: zero balance required.
	allowBalanceDue bool

	// Draft updates are serialized per sale: a single writer per remote sale
	// record, so two mutating actions can never interleave round trips.
	mu    sync.Mutex
	sales map[string]*saleEntry
}

type saleEntry struct {
	mu         sync.Mutex
	finalizing bool
	// last is the most recent authoritative document from the backend. It is
	// replaced wholesale on every response and never merged.
	last *models.Sale
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithLoyalty(loyalty ports.LoyaltyReader) Option {
	return func(s *Service) { s.loyalty = loyalty }
}

func WithAuditPublisher(publisher ports.AuditPublisher) Option {
	return func(s *Service) { s.auditPublisher = publisher }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithAllowBalanceDue enables finalizing sales that still carry a balance due.
func WithAllowBalanceDue(allow bool) Option {
	return func(s *Service) { s.allowBalanceDue = allow }
}

func New(backend ports.SaleBackend, opts ...Option) (*Service, error) {
	if backend == nil {
		return nil, fmt.Errorf("sale backend is required")
	}

	svc := &Service{
		backend: backend,
		logger:  slog.New(slog.DiscardHandler),
		tracer:  otel.Tracer("till/checkout"),
		sales:   make(map[string]*saleEntry),
	}

	for _, opt := range opts {
		opt(svc)
	}

	return svc, nil
}

func (s *Service) entry(saleID string) *saleEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sales[saleID]
	if !ok {
		e = &saleEntry{}
		s.sales[saleID] = e
	}
	return e
}

// CreateSale opens a new sale from the cart snapshot (NEW -> DRAFT).
func (s *Service) CreateSale(ctx context.Context, req models.CreateSaleRequest, cap Capability) (*models.Sale, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "checkout.create_sale")
	defer span.End()

	sale, err := s.backend.Create(ctx, req)
	if err != nil {
		return nil, translateBackendErr(err, "create sale")
	}
	span.SetAttributes(attribute.String("sale.id", sale.ID))
	s.remember(sale)

	s.metrics.IncrementSalesCreated()
	s.emitAudit(ctx, audit.Event{
		Type:       audit.EventSaleCreated,
		SaleID:     sale.ID,
		LocationID: req.LocationID,
		RegisterID: req.RegisterID,
		OperatorID: cap.OperatorID,
		Device:     cap.Device,
		TotalCents: sale.TotalCents,
	})

	s.logger.InfoContext(ctx, "sale created",
		"sale_id", sale.ID,
		"location_id", req.LocationID,
		"register_id", req.RegisterID,
		"total_cents", sale.TotalCents,
	)
	return sale, nil
}

// remember replaces the cached document for the sale with a deep copy of the
// backend's response.
func (s *Service) remember(sale *models.Sale) {
	if sale == nil {
		return
	}
	e := s.entry(sale.ID)
	e.mu.Lock()
	e.last = sale.Clone()
	e.mu.Unlock()
}

// GetSale fetches the current authoritative sale document.
func (s *Service) GetSale(ctx context.Context, saleID string) (*models.Sale, error) {
	sale, err := s.backend.Get(ctx, saleID)
	if err != nil {
		return nil, translateBackendErr(err, "get sale")
	}
	s.remember(sale)
	return sale, nil
}

// UpdateDraft resubmits the full snapshot for the sale and returns the
// backend's recomputed document. Calls for the same sale are serialized.
func (s *Service) UpdateDraft(ctx context.Context, saleID string, req models.DraftUpdateRequest) (*models.Sale, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	e := s.entry(saleID)
	e.mu.Lock()
	defer e.mu.Unlock()

	return s.draftUpdateLocked(ctx, e, saleID, req)
}

// draftUpdateLocked issues the round trip. Callers hold the entry's lock.
func (s *Service) draftUpdateLocked(ctx context.Context, e *saleEntry, saleID string, req models.DraftUpdateRequest) (*models.Sale, error) {
	ctx, span := s.tracer.Start(ctx, "checkout.draft_update",
		trace.WithAttributes(attribute.String("sale.id", saleID)))
	defer span.End()

	start := time.Now()
	sale, err := s.backend.DraftUpdate(ctx, saleID, req)
	s.metrics.ObserveDraftUpdateLatency(time.Since(start))
	if err != nil {
		return nil, translateBackendErr(err, "draft update")
	}
	e.last = sale.Clone()
	return sale, nil
}

// AttachCustomer links a customer to the sale and fetches the loyalty balance
// to inform the operator. The balance is advisory; a fetch failure never
// fails the attach. Returns nil balance when unknown.
func (s *Service) AttachCustomer(ctx context.Context, saleID, customerID string) (*models.Sale, *int64, error) {
	if customerID == "" {
		return nil, nil, dErrors.New(dErrors.CodeInvalidInput, "customer_id is required")
	}

	e := s.entry(saleID)
	e.mu.Lock()
	defer e.mu.Unlock()

	current, err := s.backend.Get(ctx, saleID)
	if err != nil {
		return nil, nil, translateBackendErr(err, "get sale")
	}
	req := models.SnapshotOf(current)
	req.CustomerID = customerID

	var (
		sale    *models.Sale
		balance *int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		updated, err := s.draftUpdateLocked(gctx, e, saleID, req)
		if err != nil {
			return err
		}
		sale = updated
		return nil
	})
	g.Go(func() error {
		if s.loyalty == nil {
			return nil
		}
		points, err := s.loyalty.Balance(gctx, customerID)
		if err != nil {
			// Advisory only: the operator just won't see a balance.
			s.logger.WarnContext(gctx, "loyalty balance fetch failed",
				"customer_id", customerID,
				"error", err,
			)
			return nil
		}
		balance = &points
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return sale, balance, nil
}

// ApplyCoupon forwards the raw code with the full current snapshot. The
// discount effect is only known from the refreshed sale record.
func (s *Service) ApplyCoupon(ctx context.Context, saleID, code string) (*models.Sale, error) {
	if code == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "coupon code is required")
	}
	return s.resubmitWith(ctx, saleID, func(req *models.DraftUpdateRequest) {
		req.CouponCode = code
	})
}

// RemoveCoupon clears the applied coupon code.
func (s *Service) RemoveCoupon(ctx context.Context, saleID string) (*models.Sale, error) {
	return s.resubmitWith(ctx, saleID, func(req *models.DraftUpdateRequest) {
		req.CouponCode = ""
	})
}

// RedeemLoyalty forwards the raw point count with the full current snapshot.
// Eligibility and balance enforcement are backend policy.
func (s *Service) RedeemLoyalty(ctx context.Context, saleID string, points int64) (*models.Sale, error) {
	if points < 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "loyalty points redeemed cannot be negative")
	}
	return s.resubmitWith(ctx, saleID, func(req *models.DraftUpdateRequest) {
		req.LoyaltyPointsRedeemed = points
	})
}

// UpdateDraftFulfillment replaces the fulfillment disposition on the draft.
func (s *Service) UpdateDraftFulfillment(ctx context.Context, saleID string, f models.FulfillmentInfo) (*models.Sale, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return s.resubmitWith(ctx, saleID, func(req *models.DraftUpdateRequest) {
		req.Fulfillment = f
	})
}

// resubmitWith fetches the authoritative sale, applies one change to its
// snapshot, and resubmits the whole document under the sale's lock.
func (s *Service) resubmitWith(ctx context.Context, saleID string, change func(*models.DraftUpdateRequest)) (*models.Sale, error) {
	e := s.entry(saleID)
	e.mu.Lock()
	defer e.mu.Unlock()

	current, err := s.backend.Get(ctx, saleID)
	if err != nil {
		return nil, translateBackendErr(err, "get sale")
	}
	req := models.SnapshotOf(current)
	change(&req)
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return s.draftUpdateLocked(ctx, e, saleID, req)
}

// ListFulfillment returns sales in the given fulfillment status.
func (s *Service) ListFulfillment(ctx context.Context, status models.FulfillmentStatus) ([]*models.Sale, error) {
	if !status.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "invalid fulfillment status")
	}
	sales, err := s.backend.ListByFulfillmentStatus(ctx, status)
	if err != nil {
		return nil, translateBackendErr(err, "list fulfillment")
	}
	return sales, nil
}

// SetFulfillment updates fulfillment fields of a single sale via the
// fulfillment queue, including sales already finalized.
func (s *Service) SetFulfillment(ctx context.Context, saleID string, f models.FulfillmentInfo) (*models.Sale, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	e := s.entry(saleID)
	e.mu.Lock()
	defer e.mu.Unlock()

	sale, err := s.backend.UpdateFulfillment(ctx, saleID, f)
	if err != nil {
		return nil, translateBackendErr(err, "update fulfillment")
	}
	e.last = sale.Clone()
	return sale, nil
}

func (s *Service) emitAudit(ctx context.Context, event audit.Event) {
	if s.auditPublisher == nil {
		return
	}
	if err := s.auditPublisher.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "audit emit failed",
			"sale_id", event.SaleID,
			"type", string(event.Type),
			"error", err,
		)
	}
}

// translateBackendErr maps infrastructure sentinels onto domain errors while
// passing coded errors through untouched. Failures never leave the local
// snapshot partially merged: callers return before touching any cache.
func translateBackendErr(err error, action string) error {
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, "sale not found")
	case errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.Wrap(err, dErrors.CodeConflict, "sale is no longer mutable")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, action+" conflicted with a concurrent change")
	case errors.Is(err, sentinel.ErrUnavailable):
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "order backend unreachable")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, action+" failed")
	}
}
