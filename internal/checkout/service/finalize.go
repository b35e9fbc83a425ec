package service

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"till/internal/audit"
	"till/internal/checkout/compliance"
	"till/internal/checkout/models"
	"till/internal/checkout/tender"
	dErrors "till/pkg/domain-errors"
)

const (
	outcomeFinalized = "finalized"
	outcomeRejected  = "rejected"
	outcomeBlocked   = "blocked"
)

// Finalize completes the sale. Pre-flight checks run in order before any
// backend call: capability, compliance gate, balance policy. A failed
// finalize at any step leaves the sale in DRAFT; the operator can adjust
// payments or collect ID and retry.
func (s *Service) Finalize(ctx context.Context, saleID string, req models.FinalizeRequest, cap Capability) (*models.Sale, error) {
	if !cap.CanFinalize {
		return nil, dErrors.New(dErrors.CodeForbidden, "register token does not grant finalize")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	e := s.entry(saleID)
	e.mu.Lock()
	if e.finalizing {
		e.mu.Unlock()
		return nil, dErrors.New(dErrors.CodeConflict, "finalize already in progress for this sale")
	}
	e.finalizing = true
	sale := e.last.Clone()
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.finalizing = false
		e.mu.Unlock()
	}()

	ctx, span := s.tracer.Start(ctx, "checkout.finalize",
		trace.WithAttributes(attribute.String("sale.id", saleID)))
	defer span.End()

	// Gate and balance checks run against the last-known document so a
	// blocked finalize issues no backend call at all.
	if sale == nil {
		var err error
		sale, err = s.backend.Get(ctx, saleID)
		if err != nil {
			return nil, translateBackendErr(err, "get sale")
		}
	}
	if !sale.Mutable() {
		s.metrics.IncrementFinalizeOutcome(outcomeRejected)
		return nil, dErrors.Newf(dErrors.CodeConflict, "sale is %s and cannot be finalized", sale.State)
	}

	// Compliance gate. Fail closed before the backend ever sees the attempt.
	requirement := compliance.Evaluate(sale.Items)
	if err := requirement.Check(req.IDVerification); err != nil {
		s.metrics.IncrementFinalizeOutcome(outcomeBlocked)
		s.metrics.IncrementComplianceBlock()
		s.logger.WarnContext(ctx, "finalize blocked by compliance gate",
			"sale_id", saleID,
			"minimum_age", requirement.MinimumAge,
		)
		return nil, dErrors.Wrap(err, dErrors.CodeUnprocessable, "identity verification required for age-restricted items")
	}

	totals := tender.Compute(req.Payments, sale.TotalCents)
	if totals.BalanceDueCents > 0 && !s.allowBalanceDue {
		s.metrics.IncrementFinalizeOutcome(outcomeRejected)
		return nil, dErrors.Newf(dErrors.CodeUnprocessable,
			"payments cover %d of %d cents; balance due not allowed", totals.PaidTotalCents, sale.TotalCents)
	}

	finalized, err := s.backend.Finalize(ctx, saleID, req)
	if err != nil {
		s.metrics.IncrementFinalizeOutcome(outcomeRejected)
		s.logger.WarnContext(ctx, "finalize rejected by order backend",
			"sale_id", saleID,
			"error", err,
		)
		return nil, translateBackendErr(err, "finalize")
	}

	s.remember(finalized)
	s.metrics.IncrementFinalizeOutcome(outcomeFinalized)
	s.emitAudit(ctx, audit.Event{
		Type:       audit.EventSaleFinalized,
		SaleID:     finalized.ID,
		LocationID: finalized.LocationID,
		RegisterID: finalized.RegisterID,
		OperatorID: cap.OperatorID,
		Device:     cap.Device,
		TotalCents: finalized.TotalCents,
		IDChecked:  requirement.Required,
	})

	s.logger.InfoContext(ctx, "sale finalized",
		"sale_id", finalized.ID,
		"total_cents", finalized.TotalCents,
		"paid_cents", totals.PaidTotalCents,
		"change_cents", totals.ChangeDueCents,
		"balance_cents", totals.BalanceDueCents,
	)
	return finalized, nil
}

// IsComplianceBlocked reports whether err is the client-side compliance block.
func IsComplianceBlocked(err error) bool {
	return errors.Is(err, compliance.ErrUnmet)
}
