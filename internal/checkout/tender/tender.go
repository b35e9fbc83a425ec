// Package tender tracks the ordered list of payment lines for a sale and the
// totals derived from them. All edits are local; nothing is submitted until
// finalize.
package tender

import (
	"github.com/google/uuid"

	"till/internal/checkout/models"
	dErrors "till/pkg/domain-errors"
)

// Totals is recomputed on every change. changeDue and balanceDue are mutually
// exclusive: at least one is always zero.
type Totals struct {
	PaidTotalCents  int64 `json:"paid_total_cents"`
	ChangeDueCents  int64 `json:"change_due_cents"`
	BalanceDueCents int64 `json:"balance_due_cents"`
}

// Reconciler holds the tender lines for one sale. It always contains at least
// one line; the last line can be edited but never removed.
type Reconciler struct {
	lines []models.PaymentLine
}

// New creates a reconciler seeded with a single default line (card, amount 0).
func New() *Reconciler {
	r := &Reconciler{}
	r.Add()
	return r
}

// FromLines restores a reconciler from existing payment lines, e.g. when
// re-opening a draft. Seeds a default line when given none.
func FromLines(lines []models.PaymentLine) *Reconciler {
	if len(lines) == 0 {
		return New()
	}
	r := &Reconciler{lines: append([]models.PaymentLine(nil), lines...)}
	return r
}

// Lines returns a copy of the current tender lines in order.
func (r *Reconciler) Lines() []models.PaymentLine {
	return append([]models.PaymentLine(nil), r.lines...)
}

// Add appends a new line with the default method (card) and amount 0,
// returning its ID.
func (r *Reconciler) Add() string {
	line := models.PaymentLine{
		ID:     uuid.NewString(),
		Method: models.MethodCard,
	}
	r.lines = append(r.lines, line)
	return line.ID
}

// Remove deletes the identified line. Removing the last remaining line is
// forbidden.
func (r *Reconciler) Remove(id string) error {
	if len(r.lines) == 1 {
		return dErrors.New(dErrors.CodeInvalidInput, "cannot remove the last payment line")
	}
	for i, line := range r.lines {
		if line.ID == id {
			r.lines = append(r.lines[:i], r.lines[i+1:]...)
			return nil
		}
	}
	return dErrors.New(dErrors.CodeNotFound, "payment line not found")
}

// SetAmount updates the amount of the identified line.
func (r *Reconciler) SetAmount(id string, amountCents int64) error {
	if amountCents < 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "payment amount cannot be negative")
	}
	return r.update(id, func(line *models.PaymentLine) {
		line.AmountCents = amountCents
	})
}

// SetMethod updates the method of the identified line.
func (r *Reconciler) SetMethod(id string, method models.PaymentMethod) error {
	if !method.IsValid() {
		return dErrors.New(dErrors.CodeInvalidInput, "invalid payment method")
	}
	return r.update(id, func(line *models.PaymentLine) {
		line.Method = method
	})
}

// SetReference updates the free-form reference of the identified line.
func (r *Reconciler) SetReference(id, reference string) error {
	return r.update(id, func(line *models.PaymentLine) {
		line.Reference = reference
	})
}

func (r *Reconciler) update(id string, fn func(*models.PaymentLine)) error {
	for i := range r.lines {
		if r.lines[i].ID == id {
			fn(&r.lines[i])
			return nil
		}
	}
	return dErrors.New(dErrors.CodeNotFound, "payment line not found")
}

// Totals derives paid total, change due, and balance due against the sale total.
func (r *Reconciler) Totals(totalCents int64) Totals {
	return Compute(r.lines, totalCents)
}

// Compute derives totals for an arbitrary set of payment lines:
//
//	paidTotal  = Σ amount
//	changeDue  = max(paidTotal - total, 0)
//	balanceDue = max(total - paidTotal, 0)
func Compute(lines []models.PaymentLine, totalCents int64) Totals {
	var t Totals
	for _, line := range lines {
		t.PaidTotalCents += line.AmountCents
	}
	if t.PaidTotalCents > totalCents {
		t.ChangeDueCents = t.PaidTotalCents - totalCents
	} else {
		t.BalanceDueCents = totalCents - t.PaidTotalCents
	}
	return t
}
