// Package compliance evaluates cart contents for age/identity restrictions
// and decides whether finalization may proceed. The gate is fail-closed: when
// it is unmet the finalize call must never be issued. This is pure domain
// logic - no I/O, no side effects. Age arithmetic against the birth date is
// the backend's job at finalize time.
package compliance

import (
	"errors"

	"till/internal/checkout/models"
)

// ErrUnmet is returned when finalization is attempted with the gate unmet.
var ErrUnmet = errors.New("compliance gate unmet")

// Requirement summarizes what the cart demands before finalize.
type Requirement struct {
	// Required is true when any item carries requires_id_check.
	Required bool
	// MinimumAge is the strictest minimum age over the restricted items.
	MinimumAge int
	// RestrictedProductIDs lists the items that triggered the requirement,
	// for operator-facing reason text.
	RestrictedProductIDs []string
}

// Evaluate derives the restricted-item requirement from the cart.
func Evaluate(items []models.SaleItem) Requirement {
	var req Requirement
	for _, item := range items {
		if !item.RequiresIDCheck {
			continue
		}
		req.Required = true
		req.RestrictedProductIDs = append(req.RestrictedProductIDs, item.ProductID)
		if item.MinimumAge > req.MinimumAge {
			req.MinimumAge = item.MinimumAge
		}
	}
	return req
}

// Satisfied reports whether the provided verification meets the requirement.
// The gate is satisfied only when both id_last4 and birth_date are present;
// it never does the age math itself.
func (r Requirement) Satisfied(idv *models.IDVerification) bool {
	if !r.Required {
		return true
	}
	if idv == nil {
		return false
	}
	return idv.IDLast4 != "" && idv.BirthDate != ""
}

// Check returns ErrUnmet when the requirement is not satisfied.
func (r Requirement) Check(idv *models.IDVerification) error {
	if r.Satisfied(idv) {
		return nil
	}
	return ErrUnmet
}
