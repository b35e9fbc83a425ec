// Package customer is the customer directory: lookup and creation of customer
// records so operators can attach a customer mid-sale, plus the loyalty point
// ledger behind redemptions.
package customer

import (
	"strings"
	"time"

	dErrors "till/pkg/domain-errors"
)

// Customer is a directory record. The sale embeds only a CustomerRef; this is
// the full record behind it.
type Customer struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	Email       string    `json:"email,omitempty"`
	Phone       string    `json:"phone,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Validate checks the directory invariants: a display name plus at least one
// way to reach the customer.
func (c Customer) Validate() error {
	if strings.TrimSpace(c.DisplayName) == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "display_name is required")
	}
	if c.Email == "" && c.Phone == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "an email or phone number is required")
	}
	if c.Email != "" && !strings.Contains(c.Email, "@") {
		return dErrors.New(dErrors.CodeInvalidInput, "email is malformed")
	}
	return nil
}
