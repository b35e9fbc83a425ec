package audit

import "time"

// EventType classifies sale audit events.
type EventType string

const (
	EventSaleCreated   EventType = "sale_created"
	EventSaleFinalized EventType = "sale_finalized"
)

// Event is one append-only audit record for a sale. Events carry enough to
// reconstruct who finalized what and for how much, without duplicating the
// full sale document.
type Event struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	SaleID     string    `json:"sale_id"`
	LocationID string    `json:"location_id"`
	RegisterID string    `json:"register_id"`
	OperatorID string    `json:"operator_id,omitempty"`
	Device     string    `json:"device,omitempty"`
	TotalCents int64     `json:"total_cents"`
	IDChecked  bool      `json:"id_checked,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}
