package models

import (
	"time"

	dErrors "till/pkg/domain-errors"
)

// SaleState is the lifecycle state of a sale. A sale is mutable only in
// StateDraft; StateFinalized is terminal.
type SaleState string

const (
	StateNew        SaleState = "new"
	StateDraft      SaleState = "draft"
	StateFinalizing SaleState = "finalizing"
	StateFinalized  SaleState = "finalized"
)

// Channel identifies where a sale originated.
type Channel string

const (
	ChannelPOS       Channel = "pos"
	ChannelOnline    Channel = "online"
	ChannelPhone     Channel = "phone"
	ChannelWholesale Channel = "wholesale"
)

// IsValid checks if the channel is one of the supported enum values.
func (c Channel) IsValid() bool {
	switch c {
	case ChannelPOS, ChannelOnline, ChannelPhone, ChannelWholesale:
		return true
	}
	return false
}

// DiscountType distinguishes percentage discounts from fixed-amount ones.
// Percentages are expressed in basis points (10000 bps = 100%) so discount
// math never touches floating point.
type DiscountType string

const (
	DiscountPercent DiscountType = "percent"
	DiscountFixed   DiscountType = "fixed"
)

// IsValid checks if the discount type is one of the supported enum values.
func (t DiscountType) IsValid() bool {
	return t == DiscountPercent || t == DiscountFixed
}

// LineDiscount applies to a single sale item. For DiscountPercent the value is
// in basis points; for DiscountFixed it is in cents.
type LineDiscount struct {
	Type  DiscountType `json:"type"`
	Value int64        `json:"value"`
}

// OrderDiscount applies to the whole sale, after line discounts.
type OrderDiscount struct {
	Type  DiscountType `json:"type"`
	Value int64        `json:"value"`
}

// SaleItem is one cart line. UnitPriceCents may override the catalog price.
type SaleItem struct {
	ProductID       string        `json:"product_id"`
	VariantID       string        `json:"variant_id,omitempty"`
	Name            string        `json:"name,omitempty"`
	Quantity        int64         `json:"quantity"`
	UnitPriceCents  int64         `json:"unit_price_cents"`
	Discount        *LineDiscount `json:"discount,omitempty"`
	TaxIDs          []string      `json:"tax_ids,omitempty"`
	RequiresIDCheck bool          `json:"requires_id_check,omitempty"`
	MinimumAge      int           `json:"minimum_age,omitempty"`
}

// Validate checks the item-level invariants.
func (i SaleItem) Validate() error {
	if i.ProductID == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "item product_id is required")
	}
	if i.Quantity <= 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "item quantity must be positive")
	}
	if i.UnitPriceCents < 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "item unit price cannot be negative")
	}
	if i.Discount != nil {
		if !i.Discount.Type.IsValid() {
			return dErrors.New(dErrors.CodeInvalidInput, "item discount type must be percent or fixed")
		}
		if i.Discount.Value < 0 {
			return dErrors.New(dErrors.CodeInvalidInput, "item discount value cannot be negative")
		}
	}
	return nil
}

// LineTotalCents is quantity times unit price, before discounts.
func (i SaleItem) LineTotalCents() int64 {
	return i.UnitPriceCents * i.Quantity
}

// PaymentMethod enumerates supported tender methods.
type PaymentMethod string

const (
	MethodCash  PaymentMethod = "cash"
	MethodCard  PaymentMethod = "card"
	MethodOther PaymentMethod = "other"
)

// IsValid checks if the payment method is one of the supported enum values.
func (m PaymentMethod) IsValid() bool {
	return m == MethodCash || m == MethodCard || m == MethodOther
}

// PaymentLine is a single tender contributing to the sale's paid total.
type PaymentLine struct {
	ID          string        `json:"id"`
	Method      PaymentMethod `json:"method"`
	AmountCents int64         `json:"amount_cents"`
	Reference   string        `json:"reference,omitempty"`
}

// FulfillmentType describes how the sale reaches the customer.
type FulfillmentType string

const (
	FulfillInStore  FulfillmentType = "in_store"
	FulfillPickup   FulfillmentType = "pickup"
	FulfillDelivery FulfillmentType = "delivery"
	FulfillShipping FulfillmentType = "shipping"
)

// IsValid checks if the fulfillment type is one of the supported enum values.
func (t FulfillmentType) IsValid() bool {
	switch t {
	case FulfillInStore, FulfillPickup, FulfillDelivery, FulfillShipping:
		return true
	}
	return false
}

// RequiresAddress reports whether this fulfillment type needs a shipping address.
func (t FulfillmentType) RequiresAddress() bool {
	return t == FulfillDelivery || t == FulfillShipping
}

// FulfillmentStatus tracks disposition of a sale's fulfillment.
type FulfillmentStatus string

const (
	FulfillPending   FulfillmentStatus = "pending"
	FulfillReady     FulfillmentStatus = "ready"
	FulfillInTransit FulfillmentStatus = "in_transit"
	FulfillDelivered FulfillmentStatus = "delivered"
	FulfillCancelled FulfillmentStatus = "cancelled"
)

// IsValid checks if the fulfillment status is one of the supported enum values.
func (s FulfillmentStatus) IsValid() bool {
	switch s {
	case FulfillPending, FulfillReady, FulfillInTransit, FulfillDelivered, FulfillCancelled:
		return true
	}
	return false
}

// Address is a shipping destination.
type Address struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	Region     string `json:"region,omitempty"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// FulfillmentInfo captures the delivery/pickup/shipping disposition of a sale.
type FulfillmentInfo struct {
	Type                 FulfillmentType   `json:"type"`
	Status               FulfillmentStatus `json:"status"`
	ShippingCostCents    int64             `json:"shipping_cost_cents"`
	Carrier              string            `json:"carrier,omitempty"`
	TrackingNumber       string            `json:"tracking_number,omitempty"`
	DeliveryInstructions string            `json:"delivery_instructions,omitempty"`
	ScheduledFor         *time.Time        `json:"scheduled_for,omitempty"`
	ShippingAddress      *Address          `json:"shipping_address,omitempty"`
}

// Validate enforces mode-dependent required fields before any network call.
func (f FulfillmentInfo) Validate() error {
	if !f.Type.IsValid() {
		return dErrors.New(dErrors.CodeInvalidInput, "invalid fulfillment type")
	}
	if f.Status != "" && !f.Status.IsValid() {
		return dErrors.New(dErrors.CodeInvalidInput, "invalid fulfillment status")
	}
	if f.ShippingCostCents < 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "shipping cost cannot be negative")
	}
	if f.Type.RequiresAddress() && f.ShippingAddress == nil {
		return dErrors.Newf(dErrors.CodeInvalidInput, "shipping address is required for %s fulfillment", f.Type)
	}
	return nil
}

// CustomerRef links a sale to a customer record.
type CustomerRef struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email,omitempty"`
	Phone       string `json:"phone,omitempty"`
}

// IDVerification carries the identity data required to finalize a sale with
// age-restricted items. The birth date arithmetic happens backend-side.
type IDVerification struct {
	IDType     string `json:"id_type"`
	IDLast4    string `json:"id_last4"`
	BirthDate  string `json:"birth_date"` // ISO-8601 date
	MinimumAge int    `json:"minimum_age,omitempty"`
}

// Sale is the coarse shared document owned by the order backend. The client
// replaces its local copy wholesale with every response; it never merges.
type Sale struct {
	ID                    string          `json:"id"`
	State                 SaleState       `json:"state"`
	Channel               Channel         `json:"channel"`
	LocationID            string          `json:"location_id"`
	RegisterID            string          `json:"register_id"`
	Customer              *CustomerRef    `json:"customer,omitempty"`
	Items                 []SaleItem      `json:"items"`
	OrderDiscount         *OrderDiscount  `json:"order_discount,omitempty"`
	CouponCode            string          `json:"coupon_code,omitempty"`
	LoyaltyPointsRedeemed int64           `json:"loyalty_points_redeemed,omitempty"`
	SubtotalCents         int64           `json:"subtotal_cents"`
	DiscountCents         int64           `json:"discount_cents"`
	TaxCents              int64           `json:"tax_cents"`
	ShippingCents         int64           `json:"shipping_cents"`
	TotalCents            int64           `json:"total_cents"`
	Payments              []PaymentLine   `json:"payments,omitempty"`
	Fulfillment           FulfillmentInfo `json:"fulfillment"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
	FinalizedAt           *time.Time      `json:"finalized_at,omitempty"`
}

// Mutable reports whether draft updates are still accepted.
func (s *Sale) Mutable() bool {
	return s.State == StateDraft
}

// Clone returns a deep copy so stores never hand out aliased slices.
func (s *Sale) Clone() *Sale {
	if s == nil {
		return nil
	}
	out := *s
	out.Items = make([]SaleItem, len(s.Items))
	copy(out.Items, s.Items)
	for i, item := range s.Items {
		if item.Discount != nil {
			d := *item.Discount
			out.Items[i].Discount = &d
		}
		if len(item.TaxIDs) > 0 {
			out.Items[i].TaxIDs = append([]string(nil), item.TaxIDs...)
		}
	}
	if s.OrderDiscount != nil {
		d := *s.OrderDiscount
		out.OrderDiscount = &d
	}
	if s.Customer != nil {
		c := *s.Customer
		out.Customer = &c
	}
	if len(s.Payments) > 0 {
		out.Payments = append([]PaymentLine(nil), s.Payments...)
	}
	if s.Fulfillment.ScheduledFor != nil {
		t := *s.Fulfillment.ScheduledFor
		out.Fulfillment.ScheduledFor = &t
	}
	if s.Fulfillment.ShippingAddress != nil {
		a := *s.Fulfillment.ShippingAddress
		out.Fulfillment.ShippingAddress = &a
	}
	if s.FinalizedAt != nil {
		t := *s.FinalizedAt
		out.FinalizedAt = &t
	}
	return &out
}
