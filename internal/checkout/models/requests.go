package models

import dErrors "till/pkg/domain-errors"

// CreateSaleRequest seeds a new sale from the cart snapshot.
type CreateSaleRequest struct {
	LocationID    string         `json:"location_id"`
	RegisterID    string         `json:"register_id"`
	Channel       Channel        `json:"channel"`
	Items         []SaleItem     `json:"items"`
	OrderDiscount *OrderDiscount `json:"order_discount,omitempty"`
}

// Validate checks required fields before the creation call is issued.
func (r CreateSaleRequest) Validate() error {
	if r.LocationID == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "location_id is required")
	}
	if r.RegisterID == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "register_id is required")
	}
	if !r.Channel.IsValid() {
		return dErrors.New(dErrors.CodeInvalidInput, "invalid channel")
	}
	if len(r.Items) == 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "sale requires at least one item")
	}
	for _, item := range r.Items {
		if err := item.Validate(); err != nil {
			return err
		}
	}
	if r.OrderDiscount != nil {
		if !r.OrderDiscount.Type.IsValid() {
			return dErrors.New(dErrors.CodeInvalidInput, "order discount type must be percent or fixed")
		}
		if r.OrderDiscount.Value < 0 {
			return dErrors.New(dErrors.CodeInvalidInput, "order discount value cannot be negative")
		}
	}
	return nil
}

// DraftUpdateRequest carries the full sale snapshot, never a partial patch.
// Every mutating action resends the whole document so the backend never has
// to guess merge intent.
type DraftUpdateRequest struct {
	CustomerID            string          `json:"customer_id,omitempty"`
	Channel               Channel         `json:"channel"`
	Fulfillment           FulfillmentInfo `json:"fulfillment"`
	Items                 []SaleItem      `json:"items"`
	OrderDiscount         *OrderDiscount  `json:"order_discount,omitempty"`
	CouponCode            string          `json:"coupon_code,omitempty"`
	LoyaltyPointsRedeemed int64           `json:"loyalty_points_redeemed,omitempty"`
}

// Validate checks the snapshot before any network call.
func (r DraftUpdateRequest) Validate() error {
	if !r.Channel.IsValid() {
		return dErrors.New(dErrors.CodeInvalidInput, "invalid channel")
	}
	if len(r.Items) == 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "sale requires at least one item")
	}
	for _, item := range r.Items {
		if err := item.Validate(); err != nil {
			return err
		}
	}
	if err := r.Fulfillment.Validate(); err != nil {
		return err
	}
	if r.LoyaltyPointsRedeemed < 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "loyalty points redeemed cannot be negative")
	}
	return nil
}

// SnapshotOf builds the draft-update snapshot from the current authoritative
// sale. Callers set the one changed field before resubmitting.
func SnapshotOf(sale *Sale) DraftUpdateRequest {
	req := DraftUpdateRequest{
		Channel:               sale.Channel,
		Fulfillment:           sale.Fulfillment,
		Items:                 append([]SaleItem(nil), sale.Items...),
		OrderDiscount:         sale.OrderDiscount,
		CouponCode:            sale.CouponCode,
		LoyaltyPointsRedeemed: sale.LoyaltyPointsRedeemed,
	}
	if sale.Customer != nil {
		req.CustomerID = sale.Customer.ID
	}
	return req
}

// FinalizeRequest records payment and, when restricted items are present,
// identity verification.
type FinalizeRequest struct {
	Payments       []PaymentLine   `json:"payments"`
	CustomerID     string          `json:"customer_id,omitempty"`
	IDVerification *IDVerification `json:"id_verification,omitempty"`
}

// Validate checks the tender set before the finalize call is issued.
func (r FinalizeRequest) Validate() error {
	if len(r.Payments) == 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "finalize requires at least one payment line")
	}
	for _, p := range r.Payments {
		if !p.Method.IsValid() {
			return dErrors.New(dErrors.CodeInvalidInput, "invalid payment method")
		}
		if p.AmountCents < 0 {
			return dErrors.New(dErrors.CodeInvalidInput, "payment amount cannot be negative")
		}
	}
	return nil
}
