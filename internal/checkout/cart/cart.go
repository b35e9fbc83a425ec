// Package cart maintains the single canonical draft for a sale in progress.
// Before a sale ID exists the cart is purely local; after creation it becomes
// a cache that is always overwritten by the server's response - the server is
// authoritative and the client never trusts its own prior state once a
// response arrives.
package cart

import (
	"till/internal/checkout/models"
	"till/internal/checkout/pricing"
	dErrors "till/pkg/domain-errors"
)

// Cart is the in-memory draft. Every user action is a read-modify-write of
// this object. It is not safe for concurrent use; each register session owns
// exactly one cart.
type Cart struct {
	saleID        string
	channel       models.Channel
	items         []models.SaleItem
	orderDiscount *models.OrderDiscount
	customer      *models.CustomerRef
	fulfillment   models.FulfillmentInfo
	couponCode    string
	loyaltyPoints int64
}

// New creates an empty cart for the given channel.
func New(channel models.Channel) *Cart {
	return &Cart{
		channel: channel,
		fulfillment: models.FulfillmentInfo{
			Type:   models.FulfillInStore,
			Status: models.FulfillPending,
		},
	}
}

// SaleID returns the remote sale ID, or empty before creation.
func (c *Cart) SaleID() string { return c.saleID }

// Items returns a copy of the current lines.
func (c *Cart) Items() []models.SaleItem {
	return append([]models.SaleItem(nil), c.items...)
}

// Customer returns the attached customer, or nil.
func (c *Cart) Customer() *models.CustomerRef { return c.customer }

// AddItem appends a line to the cart. Adding the same product again creates a
// separate line; quantity merging is a register UI decision, not a cart rule.
func (c *Cart) AddItem(item models.SaleItem) error {
	if err := item.Validate(); err != nil {
		return err
	}
	c.items = append(c.items, item)
	return nil
}

// UpdateQuantity sets the quantity of the line at index.
func (c *Cart) UpdateQuantity(index int, quantity int64) error {
	if err := c.checkIndex(index); err != nil {
		return err
	}
	if quantity <= 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "item quantity must be positive")
	}
	c.items[index].Quantity = quantity
	return nil
}

// SetLineDiscount sets or clears the discount of the line at index.
func (c *Cart) SetLineDiscount(index int, discount *models.LineDiscount) error {
	if err := c.checkIndex(index); err != nil {
		return err
	}
	if discount != nil {
		if !discount.Type.IsValid() {
			return dErrors.New(dErrors.CodeInvalidInput, "item discount type must be percent or fixed")
		}
		if discount.Value < 0 {
			return dErrors.New(dErrors.CodeInvalidInput, "item discount value cannot be negative")
		}
	}
	c.items[index].Discount = discount
	return nil
}

// RemoveItem deletes the line at index.
func (c *Cart) RemoveItem(index int) error {
	if err := c.checkIndex(index); err != nil {
		return err
	}
	c.items = append(c.items[:index], c.items[index+1:]...)
	return nil
}

// SetOrderDiscount sets or clears the sale-level discount.
func (c *Cart) SetOrderDiscount(discount *models.OrderDiscount) error {
	if discount != nil {
		if !discount.Type.IsValid() {
			return dErrors.New(dErrors.CodeInvalidInput, "order discount type must be percent or fixed")
		}
		if discount.Value < 0 {
			return dErrors.New(dErrors.CodeInvalidInput, "order discount value cannot be negative")
		}
	}
	c.orderDiscount = discount
	return nil
}

// AttachCustomer links the draft to a customer record.
func (c *Cart) AttachCustomer(customer *models.CustomerRef) {
	c.customer = customer
}

// SetChannel changes the sale channel.
func (c *Cart) SetChannel(channel models.Channel) error {
	if !channel.IsValid() {
		return dErrors.New(dErrors.CodeInvalidInput, "invalid channel")
	}
	c.channel = channel
	return nil
}

// SetFulfillment replaces the fulfillment disposition.
func (c *Cart) SetFulfillment(f models.FulfillmentInfo) error {
	if err := f.Validate(); err != nil {
		return err
	}
	c.fulfillment = f
	return nil
}

// SetCoupon records the raw coupon code; its effect is only known from the
// backend's refreshed sale record.
func (c *Cart) SetCoupon(code string) { c.couponCode = code }

// SetLoyaltyPoints records the raw point count to redeem.
func (c *Cart) SetLoyaltyPoints(points int64) error {
	if points < 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "loyalty points redeemed cannot be negative")
	}
	c.loyaltyPoints = points
	return nil
}

// Preview computes the local quote with the same formula the backend applies.
func (c *Cart) Preview() pricing.Quote {
	return pricing.Preview(c.items, c.orderDiscount)
}

// CreateRequest builds the sale-creation payload from the current draft.
func (c *Cart) CreateRequest(locationID, registerID string) models.CreateSaleRequest {
	return models.CreateSaleRequest{
		LocationID:    locationID,
		RegisterID:    registerID,
		Channel:       c.channel,
		Items:         c.Items(),
		OrderDiscount: c.orderDiscount,
	}
}

// Snapshot builds the full draft-update payload from the current draft.
func (c *Cart) Snapshot() models.DraftUpdateRequest {
	req := models.DraftUpdateRequest{
		Channel:               c.channel,
		Fulfillment:           c.fulfillment,
		Items:                 c.Items(),
		OrderDiscount:         c.orderDiscount,
		CouponCode:            c.couponCode,
		LoyaltyPointsRedeemed: c.loyaltyPoints,
	}
	if c.customer != nil {
		req.CustomerID = c.customer.ID
	}
	return req
}

// Replace overwrites the draft wholesale with the server's authoritative sale.
func (c *Cart) Replace(sale *models.Sale) {
	c.saleID = sale.ID
	c.channel = sale.Channel
	c.items = append([]models.SaleItem(nil), sale.Items...)
	c.orderDiscount = sale.OrderDiscount
	c.customer = sale.Customer
	c.fulfillment = sale.Fulfillment
	c.couponCode = sale.CouponCode
	c.loyaltyPoints = sale.LoyaltyPointsRedeemed
}

func (c *Cart) checkIndex(index int) error {
	if index < 0 || index >= len(c.items) {
		return dErrors.New(dErrors.CodeNotFound, "no cart line at that position")
	}
	return nil
}
