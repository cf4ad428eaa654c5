package models

import (
	"time"

	"github.com/stripe/stripe-go/v79"

	"gofalre.io/cartsync/models/enum"
)

// Cart is the default cart document used by the shipped providers. The
// coordinator itself never inspects these fields; it is generic over the
// provider's cart representation.
type Cart struct {
	ID            string            `json:"id"`
	RevisionID    string            `json:"revision_id"`
	Status        enum.CartStatus   `json:"status"`
	Currency      stripe.Currency   `json:"currency"`
	Buyer         *Buyer            `json:"buyer,omitempty"`
	DiscountCodes []string          `json:"discount_codes,omitempty"`
	Attributes    map[string]string `json:"attributes,omitempty"`
	Items         []LineItem        `json:"items"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// Buyer identifies the customer a cart belongs to.
type Buyer struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	Phone       string `json:"phone,omitempty"`
	CountryCode string `json:"country_code,omitempty"`
}

// LineItem represents a single product entry in the cart.
type LineItem struct {
	ID        string  `json:"id"`
	ProductID string  `json:"product_id"`
	PriceID   string  `json:"price_id"`
	Quantity  uint64  `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
	Subtotal  float64 `json:"subtotal"`
}

func NewCart() *Cart {
	return new(Cart)
}

// Clone returns a deep copy so provider mutations never alias the snapshot
// held by the coordinator.
func (c *Cart) Clone() *Cart {
	if c == nil {
		return nil
	}
	next := *c
	if c.Buyer != nil {
		buyer := *c.Buyer
		next.Buyer = &buyer
	}
	if c.DiscountCodes != nil {
		next.DiscountCodes = append([]string(nil), c.DiscountCodes...)
	}
	if c.Attributes != nil {
		next.Attributes = make(map[string]string, len(c.Attributes))
		for k, v := range c.Attributes {
			next.Attributes[k] = v
		}
	}
	if c.Items != nil {
		next.Items = append([]LineItem(nil), c.Items...)
	}
	return &next
}

// FindItemIndex returns the index of the line item with the given id, or -1.
func (c *Cart) FindItemIndex(id string) int {
	for i := range c.Items {
		if c.Items[i].ID == id {
			return i
		}
	}
	return -1
}

// Total sums the subtotals of all line items.
func (c *Cart) Total() float64 {
	var total float64
	for _, item := range c.Items {
		total += item.Subtotal
	}
	return total
}

// Recalculate refreshes the derived subtotal of each line item.
func (c *Cart) Recalculate() {
	for i := range c.Items {
		c.Items[i].Subtotal = float64(c.Items[i].Quantity) * c.Items[i].UnitPrice
	}
}
