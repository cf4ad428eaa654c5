package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleCart() *Cart {
	return &Cart{
		ID:            "cart-1",
		RevisionID:    "rev-1",
		Buyer:         &Buyer{ID: "buyer-1", Email: "jo@example.com"},
		DiscountCodes: []string{"SAVE10"},
		Attributes:    map[string]string{"gift": "true"},
		Items: []LineItem{
			{ID: "li-1", ProductID: "prod-1", Quantity: 2, UnitPrice: 9.99},
			{ID: "li-2", ProductID: "prod-2", Quantity: 1, UnitPrice: 25},
		},
	}
}

func TestCart_CloneIsIndependent(t *testing.T) {
	orig := sampleCart()
	clone := orig.Clone()

	require.Equal(t, orig, clone)
	require.NotSame(t, orig, clone)

	clone.Buyer.Email = "other@example.com"
	clone.DiscountCodes[0] = "SAVE20"
	clone.Attributes["gift"] = "false"
	clone.Items[0].Quantity = 99

	assert.Equal(t, "jo@example.com", orig.Buyer.Email)
	assert.Equal(t, "SAVE10", orig.DiscountCodes[0])
	assert.Equal(t, "true", orig.Attributes["gift"])
	assert.Equal(t, uint64(2), orig.Items[0].Quantity)
}

func TestCart_CloneNil(t *testing.T) {
	var c *Cart
	assert.Nil(t, c.Clone())
}

func TestCart_FindItemIndex(t *testing.T) {
	cart := sampleCart()

	assert.Equal(t, 0, cart.FindItemIndex("li-1"))
	assert.Equal(t, 1, cart.FindItemIndex("li-2"))
	assert.Equal(t, -1, cart.FindItemIndex("li-3"))
}

func TestCart_RecalculateAndTotal(t *testing.T) {
	cart := sampleCart()
	cart.Recalculate()

	assert.InDelta(t, 19.98, cart.Items[0].Subtotal, 1e-9)
	assert.InDelta(t, 25, cart.Items[1].Subtotal, 1e-9)
	assert.InDelta(t, 44.98, cart.Total(), 1e-9)
}

func TestCart_TotalEmpty(t *testing.T) {
	assert.Zero(t, NewCart().Total())
}
