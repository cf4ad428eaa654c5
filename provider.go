package cartsync

import "context"

// CartInput is the structured input for creating a cart. Every field is
// optional; a zero CartInput requests an empty cart.
type CartInput[B, L any] struct {
	Buyer         *B
	DiscountCodes []string
	Attributes    map[string]string
	LineItems     []L
}

// Provider is the sole external collaborator of a Coordinator. It supplies
// CRUD-style cart operations against some backend, pure extraction functions
// for the cart's id and revision, and a side-effecting error sink. The
// coordinator never inspects the cart, buyer, or line-item representations.
//
// Implementations do not need to be safe for concurrent use: the coordinator
// guarantees at most one provider call is in flight at any instant.
type Provider[C, B, L any] interface {
	// Fetch returns the cart with the given id.
	Fetch(ctx context.Context, id string) (C, error)

	// Create creates a new cart from the given input.
	Create(ctx context.Context, input CartInput[B, L]) (C, error)

	UpdateBuyer(ctx context.Context, cart C, buyer B) (C, error)
	UpdateDiscountCodes(ctx context.Context, cart C, codes []string) (C, error)
	UpdateAttributes(ctx context.Context, cart C, attrs map[string]string) (C, error)
	AddLineItems(ctx context.Context, cart C, items []L) (C, error)
	UpdateLineItems(ctx context.Context, cart C, items []L) (C, error)
	RemoveLineItems(ctx context.Context, cart C, ids []string) (C, error)

	// CartID extracts the cart's identifier. An empty id marks the cart as
	// unusable.
	CartID(cart C) string

	// CartRevisionID extracts the opaque revision identifier used for change
	// detection.
	CartRevisionID(cart C) string

	// OnError receives every provider-call failure and task timeout observed
	// by the coordinator. The coordinator does not retry.
	OnError(err error)
}
