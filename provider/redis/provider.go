// Package redis implements the cart provider contract on top of Redis,
// keeping each cart as a JSON document with a TTL.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stripe/stripe-go/v79"
	"go.uber.org/zap"

	"gofalre.io/cartsync"
	"gofalre.io/cartsync/models"
	"gofalre.io/cartsync/models/enum"
)

const keyPrefix = "cart:"

var _ cartsync.Provider[*models.Cart, models.Buyer, models.LineItem] = (*Provider)(nil)

// Provider keeps carts as JSON documents in Redis. Every mutation writes the
// whole document back under a freshly minted revision id.
type Provider struct {
	client   *redis.Client
	ttl      time.Duration
	currency stripe.Currency
	logger   *zap.Logger
}

func NewProvider(client *redis.Client, ttl time.Duration, logger *zap.Logger) *Provider {
	return &Provider{
		client:   client,
		ttl:      ttl,
		currency: stripe.CurrencyUSD,
		logger:   logger,
	}
}

func (p *Provider) Fetch(ctx context.Context, id string) (*models.Cart, error) {
	data, err := p.client.Get(ctx, keyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", cartsync.ErrCartNotFound, id)
		}
		return nil, fmt.Errorf("redis get cart: %w", err)
	}

	cart := models.NewCart()
	if err := json.Unmarshal(data, cart); err != nil {
		return nil, fmt.Errorf("unmarshal cart: %w", err)
	}

	return cart, nil
}

func (p *Provider) Create(ctx context.Context, input cartsync.CartInput[models.Buyer, models.LineItem]) (*models.Cart, error) {
	now := time.Now().UTC()
	cart := &models.Cart{
		ID:            uuid.NewString(),
		RevisionID:    uuid.NewString(),
		Status:        enum.CartStatusActive,
		Currency:      p.currency,
		Buyer:         input.Buyer,
		DiscountCodes: input.DiscountCodes,
		Attributes:    input.Attributes,
		Items:         assignItemIDs(input.LineItems),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	cart.Recalculate()

	if err := p.save(ctx, cart); err != nil {
		return nil, err
	}
	return cart, nil
}

func (p *Provider) UpdateBuyer(ctx context.Context, cart *models.Cart, buyer models.Buyer) (*models.Cart, error) {
	next := cart.Clone()
	next.Buyer = &buyer
	return p.commit(ctx, next)
}

func (p *Provider) UpdateDiscountCodes(ctx context.Context, cart *models.Cart, codes []string) (*models.Cart, error) {
	next := cart.Clone()
	next.DiscountCodes = append([]string(nil), codes...)
	return p.commit(ctx, next)
}

func (p *Provider) UpdateAttributes(ctx context.Context, cart *models.Cart, attrs map[string]string) (*models.Cart, error) {
	next := cart.Clone()
	if next.Attributes == nil {
		next.Attributes = make(map[string]string, len(attrs))
	}
	for k, v := range attrs {
		next.Attributes[k] = v
	}
	return p.commit(ctx, next)
}

func (p *Provider) AddLineItems(ctx context.Context, cart *models.Cart, items []models.LineItem) (*models.Cart, error) {
	next := cart.Clone()
	next.Items = append(next.Items, assignItemIDs(items)...)
	next.Recalculate()
	return p.commit(ctx, next)
}

func (p *Provider) UpdateLineItems(ctx context.Context, cart *models.Cart, items []models.LineItem) (*models.Cart, error) {
	next := cart.Clone()
	for _, item := range items {
		idx := next.FindItemIndex(item.ID)
		if idx < 0 {
			return nil, fmt.Errorf("update line item %s: %w", item.ID, cartsync.ErrCartNotFound)
		}
		next.Items[idx].Quantity = item.Quantity
		if item.UnitPrice > 0 {
			next.Items[idx].UnitPrice = item.UnitPrice
		}
		if item.PriceID != "" {
			next.Items[idx].PriceID = item.PriceID
		}
	}
	next.Recalculate()
	return p.commit(ctx, next)
}

func (p *Provider) RemoveLineItems(ctx context.Context, cart *models.Cart, ids []string) (*models.Cart, error) {
	next := cart.Clone()
	remove := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		remove[id] = struct{}{}
	}
	kept := next.Items[:0]
	for _, item := range next.Items {
		if _, ok := remove[item.ID]; !ok {
			kept = append(kept, item)
		}
	}
	next.Items = kept
	return p.commit(ctx, next)
}

func (p *Provider) CartID(cart *models.Cart) string {
	if cart == nil {
		return ""
	}
	return cart.ID
}

func (p *Provider) CartRevisionID(cart *models.Cart) string {
	if cart == nil {
		return ""
	}
	return cart.RevisionID
}

func (p *Provider) OnError(err error) {
	p.logger.Error("cart backend error", zap.Error(err))
}

// commit stamps a fresh revision on the mutated document and writes it back.
func (p *Provider) commit(ctx context.Context, cart *models.Cart) (*models.Cart, error) {
	cart.RevisionID = uuid.NewString()
	cart.UpdatedAt = time.Now().UTC()
	if err := p.save(ctx, cart); err != nil {
		return nil, err
	}
	return cart, nil
}

func (p *Provider) save(ctx context.Context, cart *models.Cart) error {
	data, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("marshal cart: %w", err)
	}

	if err := p.client.Set(ctx, keyPrefix+cart.ID, data, p.ttl).Err(); err != nil {
		return fmt.Errorf("redis set cart: %w", err)
	}

	return nil
}

func assignItemIDs(items []models.LineItem) []models.LineItem {
	out := make([]models.LineItem, len(items))
	copy(out, items)
	for i := range out {
		if out[i].ID == "" {
			out[i].ID = uuid.NewString()
		}
	}
	return out
}
