// Package postgres implements the cart provider contract on top of Postgres,
// storing each cart as a jsonb document guarded by its revision id.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stripe/stripe-go/v79"
	"go.uber.org/zap"

	"gofalre.io/cartsync"
	"gofalre.io/cartsync/driver"
	"gofalre.io/cartsync/models"
	"gofalre.io/cartsync/models/enum"
)

// Schema is the table backing the provider.
const Schema = `
CREATE TABLE IF NOT EXISTS carts (
    id          TEXT PRIMARY KEY,
    revision_id TEXT NOT NULL,
    document    JSONB NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);`

var _ cartsync.Provider[*models.Cart, models.Buyer, models.LineItem] = (*Provider)(nil)

// Provider keeps carts as jsonb documents in Postgres. Every mutation runs in
// a transaction and replaces the document under a freshly minted revision id,
// guarded against the revision it was derived from.
type Provider struct {
	conn     driver.PostgresPool
	tm       *driver.TransactionManager
	currency stripe.Currency
	logger   *zap.Logger
}

func NewProvider(conn driver.PostgresPool, logger *zap.Logger) *Provider {
	return &Provider{
		conn:     conn,
		tm:       driver.NewTransactionManager(conn, logger),
		currency: stripe.CurrencyUSD,
		logger:   logger,
	}
}

// EnsureSchema creates the carts table when it does not exist yet.
func (p *Provider) EnsureSchema(ctx context.Context) error {
	if _, err := p.conn.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("ensure carts schema: %w", err)
	}
	return nil
}

func (p *Provider) Fetch(ctx context.Context, id string) (*models.Cart, error) {
	var data []byte
	err := p.conn.QueryRow(ctx, `SELECT document FROM carts WHERE id = $1`, id).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", cartsync.ErrCartNotFound, id)
		}
		return nil, fmt.Errorf("select cart: %w", err)
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

	data, err := json.Marshal(cart)
	if err != nil {
		return nil, fmt.Errorf("marshal cart: %w", err)
	}

	err = p.tm.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO carts (id, revision_id, document) VALUES ($1, $2, $3)`,
			cart.ID, cart.RevisionID, data)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("insert cart: %w", err)
	}

	return cart, nil
}

func (p *Provider) UpdateBuyer(ctx context.Context, cart *models.Cart, buyer models.Buyer) (*models.Cart, error) {
	next := cart.Clone()
	next.Buyer = &buyer
	return p.commit(ctx, next, cart.RevisionID)
}

func (p *Provider) UpdateDiscountCodes(ctx context.Context, cart *models.Cart, codes []string) (*models.Cart, error) {
	next := cart.Clone()
	next.DiscountCodes = append([]string(nil), codes...)
	return p.commit(ctx, next, cart.RevisionID)
}

func (p *Provider) UpdateAttributes(ctx context.Context, cart *models.Cart, attrs map[string]string) (*models.Cart, error) {
	next := cart.Clone()
	if next.Attributes == nil {
		next.Attributes = make(map[string]string, len(attrs))
	}
	for k, v := range attrs {
		next.Attributes[k] = v
	}
	return p.commit(ctx, next, cart.RevisionID)
}

func (p *Provider) AddLineItems(ctx context.Context, cart *models.Cart, items []models.LineItem) (*models.Cart, error) {
	next := cart.Clone()
	next.Items = append(next.Items, assignItemIDs(items)...)
	next.Recalculate()
	return p.commit(ctx, next, cart.RevisionID)
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
	return p.commit(ctx, next, cart.RevisionID)
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
	return p.commit(ctx, next, cart.RevisionID)
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

// commit writes the mutated document under a fresh revision, guarded against
// the revision it was derived from. A guard miss means the row changed under
// us and surfaces ErrRevisionConflict.
func (p *Provider) commit(ctx context.Context, cart *models.Cart, fromRevision string) (*models.Cart, error) {
	cart.RevisionID = uuid.NewString()
	cart.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(cart)
	if err != nil {
		return nil, fmt.Errorf("marshal cart: %w", err)
	}

	err = p.tm.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE carts SET revision_id = $1, document = $2, updated_at = now()
			 WHERE id = $3 AND revision_id = $4`,
			cart.RevisionID, data, cart.ID, fromRevision)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: cart %s", cartsync.ErrRevisionConflict, cart.ID)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update cart: %w", err)
	}

	return cart, nil
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
