package cartsync

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"gofalre.io/cartsync/models/enum"
)

// relayEnvelope is the JSON payload published for every relayed event.
type relayEnvelope struct {
	Event      string      `json:"event"`
	CartID     string      `json:"cart_id,omitempty"`
	RevisionID string      `json:"revision_id,omitempty"`
	Status     enum.Status `json:"status,omitempty"`
	At         time.Time   `json:"at"`
}

// EventRelay forwards a coordinator's statuschange, idle, and change events to
// NATS subjects (<prefix>.statuschange and so on), so other services can
// observe cart activity without holding a reference to the facade. Cart
// payloads are reduced to id and revision through the provider's extraction
// functions; the relay never serializes the cart document itself.
type EventRelay[C, B, L any] struct {
	conn     *nats.Conn
	provider Provider[C, B, L]
	prefix   string
	logger   *zap.Logger
	stops    []func()
}

func NewEventRelay[C, B, L any](conn *nats.Conn, provider Provider[C, B, L], prefix string, logger *zap.Logger) *EventRelay[C, B, L] {
	if prefix == "" {
		prefix = "cart.facade"
	}
	return &EventRelay[C, B, L]{
		conn:     conn,
		provider: provider,
		prefix:   prefix,
		logger:   logger,
	}
}

// Attach subscribes the relay to the coordinator's events. Call Detach to
// stop forwarding.
func (r *EventRelay[C, B, L]) Attach(co *Coordinator[C, B, L]) {
	r.stops = append(r.stops,
		co.On(EventStatusChange, func(ev Event) {
			detail, ok := ev.Detail.(StatusChangeDetail)
			if !ok {
				return
			}
			r.publish(relayEnvelope{
				Event:  EventStatusChange,
				Status: detail.Status,
				At:     time.Now().UTC(),
			})
		}),
		co.On(EventIdle, r.cartForwarder(EventIdle)),
		co.On(EventChange, r.cartForwarder(EventChange)),
	)
}

// Detach removes the relay's listeners from the coordinator.
func (r *EventRelay[C, B, L]) Detach() {
	for _, stop := range r.stops {
		stop()
	}
	r.stops = nil
}

func (r *EventRelay[C, B, L]) cartForwarder(name string) Listener {
	return func(ev Event) {
		detail, ok := ev.Detail.(CartDetail[C])
		if !ok {
			return
		}
		r.publish(relayEnvelope{
			Event:      name,
			CartID:     r.provider.CartID(detail.Cart),
			RevisionID: r.provider.CartRevisionID(detail.Cart),
			At:         time.Now().UTC(),
		})
	}
}

func (r *EventRelay[C, B, L]) publish(envelope relayEnvelope) {
	data, err := json.Marshal(envelope)
	if err != nil {
		r.logger.Error("failed to marshal relay envelope", zap.Error(err))
		return
	}
	subject := r.prefix + "." + envelope.Event
	if err := r.conn.Publish(subject, data); err != nil {
		r.logger.Error("failed to publish relay event",
			zap.String("subject", subject),
			zap.Error(err))
	}
}
