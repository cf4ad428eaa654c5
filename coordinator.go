package cartsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"gofalre.io/cartsync/models/enum"
)

// StatusChangeDetail is the payload of EventStatusChange.
type StatusChangeDetail struct {
	Status enum.Status `json:"status"`
}

// CartDetail is the payload of EventIdle and EventChange.
type CartDetail[C any] struct {
	Cart C `json:"cart"`
}

// Coordinator serializes cart mutations against a provider, owns the current
// cart snapshot, and notifies observers of status transitions, queue drains,
// and externally visible changes. Concurrent callers are multiplexed through
// a single-flight queue, so at most one provider call executes at any instant
// and tasks settle in submission order.
type Coordinator[C, B, L any] struct {
	provider Provider[C, B, L]
	queue    *Queue
	events   *EventChannel
	logger   *zap.Logger

	mu      sync.Mutex
	cart    C
	hasCart bool
	status  enum.Status

	// prevRev holds the revision observed before the first revision-changing
	// task of the current idle-to-idle batch; cleared when the queue drains.
	prevRev    string
	prevRevSet bool

	// noticeMu guards the ordered queue of drain observations awaiting
	// delivery to listeners.
	noticeMu   sync.Mutex
	notices    []batchNotice[C]
	delivering bool
}

// batchNotice is one drained batch's observation, queued for delivery in
// drain order.
type batchNotice[C any] struct {
	cart    C
	changed bool
}

func NewCoordinator[C, B, L any](provider Provider[C, B, L], taskTimeout time.Duration, logger *zap.Logger) *Coordinator[C, B, L] {
	co := &Coordinator[C, B, L]{
		provider: provider,
		queue:    NewQueue(taskTimeout, logger),
		events:   NewEventChannel(),
		logger:   logger,
		status:   enum.StatusIdle,
	}
	co.queue.OnIdle(co.handleIdle)
	return co
}

// On registers a listener for one of the coordinator's events and returns a
// function that removes it.
func (co *Coordinator[C, B, L]) On(name string, fn Listener) func() {
	return co.events.On(name, fn)
}

// Status returns the facade's current lifecycle status.
func (co *Coordinator[C, B, L]) Status() enum.Status {
	co.mu.Lock()
	defer co.mu.Unlock()
	return co.status
}

// Cart returns the current cart snapshot and whether one exists yet.
func (co *Coordinator[C, B, L]) Cart() (C, bool) {
	co.mu.Lock()
	defer co.mu.Unlock()
	return co.cart, co.hasCart
}

// Close stops the underlying queue. The coordinator has no terminal status;
// Close only releases the worker goroutine.
func (co *Coordinator[C, B, L]) Close() {
	co.queue.Close()
}

// Fetch loads the cart with the given id and adopts it as the current
// snapshot. The result is returned to the caller as well as surfaced through
// the idle/change events.
func (co *Coordinator[C, B, L]) Fetch(ctx context.Context, id string) (C, error) {
	return co.runCartOperation(ctx, "fetch", func(taskCtx context.Context) (C, error) {
		return co.provider.Fetch(taskCtx, id)
	})
}

// Create creates a cart from the given input and adopts it as the current
// snapshot.
func (co *Coordinator[C, B, L]) Create(ctx context.Context, input CartInput[B, L]) (C, error) {
	return co.runCartOperation(ctx, "create", func(taskCtx context.Context) (C, error) {
		return co.provider.Create(taskCtx, input)
	})
}

func (co *Coordinator[C, B, L]) UpdateBuyer(ctx context.Context, buyer B) (C, error) {
	return co.runCartOperation(ctx, "updateBuyer", func(taskCtx context.Context) (C, error) {
		cart, err := co.ensureCart(taskCtx, "updateBuyer")
		if err != nil {
			return cart, err
		}
		return co.provider.UpdateBuyer(taskCtx, cart, buyer)
	})
}

func (co *Coordinator[C, B, L]) UpdateDiscountCodes(ctx context.Context, codes []string) (C, error) {
	return co.runCartOperation(ctx, "updateDiscountCodes", func(taskCtx context.Context) (C, error) {
		cart, err := co.ensureCart(taskCtx, "updateDiscountCodes")
		if err != nil {
			return cart, err
		}
		return co.provider.UpdateDiscountCodes(taskCtx, cart, codes)
	})
}

func (co *Coordinator[C, B, L]) UpdateAttributes(ctx context.Context, attrs map[string]string) (C, error) {
	return co.runCartOperation(ctx, "updateAttributes", func(taskCtx context.Context) (C, error) {
		cart, err := co.ensureCart(taskCtx, "updateAttributes")
		if err != nil {
			return cart, err
		}
		return co.provider.UpdateAttributes(taskCtx, cart, attrs)
	})
}

func (co *Coordinator[C, B, L]) AddLineItems(ctx context.Context, items []L) (C, error) {
	return co.runCartOperation(ctx, "addLineItems", func(taskCtx context.Context) (C, error) {
		cart, err := co.ensureCart(taskCtx, "addLineItems")
		if err != nil {
			return cart, err
		}
		return co.provider.AddLineItems(taskCtx, cart, items)
	})
}

func (co *Coordinator[C, B, L]) UpdateLineItems(ctx context.Context, items []L) (C, error) {
	return co.runCartOperation(ctx, "updateLineItems", func(taskCtx context.Context) (C, error) {
		cart, err := co.ensureCart(taskCtx, "updateLineItems")
		if err != nil {
			return cart, err
		}
		return co.provider.UpdateLineItems(taskCtx, cart, items)
	})
}

func (co *Coordinator[C, B, L]) RemoveLineItems(ctx context.Context, ids []string) (C, error) {
	return co.runCartOperation(ctx, "removeLineItems", func(taskCtx context.Context) (C, error) {
		cart, err := co.ensureCart(taskCtx, "removeLineItems")
		if err != nil {
			return cart, err
		}
		return co.provider.RemoveLineItems(taskCtx, cart, ids)
	})
}

// runCartOperation is the shared execution path of every public operation:
// capture the pre-submission revision, flag the facade as updating, run the
// operation on the queue, adopt the result, report failures to the error
// sink, and flag the facade as ready again. On failure the caller receives
// the prior snapshot and a nil error; only ErrCartUnavailable is surfaced
// directly.
func (co *Coordinator[C, B, L]) runCartOperation(ctx context.Context, name string, op func(ctx context.Context) (C, error)) (C, error) {
	co.mu.Lock()
	beforeRev := ""
	if co.hasCart {
		beforeRev = co.provider.CartRevisionID(co.cart)
	}
	co.mu.Unlock()

	co.setStatus(enum.StatusUpdating)

	var applied atomic.Bool
	err := co.queue.Submit(ctx, func(taskCtx context.Context) error {
		next, opErr := op(taskCtx)
		if taskCtx.Err() != nil {
			// The queue already surfaced a timeout or cancellation for this
			// task; discard the late result.
			return taskCtx.Err()
		}
		if opErr != nil {
			if !errors.Is(opErr, ErrCartUnavailable) {
				co.logger.Error("cart operation failed",
					zap.String("operation", name),
					zap.Error(opErr))
				co.provider.OnError(opErr)
			}
			co.setStatus(enum.StatusReady)
			return &settledError{err: opErr}
		}
		co.apply(next, beforeRev)
		applied.Store(true)
		co.setStatus(enum.StatusReady)
		return nil
	})

	cart, _ := co.Cart()
	if err == nil {
		return cart, nil
	}

	var settled *settledError
	if errors.As(err, &settled) {
		if errors.Is(err, ErrCartUnavailable) {
			return cart, settled.err
		}
		return cart, nil
	}

	if applied.Load() {
		// The task installed its snapshot but its settlement lost the race
		// against the deadline. It succeeded; report it that way.
		cart, _ = co.Cart()
		return cart, nil
	}

	// The task never settled: queue-level timeout or a cancelled submission
	// context. Recover here since the task body could not.
	co.logger.Error("cart operation did not settle",
		zap.String("operation", name),
		zap.Error(err))
	co.provider.OnError(err)
	co.setStatus(enum.StatusReady)
	return cart, nil
}

// ensureCart returns the current snapshot, creating an empty cart through the
// provider when none exists yet. The creation happens inside the already
// running task; routing it through the public Create would deadlock the
// single-flight queue.
func (co *Coordinator[C, B, L]) ensureCart(ctx context.Context, name string) (C, error) {
	co.mu.Lock()
	cart, ok := co.cart, co.hasCart
	co.mu.Unlock()
	if ok {
		return cart, nil
	}

	created, err := co.provider.Create(ctx, CartInput[B, L]{})
	if err != nil {
		err = fmt.Errorf("create cart for %s: %w", name, err)
		co.logger.Error("cart creation failed", zap.Error(err))
		co.provider.OnError(err)
		var zero C
		return zero, ErrCartUnavailable
	}
	if co.provider.CartID(created) == "" {
		var zero C
		return zero, ErrCartUnavailable
	}

	// Adopt the created cart immediately so it survives a failure of the
	// mutation that follows. A cart was absent at submission time, so the
	// pre-task revision is empty.
	co.apply(created, "")
	return created, nil
}

// apply replaces the current snapshot and records the batch's starting
// revision the first time a task changes the revision within the current
// idle-to-idle cycle.
func (co *Coordinator[C, B, L]) apply(next C, beforeRev string) {
	co.mu.Lock()
	defer co.mu.Unlock()

	co.cart = next
	co.hasCart = true

	if !co.prevRevSet && co.provider.CartRevisionID(next) != beforeRev {
		co.prevRev = beforeRev
		co.prevRevSet = true
	}
}

func (co *Coordinator[C, B, L]) setStatus(status enum.Status) {
	co.mu.Lock()
	if co.status == status {
		co.mu.Unlock()
		return
	}
	co.status = status
	co.mu.Unlock()

	co.events.Emit(Event{Name: EventStatusChange, Detail: StatusChangeDetail{Status: status}})
}

// handleIdle runs on the queue's worker when it drains, before the final
// task's submitter is released, so the observation is pinned to the batch
// that just finished: the snapshot and change verdict recorded here can never
// reflect a later batch's state. Delivery happens on a separate goroutine, in
// drain order, so listeners may submit new operations without deadlocking the
// worker. Intermediate revisions inside one batch are coalesced away.
func (co *Coordinator[C, B, L]) handleIdle() {
	co.mu.Lock()
	notice := batchNotice[C]{cart: co.cart}
	if co.prevRevSet {
		current := ""
		if co.hasCart {
			current = co.provider.CartRevisionID(co.cart)
		}
		notice.changed = current != co.prevRev
		co.prevRev = ""
		co.prevRevSet = false
	}
	co.mu.Unlock()

	co.noticeMu.Lock()
	co.notices = append(co.notices, notice)
	if co.delivering {
		co.noticeMu.Unlock()
		return
	}
	co.delivering = true
	co.noticeMu.Unlock()

	go co.deliverNotices()
}

func (co *Coordinator[C, B, L]) deliverNotices() {
	for {
		co.noticeMu.Lock()
		if len(co.notices) == 0 {
			co.delivering = false
			co.noticeMu.Unlock()
			return
		}
		notice := co.notices[0]
		co.notices = co.notices[1:]
		co.noticeMu.Unlock()

		co.events.Emit(Event{Name: EventIdle, Detail: CartDetail[C]{Cart: notice.cart}})
		if notice.changed {
			co.events.Emit(Event{Name: EventChange, Detail: CartDetail[C]{Cart: notice.cart}})
		}
	}
}
