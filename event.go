package cartsync

import "sync"

// Event is a named notification carrying an opaque detail payload.
type Event struct {
	Name   string
	Detail any
}

// Listener receives dispatched events.
type Listener func(Event)

// Event names emitted by the Coordinator.
const (
	// EventStatusChange carries a StatusChangeDetail on every status transition.
	EventStatusChange = "statuschange"
	// EventIdle carries a CartDetail each time the queue fully drains.
	EventIdle = "idle"
	// EventChange carries a CartDetail when a drained batch's ending revision
	// differs from its starting revision.
	EventChange = "change"
)

type listenerEntry struct {
	id int
	fn Listener
}

// EventChannel is a minimal named-event notification primitive. Listeners for
// a name are invoked in registration order; registering or removing listeners
// from within a handler does not affect the dispatch pass already in flight.
type EventChannel struct {
	mu        sync.Mutex
	nextID    int
	listeners map[string][]listenerEntry
}

func NewEventChannel() *EventChannel {
	return &EventChannel{
		listeners: make(map[string][]listenerEntry),
	}
}

// On registers a listener for the named event and returns a function that
// removes it again.
func (ec *EventChannel) On(name string, fn Listener) func() {
	ec.mu.Lock()
	defer ec.mu.Unlock()

	ec.nextID++
	id := ec.nextID
	ec.listeners[name] = append(ec.listeners[name], listenerEntry{id: id, fn: fn})

	return func() { ec.off(name, id) }
}

func (ec *EventChannel) off(name string, id int) {
	ec.mu.Lock()
	defer ec.mu.Unlock()

	entries := ec.listeners[name]
	for i, entry := range entries {
		if entry.id == id {
			// Copy-on-remove keeps slices captured by an in-flight Emit intact.
			ec.listeners[name] = append(entries[:i:i], entries[i+1:]...)
			return
		}
	}
}

// Emit dispatches the event to all listeners currently registered for its
// name. Emitting with zero listeners is a no-op.
func (ec *EventChannel) Emit(ev Event) {
	ec.mu.Lock()
	entries := ec.listeners[ev.Name]
	snapshot := make([]listenerEntry, len(entries))
	copy(snapshot, entries)
	ec.mu.Unlock()

	for _, entry := range snapshot {
		entry.fn(ev)
	}
}
