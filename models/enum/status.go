package enum

// Status represents the facade lifecycle state.
type Status string

const (
	// StatusIdle is the initial state, before any operation has been submitted.
	StatusIdle Status = "idle"
	// StatusUpdating means a mutation task is in flight.
	StatusUpdating Status = "updating"
	// StatusReady means no mutation is currently in flight.
	StatusReady Status = "ready"
)
