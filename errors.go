package cartsync

import "errors"

var (
	// ErrCartUnavailable is returned by a mutation when no usable cart exists
	// after a creation attempt. It is the only failure surfaced directly to
	// the caller; provider failures go to the error sink instead.
	ErrCartUnavailable = errors.New("cartsync: no cart available after creation attempt")

	// ErrTaskTimeout is surfaced for a task that failed to settle within the
	// queue's per-task execution bound.
	ErrTaskTimeout = errors.New("cartsync: task execution timed out")

	// ErrQueueClosed is returned by Submit after the queue has been closed.
	ErrQueueClosed = errors.New("cartsync: queue closed")

	// ErrCartNotFound is returned by providers when a cart id is unknown.
	ErrCartNotFound = errors.New("cartsync: cart not found")

	// ErrRevisionConflict is returned by providers that guard writes with the
	// cart's revision identifier.
	ErrRevisionConflict = errors.New("cartsync: cart revision conflict")
)

// settledError marks a task failure that the task body already reported and
// recovered from, so the submitting side must not report it again.
type settledError struct {
	err error
}

func (e *settledError) Error() string { return e.err.Error() }

func (e *settledError) Unwrap() error { return e.err }
