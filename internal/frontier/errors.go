package frontier

import "errors"

// Frontier store errors.
var (
	// ErrNotFound is returned when the identifier is not registered.
	ErrNotFound = errors.New("target not found in frontier")

	// ErrBadTransition is returned when a state change would violate the
	// monotonic lifecycle (e.g. fetched back to queued).
	ErrBadTransition = errors.New("disallowed target state transition")

	// ErrDepthExceeded is returned when a target registered beyond the
	// depth cap is asked to transition to queued. Such targets stay
	// recorded for provenance but are never fetched.
	ErrDepthExceeded = errors.New("target depth exceeds configured maximum")

	// ErrDead is returned when an operation would revive a dead target.
	// Dead targets spent their attempt budget and are never retried
	// automatically.
	ErrDead = errors.New("target is dead")
)
