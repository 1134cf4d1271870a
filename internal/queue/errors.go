package queue

import (
	"errors"
	"time"
)

// Job queue errors.
var (
	// ErrEmpty is returned by Dequeue when no job became available within
	// the wait window. It is the normal idle condition, not a fault.
	ErrEmpty = errors.New("no job available")

	// ErrBadKind is returned for job kinds the queue does not know.
	ErrBadKind = errors.New("unknown job kind")

	// ErrNotLeased is returned by Ack and Nack when the job carries no
	// delivery ID, i.e. it was never dequeued.
	ErrNotLeased = errors.New("job has no delivery id")
)

// RequeueError signals that a job handler wants its job redelivered
// after a delay instead of acked. The worker loop nacks with the
// carried delay.
type RequeueError struct {
	// Delay is how long the job should wait before redelivery.
	Delay time.Duration

	// Err is the underlying failure, if any.
	Err error
}

// Error implements the error interface.
func (e *RequeueError) Error() string {
	if e.Err == nil {
		return "job requeued"
	}
	return "job requeued: " + e.Err.Error()
}

// Unwrap returns the underlying failure.
func (e *RequeueError) Unwrap() error {
	return e.Err
}
