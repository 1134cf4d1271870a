// Package queue implements the durable job queue on Redis Streams.
//
// Each job kind has its own stream consumed through a consumer group, which
// gives at-least-once delivery: a worker that crashes between dequeue and
// ack leaves the entry pending, and it is reclaimed and redelivered once it
// has been idle longer than the visibility timeout. Handlers must therefore
// be idempotent; frontier and page mutations are keyed and monotonic, so
// re-running a handler cannot corrupt state.
//
// Enqueues are merged by idempotency key: while a job for (kind, payload)
// is pending or in flight, enqueueing the same key is a no-op rather than a
// duplicate. Nacked jobs park in a per-kind delayed set scored by their
// not-before time and are promoted back onto the stream by the next
// dequeuer, which keeps retry backoff out of worker control flow.
package queue
