// Package frontier implements the durable store of all known crawl targets
// and their lifecycle state. It is the single source of truth for "has this
// identifier been seen, is it in progress, is it done".
//
// Registration is atomic with respect to concurrent callers racing on the
// same identifier: exactly one caller observes "new", every other caller
// observes "duplicate". This guarantees at-most-once fetch enqueue per
// identifier regardless of how many pages discover it concurrently, and
// handles cyclic link graphs structurally with no explicit cycle detection.
//
// State transitions are monotonic except failed -> queued, which is allowed
// for bounded retries until the attempt budget is spent and the target
// becomes dead.
package frontier
