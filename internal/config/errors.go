package config

import "errors"

// Configuration validation errors.
// These errors are returned by Config.Validate() and provide specific
// information about what is wrong with the configuration. They are
// package-level sentinel errors so callers can use errors.Is().
var (
	// ErrNoRedisAddress is returned when the queue address is empty.
	// Every worker pool needs the queue; there is no degraded mode.
	ErrNoRedisAddress = errors.New("no redis address: the job queue is required")

	// ErrInvalidTimeout is returned when a timeout is not positive.
	// A zero or negative timeout would cause immediate failures.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidMaxDepth is returned when the depth cap is negative.
	// Depth 0 means seeds only.
	ErrInvalidMaxDepth = errors.New("invalid max depth: must be non-negative")

	// ErrInvalidAttempts is returned when the fetch attempt budget is not
	// positive. A budget of zero would mark every target dead immediately.
	ErrInvalidAttempts = errors.New("invalid max fetch attempts: must be positive")

	// ErrInvalidVisibilityTimeout is returned when the queue visibility
	// timeout is not positive. Redelivery relies on it.
	ErrInvalidVisibilityTimeout = errors.New("invalid visibility timeout: must be positive")

	// ErrInvalidRetryBudget is returned when the enrichment retry budget
	// is negative. Zero is valid and means no retries.
	ErrInvalidRetryBudget = errors.New("invalid enrich retry budget: must be non-negative")

	// ErrInvalidBackoff is returned when a backoff base or cap is not
	// positive.
	ErrInvalidBackoff = errors.New("invalid backoff: bases and cap must be positive")

	// ErrInvalidWorkerCount is returned when the local worker count is not
	// positive. Zero would mean the pool processes nothing.
	ErrInvalidWorkerCount = errors.New("invalid worker count: must be positive")

	// ErrInvalidMaxBodySize is returned when the max body size is negative.
	// Use 0 to fall back to the default limit.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")
)
