package model

import "time"

// TargetState represents the lifecycle state of a discovered target.
// The String() method provides the stable names used in the database
// and in logs.
type TargetState int

const (
	// TargetDiscovered means the identifier is known but no fetch job has
	// been enqueued for it. Targets beyond the depth cap stay in this state
	// forever; they are recorded for provenance only.
	TargetDiscovered TargetState = iota

	// TargetQueued means a fetch job for the target is pending in the queue.
	TargetQueued

	// TargetFetching means a crawl worker has leased the fetch job.
	TargetFetching

	// TargetFetched means content was retrieved and a page record exists.
	// This state is terminal for the fetch phase.
	TargetFetched

	// TargetFailed means the last fetch attempt failed. Failed targets are
	// re-queued with backoff until the attempt budget is spent.
	TargetFailed

	// TargetDead means the fetch attempt budget is exhausted. Dead targets
	// are never retried automatically.
	TargetDead
)

// String returns the stable name of the target state.
func (s TargetState) String() string {
	switch s {
	case TargetDiscovered:
		return "discovered"
	case TargetQueued:
		return "queued"
	case TargetFetching:
		return "fetching"
	case TargetFetched:
		return "fetched"
	case TargetFailed:
		return "failed"
	case TargetDead:
		return "dead"
	default:
		return "unknown"
	}
}

// ParseTargetState converts a stable name back to a TargetState.
// Unknown names map to TargetDiscovered, the weakest state.
func ParseTargetState(s string) TargetState {
	switch s {
	case "queued":
		return TargetQueued
	case "fetching":
		return TargetFetching
	case "fetched":
		return TargetFetched
	case "failed":
		return TargetFailed
	case "dead":
		return TargetDead
	default:
		return TargetDiscovered
	}
}

// Target is a discovered hidden-service URL tracked by the frontier store.
// The identifier is the canonical form produced by the normalize package
// and is unique within the frontier.
type Target struct {
	// Identifier is the canonical URL (scheme + normalized host + path).
	Identifier string `json:"identifier"`

	// Parent is the identifier of the page the target was discovered on.
	// Empty for seeds.
	Parent string `json:"parent,omitempty"`

	// Depth is the hop count from the nearest seed.
	Depth int `json:"depth"`

	// State is the current lifecycle state. Transitions are monotonic
	// except failed -> queued for bounded retries.
	State TargetState `json:"state"`

	// Attempts counts fetch attempts made so far.
	Attempts int `json:"attempts"`

	// FirstSeen is when the identifier was first registered.
	FirstSeen time.Time `json:"first_seen"`
}
