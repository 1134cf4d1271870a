package model

import (
	"fmt"
	"time"
)

// JobKind discriminates the work item variants flowing through the queue.
// Each worker pool consumes exactly one kind.
type JobKind string

const (
	// JobFetch retrieves a target's content through the proxy pool.
	// Payload is a target identifier.
	JobFetch JobKind = "fetch"

	// JobDetect runs embedded-metadata detection on a page's images.
	// Payload is a page identifier.
	JobDetect JobKind = "detect"

	// JobEnrich calls the external capture and classification services
	// for a page. Payload is a page identifier.
	JobEnrich JobKind = "enrich"

	// JobIndex delivers the index-ready projection of a terminal page
	// to the search collaborator. Payload is a page identifier.
	JobIndex JobKind = "index"
)

// Valid reports whether the kind is one of the known job kinds.
func (k JobKind) Valid() bool {
	switch k {
	case JobFetch, JobDetect, JobEnrich, JobIndex:
		return true
	}
	return false
}

// Job is a unit of queued work referencing a target or page.
type Job struct {
	// ID is the queue-assigned message identifier. Empty until enqueued.
	ID string `json:"id,omitempty"`

	// Kind selects the worker pool that consumes the job.
	Kind JobKind `json:"kind"`

	// Payload is a target identifier for fetch jobs and a page identifier
	// for detect, enrich, and index jobs.
	Payload string `json:"payload"`

	// Attempt counts deliveries of this job, starting at 1 on the first
	// delivery. Carried in the job record so retry policy stays visible.
	Attempt int `json:"attempt"`

	// NotBefore delays delivery for backoff. Zero means deliver immediately.
	NotBefore time.Time `json:"not_before,omitempty"`

	// EnqueuedAt is when the job was first enqueued.
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// IdempotencyKey returns the key used to merge duplicate enqueues.
// At most one job per key may be pending or in-flight at any time.
func (j *Job) IdempotencyKey() string {
	return fmt.Sprintf("%s:%s", j.Kind, j.Payload)
}
