// Package storage persists page records and delivers index projections.
//
// Pages live in SQLite as JSON documents guarded by a per-record version
// column. Mutations go through a read-modify-write cycle that retries on
// version conflicts, so concurrent enrichment completions for different
// kinds never overwrite each other. Once a page's enrichment is terminal
// its projection is delivered to the Elasticsearch collaborator with an
// idempotent upsert keyed by the target identifier.
package storage
