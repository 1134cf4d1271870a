// Package crawler implements the fetch-job handler of the crawl worker
// pool.
//
// Per job the handler moves the target to fetching, retrieves the
// content through the proxy pool, runs extraction, registers discovered
// links with the frontier, and creates the page record with its enrich
// and detect follow-up jobs. The job is acked only after those side
// effects are durably recorded. Transport failures are not retried
// inline; the handler requeues the job with backoff and redelivery
// carries the single retry policy.
package crawler
