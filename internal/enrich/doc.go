// Package enrich attaches post-fetch results to page records.
//
// Three enrichment kinds exist: capture (visual snapshot via the render
// service), classify (subject and language via the classification
// service), and exif (embedded metadata from the page's images, fetched
// through the proxy pool). Each kind runs with its own timeout and a
// fixed retry budget with linear backoff; a kind that spends its budget
// is recorded as failed on the page and the others proceed. Partial
// enrichment is a queryable state, not an error.
package enrich
