package enrich

import "errors"

var (
	// ErrNoHTTPClient is returned when the exif detector has no proxied
	// client source. Image fetches fail closed rather than leak traffic
	// outside the proxy.
	ErrNoHTTPClient = errors.New("no proxied HTTP client source configured")

	// ErrServiceError is returned when an enrichment service answers
	// with a non-success status.
	ErrServiceError = errors.New("enrichment service returned an error")

	// ErrBudgetExhausted wraps the last failure after a kind's retry
	// budget is spent. The dispatcher records it per kind on the page.
	ErrBudgetExhausted = errors.New("enrichment retry budget exhausted")

	// ErrNotConfigured settles a kind whose service has no configured
	// endpoint. The kind records as failed and the page proceeds with
	// partial enrichment.
	ErrNotConfigured = errors.New("enrichment service not configured")
)
