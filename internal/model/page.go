package model

import "time"

// FetchOutcome classifies the result of a fetch attempt.
type FetchOutcome string

const (
	// FetchSuccess means content was retrieved with a usable status code.
	FetchSuccess FetchOutcome = "success"

	// FetchTimeout means the request exceeded its deadline.
	FetchTimeout FetchOutcome = "timeout"

	// FetchProxyError means the proxy endpoint failed before or during
	// the request (SOCKS handshake, connection refused, circuit failure).
	FetchProxyError FetchOutcome = "proxy-error"

	// FetchContentError means the transport worked but the response was
	// unusable (error status, oversized or undecodable body).
	FetchContentError FetchOutcome = "content-error"

	// FetchDeferred means no proxy endpoint was available so no fetch was
	// attempted at all. The job is parked and retried later without
	// spending the target's attempt budget.
	FetchDeferred FetchOutcome = "deferred"
)

// Link is a hyperlink discovered on a page, resolved to absolute form.
type Link struct {
	// URL is the absolute link target.
	URL string `json:"url"`

	// Onion reports whether the link points at a .onion host.
	Onion bool `json:"onion"`

	// InScope reports whether the link stays on the page's own host.
	InScope bool `json:"in_scope"`
}

// CryptoAddress is a cryptocurrency address tagged by its currency.
type CryptoAddress struct {
	// Currency names the recognized format, e.g. "bitcoin", "ethereum",
	// "monero", "litecoin".
	Currency string `json:"currency"`

	// Address is the canonical form of the address. Canonical casing is
	// format specific: bech32 addresses are lowercased, ethereum addresses
	// are lowercased, base58 formats keep their case.
	Address string `json:"address"`
}

// Artifacts is the structured output of the extraction engine for one page.
// Extraction is best effort: artifact classes that fail to parse are skipped
// and counted in Rejected rather than aborting the page.
type Artifacts struct {
	// Links are all hyperlinks in document order.
	Links []Link `json:"links,omitempty"`

	// Images are absolute image URLs, inputs to EXIF detection.
	Images []string `json:"images,omitempty"`

	// Emails are unique email addresses in first-seen order.
	Emails []string `json:"emails,omitempty"`

	// CryptoAddresses are unique cryptocurrency addresses tagged by currency.
	CryptoAddresses []CryptoAddress `json:"crypto_addresses,omitempty"`

	// KeyFingerprints are hex-encoded PGP key fingerprints from armored
	// public key blocks found in the content.
	KeyFingerprints []string `json:"key_fingerprints,omitempty"`

	// Metadata maps <meta> tag names to their content values.
	Metadata map[string]string `json:"metadata,omitempty"`

	// Rejected counts candidates that matched a recognition rule but
	// failed normalization or validation.
	Rejected int `json:"rejected,omitempty"`
}

// EnrichmentKind names a post-fetch processing stage backed by an external
// service or detector.
type EnrichmentKind string

const (
	// EnrichCapture takes a visual snapshot of the page via the render
	// service and records the image reference.
	EnrichCapture EnrichmentKind = "capture"

	// EnrichClassify sends the page text to the classification service and
	// records the subject label, confidence, and language.
	EnrichClassify EnrichmentKind = "classify"

	// EnrichExif downloads the page's images and records embedded EXIF
	// metadata tag names.
	EnrichExif EnrichmentKind = "exif"
)

// RequiredEnrichments lists the kinds a page must reach a terminal state on
// before it is considered complete and eligible for indexing.
func RequiredEnrichments() []EnrichmentKind {
	return []EnrichmentKind{EnrichCapture, EnrichClassify, EnrichExif}
}

// EnrichmentStatus is the per-kind terminal tracking on a page.
type EnrichmentStatus string

const (
	// EnrichmentPending means the kind has not reached a terminal state.
	EnrichmentPending EnrichmentStatus = "pending"

	// EnrichmentDone means the kind succeeded and its result is attached.
	EnrichmentDone EnrichmentStatus = "done"

	// EnrichmentFailed means the kind exhausted its retry budget. The page
	// proceeds with partial enrichment; this is a queryable state, not an
	// error.
	EnrichmentFailed EnrichmentStatus = "failed"
)

// Terminal reports whether the status is done or failed.
func (s EnrichmentStatus) Terminal() bool {
	return s == EnrichmentDone || s == EnrichmentFailed
}

// Enrichment holds the results attached by the enrichment dispatcher.
// Fields are optional; a missing field with a failed status records a
// permanent per-kind failure.
type Enrichment struct {
	// Status tracks the terminal state of each required kind.
	Status map[EnrichmentKind]EnrichmentStatus `json:"status"`

	// ScreenshotRef is the capture service's image reference.
	ScreenshotRef string `json:"screenshot_ref,omitempty"`

	// Subject is the detected subject label.
	Subject string `json:"subject,omitempty"`

	// SubjectConfidence is the classifier's confidence for Subject.
	SubjectConfidence float64 `json:"subject_confidence,omitempty"`

	// Language is the detected language as a BCP 47 tag.
	Language string `json:"language,omitempty"`

	// ExifTags maps image URLs to the EXIF tag names found in them.
	ExifTags map[string][]string `json:"exif_tags,omitempty"`
}

// NewEnrichment returns an Enrichment with every required kind pending.
func NewEnrichment() Enrichment {
	status := make(map[EnrichmentKind]EnrichmentStatus, len(RequiredEnrichments()))
	for _, kind := range RequiredEnrichments() {
		status[kind] = EnrichmentPending
	}
	return Enrichment{Status: status}
}

// Terminal reports whether every required kind has reached a terminal state.
func (e Enrichment) Terminal() bool {
	for _, kind := range RequiredEnrichments() {
		if !e.Status[kind].Terminal() {
			return false
		}
	}
	return true
}

// Page is the result of successfully fetching a target, plus its extracted
// and enriched artifacts. Pages are created by the crawl worker, mutated
// only by the enrichment dispatcher through the storage writer, and become
// immutable once enrichment is terminal.
type Page struct {
	// ID is the page identifier, a UUID assigned at creation.
	ID string `json:"id"`

	// Target is the canonical identifier of the owning target.
	Target string `json:"target"`

	// StatusCode is the HTTP response status code.
	StatusCode int `json:"status_code"`

	// Outcome classifies the fetch result.
	Outcome FetchOutcome `json:"outcome"`

	// Title is the page title from the <title> tag, if any.
	Title string `json:"title,omitempty"`

	// Body is the visible text content, whitespace normalized and bounded.
	Body string `json:"body,omitempty"`

	// ContentHash is the hex SHA-256 of the raw body, the reference to the
	// raw content without storing it inline.
	ContentHash string `json:"content_hash,omitempty"`

	// Artifacts holds the extraction engine's output.
	Artifacts Artifacts `json:"artifacts"`

	// Enrichment holds per-kind results and terminal tracking.
	Enrichment Enrichment `json:"enrichment"`

	// Version guards concurrent read-modify-write cycles on the record.
	// Every successful update increments it.
	Version int64 `json:"version"`

	// FetchedAt is when the content was retrieved.
	FetchedAt time.Time `json:"fetched_at"`

	// CompletedAt is when enrichment reached a terminal state for all
	// required kinds. Zero while enrichment is in progress.
	CompletedAt time.Time `json:"completed_at,omitempty"`
}

// Projection is the index-ready document delivered to the search
// collaborator. Delivery is at least once; the collaborator upserts by
// Identifier so re-indexing the same identifier is a no-op.
type Projection struct {
	// Identifier is the canonical target identifier, the upsert key.
	Identifier string `json:"identifier"`

	// Title, Body, Subject and Language mirror the page fields.
	Title    string `json:"title,omitempty"`
	Body     string `json:"body,omitempty"`
	Subject  string `json:"subject,omitempty"`
	Language string `json:"language,omitempty"`

	// ScreenshotRef is the capture reference, if capture succeeded.
	ScreenshotRef string `json:"screenshot_ref,omitempty"`

	// Emails and CryptoAddresses surface correlation artifacts for search.
	Emails          []string        `json:"emails,omitempty"`
	CryptoAddresses []CryptoAddress `json:"crypto_addresses,omitempty"`

	// FetchedAt is when the underlying page was retrieved.
	FetchedAt time.Time `json:"fetched_at"`
}

// ProjectionOf builds the index projection for a terminal page.
func ProjectionOf(p *Page) Projection {
	return Projection{
		Identifier:      p.Target,
		Title:           p.Title,
		Body:            p.Body,
		Subject:         p.Enrichment.Subject,
		Language:        p.Enrichment.Language,
		ScreenshotRef:   p.Enrichment.ScreenshotRef,
		Emails:          p.Artifacts.Emails,
		CryptoAddresses: p.Artifacts.CryptoAddresses,
		FetchedAt:       p.FetchedAt,
	}
}
