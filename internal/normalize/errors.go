package normalize

import "errors"

// Normalization errors. Callers use errors.Is() to distinguish rejection
// reasons; all of them mean the candidate never enters the frontier.
var (
	// ErrEmptyAddress is returned for empty or whitespace-only input.
	ErrEmptyAddress = errors.New("empty address")

	// ErrUnparsableAddress is returned when the input is not a parsable URL.
	ErrUnparsableAddress = errors.New("unparsable address")

	// ErrUnsupportedScheme is returned for schemes other than http/https.
	// Other protocols (ftp, mailto, magnet) are artifacts, not crawl targets.
	ErrUnsupportedScheme = errors.New("unsupported scheme")

	// ErrNotOnion is returned when the host is not a .onion address.
	// Clearnet links are recorded as artifacts but never crawled.
	ErrNotOnion = errors.New("not an onion address")

	// ErrV2Deprecated is returned for v2 onion addresses, which stopped
	// working in October 2021.
	ErrV2Deprecated = errors.New("v2 onion addresses are deprecated and no longer functional")

	// ErrInvalidOnion is returned when a v3-shaped address fails checksum
	// validation.
	ErrInvalidOnion = errors.New("invalid v3 onion address")
)
