package normalize

import (
	"net/url"
	"path"
	"strings"
)

// Identifier canonicalizes a discovered address into the stable identifier
// used for frontier deduplication. The input may omit the scheme ("http"
// is assumed) but must carry a syntactically and cryptographically valid
// v3 onion host.
//
// Canonical form: lowercase scheme and host, default port stripped, path
// cleaned with a leading slash ("/" for empty paths), query preserved,
// fragment and user info dropped.
func Identifier(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrEmptyAddress
	}

	// Default the scheme so bare host names from seed files parse with a
	// host component rather than a path.
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", ErrUnparsableAddress
	}

	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", ErrUnsupportedScheme
	}

	host := strings.ToLower(u.Hostname())
	if !IsOnionHost(host) {
		return "", ErrNotOnion
	}
	if IsV2Host(host) {
		return "", ErrV2Deprecated
	}
	if !IsValidV3Host(host) {
		return "", ErrInvalidOnion
	}

	// Strip default ports; keep explicit non-default ports because they
	// address a different service descriptor port.
	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		u.Host = host + ":" + port
	} else {
		u.Host = host
	}

	// Clean the path: resolve dot segments, collapse duplicate slashes,
	// and give empty paths a canonical "/" so "http://x.onion" and
	// "http://x.onion/" dedupe to one identifier.
	p := u.EscapedPath()
	if p == "" {
		p = "/"
	} else {
		trailing := strings.HasSuffix(p, "/") && p != "/"
		p = path.Clean(p)
		if trailing && p != "/" {
			p += "/"
		}
	}
	u.Path = p
	u.RawPath = ""

	u.Fragment = ""
	u.User = nil

	return u.String(), nil
}

// Resolve resolves a possibly-relative href against the page identifier it
// was discovered on and canonicalizes the result. It returns the resolved
// identifier and whether the result stays on the same host as the base.
func Resolve(baseIdentifier, href string) (identifier string, inScope bool, err error) {
	base, err := url.Parse(baseIdentifier)
	if err != nil {
		return "", false, ErrUnparsableAddress
	}

	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", false, ErrUnparsableAddress
	}

	resolved := base.ResolveReference(ref)
	identifier, err = Identifier(resolved.String())
	if err != nil {
		return "", false, err
	}

	return identifier, strings.EqualFold(resolved.Hostname(), base.Hostname()), nil
}

// Host extracts the onion host from a canonical identifier.
func Host(identifier string) string {
	u, err := url.Parse(identifier)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
