// Package normalize canonicalizes discovered hidden-service URLs into the
// stable identifiers used by the frontier store for deduplication. Two URLs
// that reach the same resource must normalize to the same identifier, so
// the rules here (host lowercasing, default-port stripping, path cleaning,
// fragment removal) are the single definition of target identity.
//
// The package also validates onion host addresses, including the SHA3-256
// checksum embedded in v3 addresses, so typoed or fabricated addresses
// never enter the frontier.
package normalize
