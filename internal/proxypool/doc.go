// Package proxypool manages the set of Tor SOCKS5 endpoints that crawl
// traffic is routed through.
//
// Fetch workers acquire an endpoint per request and report the outcome
// back. Endpoints accumulate strikes on consecutive proxy-level failures
// and are quarantined once they hit the strike limit; quarantined
// endpoints rejoin the rotation after a cooldown. Acquisition prefers
// healthy endpoints round-robin and falls back to degraded ones, so the
// pool keeps serving as long as at least one endpoint is not quarantined.
//
// The pool can also bootstrap an embedded Tor daemon via tornago when no
// external endpoints are configured.
package proxypool
