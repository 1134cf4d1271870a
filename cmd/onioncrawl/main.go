// Package main provides the entry point for the onioncrawl CLI.
//
// onioncrawl is a distributed crawl pipeline for Tor hidden services
// (.onion addresses). Seeds are ingested into a shared frontier, fetched
// through a pool of SOCKS5 proxies, enriched by external services, and
// indexed for search.
//
// Usage:
//
//	onioncrawl seed <onion-address>...
//	onioncrawl worker --kinds fetch,enrich
//	onioncrawl status
//
// See --help for all available options.
package main

// main is the entry point for onioncrawl.
func main() {
	Execute()
}
