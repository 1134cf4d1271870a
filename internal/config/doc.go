// Package config provides the process-wide configuration for the crawl
// pipeline: queue and store addresses, proxy pool endpoints, depth and
// attempt budgets, backoff curves, and enrichment service settings.
// All settings are fixed for the lifetime of the process; changing them
// requires a restart.
package config
