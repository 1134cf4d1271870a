// Package log provides structured logging for the crawl pipeline on top of
// log/slog. The handler it installs masks attribute values that look like
// credentials or key material, so worker logs can be shipped to shared
// aggregation without leaking secrets picked up from crawled content.
package log
