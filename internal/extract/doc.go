// Package extract turns raw page content into structured artifacts.
//
// The engine is a pure transform with no shared state, so crawl workers
// run it concurrently without coordination. Per artifact class it pairs a
// recognition rule with a normalization rule; candidates that match but
// fail normalization are counted as rejected and skipped. A failure in
// one artifact class never aborts the others.
package extract
