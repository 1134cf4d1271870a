// Package model defines the shared data types of the crawl pipeline:
// targets in the frontier, queued jobs, fetched pages with their extracted
// artifacts, and the index-ready projection handed to the search collaborator.
//
// The types here are plain data. Lifecycle rules are enforced by the owning
// components: the frontier store owns Target state, the job queue owns Job
// state, and the storage writer owns Page persistence. Other packages only
// read these types or hand them to their owner.
package model
