// Package worker runs pools of job consumers against the queue.
//
// A Pool binds one job kind to one handler and runs a fixed number of
// consumer goroutines. Each consumer leases a job, invokes the handler,
// and settles the lease from the handler's result: a nil error acks the
// job, a queue.RequeueError nacks it with the requested delay, and any
// other error nacks it with the pool's default delay so a transient
// fault gets another chance after the visibility timeout semantics of
// the queue have run their course.
//
// The handlers for the enrichment kinds live here too. They adapt the
// enrich dispatcher and the search indexer to the job contract, chaining
// an index job once a page's enrichment reaches a terminal state.
package worker
