// Package churnsaver provides the webhook ingestion and durable job
// processing core for the churn-recovery service. It verifies signed
// webhook deliveries from the commerce platform, records each event
// exactly once, and processes the resulting work asynchronously with
// retries, per-job-type circuit breaking, and dead-letter escalation —
// all under strict multi-tenant isolation.
//
// The package is designed as a library, not a service. Import it,
// configure a store, and register job handlers as ordinary Go functions.
//
// # Quick Start
//
//	p, err := churnsaver.New(
//	    churnsaver.WithStore(pgStore),
//	    churnsaver.WithConcurrency(20),
//	)
//
// # Architecture
//
// Each subsystem (event, job, dlq, breaker) defines its own store
// interface; a single backend implements all of them. The engine package
// wires the subsystems together and exposes Ingest and Enqueue.
//
// All entity IDs use TypeID — type-prefixed, K-sortable, UUIDv7-based,
// compile-time safe identifiers.
package churnsaver
