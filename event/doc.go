// Package event records inbound webhook deliveries exactly once.
//
// The commerce platform retries deliveries aggressively and may deliver
// the same event twice in parallel, so ingestion is idempotent: the
// store's RecordEvent is a single atomic insert-or-ignore keyed on the
// platform's event id. The caller responds success to the platform
// either way; only the first delivery enqueues work.
//
// An event's ProcessedAt is set when its derived job reaches a terminal
// accounting state. Events are never deleted by the core; retention is
// an operator policy applied elsewhere.
package event
