// Package job defines the job entity, state machine, typed definitions,
// and store interface.
//
// # Job Entity
//
// A [Job] represents a unit of work derived from a webhook event (or
// enqueued directly by a business service). It embeds
// [churnsaver.Entity] for timestamps, carries a JSON payload, and
// progresses through a state machine:
//
//	pending → running → completed
//	pending → running → retrying → running → ...
//	pending → running → dead_lettered
//	pending → cancelled
//
// completed, cancelled, and dead_lettered are terminal. At most one
// non-terminal job exists per (name, singleton key) pair; the store's
// EnqueueJob enforces that atomically.
//
// # Defining a Job
//
// Use [Definition] with a typed handler. The payload is JSON-serialized
// at enqueue time and deserialized before the handler runs:
//
//	var OpenRecoveryCase = job.NewDefinition("open_recovery_case",
//	    func(ctx context.Context, input CaseInput) error {
//	        return cases.Open(ctx, input.MemberID)
//	    },
//	)
//
// Return [Fatal]-wrapped errors for failures that retrying cannot fix;
// they bypass the retry budget and dead-letter immediately.
//
// # Registry
//
// [Registry] maps job names to type-erased [HandlerFunc] values.
// Register definitions at startup via [RegisterDefinition]; enqueues for
// unregistered names are rejected up front.
package job
