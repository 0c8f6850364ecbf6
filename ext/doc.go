// Package ext defines the extension system for the pipeline.
//
// Extensions are notified of lifecycle events and can react to them —
// recording metrics, emitting audit logs, alerting, etc. Each lifecycle
// hook is a separate interface so extensions opt in only to the events
// they care about.
//
// # Implementing an Extension
//
//	type MyExtension struct{}
//
//	func (e *MyExtension) Name() string { return "my-extension" }
//
//	// Opt in to specific hooks by implementing their interfaces.
//	func (e *MyExtension) OnJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) error {
//	    log.Printf("job %s completed in %s", j.ID, elapsed)
//	    return nil
//	}
//
// # Event Ingestion Hooks
//
//   - [EventRecorded] — an inbound webhook event was recorded for the first time
//   - [EventDuplicate] — a redelivered event was recognised and dropped
//
// # Job Lifecycle Hooks
//
//   - [JobEnqueued] — job was accepted into the queue
//   - [JobStarted] — worker began executing the job
//   - [JobCompleted] — job finished successfully
//   - [JobFailed] — job failed with no retries remaining
//   - [JobRetrying] — job failed but will be retried
//   - [JobDLQ] — job was moved to the dead letter store
//
// # Other Hooks
//
//   - [BreakerStateChanged] — a circuit breaker transitioned between states
//   - [Shutdown] — the pipeline is shutting down gracefully
//
// The [Registry] fans out each event to all registered extensions that
// implement the corresponding hook interface.
package ext
