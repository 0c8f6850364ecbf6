// Package ext defines the extension system for the pipeline.
// Extensions are notified of lifecycle events (event recorded, job
// enqueued, completed, dead lettered, etc.) and can react to them —
// logging, metrics, audit trails, and the like.
//
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
package ext

import (
	"context"
	"time"

	"github.com/Danservfinn/churnsaver-sub010/breaker"
	"github.com/Danservfinn/churnsaver-sub010/event"
	"github.com/Danservfinn/churnsaver-sub010/job"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Event ingestion hooks
// ──────────────────────────────────────────────────

// EventRecorded is called after an inbound webhook event is durably
// recorded for the first time.
type EventRecorded interface {
	OnEventRecorded(ctx context.Context, evt *event.InboundEvent) error
}

// EventDuplicate is called when an inbound event is recognised as a
// redelivery of an already-recorded event and dropped.
type EventDuplicate interface {
	OnEventDuplicate(ctx context.Context, evt *event.InboundEvent) error
}

// ──────────────────────────────────────────────────
// Job lifecycle hooks
// ──────────────────────────────────────────────────

// JobEnqueued is called after a job is successfully enqueued.
type JobEnqueued interface {
	OnJobEnqueued(ctx context.Context, j *job.Job) error
}

// JobStarted is called when a worker begins executing a job.
type JobStarted interface {
	OnJobStarted(ctx context.Context, j *job.Job) error
}

// JobCompleted is called after a job finishes successfully.
type JobCompleted interface {
	OnJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) error
}

// JobFailed is called when a job fails terminally (no more retries).
type JobFailed interface {
	OnJobFailed(ctx context.Context, j *job.Job, err error) error
}

// JobRetrying is called when a job fails but is scheduled for retry.
type JobRetrying interface {
	OnJobRetrying(ctx context.Context, j *job.Job, attempt int, nextRunAt time.Time) error
}

// JobDLQ is called when a job is moved to the dead letter store.
type JobDLQ interface {
	OnJobDLQ(ctx context.Context, j *job.Job, err error) error
}

// ──────────────────────────────────────────────────
// Other lifecycle hooks
// ──────────────────────────────────────────────────

// BreakerStateChanged is called when a circuit breaker transitions
// between states for a job name.
type BreakerStateChanged interface {
	OnBreakerStateChanged(ctx context.Context, jobName string, from, to breaker.Status) error
}

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
