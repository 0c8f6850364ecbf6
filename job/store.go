package job

import (
	"context"
	"time"

	"github.com/Danservfinn/churnsaver-sub010/id"
)

// ListOpts controls pagination and filtering for job list queries.
type ListOpts struct {
	// Limit is the maximum number of jobs to return. Zero means no limit.
	Limit int
	// Offset is the number of jobs to skip.
	Offset int
	// Queue filters by queue name. Empty means all queues.
	Queue string
	// TenantID filters by tenant. Empty means all tenants.
	TenantID string
}

// CountOpts controls filtering for job count queries.
type CountOpts struct {
	// Queue filters by queue name. Empty means all queues.
	Queue string
	// State filters by job state. Empty means all states.
	State State
}

// Store defines the persistence contract for jobs.
type Store interface {
	// EnqueueJob persists a new job in pending state. When the job has a
	// SingletonKey and a non-terminal job already holds the
	// (name, singleton key) slot, it returns churnsaver.ErrSingletonExists
	// and persists nothing; callers treat that as an idempotent no-op.
	// The check and the insert are one atomic operation.
	EnqueueJob(ctx context.Context, j *Job) error

	// ClaimJobs atomically claims up to limit eligible jobs (pending or
	// retrying with RunAt <= now) from the given queues, transitions them
	// to running, and returns them. The claim must be safe under multiple
	// concurrent workers in separate processes: two workers never receive
	// the same job.
	ClaimJobs(ctx context.Context, queues []string, limit int) ([]*Job, error)

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID id.JobID) (*Job, error)

	// UpdateJob persists changes to an existing job.
	UpdateJob(ctx context.Context, j *Job) error

	// CancelJob transitions a pending or retrying job to cancelled.
	// A running job returns churnsaver.ErrJobRunning (cancellation of
	// active work is best-effort: the attempt may still complete); a
	// terminal job returns churnsaver.ErrInvalidState.
	CancelJob(ctx context.Context, jobID id.JobID) error

	// ListJobsByState returns jobs matching the given state.
	ListJobsByState(ctx context.Context, state State, opts ListOpts) ([]*Job, error)

	// HeartbeatJob updates the heartbeat timestamp for a running job,
	// indicating the worker is still alive.
	HeartbeatJob(ctx context.Context, jobID id.JobID, workerID id.WorkerID) error

	// ReapStaleJobs returns running jobs whose last heartbeat is older
	// than the given threshold, indicating the worker may have crashed.
	ReapStaleJobs(ctx context.Context, threshold time.Duration) ([]*Job, error)

	// CountJobs returns the number of jobs matching the given options.
	CountJobs(ctx context.Context, opts CountOpts) (int64, error)
}
