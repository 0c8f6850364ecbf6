package job

import (
	"time"

	churnsaver "github.com/Danservfinn/churnsaver-sub010"
	"github.com/Danservfinn/churnsaver-sub010/id"
)

// State represents the lifecycle state of a job.
type State string

const (
	// StatePending means the job is waiting to be claimed by a worker.
	StatePending State = "pending"
	// StateRunning means a worker is currently executing the job.
	StateRunning State = "running"
	// StateCompleted means the job finished successfully.
	StateCompleted State = "completed"
	// StateRetrying means the job failed but is scheduled for another
	// attempt at RunAt.
	StateRetrying State = "retrying"
	// StateCancelled means the job was explicitly cancelled before it
	// could complete.
	StateCancelled State = "cancelled"
	// StateDeadLettered means the job failed terminally — retries
	// exhausted or a fatal error — and has a dead letter entry.
	StateDeadLettered State = "dead_lettered"
)

// Terminal reports whether a state ends the job's lifecycle. At most one
// non-terminal job may exist per (name, singleton key) pair; that
// invariant is what keeps concurrent deliveries of the same webhook from
// being processed twice.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateCancelled, StateDeadLettered:
		return true
	}
	return false
}

// Job represents a unit of work to be processed by a worker.
type Job struct {
	churnsaver.Entity

	ID   id.JobID `json:"id"`
	Name string   `json:"name"`

	// SingletonKey deduplicates work: for webhook-derived jobs it is the
	// platform's event id. Empty means no deduplication.
	SingletonKey string `json:"singleton_key,omitempty"`

	Queue       string        `json:"queue"`
	Payload     []byte        `json:"payload"`
	State       State         `json:"state"`
	MaxAttempts int           `json:"max_attempts"`
	Attempts    int           `json:"attempts"`
	LastError   string        `json:"last_error,omitempty"`
	TenantID    string        `json:"tenant_id,omitempty"`
	WorkerID    id.WorkerID   `json:"worker_id,omitempty"`
	RunAt       time.Time     `json:"run_at"`
	StartedAt   *time.Time    `json:"started_at,omitempty"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	HeartbeatAt *time.Time    `json:"heartbeat_at,omitempty"`
	Timeout     time.Duration `json:"timeout,omitempty"`
}
