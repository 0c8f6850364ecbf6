package dlq

import (
	"time"

	"github.com/Danservfinn/churnsaver-sub010/id"
)

// Entry represents a job that failed terminally — retry budget exhausted
// or a fatal error — and was moved to the dead letter store for operator
// triage or replay.
type Entry struct {
	ID           id.DLQID   `json:"id"`
	JobID        id.JobID   `json:"job_id"`
	JobName      string     `json:"job_name"`
	Queue        string     `json:"queue"`
	SingletonKey string     `json:"singleton_key,omitempty"`
	TenantID     string     `json:"tenant_id,omitempty"`
	Payload      []byte     `json:"payload"`
	LastError    string     `json:"last_error"`
	Attempts     int        `json:"attempts"`
	MaxAttempts  int        `json:"max_attempts"`
	MovedAt      time.Time  `json:"moved_at"`
	ReplayedAt   *time.Time `json:"replayed_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}
