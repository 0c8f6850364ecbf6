package breaker

import "time"

// Status is the gate position of a circuit breaker.
type Status string

const (
	// StatusClosed means traffic flows normally.
	StatusClosed Status = "closed"
	// StatusOpen means claims for the job name are rejected without
	// invoking the handler until the reset timeout elapses.
	StatusOpen Status = "open"
	// StatusHalfOpen means exactly one probe execution is allowed
	// through to test whether the downstream dependency recovered.
	StatusHalfOpen Status = "half_open"
)

// State is the persisted breaker state for one job name.
//
// Breakers are keyed by job name, not by tenant: a systemic failure in
// a handler's downstream dependency should not be masked by tenant-level
// isolation. The state lives in the shared store so that independent
// worker processes agree on it; Version supports the compare-and-swap
// updates the store performs.
type State struct {
	JobName             string     `json:"job_name"`
	Status              Status     `json:"status"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	OpenedAt            *time.Time `json:"opened_at,omitempty"`
	ProbeInFlight       bool       `json:"probe_in_flight"`
	Version             int64      `json:"version"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// NewState returns a fresh closed breaker for the given job name.
func NewState(jobName string) *State {
	return &State{
		JobName:   jobName,
		Status:    StatusClosed,
		UpdatedAt: time.Now().UTC(),
	}
}
