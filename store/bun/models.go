package bunstore

import (
	"fmt"
	"time"

	"github.com/uptrace/bun"

	churnsaver "github.com/Danservfinn/churnsaver-sub010"
	"github.com/Danservfinn/churnsaver-sub010/breaker"
	"github.com/Danservfinn/churnsaver-sub010/dlq"
	"github.com/Danservfinn/churnsaver-sub010/event"
	"github.com/Danservfinn/churnsaver-sub010/id"
	"github.com/Danservfinn/churnsaver-sub010/job"
)

// ── Event model ───────────────────────────────────────────────────

type eventModel struct {
	bun.BaseModel `bun:"table:churnsaver_events"`

	ID          string     `bun:"id,pk"`
	OriginID    string     `bun:"origin_id,notnull"`
	Type        string     `bun:"type,notnull"`
	TenantID    string     `bun:"tenant_id"`
	Payload     []byte     `bun:"payload,type:bytea"`
	ReceivedAt  time.Time  `bun:"received_at,notnull,default:current_timestamp"`
	ProcessedAt *time.Time `bun:"processed_at"`
}

func toEventModel(evt *event.InboundEvent) *eventModel {
	return &eventModel{
		ID:          evt.ID.String(),
		OriginID:    evt.OriginID,
		Type:        string(evt.Type),
		TenantID:    evt.TenantID,
		Payload:     evt.Payload,
		ReceivedAt:  evt.ReceivedAt,
		ProcessedAt: evt.ProcessedAt,
	}
}

func fromEventModel(m *eventModel) (*event.InboundEvent, error) {
	parsedID, err := id.ParseEventID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("churnsaver/bun: parse event id %q: %w", m.ID, err)
	}

	return &event.InboundEvent{
		ID:          parsedID,
		OriginID:    m.OriginID,
		Type:        event.Type(m.Type),
		TenantID:    m.TenantID,
		Payload:     m.Payload,
		ReceivedAt:  m.ReceivedAt,
		ProcessedAt: m.ProcessedAt,
	}, nil
}

// ── Job model ─────────────────────────────────────────────────────

type jobModel struct {
	bun.BaseModel `bun:"table:churnsaver_jobs"`

	ID           string     `bun:"id,pk"`
	Name         string     `bun:"name,notnull"`
	SingletonKey string     `bun:"singleton_key"`
	Queue        string     `bun:"queue,notnull,default:'default'"`
	Payload      []byte     `bun:"payload,notnull,type:bytea"`
	State        string     `bun:"state,notnull,default:'pending'"`
	MaxAttempts  int        `bun:"max_attempts,notnull,default:5"`
	Attempts     int        `bun:"attempts,notnull,default:0"`
	LastError    string     `bun:"last_error"`
	TenantID     string     `bun:"tenant_id"`
	WorkerID     string     `bun:"worker_id"`
	Timeout      int64      `bun:"timeout,notnull,default:0"`
	RunAt        time.Time  `bun:"run_at,notnull,default:current_timestamp"`
	StartedAt    *time.Time `bun:"started_at"`
	CompletedAt  *time.Time `bun:"completed_at"`
	HeartbeatAt  *time.Time `bun:"heartbeat_at"`
	CreatedAt    time.Time  `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt    time.Time  `bun:"updated_at,notnull,default:current_timestamp"`
}

func toJobModel(j *job.Job) *jobModel {
	return &jobModel{
		ID:           j.ID.String(),
		Name:         j.Name,
		SingletonKey: j.SingletonKey,
		Queue:        j.Queue,
		Payload:      j.Payload,
		State:        string(j.State),
		MaxAttempts:  j.MaxAttempts,
		Attempts:     j.Attempts,
		LastError:    j.LastError,
		TenantID:     j.TenantID,
		WorkerID:     j.WorkerID.String(),
		Timeout:      j.Timeout.Nanoseconds(),
		RunAt:        j.RunAt,
		StartedAt:    j.StartedAt,
		CompletedAt:  j.CompletedAt,
		HeartbeatAt:  j.HeartbeatAt,
		CreatedAt:    j.CreatedAt,
		UpdatedAt:    j.UpdatedAt,
	}
}

func fromJobModel(m *jobModel) (*job.Job, error) {
	parsedID, err := id.ParseJobID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("churnsaver/bun: parse job id %q: %w", m.ID, err)
	}

	j := &job.Job{
		Entity: churnsaver.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:           parsedID,
		Name:         m.Name,
		SingletonKey: m.SingletonKey,
		Queue:        m.Queue,
		Payload:      m.Payload,
		State:        job.State(m.State),
		MaxAttempts:  m.MaxAttempts,
		Attempts:     m.Attempts,
		LastError:    m.LastError,
		TenantID:     m.TenantID,
		RunAt:        m.RunAt,
		StartedAt:    m.StartedAt,
		CompletedAt:  m.CompletedAt,
		HeartbeatAt:  m.HeartbeatAt,
		Timeout:      time.Duration(m.Timeout),
	}

	if m.WorkerID != "" {
		parsedWorker, wErr := id.ParseWorkerID(m.WorkerID)
		if wErr == nil {
			j.WorkerID = parsedWorker
		}
	}

	return j, nil
}

// ── DLQ entry model ───────────────────────────────────────────────

type dlqEntryModel struct {
	bun.BaseModel `bun:"table:churnsaver_dlq"`

	ID           string     `bun:"id,pk"`
	JobID        string     `bun:"job_id,notnull"`
	JobName      string     `bun:"job_name,notnull"`
	Queue        string     `bun:"queue,notnull"`
	SingletonKey string     `bun:"singleton_key"`
	TenantID     string     `bun:"tenant_id"`
	Payload      []byte     `bun:"payload,notnull,type:bytea"`
	LastError    string     `bun:"last_error,notnull"`
	Attempts     int        `bun:"attempts,notnull"`
	MaxAttempts  int        `bun:"max_attempts,notnull"`
	MovedAt      time.Time  `bun:"moved_at,notnull,default:current_timestamp"`
	ReplayedAt   *time.Time `bun:"replayed_at"`
	CreatedAt    time.Time  `bun:"created_at,notnull,default:current_timestamp"`
}

func toDLQModel(e *dlq.Entry) *dlqEntryModel {
	return &dlqEntryModel{
		ID:           e.ID.String(),
		JobID:        e.JobID.String(),
		JobName:      e.JobName,
		Queue:        e.Queue,
		SingletonKey: e.SingletonKey,
		TenantID:     e.TenantID,
		Payload:      e.Payload,
		LastError:    e.LastError,
		Attempts:     e.Attempts,
		MaxAttempts:  e.MaxAttempts,
		MovedAt:      e.MovedAt,
		ReplayedAt:   e.ReplayedAt,
		CreatedAt:    e.CreatedAt,
	}
}

func fromDLQModel(m *dlqEntryModel) (*dlq.Entry, error) {
	parsedID, err := id.ParseDLQID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("churnsaver/bun: parse dlq id %q: %w", m.ID, err)
	}

	parsedJobID, err := id.ParseJobID(m.JobID)
	if err != nil {
		return nil, fmt.Errorf("churnsaver/bun: parse job id %q: %w", m.JobID, err)
	}

	return &dlq.Entry{
		ID:           parsedID,
		JobID:        parsedJobID,
		JobName:      m.JobName,
		Queue:        m.Queue,
		SingletonKey: m.SingletonKey,
		TenantID:     m.TenantID,
		Payload:      m.Payload,
		LastError:    m.LastError,
		Attempts:     m.Attempts,
		MaxAttempts:  m.MaxAttempts,
		MovedAt:      m.MovedAt,
		ReplayedAt:   m.ReplayedAt,
		CreatedAt:    m.CreatedAt,
	}, nil
}

// ── Breaker state model ───────────────────────────────────────────

type breakerModel struct {
	bun.BaseModel `bun:"table:churnsaver_breakers"`

	JobName             string     `bun:"job_name,pk"`
	Status              string     `bun:"status,notnull,default:'closed'"`
	ConsecutiveFailures int        `bun:"consecutive_failures,notnull,default:0"`
	OpenedAt            *time.Time `bun:"opened_at"`
	ProbeInFlight       bool       `bun:"probe_in_flight,notnull,default:false"`
	Version             int64      `bun:"version,notnull,default:1"`
	UpdatedAt           time.Time  `bun:"updated_at,notnull,default:current_timestamp"`
}

func fromBreakerModel(m *breakerModel) *breaker.State {
	return &breaker.State{
		JobName:             m.JobName,
		Status:              breaker.Status(m.Status),
		ConsecutiveFailures: m.ConsecutiveFailures,
		OpenedAt:            m.OpenedAt,
		ProbeInFlight:       m.ProbeInFlight,
		Version:             m.Version,
		UpdatedAt:           m.UpdatedAt,
	}
}
