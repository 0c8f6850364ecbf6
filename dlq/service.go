package dlq

import (
	"context"
	"time"

	"github.com/Danservfinn/churnsaver-sub010/id"
	"github.com/Danservfinn/churnsaver-sub010/job"
)

// Service provides high-level dead letter operations over a Store.
type Service struct {
	store    Store
	jobStore job.Store
}

// NewService creates a dead letter service.
func NewService(store Store, jobStore job.Store) *Service {
	return &Service{store: store, jobStore: jobStore}
}

// Push builds an Entry from a terminally failed job and persists it.
// The error string is captured from the final handler error.
func (s *Service) Push(ctx context.Context, j *job.Job, jobErr error) error {
	now := time.Now().UTC()
	entry := &Entry{
		ID:           id.NewDLQID(),
		JobID:        j.ID,
		JobName:      j.Name,
		Queue:        j.Queue,
		SingletonKey: j.SingletonKey,
		TenantID:     j.TenantID,
		Payload:      j.Payload,
		LastError:    jobErr.Error(),
		Attempts:     j.Attempts,
		MaxAttempts:  j.MaxAttempts,
		MovedAt:      now,
		CreatedAt:    now,
	}
	return s.store.PushDLQ(ctx, entry)
}

// Store returns the underlying dead letter store for direct access to
// List, Get, Purge, and Count operations.
func (s *Service) Store() Store {
	return s.store
}
