package dlq

import (
	"context"
	"time"

	churnsaver "github.com/Danservfinn/churnsaver-sub010"
	"github.com/Danservfinn/churnsaver-sub010/id"
	"github.com/Danservfinn/churnsaver-sub010/job"
	"github.com/Danservfinn/churnsaver-sub010/tenant"
)

// Replay re-enqueues a dead letter entry as a fresh pending job with the
// original payload and a reset attempt count, then marks the entry as
// replayed.
//
// Tenant context is re-validated before the enqueue: the entry's tenant
// is bound for the unit of work, and an entry whose job was tenant-scoped
// but carries no tenant fails closed rather than replaying unscoped.
func (s *Service) Replay(ctx context.Context, entryID id.DLQID) (*job.Job, error) {
	entry, err := s.store.GetDLQ(ctx, entryID)
	if err != nil {
		return nil, err
	}

	if entry.TenantID != "" {
		ctx, err = tenant.Bind(ctx, entry.TenantID)
		if err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	j := &job.Job{
		Entity:       churnsaver.NewEntity(),
		ID:           id.NewJobID(),
		Name:         entry.JobName,
		Queue:        entry.Queue,
		SingletonKey: entry.SingletonKey,
		Payload:      entry.Payload,
		State:        job.StatePending,
		MaxAttempts:  entry.MaxAttempts,
		TenantID:     entry.TenantID,
		RunAt:        now,
	}

	if err := s.jobStore.EnqueueJob(ctx, j); err != nil {
		return nil, err
	}

	if err := s.store.MarkReplayed(ctx, entryID); err != nil {
		// The job is already enqueued. Surface the bookkeeping error but
		// hand the job back.
		return j, err
	}

	return j, nil
}
