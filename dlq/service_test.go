package dlq_test

import (
	"context"
	"errors"
	"testing"
	"time"

	churnsaver "github.com/Danservfinn/churnsaver-sub010"
	"github.com/Danservfinn/churnsaver-sub010/dlq"
	"github.com/Danservfinn/churnsaver-sub010/id"
	"github.com/Danservfinn/churnsaver-sub010/job"
	"github.com/Danservfinn/churnsaver-sub010/store/memory"
)

func newDeadJob(name string, payload []byte) *job.Job {
	now := time.Now().UTC()
	return &job.Job{
		Entity:      churnsaver.NewEntity(),
		ID:          id.NewJobID(),
		Name:        name,
		Queue:       "default",
		Payload:     payload,
		State:       job.StateRunning,
		MaxAttempts: 3,
		Attempts:    3,
		LastError:   "test error",
		TenantID:    "shop_test",
		RunAt:       now,
	}
}

func TestService_Push_BuildsEntryFromJob(t *testing.T) {
	s := memory.New()
	svc := dlq.NewService(s, s)
	ctx := context.Background()

	j := newDeadJob("recover-payment", []byte(`{"origin_id":"evt_1"}`))
	j.SingletonKey = "evt_1"
	jobErr := errors.New("billing api timeout")

	if err := svc.Push(ctx, j, jobErr); err != nil {
		t.Fatalf("Push: %v", err)
	}

	entries, err := s.ListDLQ(ctx, dlq.ListOpts{Limit: 10})
	if err != nil {
		t.Fatalf("ListDLQ: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 DLQ entry, got %d", len(entries))
	}

	entry := entries[0]
	if entry.JobID != j.ID {
		t.Errorf("JobID = %v, want %v", entry.JobID, j.ID)
	}
	if entry.JobName != "recover-payment" {
		t.Errorf("JobName = %q, want %q", entry.JobName, "recover-payment")
	}
	if entry.Queue != "default" {
		t.Errorf("Queue = %q, want %q", entry.Queue, "default")
	}
	if entry.SingletonKey != "evt_1" {
		t.Errorf("SingletonKey = %q, want %q", entry.SingletonKey, "evt_1")
	}
	if string(entry.Payload) != `{"origin_id":"evt_1"}` {
		t.Errorf("Payload = %q, want %q", entry.Payload, `{"origin_id":"evt_1"}`)
	}
	if entry.LastError != "billing api timeout" {
		t.Errorf("LastError = %q, want %q", entry.LastError, "billing api timeout")
	}
	if entry.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", entry.Attempts)
	}
	if entry.TenantID != "shop_test" {
		t.Errorf("TenantID = %q, want %q", entry.TenantID, "shop_test")
	}
	if entry.MovedAt.IsZero() {
		t.Error("expected MovedAt to be set")
	}
	if entry.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}
}

func TestService_Push_CountIncreases(t *testing.T) {
	s := memory.New()
	svc := dlq.NewService(s, s)
	ctx := context.Background()

	for i := range 3 {
		j := newDeadJob("job-"+string(rune('a'+i)), nil)
		if err := svc.Push(ctx, j, errors.New("fail")); err != nil {
			t.Fatalf("Push %d: %v", i, err)
		}
	}

	count, err := s.CountDLQ(ctx)
	if err != nil {
		t.Fatalf("CountDLQ: %v", err)
	}
	if count != 3 {
		t.Errorf("CountDLQ = %d, want 3", count)
	}
}

func TestService_Replay_CreatesNewPendingJob(t *testing.T) {
	s := memory.New()
	svc := dlq.NewService(s, s)
	ctx := context.Background()

	original := newDeadJob("replay-me", []byte(`{"key":"value"}`))
	if err := svc.Push(ctx, original, errors.New("original error")); err != nil {
		t.Fatalf("Push: %v", err)
	}

	entries, err := s.ListDLQ(ctx, dlq.ListOpts{Limit: 1})
	if err != nil {
		t.Fatalf("ListDLQ: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 DLQ entry, got %d", len(entries))
	}
	entryID := entries[0].ID

	replayed, err := svc.Replay(ctx, entryID)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}

	if replayed.ID == original.ID {
		t.Error("replayed job should have a new ID")
	}
	if replayed.State != job.StatePending {
		t.Errorf("State = %q, want %q", replayed.State, job.StatePending)
	}
	if replayed.Attempts != 0 {
		t.Errorf("Attempts = %d, want 0", replayed.Attempts)
	}
	if replayed.Name != "replay-me" {
		t.Errorf("Name = %q, want %q", replayed.Name, "replay-me")
	}
	if string(replayed.Payload) != `{"key":"value"}` {
		t.Errorf("Payload = %q, want %q", replayed.Payload, `{"key":"value"}`)
	}
	if replayed.TenantID != "shop_test" {
		t.Errorf("TenantID = %q, want %q", replayed.TenantID, "shop_test")
	}

	got, err := s.GetJob(ctx, replayed.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.State != job.StatePending {
		t.Errorf("stored job State = %q, want %q", got.State, job.StatePending)
	}
}

func TestService_Replay_MarksEntryReplayed(t *testing.T) {
	s := memory.New()
	svc := dlq.NewService(s, s)
	ctx := context.Background()

	j := newDeadJob("replay-mark", nil)
	if err := svc.Push(ctx, j, errors.New("fail")); err != nil {
		t.Fatalf("Push: %v", err)
	}

	entries, err := s.ListDLQ(ctx, dlq.ListOpts{Limit: 1})
	if err != nil {
		t.Fatalf("ListDLQ: %v", err)
	}
	entryID := entries[0].ID

	if _, replayErr := svc.Replay(ctx, entryID); replayErr != nil {
		t.Fatalf("Replay: %v", replayErr)
	}

	entry, err := s.GetDLQ(ctx, entryID)
	if err != nil {
		t.Fatalf("GetDLQ: %v", err)
	}
	if entry.ReplayedAt == nil {
		t.Error("expected ReplayedAt to be set after replay")
	}
}

func TestService_Replay_SingletonConflictSurfaced(t *testing.T) {
	s := memory.New()
	svc := dlq.NewService(s, s)
	ctx := context.Background()

	dead := newDeadJob("replay-singleton", []byte(`{}`))
	dead.SingletonKey = "evt_dup"
	if err := svc.Push(ctx, dead, errors.New("fail")); err != nil {
		t.Fatalf("Push: %v", err)
	}

	// A live pending job already holds the singleton key.
	live := newDeadJob("replay-singleton", []byte(`{}`))
	live.SingletonKey = "evt_dup"
	live.State = job.StatePending
	live.Attempts = 0
	if err := s.EnqueueJob(ctx, live); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	entries, err := s.ListDLQ(ctx, dlq.ListOpts{Limit: 1})
	if err != nil {
		t.Fatalf("ListDLQ: %v", err)
	}

	_, err = svc.Replay(ctx, entries[0].ID)
	if !errors.Is(err, churnsaver.ErrSingletonExists) {
		t.Fatalf("Replay error = %v, want ErrSingletonExists", err)
	}
}

func TestService_Replay_NotFoundReturnsError(t *testing.T) {
	s := memory.New()
	svc := dlq.NewService(s, s)
	ctx := context.Background()

	fakeID := id.NewDLQID()
	_, err := svc.Replay(ctx, fakeID)
	if !errors.Is(err, churnsaver.ErrDLQNotFound) {
		t.Fatalf("Replay error = %v, want ErrDLQNotFound", err)
	}
}
