package worker_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	churnsaver "github.com/Danservfinn/churnsaver-sub010"
	"github.com/Danservfinn/churnsaver-sub010/backoff"
	"github.com/Danservfinn/churnsaver-sub010/dlq"
	"github.com/Danservfinn/churnsaver-sub010/ext"
	"github.com/Danservfinn/churnsaver-sub010/id"
	"github.com/Danservfinn/churnsaver-sub010/job"
	"github.com/Danservfinn/churnsaver-sub010/middleware"
	"github.com/Danservfinn/churnsaver-sub010/queue"
	"github.com/Danservfinn/churnsaver-sub010/store/memory"
	"github.com/Danservfinn/churnsaver-sub010/worker"
)

func setupTestPool(t *testing.T, concurrency int, pollInterval time.Duration, popts ...worker.PoolOption) (
	*worker.Pool, *memory.Store, *job.Registry,
) {
	t.Helper()
	logger := slog.Default()
	s := memory.New()
	reg := job.NewRegistry()
	extensions := ext.NewRegistry(logger)

	dlqSvc := dlq.NewService(s, s)

	executor := worker.NewExecutor(
		reg, extensions, s, dlqSvc, logger,
		worker.WithBackoff(backoff.NewConstant(10*time.Millisecond)),
		worker.WithMiddleware(middleware.Recover(logger)),
	)

	opts := append([]worker.PoolOption{
		worker.WithPoolConcurrency(concurrency),
		worker.WithPollInterval(pollInterval),
		worker.WithPoolQueues([]string{"default"}),
	}, popts...)

	pool := worker.NewPool(s, executor, extensions, logger, opts...)

	return pool, s, reg
}

func newPoolJob(name string, payload []byte) *job.Job {
	return &job.Job{
		Entity:      churnsaver.NewEntity(),
		ID:          id.NewJobID(),
		Name:        name,
		Queue:       "default",
		Payload:     payload,
		State:       job.StatePending,
		MaxAttempts: 3,
		RunAt:       time.Now().UTC(),
	}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatal(msg)
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
}

func stopPool(t *testing.T, pool *worker.Pool) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := pool.Stop(ctx); err != nil {
		t.Fatalf("stop error: %v", err)
	}
}

func TestPool_StartStop(t *testing.T) {
	pool, _, _ := setupTestPool(t, 2, 50*time.Millisecond)

	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}

	// Double start should be no-op.
	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("unexpected double-start error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := pool.Stop(ctx); err != nil {
		t.Fatalf("unexpected stop error: %v", err)
	}

	// Double stop should be no-op.
	if err := pool.Stop(ctx); err != nil {
		t.Fatalf("unexpected double-stop error: %v", err)
	}
}

func TestPool_ProcessesJob(t *testing.T) {
	pool, s, reg := setupTestPool(t, 1, 10*time.Millisecond)

	var processed atomic.Bool
	job.RegisterDefinition(reg, job.NewDefinition("remind", func(_ context.Context, p struct{ ShopID string }) error {
		if p.ShopID != "shop_42" {
			t.Errorf("payload.ShopID = %q, want %q", p.ShopID, "shop_42")
		}
		processed.Store(true)
		return nil
	}))

	payload, _ := json.Marshal(struct{ ShopID string }{ShopID: "shop_42"})
	j := newPoolJob("remind", payload)

	if err := s.EnqueueJob(context.Background(), j); err != nil {
		t.Fatalf("enqueue error: %v", err)
	}

	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("start error: %v", err)
	}

	waitFor(t, processed.Load, "timed out waiting for job to be processed")
	stopPool(t, pool)

	got, err := s.GetJob(context.Background(), j.ID)
	if err != nil {
		t.Fatalf("get job error: %v", err)
	}
	if got.State != job.StateCompleted {
		t.Errorf("job state = %q, want %q", got.State, job.StateCompleted)
	}
	if got.CompletedAt == nil {
		t.Error("expected CompletedAt to be set")
	}
}

func TestPool_FailedJobGoesToDeadLetter(t *testing.T) {
	pool, s, reg := setupTestPool(t, 1, 10*time.Millisecond)

	var processed atomic.Bool
	job.RegisterDefinition(reg, job.NewDefinition("fail-job", func(_ context.Context, _ struct{}) error {
		processed.Store(true)
		return context.DeadlineExceeded
	}))

	j := newPoolJob("fail-job", nil)
	j.MaxAttempts = 1

	if err := s.EnqueueJob(context.Background(), j); err != nil {
		t.Fatalf("enqueue error: %v", err)
	}

	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("start error: %v", err)
	}

	waitFor(t, processed.Load, "timed out waiting for job to be processed")
	stopPool(t, pool)

	got, err := s.GetJob(context.Background(), j.ID)
	if err != nil {
		t.Fatalf("get job error: %v", err)
	}
	if got.State != job.StateDeadLettered {
		t.Errorf("job state = %q, want %q", got.State, job.StateDeadLettered)
	}
	if got.LastError == "" {
		t.Error("expected LastError to be set")
	}

	entries, err := s.ListDLQ(context.Background(), dlq.ListOpts{})
	if err != nil {
		t.Fatalf("list dlq error: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected 1 dead letter entry, got %d", len(entries))
	}
}

func TestPool_RetriesUntilSuccess(t *testing.T) {
	pool, s, reg := setupTestPool(t, 1, 10*time.Millisecond)

	var calls atomic.Int64
	job.RegisterDefinition(reg, job.NewDefinition("eventually", func(_ context.Context, _ struct{}) error {
		if calls.Add(1) < 3 {
			return context.DeadlineExceeded
		}
		return nil
	}))

	j := newPoolJob("eventually", nil)
	j.MaxAttempts = 5

	if err := s.EnqueueJob(context.Background(), j); err != nil {
		t.Fatalf("enqueue error: %v", err)
	}

	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("start error: %v", err)
	}

	waitFor(t, func() bool {
		got, err := s.GetJob(context.Background(), j.ID)
		return err == nil && got.State == job.StateCompleted
	}, "timed out waiting for job to complete after retries")
	stopPool(t, pool)

	if calls.Load() != 3 {
		t.Errorf("handler calls = %d, want 3", calls.Load())
	}
	got, _ := s.GetJob(context.Background(), j.ID)
	if got.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", got.Attempts)
	}
}

func TestPool_GracefulShutdown(t *testing.T) {
	pool, _, _ := setupTestPool(t, 4, 50*time.Millisecond)

	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("start error: %v", err)
	}

	// Allow workers to start polling.
	time.Sleep(100 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := pool.Stop(ctx); err != nil {
		t.Fatalf("graceful shutdown failed: %v", err)
	}
}

func TestPool_QueueManagerGatesExecution(t *testing.T) {
	qm := queue.NewManager(queue.Config{Name: "default", MaxConcurrency: 1})
	// Hold the only slot so the pool cannot acquire it.
	if !qm.Acquire("default", "") {
		t.Fatal("expected initial acquire to succeed")
	}

	pool, s, reg := setupTestPool(t, 1, 10*time.Millisecond, worker.WithQueueManager(qm))

	var processed atomic.Bool
	job.RegisterDefinition(reg, job.NewDefinition("gated", func(_ context.Context, _ struct{}) error {
		processed.Store(true)
		return nil
	}))

	j := newPoolJob("gated", nil)
	if err := s.EnqueueJob(context.Background(), j); err != nil {
		t.Fatalf("enqueue error: %v", err)
	}

	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("start error: %v", err)
	}

	// The pool repeatedly returns the job to pending while the slot is
	// held.
	time.Sleep(100 * time.Millisecond)
	if processed.Load() {
		t.Fatal("job ran while the queue slot was exhausted")
	}

	// Free the slot; the job should now go through.
	qm.Release("default", "")
	waitFor(t, processed.Load, "timed out waiting for job after slot freed")
	stopPool(t, pool)
}

func TestPool_ExtensionFires(t *testing.T) {
	logger := slog.Default()
	s := memory.New()
	reg := job.NewRegistry()
	extensions := ext.NewRegistry(logger)

	tracker := &trackingExt{}
	extensions.Register(tracker)

	dlqSvc := dlq.NewService(s, s)

	executor := worker.NewExecutor(reg, extensions, s, dlqSvc, logger,
		worker.WithBackoff(backoff.NewConstant(10*time.Millisecond)),
	)
	pool := worker.NewPool(s, executor, extensions, logger,
		worker.WithPoolConcurrency(1),
		worker.WithPollInterval(10*time.Millisecond),
	)

	var processed atomic.Bool
	job.RegisterDefinition(reg, job.NewDefinition("tracked", func(_ context.Context, _ struct{}) error {
		processed.Store(true)
		return nil
	}))

	j := newPoolJob("tracked", nil)
	if err := s.EnqueueJob(context.Background(), j); err != nil {
		t.Fatalf("enqueue error: %v", err)
	}

	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("start error: %v", err)
	}

	waitFor(t, processed.Load, "timed out waiting for job")
	stopPool(t, pool)

	if !tracker.started.Load() {
		t.Error("expected OnJobStarted to fire")
	}
	if !tracker.completed.Load() {
		t.Error("expected OnJobCompleted to fire")
	}
}

func TestPool_ReaperResetsStaleJobs(t *testing.T) {
	pool, s, _ := setupTestPool(t, 1, 10*time.Millisecond,
		worker.WithStaleJobThreshold(20*time.Millisecond),
		worker.WithPoolQueues([]string{"other"}), // keep workers away from the job
	)

	j := newPoolJob("abandoned", nil)
	if err := s.EnqueueJob(context.Background(), j); err != nil {
		t.Fatalf("enqueue error: %v", err)
	}
	// Claim it directly, simulating a worker that then died.
	if _, err := s.ClaimJobs(context.Background(), []string{"default"}, 1); err != nil {
		t.Fatalf("claim error: %v", err)
	}

	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("start error: %v", err)
	}

	waitFor(t, func() bool {
		got, err := s.GetJob(context.Background(), j.ID)
		return err == nil && got.State == job.StatePending
	}, "timed out waiting for stale job to be reset")
	stopPool(t, pool)
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

// trackingExt records which hooks fired.
type trackingExt struct {
	started   atomic.Bool
	completed atomic.Bool
	failed    atomic.Bool
}

func (e *trackingExt) Name() string { return "tracker" }

func (e *trackingExt) OnJobStarted(_ context.Context, _ *job.Job) error {
	e.started.Store(true)
	return nil
}

func (e *trackingExt) OnJobCompleted(_ context.Context, _ *job.Job, _ time.Duration) error {
	e.completed.Store(true)
	return nil
}

func (e *trackingExt) OnJobFailed(_ context.Context, _ *job.Job, _ error) error {
	e.failed.Store(true)
	return nil
}
