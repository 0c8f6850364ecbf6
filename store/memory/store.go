package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	churnsaver "github.com/Danservfinn/churnsaver-sub010"
	"github.com/Danservfinn/churnsaver-sub010/breaker"
	"github.com/Danservfinn/churnsaver-sub010/dlq"
	"github.com/Danservfinn/churnsaver-sub010/event"
	"github.com/Danservfinn/churnsaver-sub010/id"
	"github.com/Danservfinn/churnsaver-sub010/job"
	"github.com/Danservfinn/churnsaver-sub010/tenant"
)

// Ensure Store implements store.Store at compile time.
// We can't import store here (import cycle), so we verify each subsystem.
var (
	_ event.Store   = (*Store)(nil)
	_ job.Store     = (*Store)(nil)
	_ dlq.Store     = (*Store)(nil)
	_ breaker.Store = (*Store)(nil)
)

// Store is a fully in-memory implementation of store.Store.
// Safe for concurrent access. Intended for unit testing and development.
type Store struct {
	mu sync.RWMutex

	events   map[string]*event.InboundEvent // key: OriginID
	eventIDs map[string]string              // key: EventID → OriginID
	jobs     map[string]*job.Job
	dlqs     map[string]*dlq.Entry
	breakers map[string]*breaker.State // key: job name
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		events:   make(map[string]*event.InboundEvent),
		eventIDs: make(map[string]string),
		jobs:     make(map[string]*job.Job),
		dlqs:     make(map[string]*dlq.Entry),
		breakers: make(map[string]*breaker.State),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle — Migrate / Ping / Close
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Event Store
// ──────────────────────────────────────────────────

// RecordEvent inserts the event if its OriginID is unseen. The check and
// insert happen under one lock, so concurrent deliveries of the same
// OriginID observe exactly one inserted=true.
func (m *Store) RecordEvent(_ context.Context, evt *event.InboundEvent) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.events[evt.OriginID]; exists {
		return false, nil
	}
	cp := *evt
	m.events[evt.OriginID] = &cp
	m.eventIDs[evt.ID.String()] = evt.OriginID
	return true, nil
}

// GetEvent retrieves an event by its internal ID.
func (m *Store) GetEvent(ctx context.Context, eventID id.EventID) (*event.InboundEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	originID, ok := m.eventIDs[eventID.String()]
	if !ok {
		return nil, churnsaver.ErrEventNotFound
	}
	return m.eventLocked(ctx, originID)
}

// GetEventByOriginID retrieves an event by the platform-assigned id.
func (m *Store) GetEventByOriginID(ctx context.Context, originID string) (*event.InboundEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.eventLocked(ctx, originID)
}

// eventLocked resolves an event and applies the bound tenant as a second
// isolation layer. Callers hold at least a read lock.
func (m *Store) eventLocked(ctx context.Context, originID string) (*event.InboundEvent, error) {
	evt, ok := m.events[originID]
	if !ok {
		return nil, churnsaver.ErrEventNotFound
	}
	if evt.TenantID != "" {
		if bound, ok := tenant.FromContext(ctx); ok && bound.TenantID != evt.TenantID {
			return nil, churnsaver.ErrTenantMismatch
		}
	}
	cp := *evt
	return &cp, nil
}

// MarkEventProcessed sets ProcessedAt for the event with the given
// OriginID. Marking an already-processed event is a no-op.
func (m *Store) MarkEventProcessed(_ context.Context, originID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	evt, ok := m.events[originID]
	if !ok {
		return churnsaver.ErrEventNotFound
	}
	if evt.ProcessedAt == nil {
		now := time.Now().UTC()
		evt.ProcessedAt = &now
	}
	return nil
}

// ListEvents returns events matching the given options, oldest first.
// With a tenant bound in ctx only that tenant's events are returned.
func (m *Store) ListEvents(ctx context.Context, opts event.ListOpts) ([]*event.InboundEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var boundTenant string
	if bound, ok := tenant.FromContext(ctx); ok {
		boundTenant = bound.TenantID
	}

	result := make([]*event.InboundEvent, 0, len(m.events))
	for _, evt := range m.events {
		if opts.Type != "" && evt.Type != opts.Type {
			continue
		}
		if opts.Unprocessed && evt.ProcessedAt != nil {
			continue
		}
		if boundTenant != "" && evt.TenantID != boundTenant {
			continue
		}
		cp := *evt
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].ReceivedAt.Before(result[k].ReceivedAt)
	})

	return paginate(result, opts.Offset, opts.Limit), nil
}

// ──────────────────────────────────────────────────
// Job Store
// ──────────────────────────────────────────────────

// EnqueueJob persists a new job in pending state. The singleton check
// and the insert happen under one lock.
func (m *Store) EnqueueJob(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := j.ID.String()
	if _, exists := m.jobs[key]; exists {
		return churnsaver.ErrJobExists
	}

	if j.SingletonKey != "" {
		for _, existing := range m.jobs {
			if existing.Name == j.Name &&
				existing.SingletonKey == j.SingletonKey &&
				!existing.State.Terminal() {
				return churnsaver.ErrSingletonExists
			}
		}
	}

	cp := *j
	m.jobs[key] = &cp
	return nil
}

// ClaimJobs atomically claims up to limit eligible jobs from the given
// queues, sets them to running, and returns them.
func (m *Store) ClaimJobs(_ context.Context, queues []string, limit int) ([]*job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	queueSet := make(map[string]struct{}, len(queues))
	for _, q := range queues {
		queueSet[q] = struct{}{}
	}

	now := time.Now().UTC()

	candidates := make([]*job.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		if j.State != job.StatePending && j.State != job.StateRetrying {
			continue
		}
		if !j.RunAt.IsZero() && j.RunAt.After(now) {
			continue
		}
		if len(queueSet) > 0 {
			if _, ok := queueSet[j.Queue]; !ok {
				continue
			}
		}
		candidates = append(candidates, j)
	}

	sort.Slice(candidates, func(i, k int) bool {
		return candidates[i].RunAt.Before(candidates[k].RunAt)
	})

	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	result := make([]*job.Job, len(candidates))
	for i, j := range candidates {
		j.State = job.StateRunning
		n := now
		j.StartedAt = &n
		j.HeartbeatAt = &n
		// Return a copy so callers can mutate without racing with the store.
		cp := *j
		result[i] = &cp
	}

	return result, nil
}

// GetJob retrieves a job by ID.
func (m *Store) GetJob(_ context.Context, jobID id.JobID) (*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return nil, churnsaver.ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

// UpdateJob persists changes to an existing job.
func (m *Store) UpdateJob(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := j.ID.String()
	if _, ok := m.jobs[key]; !ok {
		return churnsaver.ErrJobNotFound
	}
	cp := *j
	cp.UpdatedAt = time.Now().UTC()
	m.jobs[key] = &cp
	return nil
}

// CancelJob transitions a pending or retrying job to cancelled.
func (m *Store) CancelJob(_ context.Context, jobID id.JobID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return churnsaver.ErrJobNotFound
	}

	switch j.State {
	case job.StatePending, job.StateRetrying:
		now := time.Now().UTC()
		j.State = job.StateCancelled
		j.CompletedAt = &now
		j.UpdatedAt = now
		return nil
	case job.StateRunning:
		return churnsaver.ErrJobRunning
	default:
		return churnsaver.ErrInvalidState
	}
}

// ListJobsByState returns jobs matching the given state.
func (m *Store) ListJobsByState(_ context.Context, state job.State, opts job.ListOpts) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*job.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		if j.State != state {
			continue
		}
		if opts.Queue != "" && j.Queue != opts.Queue {
			continue
		}
		if opts.TenantID != "" && j.TenantID != opts.TenantID {
			continue
		}
		cp := *j
		result = append(result, &cp)
	}

	// Sort by CreatedAt for deterministic output.
	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})

	return paginate(result, opts.Offset, opts.Limit), nil
}

// HeartbeatJob updates the heartbeat timestamp for a running job.
func (m *Store) HeartbeatJob(_ context.Context, jobID id.JobID, _ id.WorkerID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return churnsaver.ErrJobNotFound
	}
	now := time.Now().UTC()
	j.HeartbeatAt = &now
	return nil
}

// ReapStaleJobs returns running jobs whose last heartbeat is older than
// the given threshold.
func (m *Store) ReapStaleJobs(_ context.Context, threshold time.Duration) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cutoff := time.Now().UTC().Add(-threshold)
	var stale []*job.Job
	for _, j := range m.jobs {
		if j.State != job.StateRunning {
			continue
		}
		last := j.HeartbeatAt
		if last == nil {
			last = j.StartedAt
		}
		if last != nil && last.Before(cutoff) {
			cp := *j
			stale = append(stale, &cp)
		}
	}
	return stale, nil
}

// CountJobs returns the number of jobs matching the given options.
func (m *Store) CountJobs(_ context.Context, opts job.CountOpts) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var count int64
	for _, j := range m.jobs {
		if opts.Queue != "" && j.Queue != opts.Queue {
			continue
		}
		if opts.State != "" && j.State != opts.State {
			continue
		}
		count++
	}
	return count, nil
}

// ──────────────────────────────────────────────────
// DLQ Store
// ──────────────────────────────────────────────────

// PushDLQ appends a terminally failed job entry.
func (m *Store) PushDLQ(_ context.Context, entry *dlq.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *entry
	m.dlqs[entry.ID.String()] = &cp
	return nil
}

// ListDLQ returns entries matching the given options, newest first.
func (m *Store) ListDLQ(_ context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*dlq.Entry, 0, len(m.dlqs))
	for _, e := range m.dlqs {
		if opts.Queue != "" && e.Queue != opts.Queue {
			continue
		}
		if opts.JobName != "" && e.JobName != opts.JobName {
			continue
		}
		if opts.TenantID != "" && e.TenantID != opts.TenantID {
			continue
		}
		if !opts.Since.IsZero() && e.MovedAt.Before(opts.Since) {
			continue
		}
		if !opts.Until.IsZero() && e.MovedAt.After(opts.Until) {
			continue
		}
		cp := *e
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].MovedAt.After(result[k].MovedAt)
	})

	return paginate(result, opts.Offset, opts.Limit), nil
}

// GetDLQ retrieves an entry by ID.
func (m *Store) GetDLQ(_ context.Context, entryID id.DLQID) (*dlq.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.dlqs[entryID.String()]
	if !ok {
		return nil, churnsaver.ErrDLQNotFound
	}
	cp := *e
	return &cp, nil
}

// MarkReplayed sets ReplayedAt on an entry.
func (m *Store) MarkReplayed(_ context.Context, entryID id.DLQID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.dlqs[entryID.String()]
	if !ok {
		return churnsaver.ErrDLQNotFound
	}
	now := time.Now().UTC()
	e.ReplayedAt = &now
	return nil
}

// PurgeDLQ removes entries with MovedAt before the given time.
func (m *Store) PurgeDLQ(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var count int64
	for key, e := range m.dlqs {
		if e.MovedAt.Before(before) {
			delete(m.dlqs, key)
			count++
		}
	}
	return count, nil
}

// CountDLQ returns the total number of entries.
func (m *Store) CountDLQ(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return int64(len(m.dlqs)), nil
}

// ──────────────────────────────────────────────────
// Breaker Store
// ──────────────────────────────────────────────────

// GetBreaker returns the state for the given job name.
func (m *Store) GetBreaker(_ context.Context, jobName string) (*breaker.State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st, ok := m.breakers[jobName]
	if !ok {
		return nil, churnsaver.ErrBreakerNotFound
	}
	cp := *st
	return &cp, nil
}

// SwapBreaker persists st if the stored Version still equals st.Version.
// The compare and the write happen under one lock, standing in for the
// row-version CAS the durable backends run.
func (m *Store) SwapBreaker(_ context.Context, st *breaker.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.breakers[st.JobName]
	if !ok {
		if st.Version != 0 {
			return churnsaver.ErrBreakerConflict
		}
	} else if existing.Version != st.Version {
		return churnsaver.ErrBreakerConflict
	}

	cp := *st
	cp.Version = st.Version + 1
	cp.UpdatedAt = time.Now().UTC()
	m.breakers[st.JobName] = &cp
	return nil
}

// ListBreakers returns all persisted breaker states.
func (m *Store) ListBreakers(_ context.Context) ([]*breaker.State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*breaker.State, 0, len(m.breakers))
	for _, st := range m.breakers {
		cp := *st
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].JobName < result[k].JobName
	})

	return result, nil
}

// paginate applies offset and limit to an already-sorted slice.
func paginate[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
