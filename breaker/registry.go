package breaker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	churnsaver "github.com/Danservfinn/churnsaver-sub010"
)

// casAttempts bounds the load-decide-swap loop under contention.
const casAttempts = 4

// Config tunes the breaker policy shared by all job names.
type Config struct {
	// FailureThreshold is the number of consecutive failures that opens
	// the breaker.
	FailureThreshold int

	// ResetTimeout is how long an open breaker waits before letting one
	// probe through.
	ResetTimeout time.Duration
}

// DefaultConfig returns the default breaker policy: open after 5
// consecutive failures, probe after 30 seconds.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		ResetTimeout:     30 * time.Second,
	}
}

// ChangeFunc is notified after a breaker transitions between statuses.
type ChangeFunc func(ctx context.Context, st *State, from, to Status)

// Registry gates job execution per job name. It is owned by the engine
// and injected into workers; state lives in the store so all worker
// processes share one view.
type Registry struct {
	store    Store
	cfg      Config
	logger   *slog.Logger
	onChange ChangeFunc
	now      func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithConfig sets the breaker policy.
func WithConfig(cfg Config) Option {
	return func(r *Registry) { r.cfg = cfg }
}

// WithOnChange registers a callback for status transitions.
func WithOnChange(fn ChangeFunc) Option {
	return func(r *Registry) { r.onChange = fn }
}

// WithClock sets the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// NewRegistry creates a breaker registry over the given store.
func NewRegistry(store Store, logger *slog.Logger, opts ...Option) *Registry {
	r := &Registry{
		store:  store,
		cfg:    DefaultConfig(),
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Allow reports whether a claim for the given job name may proceed.
// probe is true when the execution is the single half-open probe; the
// caller must report its outcome via RecordSuccess or RecordFailure with
// the same flag.
//
// A denied claim is not a failure: the caller reschedules the job
// through the normal backoff path without invoking the handler.
func (r *Registry) Allow(ctx context.Context, jobName string) (allowed, probe bool, err error) {
	st, err := r.load(ctx, jobName)
	if err != nil {
		return false, false, err
	}

	switch st.Status {
	case StatusClosed:
		return true, false, nil

	case StatusOpen:
		if st.OpenedAt == nil || r.now().Sub(*st.OpenedAt) < r.cfg.ResetTimeout {
			return false, false, nil
		}
		// Reset timeout elapsed: move to half-open and claim the probe
		// slot. The swap arbitrates between racing workers — exactly one
		// wins the probe.
		next := *st
		next.Status = StatusHalfOpen
		next.ProbeInFlight = true
		next.UpdatedAt = r.now()
		if swapErr := r.store.SwapBreaker(ctx, &next); swapErr != nil {
			if errors.Is(swapErr, churnsaver.ErrBreakerConflict) {
				return false, false, nil
			}
			return false, false, swapErr
		}
		r.notify(ctx, &next, StatusOpen, StatusHalfOpen)
		return true, true, nil

	case StatusHalfOpen:
		if st.ProbeInFlight {
			// A probe whose outcome never came back (worker crash, lost
			// connection) would hold the slot forever. After a full reset
			// timeout with no settlement the claim is considered abandoned
			// and the slot is reclaimed through the versioned swap, so
			// racing workers still elect exactly one holder.
			if r.now().Sub(st.UpdatedAt) < r.cfg.ResetTimeout {
				return false, false, nil
			}
		}
		next := *st
		next.ProbeInFlight = true
		next.UpdatedAt = r.now()
		if swapErr := r.store.SwapBreaker(ctx, &next); swapErr != nil {
			if errors.Is(swapErr, churnsaver.ErrBreakerConflict) {
				return false, false, nil
			}
			return false, false, swapErr
		}
		return true, true, nil
	}

	return false, false, churnsaver.ErrInvalidState
}

// RecordSuccess notes a successful execution for the job name. A
// successful probe closes the breaker; otherwise the consecutive failure
// count resets.
func (r *Registry) RecordSuccess(ctx context.Context, jobName string, probe bool) error {
	return r.mutate(ctx, jobName, func(st *State) bool {
		if probe || st.Status == StatusHalfOpen {
			st.Status = StatusClosed
			st.ConsecutiveFailures = 0
			st.OpenedAt = nil
			st.ProbeInFlight = false
			return true
		}

		if st.ConsecutiveFailures == 0 && st.Status == StatusClosed {
			return false // nothing to write
		}
		st.ConsecutiveFailures = 0
		return true
	})
}

// RecordFailure notes a failed execution for the job name. A failed
// probe reopens the breaker and restarts the reset timer; in the closed
// position the consecutive failure count grows until the threshold
// opens the gate.
func (r *Registry) RecordFailure(ctx context.Context, jobName string, probe bool) error {
	return r.mutate(ctx, jobName, func(st *State) bool {
		st.ConsecutiveFailures++

		if probe || st.Status == StatusHalfOpen {
			now := r.now()
			st.Status = StatusOpen
			st.OpenedAt = &now
			st.ProbeInFlight = false
			return true
		}

		if st.Status == StatusClosed && st.ConsecutiveFailures >= r.cfg.FailureThreshold {
			now := r.now()
			st.Status = StatusOpen
			st.OpenedAt = &now
		}
		return true
	})
}

// Status returns the current status for the job name. Job names without
// persisted state report closed.
func (r *Registry) Status(ctx context.Context, jobName string) (Status, error) {
	st, err := r.load(ctx, jobName)
	if err != nil {
		return "", err
	}
	return st.Status, nil
}

// States returns all persisted breaker states, for operator visibility.
func (r *Registry) States(ctx context.Context) ([]*State, error) {
	return r.store.ListBreakers(ctx)
}

// load fetches the state for jobName, synthesizing a closed state when
// none is stored yet.
func (r *Registry) load(ctx context.Context, jobName string) (*State, error) {
	st, err := r.store.GetBreaker(ctx, jobName)
	if errors.Is(err, churnsaver.ErrBreakerNotFound) {
		return NewState(jobName), nil
	}
	if err != nil {
		return nil, err
	}
	return st, nil
}

// mutate runs a bounded load-decide-swap loop. The apply func mutates
// the state in place and reports whether a write is needed.
func (r *Registry) mutate(ctx context.Context, jobName string, apply func(*State) bool) error {
	var lastErr error
	for range casAttempts {
		st, err := r.load(ctx, jobName)
		if err != nil {
			return err
		}
		from := st.Status

		if !apply(st) {
			return nil
		}
		st.UpdatedAt = r.now()

		err = r.store.SwapBreaker(ctx, st)
		if err == nil {
			if st.Status != from {
				r.notify(ctx, st, from, st.Status)
			}
			return nil
		}
		if !errors.Is(err, churnsaver.ErrBreakerConflict) {
			return err
		}
		lastErr = err
	}

	r.logger.Warn("breaker update lost all CAS attempts",
		slog.String("job_name", jobName),
	)
	return lastErr
}

func (r *Registry) notify(ctx context.Context, st *State, from, to Status) {
	r.logger.Info("circuit breaker state change",
		slog.String("job_name", st.JobName),
		slog.String("from", string(from)),
		slog.String("to", string(to)),
		slog.Int("consecutive_failures", st.ConsecutiveFailures),
	)
	if r.onChange != nil {
		r.onChange(ctx, st, from, to)
	}
}
