// Package worker provides the job execution engine — an Executor that
// runs claimed jobs through middleware and registered handlers, and a
// Pool that manages concurrent worker goroutines polling the store.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	churnsaver "github.com/Danservfinn/churnsaver-sub010"
	"github.com/Danservfinn/churnsaver-sub010/backoff"
	"github.com/Danservfinn/churnsaver-sub010/breaker"
	"github.com/Danservfinn/churnsaver-sub010/dlq"
	"github.com/Danservfinn/churnsaver-sub010/event"
	"github.com/Danservfinn/churnsaver-sub010/ext"
	"github.com/Danservfinn/churnsaver-sub010/job"
	"github.com/Danservfinn/churnsaver-sub010/middleware"
)

// Executor runs a single claimed job through the middleware chain and
// the registered handler, then settles the outcome: completion, a
// retry with backoff, or a dead letter entry. It consults the circuit
// breaker for the job name before invoking the handler and reports the
// outcome back so breakers stay accurate across worker processes.
type Executor struct {
	registry   *job.Registry
	extensions *ext.Registry
	store      job.Store
	events     event.Store
	dlqService *dlq.Service
	breakers   *breaker.Registry
	backoff    backoff.Strategy
	mw         middleware.Middleware
	logger     *slog.Logger
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithBreakers sets the circuit breaker registry. Without one, every
// execution is allowed through.
func WithBreakers(r *breaker.Registry) ExecutorOption {
	return func(e *Executor) { e.breakers = r }
}

// WithEventStore sets the event store used to mark the originating
// inbound event processed when a job reaches a terminal state.
func WithEventStore(s event.Store) ExecutorOption {
	return func(e *Executor) { e.events = s }
}

// WithBackoff sets the retry delay strategy.
func WithBackoff(bo backoff.Strategy) ExecutorOption {
	return func(e *Executor) { e.backoff = bo }
}

// WithMiddleware sets the middleware chain applied around every handler.
func WithMiddleware(mws ...middleware.Middleware) ExecutorOption {
	return func(e *Executor) { e.mw = middleware.Chain(mws...) }
}

// NewExecutor creates an Executor with the given dependencies.
func NewExecutor(
	registry *job.Registry,
	extensions *ext.Registry,
	store job.Store,
	dlqService *dlq.Service,
	logger *slog.Logger,
	opts ...ExecutorOption,
) *Executor {
	e := &Executor{
		registry:   registry,
		extensions: extensions,
		store:      store,
		dlqService: dlqService,
		backoff:    backoff.DefaultStrategy(),
		mw:         middleware.Chain(),
		logger:     logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs a claimed job to a settled state.
//
// The breaker for the job name is consulted first; a denied claim is
// not a failure — the job goes back to pending with a backoff delay and
// its attempt counter untouched. Allowed executions consume one attempt.
// On success the job completes; on a transient failure with budget left
// it is rescheduled with backoff; on a fatal error or an exhausted
// budget it is dead lettered.
func (e *Executor) Execute(ctx context.Context, j *job.Job) error {
	probe := false
	if e.breakers != nil {
		allowed, isProbe, brkErr := e.breakers.Allow(ctx, j.Name)
		if brkErr != nil {
			e.logger.Error("breaker check failed, denying claim",
				slog.String("job_name", j.Name),
				slog.String("error", brkErr.Error()),
			)
			allowed = false
		}
		if !allowed {
			return e.rescheduleDenied(ctx, j)
		}
		probe = isProbe
	}

	handler, ok := e.registry.Get(j.Name)
	if !ok {
		// Unknown names are rejected at enqueue time, so reaching this
		// point means the deployment lost a handler. Retrying cannot fix
		// that; settle the job in the dead letter store.
		err := fmt.Errorf("%w: %s", churnsaver.ErrUnknownJob, j.Name)
		e.settleBreaker(ctx, j.Name, probe, false)
		return e.sendToDLQ(ctx, j, err)
	}

	j.Attempts++

	start := time.Now()

	terminal := func(ctx context.Context) error {
		return handler(ctx, j.Payload)
	}

	err := e.mw(ctx, j, terminal)
	elapsed := time.Since(start)

	now := time.Now().UTC()
	j.UpdatedAt = now

	if err != nil {
		// Fatal errors are payload or scope problems, not dependency
		// health: they must not push the breaker toward open. A held
		// probe slot is released as a success so the name does not stay
		// wedged half-open behind a bad payload.
		if job.IsFatal(err) {
			if probe {
				e.settleBreaker(ctx, j.Name, true, true)
			}
		} else {
			e.settleBreaker(ctx, j.Name, probe, false)
		}
		return e.handleFailure(ctx, j, err, now)
	}

	e.settleBreaker(ctx, j.Name, probe, true)
	return e.handleSuccess(ctx, j, now, elapsed)
}

// rescheduleDenied returns a breaker-denied job to pending with a
// backoff delay. The attempt counter does not move: the handler never
// ran.
func (e *Executor) rescheduleDenied(ctx context.Context, j *job.Job) error {
	delay := e.backoff.Delay(j.Attempts + 1)
	j.State = job.StatePending
	j.RunAt = time.Now().UTC().Add(delay)
	j.UpdatedAt = time.Now().UTC()

	if updateErr := e.store.UpdateJob(ctx, j); updateErr != nil {
		e.logger.Error("failed to reschedule breaker-denied job",
			slog.String("job_id", j.ID.String()),
			slog.String("error", updateErr.Error()),
		)
		return updateErr
	}

	e.logger.Debug("claim denied by circuit breaker",
		slog.String("job_id", j.ID.String()),
		slog.String("job_name", j.Name),
		slog.Duration("delay", delay),
	)
	return nil
}

// settleBreaker reports the execution outcome for the job name.
func (e *Executor) settleBreaker(ctx context.Context, jobName string, probe, success bool) {
	if e.breakers == nil {
		return
	}
	var err error
	if success {
		err = e.breakers.RecordSuccess(ctx, jobName, probe)
	} else {
		err = e.breakers.RecordFailure(ctx, jobName, probe)
	}
	if err != nil {
		e.logger.Warn("failed to record breaker outcome",
			slog.String("job_name", jobName),
			slog.String("error", err.Error()),
		)
	}
}

// handleSuccess marks the job completed and emits the lifecycle event.
func (e *Executor) handleSuccess(ctx context.Context, j *job.Job, now time.Time, elapsed time.Duration) error {
	j.State = job.StateCompleted
	j.CompletedAt = &now

	if updateErr := e.store.UpdateJob(ctx, j); updateErr != nil {
		e.logger.Error("failed to update job after success",
			slog.String("job_id", j.ID.String()),
			slog.String("job_name", j.Name),
			slog.String("error", updateErr.Error()),
		)
		return updateErr
	}

	e.markOriginProcessed(ctx, j)
	e.extensions.EmitJobCompleted(ctx, j, elapsed)
	return nil
}

// handleFailure settles a handler error: fatal errors skip the retry
// budget entirely, transient ones retry until MaxAttempts is spent.
func (e *Executor) handleFailure(ctx context.Context, j *job.Job, handlerErr error, now time.Time) error {
	j.LastError = handlerErr.Error()

	if job.IsFatal(handlerErr) {
		if errors.Is(handlerErr, churnsaver.ErrTenantRequired) || errors.Is(handlerErr, churnsaver.ErrTenantMismatch) {
			e.logger.Error("job failed tenant scope check",
				slog.String("job_id", j.ID.String()),
				slog.String("job_name", j.Name),
				slog.String("tenant_id", j.TenantID),
				slog.String("error", handlerErr.Error()),
			)
		} else {
			e.logger.Warn("job failed with non-retryable error",
				slog.String("job_id", j.ID.String()),
				slog.String("job_name", j.Name),
				slog.String("error", handlerErr.Error()),
			)
		}
		return e.sendToDLQ(ctx, j, handlerErr)
	}

	if j.Attempts < j.MaxAttempts {
		return e.scheduleRetry(ctx, j, now, handlerErr)
	}

	return e.sendToDLQ(ctx, j, handlerErr)
}

// scheduleRetry sets the job to retrying with a backoff delay.
func (e *Executor) scheduleRetry(ctx context.Context, j *job.Job, now time.Time, handlerErr error) error {
	delay := e.backoff.Delay(j.Attempts)
	nextRunAt := now.Add(delay)
	j.RunAt = nextRunAt
	j.State = job.StateRetrying

	if updateErr := e.store.UpdateJob(ctx, j); updateErr != nil {
		e.logger.Error("failed to update job for retry",
			slog.String("job_id", j.ID.String()),
			slog.String("error", updateErr.Error()),
		)
		return updateErr
	}

	e.extensions.EmitJobRetrying(ctx, j, j.Attempts, nextRunAt)

	e.logger.Info("job scheduled for retry",
		slog.String("job_id", j.ID.String()),
		slog.String("job_name", j.Name),
		slog.Int("attempt", j.Attempts),
		slog.Int("max_attempts", j.MaxAttempts),
		slog.Duration("delay", delay),
	)

	return fmt.Errorf("job %s attempt %d/%d: %w", j.Name, j.Attempts, j.MaxAttempts, handlerErr)
}

// sendToDLQ marks the job dead lettered, writes the dead letter entry,
// and emits the lifecycle events.
func (e *Executor) sendToDLQ(ctx context.Context, j *job.Job, handlerErr error) error {
	now := time.Now().UTC()
	j.State = job.StateDeadLettered
	j.LastError = handlerErr.Error()
	j.CompletedAt = &now
	j.UpdatedAt = now

	if updateErr := e.store.UpdateJob(ctx, j); updateErr != nil {
		e.logger.Error("failed to update job as dead lettered",
			slog.String("job_id", j.ID.String()),
			slog.String("error", updateErr.Error()),
		)
		return updateErr
	}

	if e.dlqService != nil {
		if dlqErr := e.dlqService.Push(ctx, j, handlerErr); dlqErr != nil {
			e.logger.Error("failed to push job to dead letter store",
				slog.String("job_id", j.ID.String()),
				slog.String("error", dlqErr.Error()),
			)
		}
	}

	e.markOriginProcessed(ctx, j)
	e.extensions.EmitJobFailed(ctx, j, handlerErr)
	e.extensions.EmitJobDLQ(ctx, j, handlerErr)

	e.logger.Warn("job moved to dead letter store",
		slog.String("job_id", j.ID.String()),
		slog.String("job_name", j.Name),
		slog.Int("attempts", j.Attempts),
		slog.String("error", handlerErr.Error()),
	)

	return handlerErr
}

// markOriginProcessed marks the originating inbound event as processed
// when the job was derived from one. Webhook-derived jobs carry the
// platform event id as their singleton key.
func (e *Executor) markOriginProcessed(ctx context.Context, j *job.Job) {
	if e.events == nil || j.SingletonKey == "" {
		return
	}
	err := e.events.MarkEventProcessed(ctx, j.SingletonKey)
	if err != nil && !errors.Is(err, churnsaver.ErrEventNotFound) {
		e.logger.Warn("failed to mark origin event processed",
			slog.String("job_id", j.ID.String()),
			slog.String("origin_id", j.SingletonKey),
			slog.String("error", err.Error()),
		)
	}
}
