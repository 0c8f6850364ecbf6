// Package engine wires all churnsaver subsystems together. It creates
// the extension registry, job registry, circuit breakers, middleware
// chain, and worker pool, and provides the Register/Enqueue/Ingest
// operations.
//
// This package exists to break the import cycle: the root churnsaver
// package defines Entity (imported by job, event, etc.) and so cannot
// import those packages back. The engine package sits above all
// subsystem packages and below the application layer.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	churnsaver "github.com/Danservfinn/churnsaver-sub010"
	"github.com/Danservfinn/churnsaver-sub010/backoff"
	"github.com/Danservfinn/churnsaver-sub010/breaker"
	"github.com/Danservfinn/churnsaver-sub010/dlq"
	"github.com/Danservfinn/churnsaver-sub010/event"
	"github.com/Danservfinn/churnsaver-sub010/ext"
	"github.com/Danservfinn/churnsaver-sub010/id"
	"github.com/Danservfinn/churnsaver-sub010/job"
	mw "github.com/Danservfinn/churnsaver-sub010/middleware"
	"github.com/Danservfinn/churnsaver-sub010/observability"
	"github.com/Danservfinn/churnsaver-sub010/queue"
	"github.com/Danservfinn/churnsaver-sub010/tenant"
	"github.com/Danservfinn/churnsaver-sub010/worker"
)

// meterName identifies this module to OpenTelemetry providers.
const meterName = "github.com/Danservfinn/churnsaver-sub010"

// route maps an inbound event type to the job enqueued for it.
type route struct {
	jobName string
	opts    []job.Option
}

// Engine wraps a Pipeline with typed subsystem access.
// Use Build() to create one from a Pipeline.
type Engine struct {
	p          *churnsaver.Pipeline
	extensions *ext.Registry
	registry   *job.Registry
	jobStore   job.Store
	eventStore event.Store
	dlqService *dlq.Service
	breakers   *breaker.Registry
	bo         backoff.Strategy
	pool       *worker.Pool
	mws        []mw.Middleware
	logger     *slog.Logger

	routes map[event.Type]route

	// Queue subsystem.
	queueConfigs []queue.Config
	queueManager *queue.Manager

	// Breaker policy.
	breakerConfig breaker.Config

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// Option configures an Engine.
type Option func(*Engine)

// WithExtension registers an extension with the engine.
func WithExtension(e ext.Extension) Option {
	return func(eng *Engine) {
		eng.extensions.Register(e)
	}
}

// WithMiddleware adds middleware to the engine's chain.
func WithMiddleware(m mw.Middleware) Option {
	return func(eng *Engine) {
		eng.mws = append(eng.mws, m)
	}
}

// WithBackoff sets the retry backoff strategy for the engine.
// If not set, backoff.DefaultStrategy() (exponential with jitter) is used.
func WithBackoff(b backoff.Strategy) Option {
	return func(eng *Engine) {
		eng.bo = b
	}
}

// WithQueueConfig registers queue-level rate limiting and concurrency
// configurations. Queues not listed have no limits.
func WithQueueConfig(configs ...queue.Config) Option {
	return func(eng *Engine) {
		eng.queueConfigs = append(eng.queueConfigs, configs...)
	}
}

// WithBreakerConfig sets the circuit breaker policy shared by all job
// names.
func WithBreakerConfig(cfg breaker.Config) Option {
	return func(eng *Engine) {
		eng.breakerConfig = cfg
	}
}

// WithTracerProvider sets a custom OTel TracerProvider for the engine.
// If not set, the global otel.GetTracerProvider() is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) {
		eng.tracerProvider = tp
	}
}

// WithMeterProvider sets a custom OTel MeterProvider for the engine.
// When set, both the metrics middleware and the observability extension
// use this provider instead of the global one.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) {
		eng.meterProvider = mp
	}
}

// Build creates an Engine from an existing Pipeline.
// The Pipeline's store must implement the job, event, dlq, and breaker
// store interfaces (every backend under store/ does).
func Build(p *churnsaver.Pipeline, opts ...Option) (*Engine, error) {
	logger := p.Logger()
	store := p.Store()

	if store == nil {
		return nil, churnsaver.ErrNoStore
	}

	js, ok := store.(job.Store)
	if !ok {
		return nil, fmt.Errorf("churnsaver: store does not implement job.Store")
	}
	ds, ok := store.(dlq.Store)
	if !ok {
		return nil, fmt.Errorf("churnsaver: store does not implement dlq.Store")
	}
	es, ok := store.(event.Store)
	if !ok {
		return nil, fmt.Errorf("churnsaver: store does not implement event.Store")
	}
	bs, ok := store.(breaker.Store)
	if !ok {
		return nil, fmt.Errorf("churnsaver: store does not implement breaker.Store")
	}

	eng := &Engine{
		p:             p,
		extensions:    ext.NewRegistry(logger),
		registry:      job.NewRegistry(),
		jobStore:      js,
		eventStore:    es,
		logger:        logger,
		routes:        make(map[event.Type]route),
		breakerConfig: breaker.DefaultConfig(),
	}

	for _, opt := range opts {
		opt(eng)
	}

	if eng.bo == nil {
		eng.bo = backoff.DefaultStrategy()
	}

	eng.dlqService = dlq.NewService(ds, js)

	// Breaker transitions flow out through the extension hook so the
	// observability extension sees them.
	eng.breakers = breaker.NewRegistry(bs, logger,
		breaker.WithConfig(eng.breakerConfig),
		breaker.WithOnChange(func(ctx context.Context, st *breaker.State, from, to breaker.Status) {
			eng.extensions.EmitBreakerStateChanged(ctx, st.JobName, from, to)
		}),
	)

	// Build tracing middleware (custom provider or global).
	var tracingMw mw.Middleware
	if eng.tracerProvider != nil {
		tracer := eng.tracerProvider.Tracer(meterName)
		tracingMw = mw.TracingWithTracer(tracer)
	} else {
		tracingMw = mw.Tracing()
	}

	// Build metrics middleware (custom provider or global).
	var metricsMw mw.Middleware
	if eng.meterProvider != nil {
		meter := eng.meterProvider.Meter(meterName)
		metricsMw = mw.MetricsWithMeter(meter)
	} else {
		metricsMw = mw.Metrics()
	}

	// Register the observability metrics extension.
	var obsExt *observability.MetricsExtension
	if eng.meterProvider != nil {
		meter := eng.meterProvider.Meter(meterName + "/observability")
		obsExt = observability.NewMetricsExtensionWithMeter(meter)
	} else {
		obsExt = observability.NewMetricsExtension()
	}
	eng.extensions.Register(obsExt)

	// Default middleware stack: recover → tracing → metrics → logging →
	// tenant → timeout.
	defaultMws := []mw.Middleware{
		mw.Recover(logger),
		tracingMw,
		metricsMw,
		mw.Logging(logger),
		mw.Tenant(),
		mw.Timeout(logger),
	}
	allMws := make([]mw.Middleware, 0, len(defaultMws)+len(eng.mws))
	allMws = append(allMws, defaultMws...)
	allMws = append(allMws, eng.mws...)

	config := p.Config()
	executor := worker.NewExecutor(eng.registry, eng.extensions, eng.jobStore, eng.dlqService, logger,
		worker.WithBackoff(eng.bo),
		worker.WithBreakers(eng.breakers),
		worker.WithEventStore(es),
		worker.WithMiddleware(allMws...),
	)

	poolOpts := []worker.PoolOption{
		worker.WithPoolConcurrency(config.Concurrency),
		worker.WithPoolQueues(config.Queues),
		worker.WithPollInterval(config.PollInterval),
		worker.WithHeartbeatInterval(config.HeartbeatInterval),
		worker.WithStaleJobThreshold(config.StaleJobThreshold),
	}

	if len(eng.queueConfigs) > 0 {
		eng.queueManager = queue.NewManager(eng.queueConfigs...)
		poolOpts = append(poolOpts, worker.WithQueueManager(eng.queueManager))
	}

	eng.pool = worker.NewPool(
		eng.jobStore,
		executor,
		eng.extensions,
		logger,
		poolOpts...,
	)

	// Wire back into the Pipeline.
	p.SetPool(eng.pool)
	p.SetExtensions(eng.extensions)

	return eng, nil
}

// Register registers a typed job definition with the engine.
func Register[T any](eng *Engine, def *job.Definition[T]) {
	job.RegisterDefinition(eng.registry, def)
}

// RegisterRoute maps an inbound event type to the job enqueued when a
// webhook of that type is ingested. The job name must already be
// registered.
func (eng *Engine) RegisterRoute(eventType event.Type, jobName string, opts ...job.Option) error {
	if !eng.registry.Has(jobName) {
		return fmt.Errorf("%w: %s", churnsaver.ErrUnknownJob, jobName)
	}
	eng.routes[eventType] = route{jobName: jobName, opts: opts}
	return nil
}

// Ingest records an inbound webhook event exactly once and enqueues its
// processing job with the origin event id as singleton key, scoped to
// the event's tenant. Duplicate deliveries return inserted=false and
// enqueue nothing. Event types without a registered route are recorded
// but not enqueued.
func (eng *Engine) Ingest(ctx context.Context, evt *event.InboundEvent) (bool, error) {
	inserted, err := eng.eventStore.RecordEvent(ctx, evt)
	if err != nil {
		return false, fmt.Errorf("record event %q: %w", evt.OriginID, err)
	}

	if !inserted {
		eng.extensions.EmitEventDuplicate(ctx, evt)
		eng.logger.Debug("duplicate event delivery",
			slog.String("origin_id", evt.OriginID),
			slog.String("event_type", string(evt.Type)),
		)
		return false, nil
	}

	eng.extensions.EmitEventRecorded(ctx, evt)

	rt, ok := eng.routes[evt.Type]
	if !ok {
		eng.logger.Info("no route for event type, recorded only",
			slog.String("origin_id", evt.OriginID),
			slog.String("event_type", string(evt.Type)),
		)
		return true, nil
	}

	// The event carries its own tenant (extracted by the webhook layer);
	// bind it so the enqueued job is scoped to that tenant rather than to
	// whatever scope the ingesting request happened to run under.
	if evt.TenantID != "" {
		if ctx, err = tenant.Bind(ctx, evt.TenantID); err != nil {
			return true, fmt.Errorf("bind tenant for event %q: %w", evt.OriginID, err)
		}
	}

	opts := append([]job.Option{job.WithSingletonKey(evt.OriginID)}, rt.opts...)
	_, err = eng.EnqueueRaw(ctx, rt.jobName, evt.Payload, opts...)
	if err != nil && !errors.Is(err, churnsaver.ErrSingletonExists) {
		return true, fmt.Errorf("enqueue job for event %q: %w", evt.OriginID, err)
	}
	return true, nil
}

// Enqueue creates and enqueues a job with a typed payload.
func Enqueue[T any](ctx context.Context, eng *Engine, name string, payload T, opts ...job.Option) (*job.Job, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload for job %q: %w", name, err)
	}

	return eng.EnqueueRaw(ctx, name, data, opts...)
}

// EnqueueRaw enqueues a job with a pre-serialized payload. Unknown job
// names are rejected here, not at claim time. The tenant bound in ctx
// (if any) travels with the job.
func (eng *Engine) EnqueueRaw(ctx context.Context, name string, payload []byte, opts ...job.Option) (*job.Job, error) {
	if !eng.registry.Has(name) {
		return nil, fmt.Errorf("%w: %s", churnsaver.ErrUnknownJob, name)
	}

	var tenantID string
	if scope, ok := tenant.FromContext(ctx); ok {
		tenantID = scope.TenantID
	}

	jobOpts := job.DefaultOptions()
	for _, opt := range opts {
		opt(&jobOpts)
	}

	now := time.Now().UTC()
	j := &job.Job{
		Entity:       churnsaver.NewEntity(),
		ID:           id.NewJobID(),
		Name:         name,
		Payload:      payload,
		State:        job.StatePending,
		Queue:        jobOpts.Queue,
		MaxAttempts:  jobOpts.MaxAttempts,
		SingletonKey: jobOpts.SingletonKey,
		Timeout:      jobOpts.Timeout,
		TenantID:     tenantID,
		RunAt:        now,
	}
	if !jobOpts.RunAt.IsZero() {
		j.RunAt = jobOpts.RunAt
	}

	if err := eng.jobStore.EnqueueJob(ctx, j); err != nil {
		return nil, err
	}

	eng.extensions.EmitJobEnqueued(ctx, j)
	return j, nil
}

// Cancel transitions a pending or retrying job to cancelled. Running
// jobs cannot be cancelled mid-flight.
func (eng *Engine) Cancel(ctx context.Context, jobID id.JobID) error {
	return eng.jobStore.CancelJob(ctx, jobID)
}

// Start begins job processing by starting the worker pool.
func (eng *Engine) Start(ctx context.Context) error {
	return eng.p.Start(ctx)
}

// Stop gracefully shuts down the engine.
func (eng *Engine) Stop(ctx context.Context) error {
	return eng.p.Stop(ctx)
}

// Extensions returns the extension registry.
func (eng *Engine) Extensions() *ext.Registry { return eng.extensions }

// Registry returns the job registry.
func (eng *Engine) Registry() *job.Registry { return eng.registry }

// Pipeline returns the underlying Pipeline.
func (eng *Engine) Pipeline() *churnsaver.Pipeline { return eng.p }

// DLQService returns the dead letter service for inspection and replay.
func (eng *Engine) DLQService() *dlq.Service { return eng.dlqService }

// Breakers returns the circuit breaker registry.
func (eng *Engine) Breakers() *breaker.Registry { return eng.breakers }

// JobStore returns the job store for operator queries.
func (eng *Engine) JobStore() job.Store { return eng.jobStore }

// QueueManager returns the queue manager, or nil if no queue configs
// were provided.
func (eng *Engine) QueueManager() *queue.Manager { return eng.queueManager }
