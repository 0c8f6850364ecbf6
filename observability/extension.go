package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/Danservfinn/churnsaver-sub010/breaker"
	"github.com/Danservfinn/churnsaver-sub010/event"
	"github.com/Danservfinn/churnsaver-sub010/ext"
	"github.com/Danservfinn/churnsaver-sub010/job"
)

// meterName is the instrumentation scope name for lifecycle metrics.
const meterName = "github.com/Danservfinn/churnsaver-sub010/observability"

// Compile-time interface checks.
var (
	_ ext.Extension           = (*MetricsExtension)(nil)
	_ ext.EventRecorded       = (*MetricsExtension)(nil)
	_ ext.EventDuplicate      = (*MetricsExtension)(nil)
	_ ext.JobEnqueued         = (*MetricsExtension)(nil)
	_ ext.JobCompleted        = (*MetricsExtension)(nil)
	_ ext.JobFailed           = (*MetricsExtension)(nil)
	_ ext.JobRetrying         = (*MetricsExtension)(nil)
	_ ext.JobDLQ              = (*MetricsExtension)(nil)
	_ ext.BreakerStateChanged = (*MetricsExtension)(nil)
)

// MetricsExtension records pipeline-wide lifecycle metrics via OpenTelemetry.
// Register it as an extension to automatically track event ingestion rates,
// duplicate drops, enqueue rates, completion counts, failure rates, retry
// counts, dead letter entries, and breaker transitions.
type MetricsExtension struct {
	eventsRecorded  metric.Int64Counter
	eventsDuplicate metric.Int64Counter
	jobsEnqueued    metric.Int64Counter
	jobsCompleted   metric.Int64Counter
	jobsFailed      metric.Int64Counter
	jobsRetried     metric.Int64Counter
	jobsDeadLetter  metric.Int64Counter
	breakerChanges  metric.Int64Counter
}

// NewMetricsExtension creates a MetricsExtension using the global OTel
// MeterProvider. With no provider configured the instruments are noops.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension with the provided
// meter. Use this variant to inject a specific MeterProvider for testing.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	m := &MetricsExtension{}
	// Instrument creation errors leave noop instruments behind; the
	// extension degrades gracefully rather than failing registration.
	m.eventsRecorded, _ = meter.Int64Counter("churnsaver.events.recorded",
		metric.WithDescription("Inbound webhook events recorded for the first time"))
	m.eventsDuplicate, _ = meter.Int64Counter("churnsaver.events.duplicate",
		metric.WithDescription("Inbound webhook events dropped as redeliveries"))
	m.jobsEnqueued, _ = meter.Int64Counter("churnsaver.jobs.enqueued",
		metric.WithDescription("Jobs accepted into the queue"))
	m.jobsCompleted, _ = meter.Int64Counter("churnsaver.jobs.completed",
		metric.WithDescription("Jobs that finished successfully"))
	m.jobsFailed, _ = meter.Int64Counter("churnsaver.jobs.failed",
		metric.WithDescription("Jobs that failed terminally"))
	m.jobsRetried, _ = meter.Int64Counter("churnsaver.jobs.retried",
		metric.WithDescription("Job executions that were scheduled for retry"))
	m.jobsDeadLetter, _ = meter.Int64Counter("churnsaver.jobs.dead_lettered",
		metric.WithDescription("Jobs moved to the dead letter store"))
	m.breakerChanges, _ = meter.Int64Counter("churnsaver.breaker.transitions",
		metric.WithDescription("Circuit breaker state transitions"))
	return m
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// ── Event ingestion hooks ───────────────────────────

// OnEventRecorded implements ext.EventRecorded.
func (m *MetricsExtension) OnEventRecorded(ctx context.Context, evt *event.InboundEvent) error {
	m.eventsRecorded.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", string(evt.Type)),
	))
	return nil
}

// OnEventDuplicate implements ext.EventDuplicate.
func (m *MetricsExtension) OnEventDuplicate(ctx context.Context, evt *event.InboundEvent) error {
	m.eventsDuplicate.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", string(evt.Type)),
	))
	return nil
}

// ── Job lifecycle hooks ─────────────────────────────

// OnJobEnqueued implements ext.JobEnqueued.
func (m *MetricsExtension) OnJobEnqueued(ctx context.Context, j *job.Job) error {
	m.jobsEnqueued.Add(ctx, 1, jobAttrs(j))
	return nil
}

// OnJobCompleted implements ext.JobCompleted.
func (m *MetricsExtension) OnJobCompleted(ctx context.Context, j *job.Job, _ time.Duration) error {
	m.jobsCompleted.Add(ctx, 1, jobAttrs(j))
	return nil
}

// OnJobFailed implements ext.JobFailed.
func (m *MetricsExtension) OnJobFailed(ctx context.Context, j *job.Job, _ error) error {
	m.jobsFailed.Add(ctx, 1, jobAttrs(j))
	return nil
}

// OnJobRetrying implements ext.JobRetrying.
func (m *MetricsExtension) OnJobRetrying(ctx context.Context, j *job.Job, _ int, _ time.Time) error {
	m.jobsRetried.Add(ctx, 1, jobAttrs(j))
	return nil
}

// OnJobDLQ implements ext.JobDLQ.
func (m *MetricsExtension) OnJobDLQ(ctx context.Context, j *job.Job, _ error) error {
	m.jobsDeadLetter.Add(ctx, 1, jobAttrs(j))
	return nil
}

// ── Breaker hooks ───────────────────────────────────

// OnBreakerStateChanged implements ext.BreakerStateChanged.
func (m *MetricsExtension) OnBreakerStateChanged(ctx context.Context, jobName string, from, to breaker.Status) error {
	m.breakerChanges.Add(ctx, 1, metric.WithAttributes(
		attribute.String("job_name", jobName),
		attribute.String("from", string(from)),
		attribute.String("to", string(to)),
	))
	return nil
}

func jobAttrs(j *job.Job) metric.MeasurementOption {
	return metric.WithAttributes(
		attribute.String("job_name", j.Name),
		attribute.String("queue", j.Queue),
	)
}
