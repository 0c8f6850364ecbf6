// Package observability provides an OpenTelemetry-based metrics extension
// for the pipeline. The MetricsExtension implements lifecycle hooks to
// record counters for event ingestion, duplicate drops, job enqueue,
// completion, failure, retry, dead letter, and breaker transitions.
//
// For per-execution tracing and metrics, see the middleware package:
// middleware.Tracing() and middleware.Metrics().
package observability
