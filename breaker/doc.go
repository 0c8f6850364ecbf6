// Package breaker implements per-job-name circuit breaking.
//
// When a handler's downstream dependency fails repeatedly, continuing to
// feed it queued work only makes recovery slower. The breaker counts
// consecutive failures per job name; at the threshold it opens and
// claims for that name are rejected without invoking the handler — the
// jobs are rescheduled through the normal backoff path instead. After
// the reset timeout one probe execution is let through: success closes
// the breaker, failure reopens it and restarts the timer.
//
//	closed ──(threshold failures)──▶ open
//	open ──(reset timeout)──▶ half_open (one probe)
//	half_open ──(probe ok)──▶ closed
//	half_open ──(probe fails)──▶ open
//
// State is persisted through [Store] with versioned compare-and-swap
// updates so that multiple worker processes sharing a store agree on the
// gate position and only one of them wins the half-open probe slot.
// The state is cheap to rebuild from recent outcomes, so losing it on a
// store reset is harmless.
package breaker
