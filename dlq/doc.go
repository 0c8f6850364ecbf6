// Package dlq provides the dead letter store for jobs that failed
// terminally: retry budget exhausted, or a fatal error that retrying
// cannot fix.
//
// When the executor gives up on a job it calls [Service.Push], which
// preserves the payload, the final error message, the attempt counts,
// and the tenant for operator triage. Entries are append-only from the
// queue's perspective and leave only through operator-driven replay or
// purge.
//
// # Replay
//
// [Service.Replay] re-enqueues the original payload as a fresh job with
// attempts reset, re-validating tenant context first. Replay sets
// ReplayedAt on the entry; the entry itself is retained.
//
// The operator HTTP surface for listing, replaying, and purging entries
// lives in the api package.
package dlq
