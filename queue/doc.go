// Package queue provides named job queues with per-queue and per-tenant
// rate limiting.
//
// Queues are named channels that group related jobs. Jobs carry a Queue
// field that determines which queue they belong to, and the worker pool
// polls the queues listed in [churnsaver.Config.Queues] (default:
// ["default"]).
//
// # Per-Queue Configuration
//
// Use [Config] to set per-queue rate limits and concurrency caps:
//
//	queue.Config{
//	    Name:           "recovery",
//	    MaxConcurrency: 5,      // max 5 concurrent recovery jobs
//	    RateLimit:      10,     // max 10 jobs/s claimed from this queue
//	    RateBurst:      20,     // allow bursts up to 20
//	}
//
// # Manager
//
// [Manager] enforces limits at claim time using a token-bucket rate
// limiter (golang.org/x/time/rate) plus an active-count gate for
// concurrency. [TenantLimit] adds the same controls per shop, so a
// burst of payment failures from one tenant cannot monopolise the pool:
//
//	m := queue.NewManager(configs...)
//	if m.Acquire(queueName, tenantID) {
//	    defer m.Release(queueName, tenantID)
//	    // process the job
//	}
//
// Queues without a [Config] have no limits beyond the pool-wide
// concurrency.
package queue
