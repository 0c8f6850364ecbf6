package queue

import "golang.org/x/time/rate"

// TenantLimit defines rate limits and concurrency for a single tenant on
// a single queue. The tenant identifier matches job.TenantID, i.e. the
// shop the webhook event originated from.
type TenantLimit struct {
	// QueueName is the queue this limit applies to.
	QueueName string

	// TenantID is the tenant (shop) identifier.
	TenantID string

	// RateLimit is the sustained jobs per second for this tenant.
	RateLimit float64

	// RateBurst is the burst size for the tenant's rate limiter.
	RateBurst int

	// MaxConcurrency limits simultaneous jobs for this tenant on this
	// queue. Zero means no tenant-specific concurrency limit.
	MaxConcurrency int
}

// tenantKey identifies a queue+tenant pair.
type tenantKey struct {
	queue  string
	tenant string
}

// tenantState tracks runtime state for a single queue+tenant pair.
type tenantState struct {
	limiter        *rate.Limiter
	maxConcurrency int
	active         int
}

// SetTenantLimit configures rate limits and concurrency for a specific
// tenant on a specific queue. Calling this again for the same
// queue+tenant replaces the previous limit; the active count survives.
func (m *Manager) SetTenantLimit(lim TenantLimit) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := tenantKey{lim.QueueName, lim.TenantID}
	existing := m.tenants[key]

	ts := &tenantState{
		maxConcurrency: lim.MaxConcurrency,
	}
	if lim.RateLimit > 0 {
		burst := lim.RateBurst
		if burst <= 0 {
			burst = 1
		}
		ts.limiter = rate.NewLimiter(rate.Limit(lim.RateLimit), burst)
	}
	if existing != nil {
		ts.active = existing.active
	}
	m.tenants[key] = ts
}

// TenantActiveCount returns the current number of active jobs for a
// queue+tenant pair.
func (m *Manager) TenantActiveCount(queue, tenantID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ts := m.tenants[tenantKey{queue, tenantID}]; ts != nil {
		return ts.active
	}
	return 0
}
