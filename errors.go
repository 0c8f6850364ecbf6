package churnsaver

import "errors"

var (
	// Store errors.
	ErrNoStore         = errors.New("churnsaver: no store configured")
	ErrStoreClosed     = errors.New("churnsaver: store closed")
	ErrMigrationFailed = errors.New("churnsaver: migration failed")

	// Not found errors.
	ErrEventNotFound   = errors.New("churnsaver: event not found")
	ErrJobNotFound     = errors.New("churnsaver: job not found")
	ErrDLQNotFound     = errors.New("churnsaver: dlq entry not found")
	ErrBreakerNotFound = errors.New("churnsaver: breaker state not found")

	// Conflict errors.
	// ErrJobExists is returned when enqueueing a job whose ID is already
	// persisted.
	ErrJobExists = errors.New("churnsaver: job already exists")
	// ErrSingletonExists is returned by EnqueueJob when a non-terminal job
	// already holds the (name, singleton key) slot. Callers treat it as an
	// idempotent no-op, not a failure.
	ErrSingletonExists = errors.New("churnsaver: non-terminal job exists for singleton key")
	// ErrBreakerConflict is returned by a compare-and-swap breaker update
	// when another worker committed first. Callers reload and retry.
	ErrBreakerConflict = errors.New("churnsaver: breaker state changed concurrently")

	// State errors.
	ErrInvalidState = errors.New("churnsaver: invalid state transition")
	ErrJobRunning   = errors.New("churnsaver: job is currently running")
	ErrUnknownJob   = errors.New("churnsaver: no handler registered for job name")

	// Tenant errors. Both are security-relevant: they mean a data access
	// was attempted without a valid tenant binding, or across tenants.
	ErrTenantRequired = errors.New("churnsaver: tenant scope required")
	ErrTenantMismatch = errors.New("churnsaver: resource belongs to a different tenant")
)
