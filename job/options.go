package job

import "time"

// Options configures per-job behavior such as attempts, queue, and timeout.
type Options struct {
	// MaxAttempts is the number of executions before the job dead-letters.
	MaxAttempts int

	// Queue is the queue name this job should be enqueued to.
	Queue string

	// Timeout is the maximum duration one attempt may run. Exceeding it
	// counts as a failure toward MaxAttempts and the circuit breaker.
	Timeout time.Duration

	// RunAt schedules the job for future execution. Zero means immediate.
	RunAt time.Time

	// SingletonKey deduplicates concurrent enqueues of the same logical
	// work. Empty disables deduplication.
	SingletonKey string
}

// DefaultOptions returns Options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		MaxAttempts: 5,
		Queue:       "default",
		Timeout:     5 * time.Minute,
	}
}

// Option is a functional option for configuring a job definition.
type Option func(*Options)

// WithMaxAttempts sets the number of executions before dead-lettering.
func WithMaxAttempts(n int) Option {
	return func(o *Options) {
		o.MaxAttempts = n
	}
}

// WithQueue sets the queue name for the job.
func WithQueue(q string) Option {
	return func(o *Options) {
		o.Queue = q
	}
}

// WithTimeout sets the maximum execution duration per attempt.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.Timeout = d
	}
}

// WithRunAt schedules the job for execution at a specific time.
func WithRunAt(t time.Time) Option {
	return func(o *Options) {
		o.RunAt = t
	}
}

// WithSingletonKey sets the job's deduplication key.
func WithSingletonKey(key string) Option {
	return func(o *Options) {
		o.SingletonKey = key
	}
}
