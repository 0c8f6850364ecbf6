package middleware

import (
	"context"
	"log/slog"

	"github.com/Danservfinn/churnsaver-sub010/job"
)

// Timeout returns middleware that enforces a per-job execution deadline.
// If the job has a non-zero Timeout, the handler runs under a
// context.WithTimeout in its own goroutine; when the deadline expires
// the middleware returns ctx.Err() without waiting for the handler, so
// a handler that ignores cancellation cannot hold the worker slot. The
// abandoned goroutine is left to finish on its own and its result is
// discarded.
func Timeout(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		if j.Timeout <= 0 {
			return next(ctx)
		}

		ctx, cancel := context.WithTimeout(ctx, j.Timeout)
		defer cancel()

		// Buffered so the handler goroutine never blocks on send after
		// the deadline path has already returned.
		done := make(chan error, 1)
		go func() {
			done <- next(ctx)
		}()

		select {
		case err := <-done:
			return err
		case <-ctx.Done():
			logger.Warn("job exceeded timeout, abandoning handler",
				slog.String("job_id", j.ID.String()),
				slog.String("job_name", j.Name),
				slog.Duration("timeout", j.Timeout),
			)
			return ctx.Err()
		}
	}
}
