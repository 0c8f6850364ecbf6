package job

import (
	"errors"

	churnsaver "github.com/Danservfinn/churnsaver-sub010"
)

// fatalError marks a handler failure that retrying cannot fix: the
// payload fails domain validation, the tenant does not exist, and so on.
// The executor routes fatal failures straight to the dead letter store
// without consuming the retry budget.
type fatalError struct {
	err error
}

func (f *fatalError) Error() string { return "fatal: " + f.err.Error() }

func (f *fatalError) Unwrap() error { return f.err }

// Fatal wraps err so the executor treats the failure as non-retryable.
// A nil err returns nil.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &fatalError{err: err}
}

// IsFatal reports whether err is non-retryable: either the handler
// marked it with Fatal, or it is a tenant scope violation. A missing or
// mismatched tenant scope never heals on retry, and each retry would
// re-run the handler against data it must not touch, so those failures
// dead-letter immediately. Every other handler error is considered
// transient and retryable.
func IsFatal(err error) bool {
	var f *fatalError
	if errors.As(err, &f) {
		return true
	}
	return errors.Is(err, churnsaver.ErrTenantRequired) ||
		errors.Is(err, churnsaver.ErrTenantMismatch)
}
