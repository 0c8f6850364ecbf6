package breaker

import "context"

// Store defines the persistence contract for breaker state.
//
// Both operations together form the compare-and-swap loop the Registry
// runs: load, decide, swap-if-unchanged. The swap must be atomic at the
// storage layer because workers run as independent processes; an
// in-process mutex is not enough.
type Store interface {
	// GetBreaker returns the state for the given job name, or
	// churnsaver.ErrBreakerNotFound if none has been saved yet.
	GetBreaker(ctx context.Context, jobName string) (*State, error)

	// SwapBreaker persists st if the stored Version still equals
	// st.Version, incrementing the version; otherwise it returns
	// churnsaver.ErrBreakerConflict and persists nothing. A state with
	// Version 0 is inserted, failing with the same conflict error if a
	// row appeared concurrently.
	SwapBreaker(ctx context.Context, st *State) error

	// ListBreakers returns all persisted breaker states.
	ListBreakers(ctx context.Context) ([]*State, error)
}
