package store

import (
	"context"

	"github.com/Danservfinn/churnsaver-sub010/breaker"
	"github.com/Danservfinn/churnsaver-sub010/dlq"
	"github.com/Danservfinn/churnsaver-sub010/event"
	"github.com/Danservfinn/churnsaver-sub010/job"
)

// Store is the aggregate persistence interface.
// Each subsystem store is a composable interface; a single backend
// (postgres, redis, bun, memory) implements all of them.
type Store interface {
	event.Store
	job.Store
	dlq.Store
	breaker.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks storage connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
