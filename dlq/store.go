package dlq

import (
	"context"
	"time"

	"github.com/Danservfinn/churnsaver-sub010/id"
)

// ListOpts controls pagination and filtering for dead letter queries.
type ListOpts struct {
	// Limit is the maximum number of entries to return. Zero means no limit.
	Limit int
	// Offset is the number of entries to skip.
	Offset int
	// Queue filters by queue name. Empty means all queues.
	Queue string
	// JobName filters by job name. Empty means all names.
	JobName string
	// TenantID filters by tenant. Empty means all tenants.
	TenantID string
	// Since/Until bound MovedAt. Zero values disable the bound.
	Since time.Time
	Until time.Time
}

// Store defines the persistence contract for the dead letter store.
// It is append-only from the job queue's perspective; entries leave only
// through operator-driven replay or purge.
type Store interface {
	// PushDLQ appends a terminally failed job entry.
	PushDLQ(ctx context.Context, entry *Entry) error

	// ListDLQ returns entries matching the given options, newest first.
	ListDLQ(ctx context.Context, opts ListOpts) ([]*Entry, error)

	// GetDLQ retrieves an entry by ID.
	GetDLQ(ctx context.Context, entryID id.DLQID) (*Entry, error)

	// MarkReplayed sets ReplayedAt on an entry. The re-enqueue itself is
	// handled at the service layer.
	MarkReplayed(ctx context.Context, entryID id.DLQID) error

	// PurgeDLQ removes entries with MovedAt before the given time.
	// Returns the number of entries removed.
	PurgeDLQ(ctx context.Context, before time.Time) (int64, error)

	// CountDLQ returns the total number of entries.
	CountDLQ(ctx context.Context) (int64, error)
}
