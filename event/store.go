package event

import (
	"context"

	"github.com/Danservfinn/churnsaver-sub010/id"
)

// ListOpts controls pagination and filtering for event list queries.
type ListOpts struct {
	// Limit is the maximum number of events to return. Zero means no limit.
	Limit int
	// Offset is the number of events to skip.
	Offset int
	// Type filters by event type. Empty means all types.
	Type Type
	// Unprocessed, when true, returns only events without a ProcessedAt.
	Unprocessed bool
}

// Store defines the persistence contract for inbound events.
//
// Reads and writes of individual events are tenant-scoped: the store
// verifies the bound tenant (see the tenant package) against the row as
// a second isolation layer, independent of the callers' own checks.
type Store interface {
	// RecordEvent inserts the event if no event with the same OriginID
	// exists. It reports whether the insert happened. A duplicate is not
	// an error: concurrent deliveries of the same OriginID must observe
	// exactly one inserted=true between them.
	RecordEvent(ctx context.Context, evt *InboundEvent) (inserted bool, err error)

	// GetEvent retrieves an event by its internal ID.
	GetEvent(ctx context.Context, eventID id.EventID) (*InboundEvent, error)

	// GetEventByOriginID retrieves an event by the platform-assigned id.
	GetEventByOriginID(ctx context.Context, originID string) (*InboundEvent, error)

	// MarkEventProcessed sets ProcessedAt for the event with the given
	// OriginID. Processing is accounted once per event, on the derived
	// job's terminal transition — success or dead-letter alike.
	MarkEventProcessed(ctx context.Context, originID string) error

	// ListEvents returns the bound tenant's events matching the options.
	ListEvents(ctx context.Context, opts ListOpts) ([]*InboundEvent, error)
}
