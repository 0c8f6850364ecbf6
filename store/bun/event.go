package bunstore

import (
	"context"
	"fmt"

	churnsaver "github.com/Danservfinn/churnsaver-sub010"
	"github.com/Danservfinn/churnsaver-sub010/event"
	"github.com/Danservfinn/churnsaver-sub010/id"
	"github.com/Danservfinn/churnsaver-sub010/tenant"
)

// RecordEvent inserts the event if its OriginID is unseen. The unique
// index on origin_id plus ON CONFLICT DO NOTHING makes the
// check-and-insert atomic.
func (s *Store) RecordEvent(ctx context.Context, evt *event.InboundEvent) (bool, error) {
	m := toEventModel(evt)
	res, err := s.db.NewInsert().Model(m).
		On("CONFLICT (origin_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("churnsaver/bun: record event: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	return rows == 1, nil
}

// GetEvent retrieves an event by its internal ID.
func (s *Store) GetEvent(ctx context.Context, eventID id.EventID) (*event.InboundEvent, error) {
	m := new(eventModel)
	err := s.db.NewSelect().Model(m).
		Where("id = ?", eventID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, churnsaver.ErrEventNotFound
		}
		return nil, fmt.Errorf("churnsaver/bun: get event: %w", err)
	}
	return s.guardedEvent(ctx, m)
}

// GetEventByOriginID retrieves an event by the platform-assigned id.
func (s *Store) GetEventByOriginID(ctx context.Context, originID string) (*event.InboundEvent, error) {
	m := new(eventModel)
	err := s.db.NewSelect().Model(m).
		Where("origin_id = ?", originID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, churnsaver.ErrEventNotFound
		}
		return nil, fmt.Errorf("churnsaver/bun: get event by origin: %w", err)
	}
	return s.guardedEvent(ctx, m)
}

// guardedEvent converts a model and applies the bound tenant as a second
// isolation layer.
func (s *Store) guardedEvent(ctx context.Context, m *eventModel) (*event.InboundEvent, error) {
	evt, err := fromEventModel(m)
	if err != nil {
		return nil, err
	}
	if evt.TenantID != "" {
		if bound, ok := tenant.FromContext(ctx); ok && bound.TenantID != evt.TenantID {
			return nil, churnsaver.ErrTenantMismatch
		}
	}
	return evt, nil
}

// MarkEventProcessed sets ProcessedAt for the event with the given
// OriginID. Marking an already-processed event keeps the original
// timestamp.
func (s *Store) MarkEventProcessed(ctx context.Context, originID string) error {
	res, err := s.db.NewUpdate().
		TableExpr("churnsaver_events").
		Set("processed_at = NOW()").
		Where("origin_id = ?", originID).
		Where("processed_at IS NULL").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("churnsaver/bun: mark event processed: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		exists, existsErr := s.db.NewSelect().
			TableExpr("churnsaver_events").
			Where("origin_id = ?", originID).
			Exists(ctx)
		if existsErr != nil {
			return fmt.Errorf("churnsaver/bun: mark event processed: %w", existsErr)
		}
		if !exists {
			return churnsaver.ErrEventNotFound
		}
	}
	return nil
}

// ListEvents returns events matching the given options, oldest first.
// With a tenant bound in ctx only that tenant's events are returned.
func (s *Store) ListEvents(ctx context.Context, opts event.ListOpts) ([]*event.InboundEvent, error) {
	var models []eventModel
	q := s.db.NewSelect().Model(&models)

	if opts.Type != "" {
		q = q.Where("type = ?", string(opts.Type))
	}
	if opts.Unprocessed {
		q = q.Where("processed_at IS NULL")
	}
	if bound, ok := tenant.FromContext(ctx); ok {
		q = q.Where("tenant_id = ?", bound.TenantID)
	}

	q = q.Order("received_at ASC")

	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("churnsaver/bun: list events: %w", err)
	}

	events := make([]*event.InboundEvent, 0, len(models))
	for i := range models {
		evt, convErr := fromEventModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("churnsaver/bun: list events convert: %w", convErr)
		}
		events = append(events, evt)
	}
	return events, nil
}
