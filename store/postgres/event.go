package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	churnsaver "github.com/Danservfinn/churnsaver-sub010"
	"github.com/Danservfinn/churnsaver-sub010/event"
	"github.com/Danservfinn/churnsaver-sub010/id"
	"github.com/Danservfinn/churnsaver-sub010/tenant"
)

// RecordEvent inserts the event if its OriginID is unseen. The unique
// index on origin_id makes the check-and-insert a single atomic
// statement; ON CONFLICT DO NOTHING turns a duplicate into a no-op.
func (s *Store) RecordEvent(ctx context.Context, evt *event.InboundEvent) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO churnsaver_events (
			id, origin_id, type, tenant_id, payload, received_at, processed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (origin_id) DO NOTHING`,
		evt.ID.String(), evt.OriginID, string(evt.Type), evt.TenantID,
		evt.Payload, evt.ReceivedAt, evt.ProcessedAt,
	)
	if err != nil {
		return false, fmt.Errorf("churnsaver/postgres: record event: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// GetEvent retrieves an event by its internal ID.
func (s *Store) GetEvent(ctx context.Context, eventID id.EventID) (*event.InboundEvent, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, origin_id, type, tenant_id, payload, received_at, processed_at
		FROM churnsaver_events
		WHERE id = $1`,
		eventID.String(),
	)
	return s.scanGuardedEvent(ctx, row)
}

// GetEventByOriginID retrieves an event by the platform-assigned id.
func (s *Store) GetEventByOriginID(ctx context.Context, originID string) (*event.InboundEvent, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, origin_id, type, tenant_id, payload, received_at, processed_at
		FROM churnsaver_events
		WHERE origin_id = $1`,
		originID,
	)
	return s.scanGuardedEvent(ctx, row)
}

// scanGuardedEvent scans one event row and applies the bound tenant as a
// second isolation layer, mirroring the memory store.
func (s *Store) scanGuardedEvent(ctx context.Context, row pgx.Row) (*event.InboundEvent, error) {
	evt, err := scanEvent(row)
	if err != nil {
		if isNoRows(err) {
			return nil, churnsaver.ErrEventNotFound
		}
		return nil, fmt.Errorf("churnsaver/postgres: get event: %w", err)
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
	tag, err := s.pool.Exec(ctx, `
		UPDATE churnsaver_events
		SET processed_at = NOW()
		WHERE origin_id = $1 AND processed_at IS NULL`,
		originID,
	)
	if err != nil {
		return fmt.Errorf("churnsaver/postgres: mark event processed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either missing or already processed; only the former is an error.
		var exists bool
		if scanErr := s.pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM churnsaver_events WHERE origin_id = $1)`,
			originID,
		).Scan(&exists); scanErr != nil {
			return fmt.Errorf("churnsaver/postgres: mark event processed: %w", scanErr)
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
	query := `
		SELECT id, origin_id, type, tenant_id, payload, received_at, processed_at
		FROM churnsaver_events
		WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if opts.Type != "" {
		query += fmt.Sprintf(" AND type = $%d", argIdx)
		args = append(args, string(opts.Type))
		argIdx++
	}
	if opts.Unprocessed {
		query += " AND processed_at IS NULL"
	}
	if bound, ok := tenant.FromContext(ctx); ok {
		query += fmt.Sprintf(" AND tenant_id = $%d", argIdx)
		args = append(args, bound.TenantID)
		argIdx++
	}

	query += " ORDER BY received_at ASC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("churnsaver/postgres: list events: %w", err)
	}
	defer rows.Close()

	var events []*event.InboundEvent
	for rows.Next() {
		evt, scanErr := scanEvent(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("churnsaver/postgres: scan event row: %w", scanErr)
		}
		events = append(events, evt)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("churnsaver/postgres: iterate event rows: %w", err)
	}
	return events, nil
}

// scanEvent scans a single event row.
func scanEvent(row pgx.Row) (*event.InboundEvent, error) {
	var (
		evt     event.InboundEvent
		idStr   string
		typeStr string
	)
	err := row.Scan(
		&idStr, &evt.OriginID, &typeStr, &evt.TenantID,
		&evt.Payload, &evt.ReceivedAt, &evt.ProcessedAt,
	)
	if err != nil {
		return nil, err
	}

	evt.Type = event.Type(typeStr)

	parsedID, parseErr := id.ParseEventID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("churnsaver/postgres: parse event id %q: %w", idStr, parseErr)
	}
	evt.ID = parsedID

	return &evt, nil
}
