package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	goredis "github.com/redis/go-redis/v9"

	churnsaver "github.com/Danservfinn/churnsaver-sub010"
	"github.com/Danservfinn/churnsaver-sub010/event"
	"github.com/Danservfinn/churnsaver-sub010/id"
	"github.com/Danservfinn/churnsaver-sub010/tenant"
)

// RecordEvent inserts the event if its OriginID is unseen. HSETNX on the
// origin_id field is the atomic arbiter: among concurrent deliveries of
// the same OriginID exactly one caller wins the field and writes the
// rest of the hash.
func (s *Store) RecordEvent(ctx context.Context, evt *event.InboundEvent) (bool, error) {
	key := eventKey(evt.OriginID)

	won, err := s.client.HSetNX(ctx, key, "origin_id", evt.OriginID).Result()
	if err != nil {
		return false, fmt.Errorf("churnsaver/redis: record event: %w", err)
	}
	if !won {
		return false, nil
	}

	fields := eventToMap(evt)

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.SAdd(ctx, eventOriginsKey, evt.OriginID)
	pipe.HSet(ctx, eventIDsKey, evt.ID.String(), evt.OriginID)
	if _, err = pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("churnsaver/redis: record event fields: %w", err)
	}
	return true, nil
}

// GetEvent retrieves an event by its internal ID.
func (s *Store) GetEvent(ctx context.Context, eventID id.EventID) (*event.InboundEvent, error) {
	originID, err := s.client.HGet(ctx, eventIDsKey, eventID.String()).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, churnsaver.ErrEventNotFound
		}
		return nil, fmt.Errorf("churnsaver/redis: get event id: %w", err)
	}
	return s.GetEventByOriginID(ctx, originID)
}

// GetEventByOriginID retrieves an event by the platform-assigned id and
// applies the bound tenant as a second isolation layer.
func (s *Store) GetEventByOriginID(ctx context.Context, originID string) (*event.InboundEvent, error) {
	evt, err := s.getEventByKey(ctx, eventKey(originID))
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
// OriginID. HSETNX keeps the first timestamp when marked twice.
func (s *Store) MarkEventProcessed(ctx context.Context, originID string) error {
	key := eventKey(originID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("churnsaver/redis: mark processed exists: %w", err)
	}
	if exists == 0 {
		return churnsaver.ErrEventNotFound
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	if err = s.client.HSetNX(ctx, key, "processed_at", now).Err(); err != nil {
		return fmt.Errorf("churnsaver/redis: mark processed: %w", err)
	}
	return nil
}

// ListEvents returns events matching the given options, oldest first.
// With a tenant bound in ctx only that tenant's events are returned.
func (s *Store) ListEvents(ctx context.Context, opts event.ListOpts) ([]*event.InboundEvent, error) {
	origins, err := s.client.SMembers(ctx, eventOriginsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("churnsaver/redis: list events smembers: %w", err)
	}

	var boundTenant string
	if bound, ok := tenant.FromContext(ctx); ok {
		boundTenant = bound.TenantID
	}

	events := make([]*event.InboundEvent, 0, len(origins))
	for _, originID := range origins {
		evt, getErr := s.getEventByKey(ctx, eventKey(originID))
		if getErr != nil {
			continue // skip missing
		}
		if opts.Type != "" && evt.Type != opts.Type {
			continue
		}
		if opts.Unprocessed && evt.ProcessedAt != nil {
			continue
		}
		if boundTenant != "" && evt.TenantID != boundTenant {
			continue
		}
		events = append(events, evt)
	}

	sort.Slice(events, func(i, k int) bool {
		return events[i].ReceivedAt.Before(events[k].ReceivedAt)
	})

	return paginate(events, opts.Offset, opts.Limit), nil
}

// ── helpers ──

func (s *Store) getEventByKey(ctx context.Context, key string) (*event.InboundEvent, error) {
	vals, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("churnsaver/redis: get event: %w", err)
	}
	if len(vals) == 0 {
		return nil, churnsaver.ErrEventNotFound
	}
	return mapToEvent(vals)
}

func eventToMap(evt *event.InboundEvent) map[string]interface{} {
	m := map[string]interface{}{
		"id":          evt.ID.String(),
		"origin_id":   evt.OriginID,
		"type":        string(evt.Type),
		"tenant_id":   evt.TenantID,
		"payload":     string(evt.Payload),
		"received_at": evt.ReceivedAt.Format(time.RFC3339Nano),
	}
	if evt.ProcessedAt != nil {
		m["processed_at"] = evt.ProcessedAt.Format(time.RFC3339Nano)
	}
	return m
}

func mapToEvent(m map[string]string) (*event.InboundEvent, error) {
	eID, err := id.ParseEventID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("churnsaver/redis: parse event id: %w", err)
	}

	receivedAt, _ := time.Parse(time.RFC3339Nano, m["received_at"]) //nolint:errcheck // best-effort parse from trusted Redis data

	evt := &event.InboundEvent{
		ID:         eID,
		OriginID:   m["origin_id"],
		Type:       event.Type(m["type"]),
		TenantID:   m["tenant_id"],
		Payload:    []byte(m["payload"]),
		ReceivedAt: receivedAt,
	}

	if v := m["processed_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		evt.ProcessedAt = &t
	}

	return evt, nil
}

// paginate applies offset and limit to an already-sorted slice.
func paginate[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
