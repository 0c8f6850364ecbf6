package redis

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	churnsaver "github.com/Danservfinn/churnsaver-sub010"
	"github.com/Danservfinn/churnsaver-sub010/dlq"
	"github.com/Danservfinn/churnsaver-sub010/id"
)

// PushDLQ appends a terminally failed job entry. Entries are indexed in
// a Sorted Set by moved_at for newest-first listing and time-bounded
// purges.
func (s *Store) PushDLQ(ctx context.Context, entry *dlq.Entry) error {
	eID := entry.ID.String()

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, dlqKey(eID), dlqToMap(entry))
	pipe.ZAdd(ctx, dlqByTimeKey, goredis.Z{
		Score:  float64(entry.MovedAt.UnixMilli()),
		Member: eID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("churnsaver/redis: push dlq: %w", err)
	}
	return nil
}

// ListDLQ returns entries matching the given options, newest first.
func (s *Store) ListDLQ(ctx context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	ids, err := s.client.ZRevRange(ctx, dlqByTimeKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("churnsaver/redis: list dlq: %w", err)
	}

	entries := make([]*dlq.Entry, 0, len(ids))
	for _, eID := range ids {
		vals, getErr := s.client.HGetAll(ctx, dlqKey(eID)).Result()
		if getErr != nil || len(vals) == 0 {
			continue
		}
		e, convErr := mapToDLQ(vals)
		if convErr != nil {
			continue
		}
		if opts.Queue != "" && e.Queue != opts.Queue {
			continue
		}
		if opts.JobName != "" && e.JobName != opts.JobName {
			continue
		}
		if opts.TenantID != "" && e.TenantID != opts.TenantID {
			continue
		}
		if !opts.Since.IsZero() && e.MovedAt.Before(opts.Since) {
			continue
		}
		if !opts.Until.IsZero() && !e.MovedAt.Before(opts.Until) {
			continue
		}
		entries = append(entries, e)
	}

	sort.Slice(entries, func(i, k int) bool {
		return entries[i].MovedAt.After(entries[k].MovedAt)
	})

	return paginate(entries, opts.Offset, opts.Limit), nil
}

// GetDLQ retrieves an entry by ID.
func (s *Store) GetDLQ(ctx context.Context, entryID id.DLQID) (*dlq.Entry, error) {
	vals, err := s.client.HGetAll(ctx, dlqKey(entryID.String())).Result()
	if err != nil {
		return nil, fmt.Errorf("churnsaver/redis: get dlq: %w", err)
	}
	if len(vals) == 0 {
		return nil, churnsaver.ErrDLQNotFound
	}
	return mapToDLQ(vals)
}

// MarkReplayed sets ReplayedAt on an entry.
func (s *Store) MarkReplayed(ctx context.Context, entryID id.DLQID) error {
	key := dlqKey(entryID.String())
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("churnsaver/redis: mark replayed exists: %w", err)
	}
	if exists == 0 {
		return churnsaver.ErrDLQNotFound
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	if err = s.client.HSet(ctx, key, "replayed_at", now).Err(); err != nil {
		return fmt.Errorf("churnsaver/redis: mark replayed: %w", err)
	}
	return nil
}

// PurgeDLQ removes entries with MovedAt before the given time.
// Returns the number of entries removed.
func (s *Store) PurgeDLQ(ctx context.Context, before time.Time) (int64, error) {
	max := strconv.FormatFloat(float64(before.UnixMilli()), 'f', -1, 64)
	ids, err := s.client.ZRangeByScore(ctx, dlqByTimeKey, &goredis.ZRangeBy{
		Min: "-inf",
		Max: "(" + max,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("churnsaver/redis: purge dlq range: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	pipe := s.client.TxPipeline()
	for _, eID := range ids {
		pipe.Del(ctx, dlqKey(eID))
		pipe.ZRem(ctx, dlqByTimeKey, eID)
	}
	if _, err = pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("churnsaver/redis: purge dlq: %w", err)
	}
	return int64(len(ids)), nil
}

// CountDLQ returns the total number of entries.
func (s *Store) CountDLQ(ctx context.Context) (int64, error) {
	count, err := s.client.ZCard(ctx, dlqByTimeKey).Result()
	if err != nil {
		return 0, fmt.Errorf("churnsaver/redis: count dlq: %w", err)
	}
	return count, nil
}

// ── helpers ──

func dlqToMap(e *dlq.Entry) map[string]interface{} {
	m := map[string]interface{}{
		"id":            e.ID.String(),
		"job_id":        e.JobID.String(),
		"job_name":      e.JobName,
		"queue":         e.Queue,
		"singleton_key": e.SingletonKey,
		"tenant_id":     e.TenantID,
		"payload":       string(e.Payload),
		"last_error":    e.LastError,
		"attempts":      strconv.Itoa(e.Attempts),
		"max_attempts":  strconv.Itoa(e.MaxAttempts),
		"moved_at":      e.MovedAt.Format(time.RFC3339Nano),
		"created_at":    e.CreatedAt.Format(time.RFC3339Nano),
	}
	if e.ReplayedAt != nil {
		m["replayed_at"] = e.ReplayedAt.Format(time.RFC3339Nano)
	}
	return m
}

func mapToDLQ(m map[string]string) (*dlq.Entry, error) {
	eID, err := id.ParseDLQID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("churnsaver/redis: parse dlq id: %w", err)
	}
	jID, err := id.ParseJobID(m["job_id"])
	if err != nil {
		return nil, fmt.Errorf("churnsaver/redis: parse job id: %w", err)
	}

	attempts, _ := strconv.Atoi(m["attempts"])        //nolint:errcheck // best-effort parse from trusted Redis data
	maxAttempts, _ := strconv.Atoi(m["max_attempts"]) //nolint:errcheck // best-effort parse from trusted Redis data

	movedAt, _ := time.Parse(time.RFC3339Nano, m["moved_at"])     //nolint:errcheck // best-effort parse from trusted Redis data
	createdAt, _ := time.Parse(time.RFC3339Nano, m["created_at"]) //nolint:errcheck // best-effort parse from trusted Redis data

	e := &dlq.Entry{
		ID:           eID,
		JobID:        jID,
		JobName:      m["job_name"],
		Queue:        m["queue"],
		SingletonKey: m["singleton_key"],
		TenantID:     m["tenant_id"],
		Payload:      []byte(m["payload"]),
		LastError:    m["last_error"],
		Attempts:     attempts,
		MaxAttempts:  maxAttempts,
		MovedAt:      movedAt,
		CreatedAt:    createdAt,
	}

	if v := m["replayed_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		e.ReplayedAt = &t
	}

	return e, nil
}
