package bunstore

import (
	"context"
	"fmt"
	"time"

	churnsaver "github.com/Danservfinn/churnsaver-sub010"
	"github.com/Danservfinn/churnsaver-sub010/dlq"
	"github.com/Danservfinn/churnsaver-sub010/id"
)

// PushDLQ appends a terminally failed job entry.
func (s *Store) PushDLQ(ctx context.Context, entry *dlq.Entry) error {
	m := toDLQModel(entry)
	_, err := s.db.NewInsert().Model(m).Exec(ctx)
	if err != nil {
		return fmt.Errorf("churnsaver/bun: push dlq: %w", err)
	}
	return nil
}

// ListDLQ returns entries matching the given options, newest first.
func (s *Store) ListDLQ(ctx context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	var models []dlqEntryModel
	q := s.db.NewSelect().Model(&models)

	if opts.Queue != "" {
		q = q.Where("queue = ?", opts.Queue)
	}
	if opts.JobName != "" {
		q = q.Where("job_name = ?", opts.JobName)
	}
	if opts.TenantID != "" {
		q = q.Where("tenant_id = ?", opts.TenantID)
	}
	if !opts.Since.IsZero() {
		q = q.Where("moved_at >= ?", opts.Since)
	}
	if !opts.Until.IsZero() {
		q = q.Where("moved_at < ?", opts.Until)
	}

	q = q.Order("moved_at DESC")

	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("churnsaver/bun: list dlq: %w", err)
	}

	entries := make([]*dlq.Entry, 0, len(models))
	for i := range models {
		e, convErr := fromDLQModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("churnsaver/bun: list dlq convert: %w", convErr)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// GetDLQ retrieves an entry by ID.
func (s *Store) GetDLQ(ctx context.Context, entryID id.DLQID) (*dlq.Entry, error) {
	m := new(dlqEntryModel)
	err := s.db.NewSelect().Model(m).
		Where("id = ?", entryID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, churnsaver.ErrDLQNotFound
		}
		return nil, fmt.Errorf("churnsaver/bun: get dlq: %w", err)
	}
	return fromDLQModel(m)
}

// MarkReplayed sets ReplayedAt on an entry.
func (s *Store) MarkReplayed(ctx context.Context, entryID id.DLQID) error {
	res, err := s.db.NewUpdate().
		TableExpr("churnsaver_dlq").
		Set("replayed_at = NOW()").
		Where("id = ?", entryID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("churnsaver/bun: mark replayed: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return churnsaver.ErrDLQNotFound
	}
	return nil
}

// PurgeDLQ removes entries with MovedAt before the given time.
// Returns the number of entries removed.
func (s *Store) PurgeDLQ(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.NewDelete().
		TableExpr("churnsaver_dlq").
		Where("moved_at < ?", before).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("churnsaver/bun: purge dlq: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	return rows, nil
}

// CountDLQ returns the total number of entries.
func (s *Store) CountDLQ(ctx context.Context) (int64, error) {
	count, err := s.db.NewSelect().TableExpr("churnsaver_dlq").Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("churnsaver/bun: count dlq: %w", err)
	}
	return int64(count), nil
}
