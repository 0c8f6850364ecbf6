package bunstore

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun/dialect/pgdialect"

	churnsaver "github.com/Danservfinn/churnsaver-sub010"
	"github.com/Danservfinn/churnsaver-sub010/id"
	"github.com/Danservfinn/churnsaver-sub010/job"
)

// EnqueueJob persists a new job. The partial unique index on
// (name, singleton_key) over non-terminal states enforces the singleton
// invariant inside the insert itself.
func (s *Store) EnqueueJob(ctx context.Context, j *job.Job) error {
	m := toJobModel(j)
	_, err := s.db.NewInsert().Model(m).Exec(ctx)
	if err != nil {
		switch uniqueViolation(err) {
		case "idx_churnsaver_jobs_singleton":
			return churnsaver.ErrSingletonExists
		case "churnsaver_jobs_pkey":
			return churnsaver.ErrJobExists
		}
		return fmt.Errorf("churnsaver/bun: enqueue job: %w", err)
	}
	return nil
}

// ClaimJobs atomically claims up to limit eligible jobs from the given
// queues, sets them to running, and returns them. Uses SELECT FOR UPDATE
// SKIP LOCKED via raw SQL.
func (s *Store) ClaimJobs(ctx context.Context, queues []string, limit int) ([]*job.Job, error) {
	var models []jobModel
	_, err := s.db.NewRaw(`
		WITH claimed AS (
			UPDATE churnsaver_jobs
			SET state = 'running', started_at = NOW(), heartbeat_at = NOW(), updated_at = NOW()
			WHERE id IN (
				SELECT id FROM churnsaver_jobs
				WHERE state IN ('pending', 'retrying')
				  AND queue = ANY(?0)
				  AND run_at <= NOW()
				ORDER BY run_at ASC
				FOR UPDATE SKIP LOCKED
				LIMIT ?1
			)
			RETURNING *
		)
		SELECT * FROM claimed ORDER BY run_at ASC`,
		pgdialect.Array(queues), limit,
	).Exec(ctx, &models)
	if err != nil {
		return nil, fmt.Errorf("churnsaver/bun: claim jobs: %w", err)
	}

	jobs := make([]*job.Job, 0, len(models))
	for i := range models {
		j, convErr := fromJobModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("churnsaver/bun: claim convert: %w", convErr)
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	m := new(jobModel)
	err := s.db.NewSelect().Model(m).
		Where("id = ?", jobID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, churnsaver.ErrJobNotFound
		}
		return nil, fmt.Errorf("churnsaver/bun: get job: %w", err)
	}
	return fromJobModel(m)
}

// UpdateJob persists changes to an existing job.
func (s *Store) UpdateJob(ctx context.Context, j *job.Job) error {
	m := toJobModel(j)
	m.UpdatedAt = time.Now().UTC()
	res, err := s.db.NewUpdate().Model(m).WherePK().Exec(ctx)
	if err != nil {
		return fmt.Errorf("churnsaver/bun: update job: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return churnsaver.ErrJobNotFound
	}
	return nil
}

// CancelJob transitions a pending or retrying job to cancelled.
func (s *Store) CancelJob(ctx context.Context, jobID id.JobID) error {
	res, err := s.db.NewUpdate().
		TableExpr("churnsaver_jobs").
		Set("state = 'cancelled'").
		Set("completed_at = NOW()").
		Set("updated_at = NOW()").
		Where("id = ?", jobID.String()).
		Where("state IN ('pending', 'retrying')").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("churnsaver/bun: cancel job: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 1 {
		return nil
	}

	var state string
	err = s.db.NewSelect().
		TableExpr("churnsaver_jobs").
		Column("state").
		Where("id = ?", jobID.String()).
		Scan(ctx, &state)
	if err != nil {
		if isNoRows(err) {
			return churnsaver.ErrJobNotFound
		}
		return fmt.Errorf("churnsaver/bun: cancel job: %w", err)
	}
	if job.State(state) == job.StateRunning {
		return churnsaver.ErrJobRunning
	}
	return churnsaver.ErrInvalidState
}

// ListJobsByState returns jobs matching the given state.
func (s *Store) ListJobsByState(ctx context.Context, state job.State, opts job.ListOpts) ([]*job.Job, error) {
	var models []jobModel
	q := s.db.NewSelect().Model(&models).
		Where("state = ?", string(state))

	if opts.Queue != "" {
		q = q.Where("queue = ?", opts.Queue)
	}
	if opts.TenantID != "" {
		q = q.Where("tenant_id = ?", opts.TenantID)
	}

	q = q.Order("created_at ASC")

	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("churnsaver/bun: list jobs by state: %w", err)
	}

	jobs := make([]*job.Job, 0, len(models))
	for i := range models {
		j, convErr := fromJobModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("churnsaver/bun: list jobs convert: %w", convErr)
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// HeartbeatJob updates the heartbeat timestamp for a running job.
func (s *Store) HeartbeatJob(ctx context.Context, jobID id.JobID, _ id.WorkerID) error {
	res, err := s.db.NewUpdate().
		TableExpr("churnsaver_jobs").
		Set("heartbeat_at = NOW()").
		Set("updated_at = NOW()").
		Where("id = ?", jobID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("churnsaver/bun: heartbeat job: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return churnsaver.ErrJobNotFound
	}
	return nil
}

// ReapStaleJobs returns running jobs whose last heartbeat is older than
// the given threshold.
func (s *Store) ReapStaleJobs(ctx context.Context, threshold time.Duration) ([]*job.Job, error) {
	var models []jobModel
	err := s.db.NewSelect().Model(&models).
		Where("state = 'running'").
		Where("heartbeat_at IS NOT NULL").
		Where("heartbeat_at < NOW() - ?::interval", threshold.String()).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("churnsaver/bun: reap stale jobs: %w", err)
	}

	jobs := make([]*job.Job, 0, len(models))
	for i := range models {
		j, convErr := fromJobModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("churnsaver/bun: reap stale convert: %w", convErr)
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// CountJobs returns the number of jobs matching the given options.
func (s *Store) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	q := s.db.NewSelect().TableExpr("churnsaver_jobs")

	if opts.Queue != "" {
		q = q.Where("queue = ?", opts.Queue)
	}
	if opts.State != "" {
		q = q.Where("state = ?", string(opts.State))
	}

	count, err := q.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("churnsaver/bun: count jobs: %w", err)
	}
	return int64(count), nil
}
