package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	churnsaver "github.com/Danservfinn/churnsaver-sub010"
	"github.com/Danservfinn/churnsaver-sub010/id"
	"github.com/Danservfinn/churnsaver-sub010/job"
)

const jobColumns = `
	id, name, singleton_key, queue, payload, state,
	max_attempts, attempts, last_error, tenant_id, worker_id, timeout,
	run_at, started_at, completed_at, heartbeat_at, created_at, updated_at`

// EnqueueJob persists a new job. The partial unique index on
// (name, singleton_key) over non-terminal states makes the singleton
// check part of the insert itself, so two concurrent enqueues for the
// same key cannot both succeed.
func (s *Store) EnqueueJob(ctx context.Context, j *job.Job) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO churnsaver_jobs (`+jobColumns+`
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11, $12,
			$13, $14, $15, $16, $17, $18
		)`,
		j.ID.String(), j.Name, j.SingletonKey, j.Queue, j.Payload, string(j.State),
		j.MaxAttempts, j.Attempts, j.LastError, j.TenantID, j.WorkerID.String(),
		j.Timeout.Nanoseconds(),
		j.RunAt, j.StartedAt, j.CompletedAt, j.HeartbeatAt,
		j.CreatedAt, j.UpdatedAt,
	)
	if err != nil {
		switch uniqueViolation(err) {
		case "idx_churnsaver_jobs_singleton":
			return churnsaver.ErrSingletonExists
		case "churnsaver_jobs_pkey":
			return churnsaver.ErrJobExists
		}
		return fmt.Errorf("churnsaver/postgres: enqueue job: %w", err)
	}
	return nil
}

// ClaimJobs atomically claims up to limit eligible jobs from the given
// queues, sets them to running, and returns them. Uses SELECT FOR UPDATE
// SKIP LOCKED so that concurrent workers never receive the same job.
func (s *Store) ClaimJobs(ctx context.Context, queues []string, limit int) ([]*job.Job, error) {
	rows, err := s.pool.Query(ctx, `
		WITH claimed AS (
			UPDATE churnsaver_jobs
			SET state = 'running', started_at = NOW(), heartbeat_at = NOW(), updated_at = NOW()
			WHERE id IN (
				SELECT id FROM churnsaver_jobs
				WHERE state IN ('pending', 'retrying')
				  AND queue = ANY($1)
				  AND run_at <= NOW()
				ORDER BY run_at ASC
				FOR UPDATE SKIP LOCKED
				LIMIT $2
			)
			RETURNING `+jobColumns+`
		)
		SELECT * FROM claimed ORDER BY run_at ASC`,
		queues, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("churnsaver/postgres: claim jobs: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+jobColumns+`
		FROM churnsaver_jobs
		WHERE id = $1`,
		jobID.String(),
	)

	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, churnsaver.ErrJobNotFound
		}
		return nil, fmt.Errorf("churnsaver/postgres: get job: %w", err)
	}
	return j, nil
}

// UpdateJob persists changes to an existing job.
func (s *Store) UpdateJob(ctx context.Context, j *job.Job) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE churnsaver_jobs SET
			name = $2, singleton_key = $3, queue = $4, payload = $5,
			state = $6, max_attempts = $7, attempts = $8, last_error = $9,
			tenant_id = $10, worker_id = $11, timeout = $12,
			run_at = $13, started_at = $14, completed_at = $15, heartbeat_at = $16,
			updated_at = NOW()
		WHERE id = $1`,
		j.ID.String(), j.Name, j.SingletonKey, j.Queue, j.Payload,
		string(j.State), j.MaxAttempts, j.Attempts, j.LastError,
		j.TenantID, j.WorkerID.String(), j.Timeout.Nanoseconds(),
		j.RunAt, j.StartedAt, j.CompletedAt, j.HeartbeatAt,
	)
	if err != nil {
		return fmt.Errorf("churnsaver/postgres: update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return churnsaver.ErrJobNotFound
	}
	return nil
}

// CancelJob transitions a pending or retrying job to cancelled. The
// conditional UPDATE races cleanly with claims: if a worker claimed the
// job first, the follow-up read reports it as running.
func (s *Store) CancelJob(ctx context.Context, jobID id.JobID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE churnsaver_jobs
		SET state = 'cancelled', completed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND state IN ('pending', 'retrying')`,
		jobID.String(),
	)
	if err != nil {
		return fmt.Errorf("churnsaver/postgres: cancel job: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var state string
	err = s.pool.QueryRow(ctx,
		`SELECT state FROM churnsaver_jobs WHERE id = $1`,
		jobID.String(),
	).Scan(&state)
	if err != nil {
		if isNoRows(err) {
			return churnsaver.ErrJobNotFound
		}
		return fmt.Errorf("churnsaver/postgres: cancel job: %w", err)
	}
	if job.State(state) == job.StateRunning {
		return churnsaver.ErrJobRunning
	}
	return churnsaver.ErrInvalidState
}

// ListJobsByState returns jobs matching the given state.
func (s *Store) ListJobsByState(ctx context.Context, state job.State, opts job.ListOpts) ([]*job.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM churnsaver_jobs
		WHERE state = $1`
	args := []interface{}{string(state)}
	argIdx := 2

	if opts.Queue != "" {
		query += fmt.Sprintf(" AND queue = $%d", argIdx)
		args = append(args, opts.Queue)
		argIdx++
	}
	if opts.TenantID != "" {
		query += fmt.Sprintf(" AND tenant_id = $%d", argIdx)
		args = append(args, opts.TenantID)
		argIdx++
	}

	query += " ORDER BY created_at ASC"

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
		return nil, fmt.Errorf("churnsaver/postgres: list jobs by state: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// HeartbeatJob updates the heartbeat timestamp for a running job.
func (s *Store) HeartbeatJob(ctx context.Context, jobID id.JobID, _ id.WorkerID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE churnsaver_jobs SET heartbeat_at = NOW(), updated_at = NOW() WHERE id = $1`,
		jobID.String(),
	)
	if err != nil {
		return fmt.Errorf("churnsaver/postgres: heartbeat job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return churnsaver.ErrJobNotFound
	}
	return nil
}

// ReapStaleJobs returns running jobs whose last heartbeat is older than
// the given threshold.
func (s *Store) ReapStaleJobs(ctx context.Context, threshold time.Duration) ([]*job.Job, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+jobColumns+`
		FROM churnsaver_jobs
		WHERE state = 'running'
		  AND heartbeat_at IS NOT NULL
		  AND heartbeat_at < NOW() - $1::interval`,
		threshold.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("churnsaver/postgres: reap stale jobs: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// CountJobs returns the number of jobs matching the given options.
func (s *Store) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	query := `SELECT COUNT(*) FROM churnsaver_jobs WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if opts.Queue != "" {
		query += fmt.Sprintf(" AND queue = $%d", argIdx)
		args = append(args, opts.Queue)
		argIdx++
	}
	if opts.State != "" {
		query += fmt.Sprintf(" AND state = $%d", argIdx)
		args = append(args, string(opts.State))
	}

	var count int64
	err := s.pool.QueryRow(ctx, query, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("churnsaver/postgres: count jobs: %w", err)
	}
	return count, nil
}

// scanJob scans a single job row.
func scanJob(row pgx.Row) (*job.Job, error) {
	var (
		j         job.Job
		idStr     string
		stateStr  string
		workerStr string
		timeoutNs int64
	)
	err := row.Scan(
		&idStr, &j.Name, &j.SingletonKey, &j.Queue, &j.Payload, &stateStr,
		&j.MaxAttempts, &j.Attempts, &j.LastError, &j.TenantID, &workerStr,
		&timeoutNs,
		&j.RunAt, &j.StartedAt, &j.CompletedAt, &j.HeartbeatAt,
		&j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	j.State = job.State(stateStr)
	j.Timeout = time.Duration(timeoutNs)

	parsedID, parseErr := id.ParseJobID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("churnsaver/postgres: parse job id %q: %w", idStr, parseErr)
	}
	j.ID = parsedID

	if workerStr != "" {
		parsedWorker, workerErr := id.ParseWorkerID(workerStr)
		if workerErr == nil {
			j.WorkerID = parsedWorker
		}
	}

	return &j, nil
}

// collectJobs collects all jobs from query rows.
func collectJobs(rows pgx.Rows) ([]*job.Job, error) {
	var jobs []*job.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("churnsaver/postgres: scan job row: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("churnsaver/postgres: iterate job rows: %w", err)
	}
	return jobs, nil
}
