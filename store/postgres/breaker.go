package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	churnsaver "github.com/Danservfinn/churnsaver-sub010"
	"github.com/Danservfinn/churnsaver-sub010/breaker"
)

const breakerColumns = `
	job_name, status, consecutive_failures, opened_at,
	probe_in_flight, version, updated_at`

// GetBreaker returns the persisted state for the given job name.
func (s *Store) GetBreaker(ctx context.Context, jobName string) (*breaker.State, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+breakerColumns+`
		FROM churnsaver_breakers
		WHERE job_name = $1`,
		jobName,
	)

	st, err := scanBreaker(row)
	if err != nil {
		if isNoRows(err) {
			return nil, churnsaver.ErrBreakerNotFound
		}
		return nil, fmt.Errorf("churnsaver/postgres: get breaker: %w", err)
	}
	return st, nil
}

// SwapBreaker persists st if the stored version still equals st.Version.
// The version guard is in the UPDATE's WHERE clause, so the compare and
// the write are a single atomic statement; a lost race affects zero rows
// and surfaces as churnsaver.ErrBreakerConflict.
func (s *Store) SwapBreaker(ctx context.Context, st *breaker.State) error {
	if st.Version == 0 {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO churnsaver_breakers (
				job_name, status, consecutive_failures, opened_at,
				probe_in_flight, version, updated_at
			) VALUES ($1, $2, $3, $4, $5, 1, NOW())`,
			st.JobName, string(st.Status), st.ConsecutiveFailures,
			st.OpenedAt, st.ProbeInFlight,
		)
		if err != nil {
			if uniqueViolation(err) != "" {
				return churnsaver.ErrBreakerConflict
			}
			return fmt.Errorf("churnsaver/postgres: insert breaker: %w", err)
		}
		return nil
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE churnsaver_breakers SET
			status = $2, consecutive_failures = $3, opened_at = $4,
			probe_in_flight = $5, version = version + 1, updated_at = NOW()
		WHERE job_name = $1 AND version = $6`,
		st.JobName, string(st.Status), st.ConsecutiveFailures,
		st.OpenedAt, st.ProbeInFlight, st.Version,
	)
	if err != nil {
		return fmt.Errorf("churnsaver/postgres: swap breaker: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return churnsaver.ErrBreakerConflict
	}
	return nil
}

// ListBreakers returns all persisted breaker states.
func (s *Store) ListBreakers(ctx context.Context) ([]*breaker.State, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+breakerColumns+`
		FROM churnsaver_breakers
		ORDER BY job_name ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("churnsaver/postgres: list breakers: %w", err)
	}
	defer rows.Close()

	var states []*breaker.State
	for rows.Next() {
		st, scanErr := scanBreaker(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("churnsaver/postgres: scan breaker row: %w", scanErr)
		}
		states = append(states, st)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("churnsaver/postgres: iterate breaker rows: %w", err)
	}
	return states, nil
}

// scanBreaker scans a single breaker state row.
func scanBreaker(row pgx.Row) (*breaker.State, error) {
	var (
		st        breaker.State
		statusStr string
	)
	err := row.Scan(
		&st.JobName, &statusStr, &st.ConsecutiveFailures, &st.OpenedAt,
		&st.ProbeInFlight, &st.Version, &st.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	st.Status = breaker.Status(statusStr)
	return &st, nil
}
