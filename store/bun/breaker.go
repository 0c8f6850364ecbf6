package bunstore

import (
	"context"
	"fmt"
	"time"

	churnsaver "github.com/Danservfinn/churnsaver-sub010"
	"github.com/Danservfinn/churnsaver-sub010/breaker"
)

// GetBreaker returns the persisted state for the given job name.
func (s *Store) GetBreaker(ctx context.Context, jobName string) (*breaker.State, error) {
	m := new(breakerModel)
	err := s.db.NewSelect().Model(m).
		Where("job_name = ?", jobName).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, churnsaver.ErrBreakerNotFound
		}
		return nil, fmt.Errorf("churnsaver/bun: get breaker: %w", err)
	}
	return fromBreakerModel(m), nil
}

// SwapBreaker persists st if the stored version still equals st.Version.
// The version guard in the UPDATE's WHERE clause makes the compare and
// the write one atomic statement.
func (s *Store) SwapBreaker(ctx context.Context, st *breaker.State) error {
	if st.Version == 0 {
		m := &breakerModel{
			JobName:             st.JobName,
			Status:              string(st.Status),
			ConsecutiveFailures: st.ConsecutiveFailures,
			OpenedAt:            st.OpenedAt,
			ProbeInFlight:       st.ProbeInFlight,
			Version:             1,
			UpdatedAt:           time.Now().UTC(),
		}
		_, err := s.db.NewInsert().Model(m).Exec(ctx)
		if err != nil {
			if uniqueViolation(err) != "" {
				return churnsaver.ErrBreakerConflict
			}
			return fmt.Errorf("churnsaver/bun: insert breaker: %w", err)
		}
		return nil
	}

	res, err := s.db.NewUpdate().
		TableExpr("churnsaver_breakers").
		Set("status = ?", string(st.Status)).
		Set("consecutive_failures = ?", st.ConsecutiveFailures).
		Set("opened_at = ?", st.OpenedAt).
		Set("probe_in_flight = ?", st.ProbeInFlight).
		Set("version = version + 1").
		Set("updated_at = NOW()").
		Where("job_name = ?", st.JobName).
		Where("version = ?", st.Version).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("churnsaver/bun: swap breaker: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return churnsaver.ErrBreakerConflict
	}
	return nil
}

// ListBreakers returns all persisted breaker states.
func (s *Store) ListBreakers(ctx context.Context) ([]*breaker.State, error) {
	var models []breakerModel
	err := s.db.NewSelect().Model(&models).
		Order("job_name ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("churnsaver/bun: list breakers: %w", err)
	}

	states := make([]*breaker.State, 0, len(models))
	for i := range models {
		states = append(states, fromBreakerModel(&models[i]))
	}
	return states, nil
}
