package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	churnsaver "github.com/Danservfinn/churnsaver-sub010"
	"github.com/Danservfinn/churnsaver-sub010/id"
	"github.com/Danservfinn/churnsaver-sub010/job"
)

// EnqueueJob stores the job as a Hash and adds it to the queue's Sorted
// Set scored by run time. When the job has a SingletonKey, a SETNX lock
// on churnsaver:singleton:{name}:{key} arbitrates concurrent enqueues;
// the lock is released when the job reaches a terminal state.
func (s *Store) EnqueueJob(ctx context.Context, j *job.Job) error {
	jID := j.ID.String()
	key := jobKey(jID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("churnsaver/redis: enqueue check exists: %w", err)
	}
	if exists > 0 {
		return churnsaver.ErrJobExists
	}

	if j.SingletonKey != "" {
		won, lockErr := s.client.SetNX(ctx, singletonKey(j.Name, j.SingletonKey), jID, 0).Result()
		if lockErr != nil {
			return fmt.Errorf("churnsaver/redis: enqueue singleton lock: %w", lockErr)
		}
		if !won {
			return churnsaver.ErrSingletonExists
		}
	}

	fields := jobToMap(j)

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.SAdd(ctx, jobIDsKey, jID)
	pipe.ZAdd(ctx, queueKey(j.Queue), goredis.Z{Score: runScore(j.RunAt), Member: jID})
	if _, err = pipe.Exec(ctx); err != nil {
		return fmt.Errorf("churnsaver/redis: enqueue job: %w", err)
	}
	return nil
}

// ClaimJobs atomically claims up to limit eligible jobs from the given
// queues. Eligibility is encoded in the sorted-set score (run time), so
// a ZRANGEBYSCORE up to now only returns due jobs; ZREM arbitrates
// between concurrent claimers — only the worker whose ZREM removes the
// member owns the job.
func (s *Store) ClaimJobs(ctx context.Context, queues []string, limit int) ([]*job.Job, error) {
	now := time.Now().UTC()
	var jobs []*job.Job

	for _, q := range queues {
		if len(jobs) >= limit {
			break
		}
		remaining := limit - len(jobs)
		qk := queueKey(q)

		candidates, err := s.client.ZRangeByScore(ctx, qk, &goredis.ZRangeBy{
			Min:   "-inf",
			Max:   strconv.FormatFloat(runScore(now), 'f', -1, 64),
			Count: int64(remaining * 2),
		}).Result()
		if err != nil {
			return nil, fmt.Errorf("churnsaver/redis: claim zrangebyscore: %w", err)
		}

		for _, jID := range candidates {
			if len(jobs) >= limit {
				break
			}

			removed, remErr := s.client.ZRem(ctx, qk, jID).Result()
			if remErr != nil {
				return nil, fmt.Errorf("churnsaver/redis: claim zrem: %w", remErr)
			}
			if removed == 0 {
				continue // another worker won the race
			}

			key := jobKey(jID)
			ts := now.Format(time.RFC3339Nano)
			if hsetErr := s.client.HSet(ctx, key,
				"state", string(job.StateRunning),
				"started_at", ts,
				"heartbeat_at", ts,
				"updated_at", ts,
			).Err(); hsetErr != nil {
				return nil, fmt.Errorf("churnsaver/redis: claim update: %w", hsetErr)
			}

			j, getErr := s.getJobByKey(ctx, key)
			if getErr != nil {
				return nil, getErr
			}
			jobs = append(jobs, j)
		}
	}
	return jobs, nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	return s.getJobByKey(ctx, jobKey(jobID.String()))
}

// UpdateJob persists changes to an existing job and keeps the queue
// sorted set and singleton lock in sync with the new state: a pending or
// retrying job is (re)scheduled, a terminal job releases its slot.
func (s *Store) UpdateJob(ctx context.Context, j *job.Job) error {
	jID := j.ID.String()
	key := jobKey(jID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("churnsaver/redis: update job exists: %w", err)
	}
	if exists == 0 {
		return churnsaver.ErrJobNotFound
	}

	fields := jobToMap(j)
	fields["updated_at"] = time.Now().UTC().Format(time.RFC3339Nano)

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, fields)
	// Nullable timestamps cleared in memory must be cleared in the hash too.
	if j.StartedAt == nil {
		pipe.HDel(ctx, key, "started_at")
	}
	if j.CompletedAt == nil {
		pipe.HDel(ctx, key, "completed_at")
	}
	if j.HeartbeatAt == nil {
		pipe.HDel(ctx, key, "heartbeat_at")
	}

	switch {
	case j.State == job.StatePending || j.State == job.StateRetrying:
		pipe.ZAdd(ctx, queueKey(j.Queue), goredis.Z{Score: runScore(j.RunAt), Member: jID})
	default:
		pipe.ZRem(ctx, queueKey(j.Queue), jID)
	}

	if j.State.Terminal() && j.SingletonKey != "" {
		pipe.Del(ctx, singletonKey(j.Name, j.SingletonKey))
	}

	if _, err = pipe.Exec(ctx); err != nil {
		return fmt.Errorf("churnsaver/redis: update job: %w", err)
	}
	return nil
}

// CancelJob transitions a pending or retrying job to cancelled.
func (s *Store) CancelJob(ctx context.Context, jobID id.JobID) error {
	j, err := s.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	switch {
	case j.State == job.StateRunning:
		return churnsaver.ErrJobRunning
	case j.State.Terminal():
		return churnsaver.ErrInvalidState
	}

	now := time.Now().UTC()
	j.State = job.StateCancelled
	j.CompletedAt = &now
	return s.UpdateJob(ctx, j)
}

// ListJobsByState returns jobs matching the given state.
func (s *Store) ListJobsByState(ctx context.Context, state job.State, opts job.ListOpts) ([]*job.Job, error) {
	ids, err := s.client.SMembers(ctx, jobIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("churnsaver/redis: list jobs smembers: %w", err)
	}

	jobs := make([]*job.Job, 0, len(ids))
	for _, jID := range ids {
		j, getErr := s.getJobByKey(ctx, jobKey(jID))
		if getErr != nil {
			continue // skip missing
		}
		if j.State != state {
			continue
		}
		if opts.Queue != "" && j.Queue != opts.Queue {
			continue
		}
		if opts.TenantID != "" && j.TenantID != opts.TenantID {
			continue
		}
		jobs = append(jobs, j)
	}

	return paginate(jobs, opts.Offset, opts.Limit), nil
}

// HeartbeatJob updates the heartbeat timestamp for a running job.
func (s *Store) HeartbeatJob(ctx context.Context, jobID id.JobID, workerID id.WorkerID) error {
	key := jobKey(jobID.String())
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("churnsaver/redis: heartbeat exists: %w", err)
	}
	if exists == 0 {
		return churnsaver.ErrJobNotFound
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	err = s.client.HSet(ctx, key,
		"heartbeat_at", now,
		"worker_id", workerID.String(),
		"updated_at", now,
	).Err()
	if err != nil {
		return fmt.Errorf("churnsaver/redis: heartbeat job: %w", err)
	}
	return nil
}

// ReapStaleJobs returns running jobs whose last heartbeat is older than
// the threshold.
func (s *Store) ReapStaleJobs(ctx context.Context, threshold time.Duration) ([]*job.Job, error) {
	cutoff := time.Now().UTC().Add(-threshold)

	ids, err := s.client.SMembers(ctx, jobIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("churnsaver/redis: reap smembers: %w", err)
	}

	var stale []*job.Job
	for _, jID := range ids {
		j, getErr := s.getJobByKey(ctx, jobKey(jID))
		if getErr != nil {
			continue
		}
		if j.State != job.StateRunning {
			continue
		}
		if j.HeartbeatAt != nil && j.HeartbeatAt.Before(cutoff) {
			stale = append(stale, j)
		}
	}
	return stale, nil
}

// CountJobs returns the number of jobs matching the given options.
func (s *Store) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	ids, err := s.client.SMembers(ctx, jobIDsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("churnsaver/redis: count smembers: %w", err)
	}

	var count int64
	for _, jID := range ids {
		j, getErr := s.getJobByKey(ctx, jobKey(jID))
		if getErr != nil {
			continue
		}
		if opts.State != "" && j.State != opts.State {
			continue
		}
		if opts.Queue != "" && j.Queue != opts.Queue {
			continue
		}
		count++
	}
	return count, nil
}

// ── helpers ──

// runScore encodes a run time as a sorted-set score in unix milliseconds.
// Lower score = due earlier.
func runScore(runAt time.Time) float64 {
	return float64(runAt.UnixMilli())
}

func jobToMap(j *job.Job) map[string]interface{} {
	m := map[string]interface{}{
		"id":            j.ID.String(),
		"name":          j.Name,
		"singleton_key": j.SingletonKey,
		"queue":         j.Queue,
		"payload":       string(j.Payload),
		"state":         string(j.State),
		"max_attempts":  strconv.Itoa(j.MaxAttempts),
		"attempts":      strconv.Itoa(j.Attempts),
		"last_error":    j.LastError,
		"tenant_id":     j.TenantID,
		"worker_id":     j.WorkerID.String(),
		"run_at":        j.RunAt.Format(time.RFC3339Nano),
		"timeout":       strconv.FormatInt(int64(j.Timeout), 10),
		"created_at":    j.CreatedAt.Format(time.RFC3339Nano),
		"updated_at":    j.UpdatedAt.Format(time.RFC3339Nano),
	}
	if j.StartedAt != nil {
		m["started_at"] = j.StartedAt.Format(time.RFC3339Nano)
	}
	if j.CompletedAt != nil {
		m["completed_at"] = j.CompletedAt.Format(time.RFC3339Nano)
	}
	if j.HeartbeatAt != nil {
		m["heartbeat_at"] = j.HeartbeatAt.Format(time.RFC3339Nano)
	}
	return m
}

func (s *Store) getJobByKey(ctx context.Context, key string) (*job.Job, error) {
	vals, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, churnsaver.ErrJobNotFound
		}
		return nil, fmt.Errorf("churnsaver/redis: get job: %w", err)
	}
	if len(vals) == 0 {
		return nil, churnsaver.ErrJobNotFound
	}
	return mapToJob(vals)
}

func mapToJob(m map[string]string) (*job.Job, error) {
	jID, err := id.ParseJobID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("churnsaver/redis: parse job id: %w", err)
	}

	maxAttempts, _ := strconv.Atoi(m["max_attempts"])     //nolint:errcheck // best-effort parse from trusted Redis data
	attempts, _ := strconv.Atoi(m["attempts"])            //nolint:errcheck // best-effort parse from trusted Redis data
	timeout, _ := strconv.ParseInt(m["timeout"], 10, 64)  //nolint:errcheck // best-effort parse from trusted Redis data
	runAt, _ := time.Parse(time.RFC3339Nano, m["run_at"]) //nolint:errcheck // best-effort parse from trusted Redis data

	createdAt, _ := time.Parse(time.RFC3339Nano, m["created_at"]) //nolint:errcheck // best-effort parse from trusted Redis data
	updatedAt, _ := time.Parse(time.RFC3339Nano, m["updated_at"]) //nolint:errcheck // best-effort parse from trusted Redis data

	j := &job.Job{
		Entity: churnsaver.Entity{
			CreatedAt: createdAt,
			UpdatedAt: updatedAt,
		},
		ID:           jID,
		Name:         m["name"],
		SingletonKey: m["singleton_key"],
		Queue:        m["queue"],
		Payload:      []byte(m["payload"]),
		State:        job.State(m["state"]),
		MaxAttempts:  maxAttempts,
		Attempts:     attempts,
		LastError:    m["last_error"],
		TenantID:     m["tenant_id"],
		RunAt:        runAt,
		Timeout:      time.Duration(timeout),
	}

	if wid := m["worker_id"]; wid != "" {
		j.WorkerID, _ = id.ParseWorkerID(wid) //nolint:errcheck // best-effort parse from trusted Redis data
	}
	if v := m["started_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		j.StartedAt = &t
	}
	if v := m["completed_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		j.CompletedAt = &t
	}
	if v := m["heartbeat_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		j.HeartbeatAt = &t
	}

	return j, nil
}
