package redis

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	churnsaver "github.com/Danservfinn/churnsaver-sub010"
	"github.com/Danservfinn/churnsaver-sub010/breaker"
)

// swapBreakerScript is the Lua compare-and-swap for breaker state. The
// version check, the write, and the name index update happen inside a
// single script, which Redis executes atomically. A missing hash counts
// as version 0, so the same script handles both insert and update.
var swapBreakerScript = goredis.NewScript(`
local current = tonumber(redis.call('HGET', KEYS[1], 'version') or '0')
if current ~= tonumber(ARGV[1]) then
	return 0
end
redis.call('HSET', KEYS[1],
	'job_name', ARGV[2],
	'status', ARGV[3],
	'consecutive_failures', ARGV[4],
	'probe_in_flight', ARGV[5],
	'version', tonumber(ARGV[1]) + 1,
	'updated_at', ARGV[6])
if ARGV[7] == '' then
	redis.call('HDEL', KEYS[1], 'opened_at')
else
	redis.call('HSET', KEYS[1], 'opened_at', ARGV[7])
end
redis.call('SADD', KEYS[2], ARGV[2])
return 1
`)

// GetBreaker returns the persisted state for the given job name.
func (s *Store) GetBreaker(ctx context.Context, jobName string) (*breaker.State, error) {
	vals, err := s.client.HGetAll(ctx, breakerKey(jobName)).Result()
	if err != nil {
		return nil, fmt.Errorf("churnsaver/redis: get breaker: %w", err)
	}
	if len(vals) == 0 {
		return nil, churnsaver.ErrBreakerNotFound
	}
	return mapToBreaker(vals), nil
}

// SwapBreaker persists st if the stored version still equals st.Version.
func (s *Store) SwapBreaker(ctx context.Context, st *breaker.State) error {
	openedAt := ""
	if st.OpenedAt != nil {
		openedAt = st.OpenedAt.Format(time.RFC3339Nano)
	}

	ok, err := swapBreakerScript.Run(ctx, s.client,
		[]string{breakerKey(st.JobName), breakerNamesKey},
		st.Version,
		st.JobName,
		string(st.Status),
		st.ConsecutiveFailures,
		strconv.FormatBool(st.ProbeInFlight),
		time.Now().UTC().Format(time.RFC3339Nano),
		openedAt,
	).Int64()
	if err != nil {
		return fmt.Errorf("churnsaver/redis: swap breaker: %w", err)
	}
	if ok == 0 {
		return churnsaver.ErrBreakerConflict
	}
	return nil
}

// ListBreakers returns all persisted breaker states.
func (s *Store) ListBreakers(ctx context.Context) ([]*breaker.State, error) {
	names, err := s.client.SMembers(ctx, breakerNamesKey).Result()
	if err != nil {
		return nil, fmt.Errorf("churnsaver/redis: list breakers: %w", err)
	}

	states := make([]*breaker.State, 0, len(names))
	for _, name := range names {
		vals, getErr := s.client.HGetAll(ctx, breakerKey(name)).Result()
		if getErr != nil || len(vals) == 0 {
			continue
		}
		states = append(states, mapToBreaker(vals))
	}

	sort.Slice(states, func(i, k int) bool {
		return states[i].JobName < states[k].JobName
	})

	return states, nil
}

// ── helpers ──

func mapToBreaker(m map[string]string) *breaker.State {
	failures, _ := strconv.Atoi(m["consecutive_failures"])        //nolint:errcheck // best-effort parse from trusted Redis data
	version, _ := strconv.ParseInt(m["version"], 10, 64)          //nolint:errcheck // best-effort parse from trusted Redis data
	probe, _ := strconv.ParseBool(m["probe_in_flight"])           //nolint:errcheck // best-effort parse from trusted Redis data
	updatedAt, _ := time.Parse(time.RFC3339Nano, m["updated_at"]) //nolint:errcheck // best-effort parse from trusted Redis data

	st := &breaker.State{
		JobName:             m["job_name"],
		Status:              breaker.Status(m["status"]),
		ConsecutiveFailures: failures,
		ProbeInFlight:       probe,
		Version:             version,
		UpdatedAt:           updatedAt,
	}

	if v := m["opened_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		st.OpenedAt = &t
	}

	return st
}
