package redis

// Redis key naming conventions for churnsaver data.
// All keys are prefixed with "churnsaver:" to avoid collisions.

const keyPrefix = "churnsaver:"

// ── Event keys ──

// eventKey returns the Hash key for an event: churnsaver:event:{originID}
func eventKey(originID string) string { return keyPrefix + "event:" + originID }

// eventOriginsKey is the Set tracking all origin ids for enumeration.
const eventOriginsKey = keyPrefix + "event_origins"

// eventIDsKey is the Hash mapping internal event ids to origin ids.
const eventIDsKey = keyPrefix + "event_ids"

// ── Job keys ──

// jobKey returns the Hash key for a job: churnsaver:job:{id}
func jobKey(id string) string { return keyPrefix + "job:" + id }

// queueKey returns the Sorted Set key for a queue, scored by run_at:
// churnsaver:queue:{name}
func queueKey(name string) string { return keyPrefix + "queue:" + name }

// jobIDsKey is the Set tracking all job IDs for enumeration.
const jobIDsKey = keyPrefix + "job_ids"

// singletonKey returns the lock key guarding one (name, singleton key)
// slot: churnsaver:singleton:{name}:{key}. Held while a non-terminal job
// occupies the slot.
func singletonKey(name, key string) string {
	return keyPrefix + "singleton:" + name + ":" + key
}

// ── DLQ keys ──

// dlqKey returns the Hash key for a dead letter entry: churnsaver:dlq:{id}
func dlqKey(id string) string { return keyPrefix + "dlq:" + id }

// dlqByTimeKey is the Sorted Set of entry IDs scored by moved_at, used
// for newest-first listing and time-bounded purges.
const dlqByTimeKey = keyPrefix + "dlq_by_time"

// ── Breaker keys ──

// breakerKey returns the Hash key for a breaker: churnsaver:breaker:{jobName}
func breakerKey(jobName string) string { return keyPrefix + "breaker:" + jobName }

// breakerNamesKey is the Set tracking all breaker job names.
const breakerNamesKey = keyPrefix + "breaker_names"
