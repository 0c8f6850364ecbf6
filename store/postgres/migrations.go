package postgres

// migration is one named, ordered schema change. Each statement runs
// separately; pgx's simple protocol does not allow multiple commands in
// a single Exec with parameters, and keeping them split makes partial
// failures easier to diagnose.
type migration struct {
	name       string
	statements []string
}

var migrations = []migration{
	{
		name: "001_create_events",
		statements: []string{`
			CREATE TABLE IF NOT EXISTS churnsaver_events (
				id           TEXT PRIMARY KEY,
				origin_id    TEXT NOT NULL,
				type         TEXT NOT NULL,
				tenant_id    TEXT NOT NULL DEFAULT '',
				payload      BYTEA,
				received_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				processed_at TIMESTAMPTZ
			)`, `
			CREATE UNIQUE INDEX IF NOT EXISTS idx_churnsaver_events_origin
				ON churnsaver_events (origin_id)`, `
			CREATE INDEX IF NOT EXISTS idx_churnsaver_events_tenant
				ON churnsaver_events (tenant_id, received_at)`, `
			CREATE INDEX IF NOT EXISTS idx_churnsaver_events_unprocessed
				ON churnsaver_events (type, received_at)
				WHERE processed_at IS NULL`,
		},
	},
	{
		name: "002_create_jobs",
		statements: []string{`
			CREATE TABLE IF NOT EXISTS churnsaver_jobs (
				id            TEXT PRIMARY KEY,
				name          TEXT NOT NULL,
				singleton_key TEXT NOT NULL DEFAULT '',
				queue         TEXT NOT NULL DEFAULT 'default',
				payload       BYTEA NOT NULL,
				state         TEXT NOT NULL DEFAULT 'pending',
				max_attempts  INTEGER NOT NULL DEFAULT 5,
				attempts      INTEGER NOT NULL DEFAULT 0,
				last_error    TEXT NOT NULL DEFAULT '',
				tenant_id     TEXT NOT NULL DEFAULT '',
				worker_id     TEXT NOT NULL DEFAULT '',
				timeout       BIGINT NOT NULL DEFAULT 0,
				run_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				started_at    TIMESTAMPTZ,
				completed_at  TIMESTAMPTZ,
				heartbeat_at  TIMESTAMPTZ,
				created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`, `
			CREATE UNIQUE INDEX IF NOT EXISTS idx_churnsaver_jobs_singleton
				ON churnsaver_jobs (name, singleton_key)
				WHERE singleton_key <> ''
				  AND state IN ('pending', 'running', 'retrying')`, `
			CREATE INDEX IF NOT EXISTS idx_churnsaver_jobs_claim
				ON churnsaver_jobs (queue, run_at ASC)
				WHERE state IN ('pending', 'retrying')`, `
			CREATE INDEX IF NOT EXISTS idx_churnsaver_jobs_state
				ON churnsaver_jobs (state)`, `
			CREATE INDEX IF NOT EXISTS idx_churnsaver_jobs_heartbeat
				ON churnsaver_jobs (heartbeat_at)
				WHERE state = 'running'`,
		},
	},
	{
		name: "003_create_dlq",
		statements: []string{`
			CREATE TABLE IF NOT EXISTS churnsaver_dlq (
				id            TEXT PRIMARY KEY,
				job_id        TEXT NOT NULL,
				job_name      TEXT NOT NULL,
				queue         TEXT NOT NULL,
				singleton_key TEXT NOT NULL DEFAULT '',
				tenant_id     TEXT NOT NULL DEFAULT '',
				payload       BYTEA NOT NULL,
				last_error    TEXT NOT NULL,
				attempts      INTEGER NOT NULL,
				max_attempts  INTEGER NOT NULL,
				moved_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				replayed_at   TIMESTAMPTZ,
				created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`, `
			CREATE INDEX IF NOT EXISTS idx_churnsaver_dlq_moved
				ON churnsaver_dlq (moved_at DESC)`, `
			CREATE INDEX IF NOT EXISTS idx_churnsaver_dlq_job_name
				ON churnsaver_dlq (job_name, moved_at DESC)`,
		},
	},
	{
		name: "004_create_breakers",
		statements: []string{`
			CREATE TABLE IF NOT EXISTS churnsaver_breakers (
				job_name             TEXT PRIMARY KEY,
				status               TEXT NOT NULL DEFAULT 'closed',
				consecutive_failures INTEGER NOT NULL DEFAULT 0,
				opened_at            TIMESTAMPTZ,
				probe_in_flight      BOOLEAN NOT NULL DEFAULT FALSE,
				version              BIGINT NOT NULL DEFAULT 1,
				updated_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
		},
	},
}
