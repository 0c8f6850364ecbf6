// Package postgres implements the store using pgx/v5 with raw SQL.
// Features: SKIP LOCKED claims, ON CONFLICT DO NOTHING event inserts,
// a partial unique index enforcing the singleton-key invariant, and
// version-guarded breaker updates.
package postgres
