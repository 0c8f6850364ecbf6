// Package tenant enforces multi-tenant isolation for every unit of work.
//
// A unit of work is one HTTP request or one job execution. Before any
// tenant-scoped read or write, the unit binds its tenant with [Bind];
// data-access code calls [Require] to obtain the bound tenant and fails
// closed when none is present, and [Authorize] to verify a resource
// belongs to the bound tenant. There is no "system" fallback: an unbound
// access is an authorization error, never an unscoped query.
//
// The scope rides on the context, so it is released automatically when
// the unit of work's context ends. Code that reuses a context across
// units must call [Clear] between them.
package tenant

import (
	"context"

	churnsaver "github.com/Danservfinn/churnsaver-sub010"
)

// ctxKey is the private context key type for the tenant scope.
type ctxKey struct{}

// Scope is the validated tenant binding for one unit of work.
// It is never persisted.
type Scope struct {
	// TenantID identifies the customer data partition.
	TenantID string

	// Authenticated records whether the binding came from an
	// authenticated source (signature-verified webhook, operator
	// session) rather than payload contents.
	Authenticated bool
}

// Bind attaches a validated tenant scope to the context. An empty tenant
// id fails closed with ErrTenantRequired.
func Bind(ctx context.Context, tenantID string) (context.Context, error) {
	if tenantID == "" {
		return ctx, churnsaver.ErrTenantRequired
	}
	return context.WithValue(ctx, ctxKey{}, Scope{TenantID: tenantID, Authenticated: true}), nil
}

// Clear removes any tenant scope from the context. Call it when a
// long-lived context crosses a unit-of-work boundary.
func Clear(ctx context.Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, Scope{})
}

// FromContext returns the tenant scope bound to the context, if any.
func FromContext(ctx context.Context) (Scope, bool) {
	s, ok := ctx.Value(ctxKey{}).(Scope)
	if !ok || s.TenantID == "" {
		return Scope{}, false
	}
	return s, true
}

// Require returns the bound tenant id or fails closed with
// ErrTenantRequired. All tenant-scoped data access goes through this.
func Require(ctx context.Context) (string, error) {
	s, ok := FromContext(ctx)
	if !ok {
		return "", churnsaver.ErrTenantRequired
	}
	return s.TenantID, nil
}

// Authorize verifies that a resource owned by resourceTenantID may be
// touched by the current unit of work. It fails closed when no scope is
// bound and with ErrTenantMismatch when the scope names a different
// tenant — even if the caller presented the other tenant's identifiers
// directly.
func Authorize(ctx context.Context, resourceTenantID string) error {
	bound, err := Require(ctx)
	if err != nil {
		return err
	}
	if resourceTenantID != bound {
		return churnsaver.ErrTenantMismatch
	}
	return nil
}
