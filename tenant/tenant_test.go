package tenant_test

import (
	"context"
	"errors"
	"testing"

	churnsaver "github.com/Danservfinn/churnsaver-sub010"
	"github.com/Danservfinn/churnsaver-sub010/tenant"
)

func TestBindAndRequire(t *testing.T) {
	ctx, err := tenant.Bind(context.Background(), "acct_123")
	if err != nil {
		t.Fatalf("bind failed: %v", err)
	}

	got, err := tenant.Require(ctx)
	if err != nil {
		t.Fatalf("require failed: %v", err)
	}
	if got != "acct_123" {
		t.Errorf("Require() = %q, want %q", got, "acct_123")
	}
}

func TestBindEmptyTenantFailsClosed(t *testing.T) {
	_, err := tenant.Bind(context.Background(), "")
	if !errors.Is(err, churnsaver.ErrTenantRequired) {
		t.Errorf("expected ErrTenantRequired, got %v", err)
	}
}

func TestRequireWithoutScopeFailsClosed(t *testing.T) {
	_, err := tenant.Require(context.Background())
	if !errors.Is(err, churnsaver.ErrTenantRequired) {
		t.Errorf("expected ErrTenantRequired, got %v", err)
	}
}

func TestAuthorize(t *testing.T) {
	ctx, _ := tenant.Bind(context.Background(), "acct_a")

	if err := tenant.Authorize(ctx, "acct_a"); err != nil {
		t.Errorf("same-tenant access should be allowed, got %v", err)
	}

	// Access to another tenant's resource is rejected even though the
	// caller holds that tenant's identifier.
	err := tenant.Authorize(ctx, "acct_b")
	if !errors.Is(err, churnsaver.ErrTenantMismatch) {
		t.Errorf("expected ErrTenantMismatch, got %v", err)
	}
}

func TestAuthorizeWithoutScope(t *testing.T) {
	err := tenant.Authorize(context.Background(), "acct_a")
	if !errors.Is(err, churnsaver.ErrTenantRequired) {
		t.Errorf("expected ErrTenantRequired, got %v", err)
	}
}

func TestClear(t *testing.T) {
	ctx, _ := tenant.Bind(context.Background(), "acct_123")
	ctx = tenant.Clear(ctx)

	if _, ok := tenant.FromContext(ctx); ok {
		t.Error("expected no scope after Clear")
	}
	if _, err := tenant.Require(ctx); !errors.Is(err, churnsaver.ErrTenantRequired) {
		t.Errorf("expected ErrTenantRequired after Clear, got %v", err)
	}
}

func TestRebind(t *testing.T) {
	ctx, _ := tenant.Bind(context.Background(), "acct_a")
	ctx, err := tenant.Bind(ctx, "acct_b")
	if err != nil {
		t.Fatalf("rebind failed: %v", err)
	}

	got, _ := tenant.Require(ctx)
	if got != "acct_b" {
		t.Errorf("Require() after rebind = %q, want %q", got, "acct_b")
	}
}
