package breaker_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/Danservfinn/churnsaver-sub010/breaker"
	"github.com/Danservfinn/churnsaver-sub010/store/memory"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func setupRegistry(t *testing.T, threshold int, reset time.Duration) (*breaker.Registry, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	reg := breaker.NewRegistry(memory.New(), slog.Default(),
		breaker.WithConfig(breaker.Config{FailureThreshold: threshold, ResetTimeout: reset}),
		breaker.WithClock(clock.Now),
	)
	return reg, clock
}

func TestRegistry_ClosedAllowsClaims(t *testing.T) {
	reg, _ := setupRegistry(t, 5, 30*time.Second)

	allowed, probe, err := reg.Allow(context.Background(), "send_reminder")
	if err != nil {
		t.Fatalf("allow error: %v", err)
	}
	if !allowed || probe {
		t.Errorf("Allow() = (%v, %v), want (true, false)", allowed, probe)
	}
}

func TestRegistry_OpensAtThreshold(t *testing.T) {
	reg, _ := setupRegistry(t, 5, 30*time.Second)
	ctx := context.Background()

	for range 5 {
		if err := reg.RecordFailure(ctx, "send_reminder", false); err != nil {
			t.Fatalf("record failure: %v", err)
		}
	}

	st, err := reg.Status(ctx, "send_reminder")
	if err != nil {
		t.Fatalf("status error: %v", err)
	}
	if st != breaker.StatusOpen {
		t.Fatalf("status = %q, want open", st)
	}

	allowed, _, err := reg.Allow(ctx, "send_reminder")
	if err != nil {
		t.Fatalf("allow error: %v", err)
	}
	if allowed {
		t.Error("open breaker should reject claims")
	}
}

func TestRegistry_SuccessResetsFailureCount(t *testing.T) {
	reg, _ := setupRegistry(t, 3, 30*time.Second)
	ctx := context.Background()

	// Two failures, a success, then two more failures: the breaker must
	// stay closed because the failures were not consecutive.
	reg.RecordFailure(ctx, "send_reminder", false)
	reg.RecordFailure(ctx, "send_reminder", false)
	reg.RecordSuccess(ctx, "send_reminder", false)
	reg.RecordFailure(ctx, "send_reminder", false)
	reg.RecordFailure(ctx, "send_reminder", false)

	st, _ := reg.Status(ctx, "send_reminder")
	if st != breaker.StatusClosed {
		t.Errorf("status = %q, want closed", st)
	}
}

func TestRegistry_ExactlyOneProbeAfterReset(t *testing.T) {
	reg, clock := setupRegistry(t, 2, 30*time.Second)
	ctx := context.Background()

	reg.RecordFailure(ctx, "send_reminder", false)
	reg.RecordFailure(ctx, "send_reminder", false)

	// Before the reset window: still rejected.
	clock.Advance(10 * time.Second)
	if allowed, _, _ := reg.Allow(ctx, "send_reminder"); allowed {
		t.Fatal("claim allowed before reset timeout")
	}

	// After the window: exactly one probe gets through.
	clock.Advance(25 * time.Second)
	allowed, probe, err := reg.Allow(ctx, "send_reminder")
	if err != nil {
		t.Fatalf("allow error: %v", err)
	}
	if !allowed || !probe {
		t.Fatalf("Allow() = (%v, %v), want probe claim", allowed, probe)
	}

	if again, _, _ := reg.Allow(ctx, "send_reminder"); again {
		t.Error("second claim allowed while probe in flight")
	}
}

func TestRegistry_ProbeSuccessCloses(t *testing.T) {
	reg, clock := setupRegistry(t, 2, 30*time.Second)
	ctx := context.Background()

	reg.RecordFailure(ctx, "send_reminder", false)
	reg.RecordFailure(ctx, "send_reminder", false)
	clock.Advance(31 * time.Second)

	_, probe, _ := reg.Allow(ctx, "send_reminder")
	if !probe {
		t.Fatal("expected probe claim")
	}
	if err := reg.RecordSuccess(ctx, "send_reminder", true); err != nil {
		t.Fatalf("record success: %v", err)
	}

	st, _ := reg.Status(ctx, "send_reminder")
	if st != breaker.StatusClosed {
		t.Fatalf("status = %q, want closed after successful probe", st)
	}
	if allowed, _, _ := reg.Allow(ctx, "send_reminder"); !allowed {
		t.Error("closed breaker should allow claims")
	}
}

func TestRegistry_ProbeFailureReopens(t *testing.T) {
	reg, clock := setupRegistry(t, 2, 30*time.Second)
	ctx := context.Background()

	reg.RecordFailure(ctx, "send_reminder", false)
	reg.RecordFailure(ctx, "send_reminder", false)
	clock.Advance(31 * time.Second)

	_, probe, _ := reg.Allow(ctx, "send_reminder")
	if !probe {
		t.Fatal("expected probe claim")
	}
	reg.RecordFailure(ctx, "send_reminder", true)

	st, _ := reg.Status(ctx, "send_reminder")
	if st != breaker.StatusOpen {
		t.Fatalf("status = %q, want open after failed probe", st)
	}

	// The reset timer restarted: claims stay rejected inside the window
	// and a new probe appears after it.
	clock.Advance(10 * time.Second)
	if allowed, _, _ := reg.Allow(ctx, "send_reminder"); allowed {
		t.Error("claim allowed inside restarted reset window")
	}
	clock.Advance(25 * time.Second)
	if allowed, probe, _ := reg.Allow(ctx, "send_reminder"); !allowed || !probe {
		t.Error("expected a fresh probe after restarted window")
	}
}

func TestRegistry_AbandonedProbeSlotIsReclaimed(t *testing.T) {
	reg, clock := setupRegistry(t, 2, 30*time.Second)
	ctx := context.Background()

	reg.RecordFailure(ctx, "send_reminder", false)
	reg.RecordFailure(ctx, "send_reminder", false)
	clock.Advance(31 * time.Second)

	// A worker claims the probe and then dies without ever reporting the
	// outcome.
	allowed, probe, err := reg.Allow(ctx, "send_reminder")
	if err != nil {
		t.Fatalf("allow error: %v", err)
	}
	if !allowed || !probe {
		t.Fatalf("Allow() = (%v, %v), want probe claim", allowed, probe)
	}

	// Inside the reset window the claim is still considered live.
	clock.Advance(10 * time.Second)
	if again, _, _ := reg.Allow(ctx, "send_reminder"); again {
		t.Fatal("claim allowed while probe still within its window")
	}

	// Past a full reset timeout with no settlement the slot is forfeit
	// and a new worker gets the probe.
	clock.Advance(25 * time.Second)
	allowed, probe, err = reg.Allow(ctx, "send_reminder")
	if err != nil {
		t.Fatalf("allow error: %v", err)
	}
	if !allowed || !probe {
		t.Fatalf("Allow() = (%v, %v), want reclaimed probe", allowed, probe)
	}

	// The reclaimed probe behaves like any other: its success closes the
	// breaker.
	if err := reg.RecordSuccess(ctx, "send_reminder", true); err != nil {
		t.Fatalf("record success: %v", err)
	}
	st, _ := reg.Status(ctx, "send_reminder")
	if st != breaker.StatusClosed {
		t.Fatalf("status = %q, want closed", st)
	}
}

func TestRegistry_BreakersAreIndependentPerJobName(t *testing.T) {
	reg, _ := setupRegistry(t, 2, 30*time.Second)
	ctx := context.Background()

	reg.RecordFailure(ctx, "send_reminder", false)
	reg.RecordFailure(ctx, "send_reminder", false)

	if allowed, _, _ := reg.Allow(ctx, "open_recovery_case"); !allowed {
		t.Error("unrelated job name should not be gated")
	}
}

func TestRegistry_OnChangeNotified(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}

	var transitions []string
	reg := breaker.NewRegistry(memory.New(), slog.Default(),
		breaker.WithConfig(breaker.Config{FailureThreshold: 1, ResetTimeout: time.Second}),
		breaker.WithClock(clock.Now),
		breaker.WithOnChange(func(_ context.Context, _ *breaker.State, from, to breaker.Status) {
			transitions = append(transitions, string(from)+"->"+string(to))
		}),
	)
	ctx := context.Background()

	reg.RecordFailure(ctx, "send_reminder", false)
	clock.Advance(2 * time.Second)
	reg.Allow(ctx, "send_reminder")
	reg.RecordSuccess(ctx, "send_reminder", true)

	want := []string{"closed->open", "open->half_open", "half_open->closed"}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition[%d] = %q, want %q", i, transitions[i], want[i])
		}
	}
}
