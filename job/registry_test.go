package job_test

import (
	"context"
	"errors"
	"testing"

	"github.com/Danservfinn/churnsaver-sub010/job"
)

type reminderInput struct {
	MemberID string `json:"member_id"`
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	reg := job.NewRegistry()

	var got string
	job.RegisterDefinition(reg, job.NewDefinition("send_reminder",
		func(_ context.Context, in reminderInput) error {
			got = in.MemberID
			return nil
		},
	))

	h, ok := reg.Get("send_reminder")
	if !ok {
		t.Fatal("expected handler to be registered")
	}

	if err := h(context.Background(), []byte(`{"member_id":"mem_1"}`)); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if got != "mem_1" {
		t.Errorf("handler saw member %q, want %q", got, "mem_1")
	}
}

func TestRegistry_UnknownName(t *testing.T) {
	reg := job.NewRegistry()

	if _, ok := reg.Get("nope"); ok {
		t.Error("expected Get to report missing handler")
	}
	if reg.Has("nope") {
		t.Error("expected Has to report missing handler")
	}
}

func TestRegistry_MalformedPayloadIsFatal(t *testing.T) {
	reg := job.NewRegistry()
	job.RegisterDefinition(reg, job.NewDefinition("send_reminder",
		func(_ context.Context, _ reminderInput) error { return nil },
	))

	h, _ := reg.Get("send_reminder")
	err := h(context.Background(), []byte(`{not json`))
	if err == nil {
		t.Fatal("expected error for malformed payload")
	}
	if !job.IsFatal(err) {
		t.Errorf("malformed payload should be fatal, got %v", err)
	}
}

func TestFatal(t *testing.T) {
	base := errors.New("tenant not found")

	if job.Fatal(nil) != nil {
		t.Error("Fatal(nil) should be nil")
	}

	wrapped := job.Fatal(base)
	if !job.IsFatal(wrapped) {
		t.Error("expected IsFatal to detect Fatal wrapper")
	}
	if !errors.Is(wrapped, base) {
		t.Error("Fatal should preserve the wrapped error")
	}
	if job.IsFatal(base) {
		t.Error("plain errors are retryable")
	}
}

func TestState_Terminal(t *testing.T) {
	terminal := []job.State{job.StateCompleted, job.StateCancelled, job.StateDeadLettered}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("state %q should be terminal", s)
		}
	}

	live := []job.State{job.StatePending, job.StateRunning, job.StateRetrying}
	for _, s := range live {
		if s.Terminal() {
			t.Errorf("state %q should not be terminal", s)
		}
	}
}
