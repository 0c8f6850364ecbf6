package backoff_test

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/Danservfinn/churnsaver-sub010/backoff"
)

func TestConstant_ReturnsFixedDelay(t *testing.T) {
	c := backoff.NewConstant(5 * time.Second)
	for attempt := 1; attempt <= 10; attempt++ {
		if got := c.Delay(attempt); got != 5*time.Second {
			t.Errorf("Delay(%d) = %v, want %v", attempt, got, 5*time.Second)
		}
	}
}

func TestExponential_DoublesEachAttempt(t *testing.T) {
	e := backoff.NewExponential(time.Second, time.Hour)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 1 * time.Second}, // 1 * 2^0
		{2, 2 * time.Second}, // 1 * 2^1
		{3, 4 * time.Second}, // 1 * 2^2
		{4, 8 * time.Second}, // 1 * 2^3
		{5, 16 * time.Second},
	}
	for _, tt := range tests {
		if got := e.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestExponential_CapsAtMax(t *testing.T) {
	e := backoff.NewExponential(time.Second, 10*time.Second)

	if got := e.Delay(10); got != 10*time.Second {
		t.Errorf("Delay(10) = %v, want %v (capped at Max)", got, 10*time.Second)
	}
	if got := e.Delay(40); got != 10*time.Second {
		t.Errorf("Delay(40) = %v, want %v (capped at Max)", got, 10*time.Second)
	}
}

func TestExponential_Monotone(t *testing.T) {
	e := backoff.NewExponential(time.Second, time.Minute)
	for attempt := 1; attempt < 12; attempt++ {
		if e.Delay(attempt) > e.Delay(attempt+1) {
			t.Errorf("Delay(%d) > Delay(%d)", attempt, attempt+1)
		}
	}
}

func TestJittered_DeterministicWithSeed(t *testing.T) {
	newSeeded := func() *backoff.Jittered {
		return backoff.NewJittered(time.Second, time.Minute, 0.2,
			backoff.WithSource(rand.NewPCG(7, 13)))
	}

	a, b := newSeeded(), newSeeded()
	for attempt := 1; attempt <= 8; attempt++ {
		if got, want := a.Delay(attempt), b.Delay(attempt); got != want {
			t.Errorf("Delay(%d) = %v, want %v (same seed)", attempt, got, want)
		}
	}
}

func TestJittered_StaysWithinFraction(t *testing.T) {
	j := backoff.NewJittered(time.Second, time.Hour, 0.25,
		backoff.WithSource(rand.NewPCG(1, 2)))

	for attempt := 1; attempt <= 6; attempt++ {
		base := time.Duration(1<<(attempt-1)) * time.Second
		lo := time.Duration(float64(base) * 0.75)
		hi := time.Duration(float64(base) * 1.25)

		for range 100 {
			got := j.Delay(attempt)
			if got < lo || got > hi {
				t.Fatalf("Delay(%d) = %v outside [%v, %v]", attempt, got, lo, hi)
			}
		}
	}
}

func TestJittered_CapsBeforeJitter(t *testing.T) {
	j := backoff.NewJittered(time.Second, 4*time.Second, 0.5,
		backoff.WithSource(rand.NewPCG(3, 4)))

	// Attempt 20 saturates the cap; jitter applies to the capped value.
	for range 100 {
		got := j.Delay(20)
		if got < 2*time.Second || got > 6*time.Second {
			t.Fatalf("Delay(20) = %v outside [2s, 6s]", got)
		}
	}
}

func TestJittered_ZeroFraction(t *testing.T) {
	j := backoff.NewJittered(time.Second, time.Minute, 0)
	if got := j.Delay(3); got != 4*time.Second {
		t.Errorf("Delay(3) = %v, want 4s with zero jitter", got)
	}
}
