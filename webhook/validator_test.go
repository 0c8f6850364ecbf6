package webhook_test

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strconv"
	"testing"
	"time"

	"github.com/Danservfinn/churnsaver-sub010/webhook"
)

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func freshTimestamp() string {
	return strconv.FormatInt(time.Now().Unix(), 10)
}

func newValidator(secrets ...string) *webhook.Validator {
	return webhook.NewValidator(slog.Default(), secrets)
}

func TestValidator_AcceptsValidRequest(t *testing.T) {
	v := newValidator("topsecret")
	body := []byte(`{"id":"evt_1","type":"payment_failed"}`)

	err := v.Validate(body, "v1="+sign("topsecret", body), freshTimestamp())
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidator_SingleBitMutationFails(t *testing.T) {
	v := newValidator("topsecret")
	body := []byte(`{"id":"evt_1","type":"payment_failed"}`)
	header := "v1=" + sign("topsecret", body)
	ts := freshTimestamp()

	if err := v.Validate(body, header, ts); err != nil {
		t.Fatalf("unmutated body should validate: %v", err)
	}

	for i := range body {
		for bit := range 8 {
			mutated := make([]byte, len(body))
			copy(mutated, body)
			mutated[i] ^= 1 << bit

			err := v.Validate(mutated, header, ts)
			if webhook.ReasonOf(err) != webhook.ReasonSignatureMismatch {
				t.Fatalf("byte %d bit %d: expected signature_mismatch, got %v", i, bit, err)
			}
		}
	}
}

func TestValidator_TimestampBound(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	v := webhook.NewValidator(slog.Default(), []string{"topsecret"},
		webhook.WithClock(func() time.Time { return base }),
	)
	body := []byte(`{"id":"evt_1"}`)
	header := "v1=" + sign("topsecret", body)

	cases := []struct {
		name   string
		ts     time.Time
		reason webhook.Reason
	}{
		{"exactly now", base, ""},
		{"4m59s old", base.Add(-4*time.Minute - 59*time.Second), ""},
		{"5m1s old", base.Add(-5*time.Minute - time.Second), webhook.ReasonStaleTimestamp},
		{"5m1s in the future", base.Add(5*time.Minute + time.Second), webhook.ReasonStaleTimestamp},
		{"4m59s in the future", base.Add(4*time.Minute + 59*time.Second), ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts := strconv.FormatInt(tc.ts.Unix(), 10)
			err := v.Validate(body, header, ts)
			if got := webhook.ReasonOf(err); got != tc.reason {
				t.Fatalf("reason = %q, want %q (err=%v)", got, tc.reason, err)
			}
		})
	}
}

func TestValidator_CustomSkewWindow(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	v := webhook.NewValidator(slog.Default(), []string{"topsecret"},
		webhook.WithClock(func() time.Time { return base }),
		webhook.WithSkewWindow(30*time.Second),
	)
	body := []byte(`{}`)
	header := "v1=" + sign("topsecret", body)

	ok := strconv.FormatInt(base.Add(-20*time.Second).Unix(), 10)
	if err := v.Validate(body, header, ok); err != nil {
		t.Fatalf("within window: %v", err)
	}

	stale := strconv.FormatInt(base.Add(-45*time.Second).Unix(), 10)
	err := v.Validate(body, header, stale)
	if webhook.ReasonOf(err) != webhook.ReasonStaleTimestamp {
		t.Fatalf("expected stale_timestamp, got %v", err)
	}
}

func TestValidator_MultiEntryHeader_AnyMatchAccepts(t *testing.T) {
	v := newValidator("topsecret")
	body := []byte(`{"id":"evt_2"}`)

	// Unknown scheme with a wrong digest first, valid v1 second.
	header := fmt.Sprintf("v0=%s,v1=%s", sign("wrong-secret", body), sign("topsecret", body))
	if err := v.Validate(body, header, freshTimestamp()); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidator_SecretRotation(t *testing.T) {
	// Old secret kept during the rotation overlap window.
	v := newValidator("new-secret", "old-secret")
	body := []byte(`{"id":"evt_3"}`)

	if err := v.Validate(body, "v1="+sign("old-secret", body), freshTimestamp()); err != nil {
		t.Fatalf("old secret should still verify: %v", err)
	}
	if err := v.Validate(body, "v1="+sign("new-secret", body), freshTimestamp()); err != nil {
		t.Fatalf("new secret should verify: %v", err)
	}

	err := v.Validate(body, "v1="+sign("retired-secret", body), freshTimestamp())
	if webhook.ReasonOf(err) != webhook.ReasonSignatureMismatch {
		t.Fatalf("expected signature_mismatch, got %v", err)
	}
}

func TestValidator_HeaderFailClosed(t *testing.T) {
	v := newValidator("topsecret")
	body := []byte(`{"id":"evt_4"}`)
	ts := freshTimestamp()

	cases := []struct {
		name   string
		header string
		reason webhook.Reason
	}{
		{"absent", "", webhook.ReasonMissingSignature},
		{"no equals sign", "abcdef0123", webhook.ReasonMalformedSignature},
		{"empty digest", "v1=", webhook.ReasonMalformedSignature},
		{"non-hex digest", "v1=zzzz", webhook.ReasonMalformedSignature},
		{"empty scheme", "=" + sign("topsecret", body), webhook.ReasonMalformedSignature},
		{"only commas", ",,,", webhook.ReasonMalformedSignature},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := v.Validate(body, tc.header, ts)
			if got := webhook.ReasonOf(err); got != tc.reason {
				t.Fatalf("reason = %q, want %q (err=%v)", got, tc.reason, err)
			}
		})
	}
}

func TestValidator_TimestampFailClosed(t *testing.T) {
	v := newValidator("topsecret")
	body := []byte(`{"id":"evt_5"}`)
	header := "v1=" + sign("topsecret", body)

	cases := []struct {
		name   string
		ts     string
		reason webhook.Reason
	}{
		{"absent", "", webhook.ReasonMissingTimestamp},
		{"not a number", "yesterday", webhook.ReasonMalformedTimestamp},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := v.Validate(body, header, tc.ts)
			if got := webhook.ReasonOf(err); got != tc.reason {
				t.Fatalf("reason = %q, want %q (err=%v)", got, tc.reason, err)
			}
		})
	}
}

func TestValidator_SignRoundTrip(t *testing.T) {
	v := newValidator("topsecret")
	body := []byte(`{"id":"evt_6"}`)

	if err := v.Validate(body, v.Sign(body), freshTimestamp()); err != nil {
		t.Fatalf("Validate(Sign(body)): %v", err)
	}
}
