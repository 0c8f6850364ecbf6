package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// Reason categorises why a webhook request was rejected. Reasons are
// safe to log and return to callers; they never carry secrets or
// computed digests.
type Reason string

const (
	ReasonMissingSignature   Reason = "missing_signature"
	ReasonMalformedSignature Reason = "malformed_signature"
	ReasonSignatureMismatch  Reason = "signature_mismatch"
	ReasonMissingTimestamp   Reason = "missing_timestamp"
	ReasonMalformedTimestamp Reason = "malformed_timestamp"
	ReasonStaleTimestamp     Reason = "stale_timestamp"
)

// RejectionError reports a failed webhook validation with its reason
// category.
type RejectionError struct {
	Reason Reason
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("churnsaver: webhook rejected: %s", e.Reason)
}

// ReasonOf extracts the rejection reason from a validation error, or ""
// if the error is not a rejection.
func ReasonOf(err error) Reason {
	var re *RejectionError
	if errors.As(err, &re) {
		return re.Reason
	}
	return ""
}

const defaultSkewWindow = 5 * time.Minute

// ValidatorOption configures a Validator.
type ValidatorOption func(*Validator)

// WithSkewWindow overrides the maximum allowed |now - timestamp| delta.
func WithSkewWindow(d time.Duration) ValidatorOption {
	return func(v *Validator) {
		if d > 0 {
			v.skew = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) ValidatorOption {
	return func(v *Validator) { v.now = now }
}

// Validator checks the authenticity and freshness of inbound webhook
// requests. The signature header carries one or more comma-separated
// `scheme=hexdigest` entries; the request is accepted if any entry
// matches the HMAC-SHA256 of the raw body under any configured secret,
// so both header schemes and shared secrets can rotate without dropping
// deliveries.
//
// Validation is pure: it never touches storage and rejections are
// terminal for the request. A security event is logged on every
// rejection with the reason category only.
type Validator struct {
	secrets [][]byte
	skew    time.Duration
	now     func() time.Time
	logger  *slog.Logger
}

// NewValidator creates a Validator. At least one secret is required;
// older secrets may follow the current one to keep rotated deliveries
// verifiable during the overlap window.
func NewValidator(logger *slog.Logger, secrets []string, opts ...ValidatorOption) *Validator {
	v := &Validator{
		skew:   defaultSkewWindow,
		now:    time.Now,
		logger: logger,
	}
	for _, s := range secrets {
		s = strings.TrimSpace(s)
		if s != "" {
			v.secrets = append(v.secrets, []byte(s))
		}
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate checks the signature header against the exact raw body bytes
// and the timestamp header against the skew window. A nil return means
// the request is authentic and fresh.
func (v *Validator) Validate(body []byte, sigHeader, tsHeader string) error {
	if err := v.checkTimestamp(tsHeader); err != nil {
		return v.reject(err)
	}
	if err := v.checkSignature(body, sigHeader); err != nil {
		return v.reject(err)
	}
	return nil
}

func (v *Validator) checkTimestamp(tsHeader string) *RejectionError {
	tsHeader = strings.TrimSpace(tsHeader)
	if tsHeader == "" {
		return &RejectionError{Reason: ReasonMissingTimestamp}
	}
	unix, err := strconv.ParseInt(tsHeader, 10, 64)
	if err != nil {
		return &RejectionError{Reason: ReasonMalformedTimestamp}
	}
	delta := v.now().UTC().Sub(time.Unix(unix, 0))
	if delta < 0 {
		delta = -delta
	}
	if delta > v.skew {
		return &RejectionError{Reason: ReasonStaleTimestamp}
	}
	return nil
}

func (v *Validator) checkSignature(body []byte, sigHeader string) *RejectionError {
	sigHeader = strings.TrimSpace(sigHeader)
	if sigHeader == "" {
		return &RejectionError{Reason: ReasonMissingSignature}
	}

	digests, ok := parseSignatureHeader(sigHeader)
	if !ok {
		return &RejectionError{Reason: ReasonMalformedSignature}
	}

	for _, secret := range v.secrets {
		mac := hmac.New(sha256.New, secret)
		mac.Write(body)
		want := mac.Sum(nil)
		for _, digest := range digests {
			if hmac.Equal(digest, want) {
				return nil
			}
		}
	}
	return &RejectionError{Reason: ReasonSignatureMismatch}
}

// parseSignatureHeader splits a header of the form
// "v1=abcd...,v0=ef01..." into decoded digests. Unknown scheme names are
// tolerated; entries without a '=' or with non-hex digests make the
// whole header malformed.
func parseSignatureHeader(header string) ([][]byte, bool) {
	entries := strings.Split(header, ",")
	digests := make([][]byte, 0, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		scheme, hexDigest, found := strings.Cut(entry, "=")
		if !found || strings.TrimSpace(scheme) == "" {
			return nil, false
		}
		digest, err := hex.DecodeString(strings.TrimSpace(hexDigest))
		if err != nil || len(digest) == 0 {
			return nil, false
		}
		digests = append(digests, digest)
	}
	if len(digests) == 0 {
		return nil, false
	}
	return digests, true
}

func (v *Validator) reject(err *RejectionError) error {
	v.logger.Warn("webhook rejected",
		slog.String("reason", string(err.Reason)),
	)
	return err
}

// Sign computes the `v1=hexdigest` signature header for a body under
// the first configured secret. Intended for tests and for signing
// outbound calls in development tooling.
func (v *Validator) Sign(body []byte) string {
	if len(v.secrets) == 0 {
		return ""
	}
	mac := hmac.New(sha256.New, v.secrets[0])
	mac.Write(body)
	return "v1=" + hex.EncodeToString(mac.Sum(nil))
}
