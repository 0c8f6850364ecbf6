package webhook

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Danservfinn/churnsaver-sub010/event"
	"github.com/Danservfinn/churnsaver-sub010/id"
	"github.com/Danservfinn/churnsaver-sub010/tenant"
)

// Default header names used by the commerce platform.
const (
	HeaderSignature = "X-Webhook-Signature"
	HeaderTimestamp = "X-Webhook-Timestamp"
)

// maxBodyBytes caps webhook request bodies.
const maxBodyBytes = 1 << 20

// Ingestor records an inbound event exactly once and enqueues its
// processing job. inserted reports whether this delivery was the first
// for the event's origin id.
type Ingestor interface {
	Ingest(ctx context.Context, evt *event.InboundEvent) (inserted bool, err error)
}

// envelope is the minimal shape every platform delivery shares. The
// full payload travels along untouched; only these fields are read
// synchronously.
type envelope struct {
	ID     string `json:"id"`
	Type   string `json:"type"`
	ShopID string `json:"shop_id"`
}

// Handler is the HTTP entry point for platform webhooks. It does only
// validation and the idempotent record+enqueue synchronously; all
// business work is deferred to the queue.
type Handler struct {
	validator *Validator
	ingestor  Ingestor
	logger    *slog.Logger
}

// NewHandler creates a webhook handler.
func NewHandler(validator *Validator, ingestor Ingestor, logger *slog.Logger) *Handler {
	return &Handler{validator: validator, ingestor: ingestor, logger: logger}
}

// ServeHTTP implements http.Handler. Responses: 200 on accept-and-enqueue
// or accept-as-duplicate, 401 on signature/timestamp rejection, 400 on an
// unreadable envelope.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable body"})
		return
	}

	// Validation runs over the exact raw bytes received.
	if err := h.validator.Validate(body, r.Header.Get(HeaderSignature), r.Header.Get(HeaderTimestamp)); err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{
			"error":  "rejected",
			"reason": string(ReasonOf(err)),
		})
		return
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil || strings.TrimSpace(env.ID) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed envelope"})
		return
	}

	ctx := r.Context()
	if env.ShopID != "" {
		ctx, err = tenant.Bind(ctx, env.ShopID)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed envelope"})
			return
		}
	}

	evt := &event.InboundEvent{
		ID:         id.NewEventID(),
		OriginID:   env.ID,
		Type:       event.Type(env.Type),
		TenantID:   env.ShopID,
		Payload:    body,
		ReceivedAt: time.Now().UTC(),
	}

	inserted, err := h.ingestor.Ingest(ctx, evt)
	if err != nil {
		h.logger.Error("webhook ingest failed",
			slog.String("origin_id", env.ID),
			slog.String("event_type", env.Type),
			slog.String("error", err.Error()),
		)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "ingest failed"})
		return
	}

	status := "accepted"
	if !inserted {
		status = "duplicate"
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
