// Package api provides the operator HTTP API: job inspection and
// cancellation, dead-letter browsing and replay, breaker status, and
// aggregate stats. It is read-mostly and deliberately tenant-blind;
// webhook ingestion lives in the webhook package.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Danservfinn/churnsaver-sub010"
	"github.com/Danservfinn/churnsaver-sub010/engine"
)

const maxListLimit = 200

// API serves the operator endpoints for a running engine.
type API struct {
	eng    *engine.Engine
	logger *slog.Logger
}

// New creates an API bound to the engine.
func New(eng *engine.Engine, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	return &API{eng: eng, logger: logger}
}

// Routes returns a standalone chi router with all operator endpoints
// mounted under /v1.
func (a *API) Routes() http.Handler {
	r := chi.NewRouter()
	a.RegisterRoutes(r)
	return r
}

// RegisterRoutes mounts the operator endpoints under /v1 on an existing
// router, for daemons that share one mux with the webhook handler.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/v1", func(r chi.Router) {
		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", a.listJobs)
			r.Get("/counts", a.jobCounts)
			r.Get("/{jobID}", a.getJob)
			r.Post("/{jobID}/cancel", a.cancelJob)
		})

		r.Route("/dlq", func(r chi.Router) {
			r.Get("/", a.listDLQ)
			r.Get("/count", a.dlqCount)
			r.Post("/purge", a.purgeDLQ)
			r.Get("/{entryID}", a.getDLQ)
			r.Post("/{entryID}/replay", a.replayDLQ)
		})

		r.Route("/events", func(r chi.Router) {
			r.Get("/", a.listEvents)
			r.Get("/{eventID}", a.getEvent)
		})

		r.Get("/breakers", a.listBreakers)
		r.Get("/stats", a.stats)
	})
}

// ──────────────────────────────────────────────────────────────────────
// Response envelopes
// ──────────────────────────────────────────────────────────────────────

// JobCountsResponse holds per-state job totals.
type JobCountsResponse struct {
	Pending      int64 `json:"pending"`
	Running      int64 `json:"running"`
	Completed    int64 `json:"completed"`
	Retrying     int64 `json:"retrying"`
	Cancelled    int64 `json:"cancelled"`
	DeadLettered int64 `json:"dead_lettered"`
}

// PurgeDLQResponse reports how many dead-letter entries were removed.
type PurgeDLQResponse struct {
	Purged int64 `json:"purged"`
}

// DLQCountResponse reports the dead-letter backlog size.
type DLQCountResponse struct {
	Count int64 `json:"count"`
}

// StatsResponse is the aggregate operator snapshot.
type StatsResponse struct {
	Jobs     JobCountsResponse `json:"jobs"`
	DLQCount int64             `json:"dlq_count"`
	Breakers int               `json:"breakers"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// ──────────────────────────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────────────────────────

func (a *API) writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		a.logger.Error("api response encode failed", slog.String("error", err.Error()))
	}
}

func (a *API) writeError(w http.ResponseWriter, code int, msg string) {
	a.writeJSON(w, code, errorResponse{Error: msg})
}

// writeStoreError maps sentinel errors onto HTTP statuses. Anything
// unrecognized is a 500 and gets logged.
func (a *API) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case isNotFound(err):
		a.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, churnsaver.ErrJobRunning),
		errors.Is(err, churnsaver.ErrInvalidState),
		errors.Is(err, churnsaver.ErrBreakerConflict):
		a.writeError(w, http.StatusConflict, err.Error())
	default:
		a.logger.Error("api store error", slog.String("error", err.Error()))
		a.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, churnsaver.ErrJobNotFound) ||
		errors.Is(err, churnsaver.ErrDLQNotFound) ||
		errors.Is(err, churnsaver.ErrEventNotFound) ||
		errors.Is(err, churnsaver.ErrBreakerNotFound)
}

// defaultLimit clamps list limits to a sane page size.
func defaultLimit(limit int) int {
	if limit <= 0 || limit > maxListLimit {
		return 50
	}
	return limit
}

func queryInt(r *http.Request, key string) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return 0
	}
	return v
}

// queryTime parses an RFC 3339 query parameter, returning the zero
// time when absent or malformed.
func queryTime(r *http.Request, key string) time.Time {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
