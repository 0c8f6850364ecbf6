package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Danservfinn/churnsaver-sub010/dlq"
	"github.com/Danservfinn/churnsaver-sub010/id"
)

// defaultPurgeAge is how far back purge reaches when the request does
// not pin a cutoff.
const defaultPurgeAge = 30 * 24 * time.Hour

func (a *API) listDLQ(w http.ResponseWriter, r *http.Request) {
	entries, err := a.eng.DLQService().Store().ListDLQ(r.Context(), dlq.ListOpts{
		Limit:    defaultLimit(queryInt(r, "limit")),
		Offset:   queryInt(r, "offset"),
		Queue:    r.URL.Query().Get("queue"),
		JobName:  r.URL.Query().Get("job_name"),
		TenantID: r.URL.Query().Get("tenant_id"),
		Since:    queryTime(r, "since"),
		Until:    queryTime(r, "until"),
	})
	if err != nil {
		a.writeStoreError(w, err)
		return
	}

	a.writeJSON(w, http.StatusOK, entries)
}

func (a *API) getDLQ(w http.ResponseWriter, r *http.Request) {
	entryID, err := id.ParseDLQID(chi.URLParam(r, "entryID"))
	if err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid DLQ entry ID: "+err.Error())
		return
	}

	entry, err := a.eng.DLQService().Store().GetDLQ(r.Context(), entryID)
	if err != nil {
		a.writeStoreError(w, err)
		return
	}

	a.writeJSON(w, http.StatusOK, entry)
}

// replayDLQ re-enqueues a dead-lettered job and returns the new job.
func (a *API) replayDLQ(w http.ResponseWriter, r *http.Request) {
	entryID, err := id.ParseDLQID(chi.URLParam(r, "entryID"))
	if err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid DLQ entry ID: "+err.Error())
		return
	}

	j, err := a.eng.DLQService().Replay(r.Context(), entryID)
	if err != nil {
		a.writeStoreError(w, err)
		return
	}

	a.writeJSON(w, http.StatusCreated, j)
}

func (a *API) purgeDLQ(w http.ResponseWriter, r *http.Request) {
	before := queryTime(r, "before")
	if before.IsZero() {
		before = time.Now().UTC().Add(-defaultPurgeAge)
	}

	count, err := a.eng.DLQService().Store().PurgeDLQ(r.Context(), before)
	if err != nil {
		a.writeStoreError(w, err)
		return
	}

	a.writeJSON(w, http.StatusOK, PurgeDLQResponse{Purged: count})
}

func (a *API) dlqCount(w http.ResponseWriter, r *http.Request) {
	count, err := a.eng.DLQService().Store().CountDLQ(r.Context())
	if err != nil {
		a.writeStoreError(w, err)
		return
	}

	a.writeJSON(w, http.StatusOK, DLQCountResponse{Count: count})
}
