package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Danservfinn/churnsaver-sub010/id"
	"github.com/Danservfinn/churnsaver-sub010/job"
)

// jobStates is the order counts and listings report states in.
var jobStates = []job.State{
	job.StatePending,
	job.StateRunning,
	job.StateCompleted,
	job.StateRetrying,
	job.StateCancelled,
	job.StateDeadLettered,
}

func jobStateFromString(s string) (job.State, bool) {
	for _, st := range jobStates {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

func (a *API) listJobs(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("state")
	if raw == "" {
		raw = string(job.StatePending)
	}
	state, ok := jobStateFromString(raw)
	if !ok {
		a.writeError(w, http.StatusBadRequest, "unknown job state: "+raw)
		return
	}

	jobs, err := a.eng.JobStore().ListJobsByState(r.Context(), state, job.ListOpts{
		Limit:    defaultLimit(queryInt(r, "limit")),
		Offset:   queryInt(r, "offset"),
		Queue:    r.URL.Query().Get("queue"),
		TenantID: r.URL.Query().Get("tenant_id"),
	})
	if err != nil {
		a.writeStoreError(w, err)
		return
	}

	a.writeJSON(w, http.StatusOK, jobs)
}

func (a *API) getJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := id.ParseJobID(chi.URLParam(r, "jobID"))
	if err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid job ID: "+err.Error())
		return
	}

	j, err := a.eng.JobStore().GetJob(r.Context(), jobID)
	if err != nil {
		a.writeStoreError(w, err)
		return
	}

	a.writeJSON(w, http.StatusOK, j)
}

// cancelJob cancels a pending or retrying job. Running jobs report a
// conflict rather than being interrupted mid-flight.
func (a *API) cancelJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := id.ParseJobID(chi.URLParam(r, "jobID"))
	if err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid job ID: "+err.Error())
		return
	}

	if err := a.eng.Cancel(r.Context(), jobID); err != nil {
		a.writeStoreError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (a *API) jobCounts(w http.ResponseWriter, r *http.Request) {
	resp, err := a.countJobs(r)
	if err != nil {
		a.writeStoreError(w, err)
		return
	}

	a.writeJSON(w, http.StatusOK, resp)
}

func (a *API) countJobs(r *http.Request) (JobCountsResponse, error) {
	queue := r.URL.Query().Get("queue")

	var resp JobCountsResponse
	for _, state := range jobStates {
		count, err := a.eng.JobStore().CountJobs(r.Context(), job.CountOpts{Queue: queue, State: state})
		if err != nil {
			return JobCountsResponse{}, err
		}
		switch state {
		case job.StatePending:
			resp.Pending = count
		case job.StateRunning:
			resp.Running = count
		case job.StateCompleted:
			resp.Completed = count
		case job.StateRetrying:
			resp.Retrying = count
		case job.StateCancelled:
			resp.Cancelled = count
		case job.StateDeadLettered:
			resp.DeadLettered = count
		}
	}
	return resp, nil
}
