package api

import (
	"net/http"
)

// stats returns one aggregate snapshot for dashboards: per-state job
// counts, the dead-letter backlog, and the number of tracked breakers.
func (a *API) stats(w http.ResponseWriter, r *http.Request) {
	jobs, err := a.countJobs(r)
	if err != nil {
		a.writeStoreError(w, err)
		return
	}

	dlqCount, err := a.eng.DLQService().Store().CountDLQ(r.Context())
	if err != nil {
		a.writeStoreError(w, err)
		return
	}

	states, err := a.eng.Breakers().States(r.Context())
	if err != nil {
		a.writeStoreError(w, err)
		return
	}

	a.writeJSON(w, http.StatusOK, StatsResponse{
		Jobs:     jobs,
		DLQCount: dlqCount,
		Breakers: len(states),
	})
}
