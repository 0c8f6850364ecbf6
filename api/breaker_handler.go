package api

import (
	"net/http"
)

func (a *API) listBreakers(w http.ResponseWriter, r *http.Request) {
	states, err := a.eng.Breakers().States(r.Context())
	if err != nil {
		a.writeStoreError(w, err)
		return
	}

	a.writeJSON(w, http.StatusOK, states)
}
