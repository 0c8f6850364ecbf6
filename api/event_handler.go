package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Danservfinn/churnsaver-sub010/event"
	"github.com/Danservfinn/churnsaver-sub010/id"
)

func (a *API) eventStore(w http.ResponseWriter) (event.Store, bool) {
	es, ok := a.eng.Pipeline().Store().(event.Store)
	if !ok {
		a.writeError(w, http.StatusNotImplemented, "store does not support event queries")
		return nil, false
	}
	return es, true
}

func (a *API) listEvents(w http.ResponseWriter, r *http.Request) {
	es, ok := a.eventStore(w)
	if !ok {
		return
	}

	q := r.URL.Query()
	events, err := es.ListEvents(r.Context(), event.ListOpts{
		Limit:       defaultLimit(queryInt(r, "limit")),
		Offset:      queryInt(r, "offset"),
		Type:        event.Type(q.Get("type")),
		Unprocessed: q.Get("unprocessed") == "true",
	})
	if err != nil {
		a.writeStoreError(w, err)
		return
	}

	a.writeJSON(w, http.StatusOK, events)
}

func (a *API) getEvent(w http.ResponseWriter, r *http.Request) {
	es, ok := a.eventStore(w)
	if !ok {
		return
	}

	eventID, err := id.ParseEventID(chi.URLParam(r, "eventID"))
	if err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid event ID: "+err.Error())
		return
	}

	evt, err := es.GetEvent(r.Context(), eventID)
	if err != nil {
		a.writeStoreError(w, err)
		return
	}

	a.writeJSON(w, http.StatusOK, evt)
}
