package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// JobStatus returns a job snapshot. Ids are random UUIDs and the owner is
// never part of the response, so lookups are not restricted to the owner.
func (a *App) JobStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "id required")
		return
	}
	job, err := a.Registry.Get(id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, job)
}

func (a *App) JobStats(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, a.Registry.Counts())
}
