package handlers

import (
	"net/http"

	"mediatools/internal/middleware"
	"mediatools/internal/plans"
)

func (a *App) ListPlans(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]any{"items": plans.Catalog()})
}

// MeQuota reports the caller's plan together with the live counters. The
// in-memory count wins when it is ahead of the durable stores.
func (a *App) MeQuota(w http.ResponseWriter, r *http.Request) {
	id := a.identity(r)
	ent := a.Plans.Resolve(r.Context(), id, middleware.PlanFromContext(r.Context()))
	rec := a.Tracker.Limits(id)

	used := plans.ReconcileUsage(ent.UsedToday, rec.Today)
	a.json(w, http.StatusOK, map[string]any{
		"identity":      id.Key,
		"authenticated": id.Authenticated(),
		"country":       id.Country,
		"plan":          ent.Plan,
		"used_today":    used,
		"remaining":     plans.RemainingDownloads(ent.Plan, used),
		"concurrent":    rec.Concurrent,
		"window_start":  rec.WindowStart,
	})
}
