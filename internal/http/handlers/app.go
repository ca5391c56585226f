package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"mediatools/internal/domain"
	"mediatools/internal/jobs"
	"mediatools/internal/middleware"
	"mediatools/internal/orchestrator"
	"mediatools/internal/plans"
	"mediatools/internal/providers/media"
	"mediatools/internal/quota"
)

type App struct {
	Orchestrator *orchestrator.Orchestrator
	Registry     *jobs.Registry
	Tracker      *quota.Tracker
	Plans        *plans.Resolver
	Downloader   *media.Downloader
	Converter    *media.Converter
	Info         *media.InfoClient
	Store        media.ResultStore
	Logger       zerolog.Logger

	// UploadDir stages multipart uploads until the job owning them ends.
	UploadDir      string
	MaxUploadBytes int64
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, msg string) {
	a.json(w, status, map[string]string{"error": code, "message": msg})
}

// fail maps domain errors onto HTTP responses.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, domain.ErrUnsupportedSource):
		a.error(w, http.StatusUnprocessableEntity, "unsupported_source", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "not found")
	case errors.Is(err, domain.ErrDailyLimit):
		a.error(w, http.StatusTooManyRequests, "daily_limit_reached", "daily limit reached for your plan")
	case errors.Is(err, domain.ErrConcurrencyLimit):
		a.error(w, http.StatusTooManyRequests, "concurrency_limit_reached", "too many jobs running, wait for one to finish")
	case errors.Is(err, domain.ErrPlanRequired):
		a.error(w, http.StatusForbidden, "plan_upgrade_required", err.Error())
	case errors.Is(err, domain.ErrQualityNotAllowed):
		a.error(w, http.StatusForbidden, "quality_not_allowed", err.Error())
	case errors.Is(err, domain.ErrProviderFailure):
		a.Logger.Warn().Err(err).Str("path", r.URL.Path).Msg("provider failure")
		a.error(w, http.StatusBadGateway, "provider_failure", orchestrator.PublicMessage(err))
	default:
		a.Logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func (a *App) currentUserID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}

// identity returns the identity resolved by the middleware chain, falling
// back to the bare client address.
func (a *App) identity(r *http.Request) domain.Identity {
	if id, ok := middleware.IdentityFromContext(r.Context()); ok {
		return id
	}
	return quota.ResolveIdentity(a.currentUserID(r), middleware.ClientIP(r))
}

// submit hands op to the orchestrator and answers 202 with the new job. It
// reports whether the job was accepted.
func (a *App) submit(w http.ResponseWriter, r *http.Request, op orchestrator.Operation, meta map[string]any) bool {
	job, err := a.Orchestrator.Submit(r.Context(), orchestrator.Request{
		Identity:  a.identity(r),
		ClaimPlan: middleware.PlanFromContext(r.Context()),
		Operation: op,
		Metadata:  meta,
	})
	if err != nil {
		a.fail(w, r, err)
		return false
	}
	a.json(w, http.StatusAccepted, jobResponse{JobID: job.ID, Status: job.Status, Kind: job.Kind})
	return true
}

type jobResponse struct {
	JobID  string           `json:"job_id"`
	Status domain.JobStatus `json:"status"`
	Kind   domain.JobKind   `json:"kind"`
}
