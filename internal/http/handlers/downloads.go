package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"mediatools/internal/middleware"
	"mediatools/internal/quota"
)

type downloadRequest struct {
	URL       string `json:"url"`
	Quality   string `json:"quality"`
	AudioOnly bool   `json:"audio_only"`
}

func (a *App) Download(w http.ResponseWriter, r *http.Request) {
	var req downloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "url required")
		return
	}
	op, err := a.Downloader.New(req.URL, req.Quality, req.AudioOnly)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.submit(w, r, op, map[string]any{
		"platform":   string(op.Platform),
		"quality":    op.Label,
		"audio_only": op.AudioOnly,
	})
}

type qualityOption struct {
	Label   string `json:"label"`
	Allowed bool   `json:"allowed"`
}

// MediaInfo looks a video up and marks which qualities the caller's plan
// may download.
func (a *App) MediaInfo(w http.ResponseWriter, r *http.Request) {
	url := strings.TrimSpace(r.URL.Query().Get("url"))
	if url == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "url required")
		return
	}
	info, err := a.Info.Lookup(r.Context(), url)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	ent := a.Plans.Resolve(r.Context(), a.identity(r), middleware.PlanFromContext(r.Context()))
	options := make([]qualityOption, 0, len(info.Qualities))
	for _, label := range info.Qualities {
		options = append(options, qualityOption{Label: label, Allowed: quota.ValidateQuality(label, ent.Plan.MaxResolution)})
	}
	a.json(w, http.StatusOK, map[string]any{
		"info":    info,
		"options": options,
		"plan":    ent.Plan.ID,
	})
}
