package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"server/internal/domain"
)

// RateJob appends a rating for a completed job and fires the asynchronous
// revision check.
func (a *App) RateJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	if err := r.ParseForm(); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid form payload")
		return
	}

	rating := domain.Rating(r.FormValue("rating"))
	if rating != domain.RatingGood && rating != domain.RatingBad {
		a.error(w, http.StatusBadRequest, "bad_request", "rating must be 'good' or 'bad'")
		return
	}

	record, err := a.Orchestrator.Rate(r.Context(), jobID, rating)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "job not found")
			return
		}
		a.Logger.Error().Err(err).Str("job_id", jobID).Msg("http: rate failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to save rating")
		return
	}

	a.json(w, http.StatusOK, record)
}

// FeedbackStats reports good/bad rating counts per intensity.
func (a *App) FeedbackStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.Aggregator.Stats(r.Context())
	if err != nil {
		a.Logger.Error().Err(err).Msg("http: stats failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load stats")
		return
	}
	a.json(w, http.StatusOK, stats)
}

// FeedbackAnalyze runs the revision check synchronously.
func (a *App) FeedbackAnalyze(w http.ResponseWriter, r *http.Request) {
	revision, err := a.Revisor.CheckAndRevise(r.Context())
	if err != nil {
		a.Logger.Error().Err(err).Msg("http: analyze failed")
		a.error(w, http.StatusInternalServerError, "internal", "analysis failed")
		return
	}
	if revision == nil {
		a.json(w, http.StatusOK, map[string]string{
			"status":  "no_action",
			"message": "threshold not met or no improvements needed",
		})
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"status":     "updated",
		"intensity":  revision.Intensity,
		"version":    revision.Version,
		"new_prompt": revision.NewPrompt,
	})
}
