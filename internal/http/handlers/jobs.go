package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"server/internal/domain"
	"server/internal/retouchjob"
)

var allowedUploadTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
}

type jobResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// ProcessPhoto accepts a multipart photo upload and schedules a retouch job.
func (a *App) ProcessPhoto(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, a.MaxUploadBytes)
	if err := r.ParseMultipartForm(a.MaxUploadBytes); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", fmt.Sprintf("file exceeds %d MB limit", a.MaxUploadBytes>>20))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "file is required")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if !allowedUploadTypes[contentType] {
		a.error(w, http.StatusBadRequest, "bad_request", "only JPG and PNG files are accepted")
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "could not read upload")
		return
	}

	job, err := a.Orchestrator.Submit(r.Context(), retouchjob.SubmitInput{
		Data:        data,
		ContentType: contentType,
		Intensity:   domain.NormalizeIntensity(strings.ToLower(r.FormValue("intensity"))),
		Zoom:        parseZoom(r.FormValue("zoom")),
	})
	if err != nil {
		a.submitError(w, err)
		return
	}

	a.json(w, http.StatusAccepted, jobResponse{JobID: job.ID, Status: string(job.Status)})
}

// JobStatus reports the current lifecycle state and artifact references.
func (a *App) JobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := a.Orchestrator.Status(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "job not found")
			return
		}
		a.Logger.Error().Err(err).Str("job_id", jobID).Msg("http: status read failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load job")
		return
	}

	payload := map[string]any{
		"job_id":    job.ID,
		"status":    job.Status,
		"intensity": job.Intensity,
		"zoom":      job.Zoom,
	}
	if job.Original.URL != "" {
		payload["original_url"] = job.Original.URL
	}
	if job.Cropped.URL != "" {
		payload["cropped_url"] = job.Cropped.URL
	}
	if job.Retouched.URL != "" {
		payload["retouched_url"] = job.Retouched.URL
	}
	if job.Status == domain.JobStatusFailed {
		payload["error"] = job.ErrorMessage
	}
	a.json(w, http.StatusOK, payload)
}

// ReprocessJob re-runs an existing job with new parameters, reusing the
// stored original and face rect.
func (a *App) ReprocessJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	if err := r.ParseForm(); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid form payload")
		return
	}

	job, err := a.Orchestrator.Reprocess(r.Context(), jobID,
		domain.NormalizeIntensity(strings.ToLower(r.FormValue("intensity"))),
		parseZoom(r.FormValue("zoom")),
	)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "job not found or missing original data")
			return
		}
		a.Logger.Error().Err(err).Str("job_id", jobID).Msg("http: reprocess failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to reprocess job")
		return
	}

	a.json(w, http.StatusAccepted, jobResponse{JobID: job.ID, Status: string(job.Status)})
}

// DownloadJob streams the retouched result as a ZIP with both delivery sizes.
func (a *App) DownloadJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	archive, filename, err := a.Orchestrator.ExportArchive(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "job not found")
			return
		}
		a.Logger.Error().Err(err).Str("job_id", jobID).Msg("http: export failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to build archive")
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(archive)
}

func (a *App) submitError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidUpload):
		a.error(w, http.StatusBadRequest, "bad_request", "could not read image file")
	case errors.Is(err, domain.ErrNoFaceDetected):
		a.error(w, http.StatusUnprocessableEntity, "no_face", "no face detected in the photo, try a different image")
	case errors.Is(err, domain.ErrProviderFailure):
		a.error(w, http.StatusBadGateway, "provider_failure", "face detection is unavailable")
	default:
		a.Logger.Error().Err(err).Msg("http: submit failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to create job")
	}
}

func parseZoom(raw string) float64 {
	if raw == "" {
		return 1.0
	}
	zoom, err := strconv.ParseFloat(raw, 64)
	if err != nil || zoom <= 0 {
		return 1.0
	}
	return zoom
}
