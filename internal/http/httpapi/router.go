package httpapi

import (
	stdhttp "net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"server/internal/http/handlers"
	"server/internal/infra"
	"server/internal/middleware"
)

// NewRouter assembles the public API surface.
func NewRouter(app *handlers.App, cfg *infra.Config, logger infra.Logger) stdhttp.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, chimiddleware.RealIP, chimiddleware.Recoverer)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	r.Get("/healthz", app.Health)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.RateLimitPerMin, time.Minute))
		r.Post("/process", app.ProcessPhoto)
		r.Post("/reprocess/{job_id}", app.ReprocessJob)
	})

	r.Get("/status/{job_id}", app.JobStatus)
	r.Get("/download/{job_id}", app.DownloadJob)

	r.Post("/rate/{job_id}", app.RateJob)
	r.Get("/feedback/stats", app.FeedbackStats)
	r.Post("/feedback/analyze", app.FeedbackAnalyze)

	return r
}
