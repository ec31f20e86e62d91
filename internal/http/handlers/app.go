package handlers

import (
	"encoding/json"
	"net/http"

	"server/internal/feedback"
	"server/internal/infra"
	"server/internal/retouchjob"
)

// App is the handler container wiring HTTP routes to the job orchestrator and
// feedback loop.
type App struct {
	Orchestrator   *retouchjob.Orchestrator
	Aggregator     *feedback.Aggregator
	Revisor        *feedback.Controller
	MaxUploadBytes int64
	Logger         infra.Logger
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, map[string]any{
		"error": map[string]string{
			"code":    errCode,
			"message": message,
		},
	})
}
