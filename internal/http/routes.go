package httpx

import (
	"log/slog"
	"net/http"

	"github.com/audioscribe/audioscribe/internal/service"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Jobs     *service.JobService
	Events   *service.EventService
	Settings *service.SettingsService
	Logger   *slog.Logger
}

// NewRouter builds the API router with logging and panic recovery applied to
// every route.
func NewRouter(services RouterServices) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", healthHandler)
	mux.HandleFunc("HEAD /healthz", healthHandler)

	registerJobRoutes(mux, services)
	registerEventRoutes(mux, services)
	registerSettingsRoutes(mux, services)

	var handler http.Handler = mux
	handler = Recover(services.Logger)(handler)
	handler = Logging(services.Logger)(handler)
	return handler
}

func registerJobRoutes(mux *http.ServeMux, services RouterServices) {
	h := &JobHandlers{Svc: services.Jobs}

	mux.HandleFunc("POST /api/jobs", h.Submit)
	mux.HandleFunc("GET /api/jobs", h.List)
	mux.HandleFunc("GET /api/jobs/stats", h.Stats)
	mux.HandleFunc("GET /api/jobs/{id}", h.Get)
	mux.HandleFunc("DELETE /api/jobs/{id}", h.Cancel)
	mux.HandleFunc("POST /api/jobs/{id}/tags", h.AddTags)
	mux.HandleFunc("GET /api/jobs/{id}/transcript", h.GetTranscript)
}

func registerEventRoutes(mux *http.ServeMux, services RouterServices) {
	h := &EventHandlers{Svc: services.Events, Logger: services.Logger}

	mux.HandleFunc("GET /api/events", h.List)
	mux.HandleFunc("GET /api/events/stream", h.Stream)
	mux.HandleFunc("GET /api/jobs/{id}/events", h.ListForJob)
}

func registerSettingsRoutes(mux *http.ServeMux, services RouterServices) {
	h := &SettingsHandlers{Svc: services.Settings}

	mux.HandleFunc("GET /api/owners/{owner}/settings", h.Get)
	mux.HandleFunc("PUT /api/owners/{owner}/settings", h.Update)
}
