package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/statusboard/internal/tracker"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// hist may be nil, in which case search and activity answer 503.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *tracker.Service, hist History, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc, hist)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Projects.
	r.Get("/projects", h.ListProjects)
	r.Post("/projects", h.CreateProject)
	r.Route("/projects/{id}", func(r chi.Router) {
		r.Get("/", h.GetProject)
		r.Put("/", h.UpdateProject)
		r.Delete("/", h.DeleteProject)
		r.Post("/archive", h.ArchiveProject)
		r.Post("/unarchive", h.UnarchiveProject)
		r.Get("/dependencies", h.Dependencies)
		r.Get("/activity", h.ProjectActivity)
		r.Get("/steps/{stepID}/gate", h.StepGate)
		r.Post("/steps/{stepID}/toggle", h.ToggleStep)
	})

	// Archive.
	r.Get("/archive", h.ListArchived)
	r.Get("/archive/export", h.ExportArchived)

	// Dashboard.
	r.Get("/stats", h.Stats)
	r.Post("/steps/parse", h.ParseSteps)

	// Import / export.
	r.Get("/export", h.Export)
	r.Get("/export.xlsx", h.ExportWorkbook)
	r.Post("/import", h.Import)

	// History.
	r.Get("/search", h.Search)
	r.Get("/activity", h.Activity)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
