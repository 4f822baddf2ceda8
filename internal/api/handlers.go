package api

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/statusboard/internal/exporter"
	"github.com/starford/statusboard/internal/history"
	"github.com/starford/statusboard/internal/parser"
	"github.com/starford/statusboard/internal/tracker"
)

const maxBodyBytes = 10 << 20

// History is the read side of the search index and activity log.
type History interface {
	Search(query string, limit int) ([]history.SearchResult, error)
	Events(projectID string, limit int) ([]history.Event, error)
}

// Handler holds API route handlers.
type Handler struct {
	svc  *tracker.Service
	hist History
}

// NewHandler creates a new Handler.
func NewHandler(svc *tracker.Service, hist History) *Handler {
	return &Handler{svc: svc, hist: hist}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	return true
}

// ListProjects handles GET /api/projects.
//
//	@Summary		List active projects by status priority and due date
//	@Tags			projects
//	@Produce		json
//	@Success		200	{object}	ProjectListResponse
//	@Security		BearerAuth
//	@Router			/projects [get]
func (h *Handler) ListProjects(w http.ResponseWriter, r *http.Request) {
	projects := h.svc.ListActive(r.Context())
	writeJSON(w, http.StatusOK, ProjectListResponse{Projects: projects, Total: len(projects)})
}

// GetProject handles GET /api/projects/{id}.
//
//	@Summary		Get an active or archived project
//	@Tags			projects
//	@Produce		json
//	@Param			id	path		string	true	"Project ID"
//	@Success		200	{object}	ProjectResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/projects/{id} [get]
func (h *Handler) GetProject(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get project", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// CreateProject handles POST /api/projects.
//
//	@Summary		Create a project from form fields and step notation
//	@Tags			projects
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ProjectRequest	true	"Project to create"
//	@Success		201		{object}	ProjectResponse
//	@Failure		400		{object}	ValidationErrorResponse
//	@Security		BearerAuth
//	@Router			/projects [post]
func (h *Handler) CreateProject(w http.ResponseWriter, r *http.Request) {
	var req ProjectRequest
	if !decodeBody(w, r, &req) {
		return
	}
	p, err := h.svc.Create(r.Context(), req)
	if err != nil {
		writeError(w, "create project", err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// UpdateProject handles PUT /api/projects/{id}.
//
//	@Summary		Replace the editable fields of an active project
//	@Description	Completion is kept for steps whose text is unchanged. Setting status to completed archives the project.
//	@Tags			projects
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Project ID"
//	@Param			body	body		ProjectRequest	true	"Updated project"
//	@Success		200		{object}	ProjectResponse
//	@Failure		400		{object}	ValidationErrorResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/projects/{id} [put]
func (h *Handler) UpdateProject(w http.ResponseWriter, r *http.Request) {
	var req ProjectRequest
	if !decodeBody(w, r, &req) {
		return
	}
	p, err := h.svc.Update(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, "update project", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// DeleteProject handles DELETE /api/projects/{id}.
//
//	@Summary		Delete an active or archived project
//	@Tags			projects
//	@Param			id	path	string	true	"Project ID"
//	@Success		204	"Project deleted"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/projects/{id} [delete]
func (h *Handler) DeleteProject(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, "delete project", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ArchiveProject handles POST /api/projects/{id}/archive.
//
//	@Summary		Move an active project to the archive
//	@Tags			archive
//	@Produce		json
//	@Param			id	path		string	true	"Project ID"
//	@Success		200	{object}	ProjectResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/projects/{id}/archive [post]
func (h *Handler) ArchiveProject(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Archive(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "archive project", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// UnarchiveProject handles POST /api/projects/{id}/unarchive.
//
//	@Summary		Return an archived project to the dashboard
//	@Tags			archive
//	@Produce		json
//	@Param			id	path		string	true	"Project ID"
//	@Success		200	{object}	ProjectResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/projects/{id}/unarchive [post]
func (h *Handler) UnarchiveProject(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Unarchive(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "unarchive project", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Dependencies handles GET /api/projects/{id}/dependencies.
//
//	@Summary		Resolve the dependencies of a project
//	@Tags			projects
//	@Produce		json
//	@Param			id	path		string	true	"Project ID"
//	@Success		200	{object}	DependencyReport
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/projects/{id}/dependencies [get]
func (h *Handler) Dependencies(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.Dependencies(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "dependencies", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// StepGate handles GET /api/projects/{id}/steps/{stepID}/gate.
//
//	@Summary		Check whether a step may be toggled
//	@Tags			steps
//	@Produce		json
//	@Param			id		path		string	true	"Project ID"
//	@Param			stepID	path		string	true	"Step ID"
//	@Success		200		{object}	GateResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/projects/{id}/steps/{stepID}/gate [get]
func (h *Handler) StepGate(w http.ResponseWriter, r *http.Request) {
	d, err := h.svc.CanToggle(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "stepID"))
	if err != nil {
		writeError(w, "step gate", err)
		return
	}
	resp := GateResponse{Decision: d}
	if !d.Allowed {
		resp.Message = tracker.DenialMessage(d.Reason)
	}
	writeJSON(w, http.StatusOK, resp)
}

// ToggleStep handles POST /api/projects/{id}/steps/{stepID}/toggle.
//
//	@Summary		Toggle a step's completion
//	@Description	Completing the last step schedules the archive (one-off) or reset (recurring).
//	@Tags			steps
//	@Produce		json
//	@Param			id		path		string	true	"Project ID"
//	@Param			stepID	path		string	true	"Step ID"
//	@Success		200		{object}	ToggleResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	ToggleResponse	"Refused by the completion gate"
//	@Security		BearerAuth
//	@Router			/projects/{id}/steps/{stepID}/toggle [post]
func (h *Handler) ToggleStep(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.ToggleStep(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "stepID"))
	if err != nil {
		writeError(w, "toggle step", err)
		return
	}
	status := http.StatusOK
	if !out.Decision.Allowed {
		status = http.StatusConflict
	}
	writeJSON(w, status, out)
}

// ListArchived handles GET /api/archive.
//
//	@Summary		List archived projects, most recent first
//	@Tags			archive
//	@Produce		json
//	@Success		200	{object}	ProjectListResponse
//	@Security		BearerAuth
//	@Router			/archive [get]
func (h *Handler) ListArchived(w http.ResponseWriter, r *http.Request) {
	projects := h.svc.ListArchived(r.Context())
	writeJSON(w, http.StatusOK, ProjectListResponse{Projects: projects, Total: len(projects)})
}

// ExportArchived handles GET /api/archive/export.
//
//	@Summary		Download the archived projects
//	@Tags			archive
//	@Produce		json
//	@Success		200	{file}	file
//	@Security		BearerAuth
//	@Router			/archive/export [get]
func (h *Handler) ExportArchived(w http.ResponseWriter, r *http.Request) {
	data, err := h.svc.ExportArchived(r.Context())
	if err != nil {
		writeError(w, "export archive", err)
		return
	}
	attachment(w, "archived-projects.json", "application/json")
	_, _ = w.Write(data)
}

// Stats handles GET /api/stats.
//
//	@Summary		Dashboard counters
//	@Tags			dashboard
//	@Produce		json
//	@Success		200	{object}	StatsResponse
//	@Security		BearerAuth
//	@Router			/stats [get]
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Stats(r.Context()))
}

// ParseSteps handles POST /api/steps/parse.
//
//	@Summary		Preview how step notation will be parsed
//	@Tags			steps
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ParseStepsRequest	true	"Step notation"
//	@Success		200		{object}	ParseStepsResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/steps/parse [post]
func (h *Handler) ParseSteps(w http.ResponseWriter, r *http.Request) {
	var req ParseStepsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, ParseStepsResponse{Steps: parser.ParseSteps(req.Text, parser.NewStepID)})
}

// Export handles GET /api/export.
//
//	@Summary		Download the active projects in the export format
//	@Tags			transfer
//	@Produce		json
//	@Success		200	{file}	file
//	@Security		BearerAuth
//	@Router			/export [get]
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	data, err := h.svc.Export(r.Context())
	if err != nil {
		writeError(w, "export", err)
		return
	}
	attachment(w, "projects.json", "application/json")
	_, _ = w.Write(data)
}

// ExportWorkbook handles GET /api/export.xlsx.
//
//	@Summary		Download both project sets as an Excel workbook
//	@Tags			transfer
//	@Produce		application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
//	@Success		200	{file}	file
//	@Security		BearerAuth
//	@Router			/export.xlsx [get]
func (h *Handler) ExportWorkbook(w http.ResponseWriter, r *http.Request) {
	active, archived := h.svc.ListActive(r.Context()), h.svc.ListArchived(r.Context())
	f, err := exporter.Workbook(active, archived)
	if err != nil {
		writeError(w, "export workbook", err)
		return
	}
	defer f.Close()
	attachment(w, "projects.xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	if err := f.Write(w); err != nil {
		slog.Error("write workbook failed", slog.String("error", err.Error()))
	}
}

// Import handles POST /api/import.
//
//	@Summary		Replace the active projects with an export file
//	@Description	Requires confirm=true since every active project is replaced.
//	@Tags			transfer
//	@Accept			json
//	@Produce		json
//	@Param			confirm	query		bool	true	"Confirm replacement"
//	@Success		200		{object}	ImportResponse
//	@Failure		400		{object}	errResponse
//	@Failure		428		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/import [post]
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read body"))
		return
	}
	confirm, _ := strconv.ParseBool(r.URL.Query().Get("confirm"))
	n, err := h.svc.Import(r.Context(), data, confirm)
	if err != nil {
		writeError(w, "import", err)
		return
	}
	writeJSON(w, http.StatusOK, ImportResponse{Imported: n})
}

// Search handles GET /api/search.
//
//	@Summary		Full-text search across project titles, details and steps
//	@Tags			history
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	if h.hist == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("search index unavailable"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.hist.Search(q, limit)
	if err != nil {
		slog.Error("search failed", slog.String("query", q), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if results == nil {
		results = []history.SearchResult{}
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// Activity handles GET /api/activity.
//
//	@Summary		Recent lifecycle events across all projects
//	@Tags			history
//	@Produce		json
//	@Param			limit	query		int	false	"Max events"
//	@Success		200		{object}	ActivityResponse
//	@Security		BearerAuth
//	@Router			/activity [get]
func (h *Handler) Activity(w http.ResponseWriter, r *http.Request) {
	h.activity(w, r, "")
}

// ProjectActivity handles GET /api/projects/{id}/activity.
//
//	@Summary		Recent lifecycle events of one project
//	@Tags			history
//	@Produce		json
//	@Param			id		path		string	true	"Project ID"
//	@Param			limit	query		int		false	"Max events"
//	@Success		200		{object}	ActivityResponse
//	@Security		BearerAuth
//	@Router			/projects/{id}/activity [get]
func (h *Handler) ProjectActivity(w http.ResponseWriter, r *http.Request) {
	h.activity(w, r, chi.URLParam(r, "id"))
}

func (h *Handler) activity(w http.ResponseWriter, r *http.Request, projectID string) {
	if h.hist == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("activity log unavailable"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	events, err := h.hist.Events(projectID, limit)
	if err != nil {
		slog.Error("activity failed", slog.String("project", projectID), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if events == nil {
		events = []history.Event{}
	}
	writeJSON(w, http.StatusOK, ActivityResponse{Events: events})
}

func attachment(w http.ResponseWriter, filename, contentType string) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
}
