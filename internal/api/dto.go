package api

import (
	"github.com/starford/statusboard/internal/gate"
	"github.com/starford/statusboard/internal/history"
	"github.com/starford/statusboard/internal/models"
	"github.com/starford/statusboard/internal/resolver"
	"github.com/starford/statusboard/internal/tracker"
)

// ProjectRequest is the request body for creating or updating a project.
type ProjectRequest = tracker.ProjectInput

// ProjectResponse is a project together with the set it lives in.
type ProjectResponse = tracker.Project

// ProjectListResponse wraps a project listing.
type ProjectListResponse struct {
	Projects []models.Project `json:"projects" validate:"required"`
	Total    int              `json:"total" example:"3" validate:"required"`
}

// ToggleResponse is returned by the toggle endpoint, with status 409 when
// the completion gate refuses.
type ToggleResponse = tracker.ToggleOutcome

// GateResponse reports whether a step may be toggled right now.
type GateResponse struct {
	gate.Decision
	Message string `json:"message,omitempty" example:"Cannot complete subtask until all sub-subtasks are completed."`
}

// DependencyReport lists the resolved dependencies of a project.
type DependencyReport = resolver.Report

// StatsResponse is the dashboard header summary.
type StatsResponse = tracker.Stats

// ImportResponse is returned after a successful import.
type ImportResponse struct {
	Imported int `json:"imported" example:"12" validate:"required"`
}

// ParseStepsRequest is the request body for previewing step notation.
type ParseStepsRequest struct {
	Text string `json:"text" example:"Design\n+ Mockups\n++ Header" validate:"required"`
}

// ParseStepsResponse holds the parsed step list.
type ParseStepsResponse struct {
	Steps []models.Step `json:"steps" validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []history.SearchResult `json:"results" validate:"required"`
}

// ActivityResponse wraps activity log entries, newest first.
type ActivityResponse struct {
	Events []history.Event `json:"events" validate:"required"`
}

// ValidationErrorResponse carries per-field messages.
type ValidationErrorResponse struct {
	Error  string            `json:"error" example:"validation failed" validate:"required"`
	Fields map[string]string `json:"fields" validate:"required"`
}
