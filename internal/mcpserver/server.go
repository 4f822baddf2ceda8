// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes dashboard tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/statusboard/internal/apperr"
	"github.com/starford/statusboard/internal/history"
	"github.com/starford/statusboard/internal/models"
	"github.com/starford/statusboard/internal/tracker"
)

const stepsFormatURI = "statusboard://steps-format"

// Searcher is the full-text side of the history database.
type Searcher interface {
	Search(query string, limit int) ([]history.SearchResult, error)
}

// Server wraps the MCP server with dashboard tools.
type Server struct {
	mcp    *server.MCPServer
	svc    *tracker.Service
	search Searcher
}

// New creates a new MCP server with all dashboard tools registered.
// search may be nil, in which case search_projects is not offered.
func New(svc *tracker.Service, search Searcher) *Server {
	s := &Server{svc: svc, search: search}

	s.mcp = server.NewMCPServer(
		"Statusboard",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_projects",
		mcp.WithDescription("List projects with status, progress and due date. Active projects are sorted by status priority, then due date."),
		mcp.WithBoolean("archived", mcp.Description("List archived projects instead of active ones")),
	), s.listProjects)

	s.mcp.AddTool(mcp.NewTool("get_project",
		mcp.WithDescription("Get a project with its full step hierarchy and dependencies."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Project ID")),
	), s.getProject)

	s.mcp.AddTool(mcp.NewTool("create_project",
		mcp.WithDescription("Create a project. Steps MUST follow the step notation; read it first via "+
			"the get_steps_contract tool or the "+stepsFormatURI+" resource."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Project title")),
		mcp.WithString("startDate", mcp.Required(), mcp.Description("Start date, YYYY-MM-DD")),
		mcp.WithString("dueDate", mcp.Required(), mcp.Description("Due date, YYYY-MM-DD, not before startDate")),
		mcp.WithString("status", mcp.Description("in-progress, not-started (default), on-hold or completed")),
		mcp.WithString("details", mcp.Description("Free-form description")),
		mcp.WithString("steps", mcp.Description("Steps in the step notation, one per line")),
		mcp.WithString("dependencies", mcp.Description("Comma-separated references: project:<id> or task:<projectId>:<stepId>")),
		mcp.WithBoolean("isRecurring", mcp.Description("Reset instead of archiving when all steps are done")),
	), s.createProject)

	s.mcp.AddTool(mcp.NewTool("toggle_step",
		mcp.WithDescription("Toggle a step's completion. Refused when dependencies are unmet or children are incomplete."),
		mcp.WithString("project_id", mcp.Required(), mcp.Description("Project ID")),
		mcp.WithString("step_id", mcp.Required(), mcp.Description("Step ID")),
	), s.toggleStep)

	s.mcp.AddTool(mcp.NewTool("can_toggle_step",
		mcp.WithDescription("Check whether a step may be toggled right now, without changing it."),
		mcp.WithString("project_id", mcp.Required(), mcp.Description("Project ID")),
		mcp.WithString("step_id", mcp.Required(), mcp.Description("Step ID")),
	), s.canToggleStep)

	s.mcp.AddTool(mcp.NewTool("dependency_status",
		mcp.WithDescription("Resolve each dependency of a project and report which are unmet."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Project ID")),
	), s.dependencyStatus)

	s.mcp.AddTool(mcp.NewTool("archive_project",
		mcp.WithDescription("Move an active project to the archive."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Project ID")),
	), s.archiveProject)

	s.mcp.AddTool(mcp.NewTool("unarchive_project",
		mcp.WithDescription("Move an archived project back to the dashboard as in-progress."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Project ID")),
	), s.unarchiveProject)

	s.mcp.AddTool(mcp.NewTool("project_stats",
		mcp.WithDescription("Dashboard counters: projects by status, completion rate and archive totals."),
	), s.projectStats)

	s.mcp.AddTool(mcp.NewTool("get_steps_contract",
		mcp.WithDescription("Returns the step notation contract. "+
			"Call this before creating projects to ensure correct structure."),
	), s.getStepsContract)

	if search != nil {
		s.mcp.AddTool(mcp.NewTool("search_projects",
			mcp.WithDescription("Full-text search through project titles, details and step text."),
			mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
		), s.searchProjects)
	}

	// Resource: step notation contract.
	s.mcp.AddResource(
		mcp.NewResource(stepsFormatURI, "Step Notation Contract",
			mcp.WithResourceDescription("Plain-text notation for project steps and the rules for completing them."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readStepsFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func errorResult(err error) (*mcp.CallToolResult, error) {
	var verr *apperr.ValidationError
	if errors.As(err, &verr) {
		return mcp.NewToolResultError(verr.Error()), nil
	}
	return mcp.NewToolResultError(err.Error()), nil
}

type projectSummary struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	Status    models.Status `json:"status"`
	Progress  int           `json:"progress"`
	DueDate   string        `json:"dueDate"`
	Recurring bool          `json:"isRecurring,omitempty"`
}

func (s *Server) listProjects(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var projects []models.Project
	if req.GetBool("archived", false) {
		projects = s.svc.ListArchived(ctx)
	} else {
		projects = s.svc.ListActive(ctx)
	}
	out := make([]projectSummary, len(projects))
	for i, p := range projects {
		out[i] = projectSummary{ID: p.ID, Title: p.Title, Status: p.Status, Progress: p.Progress, DueDate: p.DueDate, Recurring: p.IsRecurring}
	}
	return jsonResult(out)
}

func (s *Server) getProject(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	p, err := s.svc.Get(ctx, id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
		}
		return errorResult(err)
	}
	return jsonResult(p)
}

func (s *Server) createProject(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	in := tracker.ProjectInput{
		Title:       title,
		StartDate:   req.GetString("startDate", ""),
		DueDate:     req.GetString("dueDate", ""),
		Status:      models.Status(req.GetString("status", "")),
		Details:     req.GetString("details", ""),
		Steps:       req.GetString("steps", ""),
		IsRecurring: req.GetBool("isRecurring", false),
	}
	if deps := req.GetString("dependencies", ""); deps != "" {
		in.Dependencies = strings.Split(deps, ",")
	}
	p, err := s.svc.Create(ctx, in)
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(p)
}

func stepArgs(req mcp.CallToolRequest) (string, string, error) {
	projectID, err := req.RequireString("project_id")
	if err != nil {
		return "", "", err
	}
	stepID, err := req.RequireString("step_id")
	if err != nil {
		return "", "", err
	}
	return projectID, stepID, nil
}

func (s *Server) toggleStep(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID, stepID, err := stepArgs(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, err := s.svc.ToggleStep(ctx, projectID, stepID)
	if err != nil {
		return errorResult(err)
	}
	if !out.Decision.Allowed {
		return mcp.NewToolResultError(fmt.Sprintf("refused: %s", out.Message)), nil
	}
	return jsonResult(out)
}

func (s *Server) canToggleStep(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID, stepID, err := stepArgs(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	d, err := s.svc.CanToggle(ctx, projectID, stepID)
	if err != nil {
		return errorResult(err)
	}
	if d.Allowed {
		return mcp.NewToolResultText("allowed"), nil
	}
	return mcp.NewToolResultText("denied: " + d.Reason), nil
}

func (s *Server) dependencyStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	report, err := s.svc.Dependencies(ctx, id)
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(report)
}

func (s *Server) archiveProject(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	p, err := s.svc.Archive(ctx, id)
	if err != nil {
		return errorResult(err)
	}
	return mcp.NewToolResultText(fmt.Sprintf("archived: %s", p.Title)), nil
}

func (s *Server) unarchiveProject(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	p, err := s.svc.Unarchive(ctx, id)
	if err != nil {
		return errorResult(err)
	}
	return mcp.NewToolResultText(fmt.Sprintf("restored: %s", p.Title)), nil
}

func (s *Server) projectStats(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.svc.Stats(ctx))
}

func (s *Server) searchProjects(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.search.Search(query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(results)
}

func (s *Server) getStepsContract(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(StepsFormatContract), nil
}

func (s *Server) readStepsFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      stepsFormatURI,
			MIMEType: "text/markdown",
			Text:     StepsFormatContract,
		},
	}, nil
}
