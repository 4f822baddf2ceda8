// Package tracker owns the dashboard state and applies every user-visible
// operation: editing projects, toggling steps, archiving and the delayed
// completion effects.
package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/statusboard/internal/apperr"
	"github.com/starford/statusboard/internal/gate"
	"github.com/starford/statusboard/internal/history"
	"github.com/starford/statusboard/internal/lifecycle"
	"github.com/starford/statusboard/internal/models"
	"github.com/starford/statusboard/internal/parser"
	"github.com/starford/statusboard/internal/projectstore"
	"github.com/starford/statusboard/internal/resolver"
)

// Repository persists the active and archived sets.
type Repository interface {
	LoadActive() []models.Project
	LoadArchived() []models.Project
	SaveActive(projects []models.Project) error
	SaveArchived(projects []models.Project) error
	SaveBoth(active, archived []models.Project) error
}

// Notification levels.
const (
	LevelInfo    = "info"
	LevelSuccess = "success"
	LevelError   = "error"
)

// Notifier delivers user-facing messages and change events.
type Notifier interface {
	Notify(level, message string)
	PublishProjectEvent(kind, projectID string)
}

// Indexer refreshes the search index after the store changes.
type Indexer interface {
	Refresh() error
}

// ActivityLog records lifecycle events.
type ActivityLog interface {
	LogEvent(e history.Event) error
}

// Project is a project together with the set it lives in.
type Project struct {
	models.Project
	Archived bool `json:"archived"`
}

// ToggleOutcome reports the result of a toggle request. A denied toggle is
// not an error; Decision carries the reason.
type ToggleOutcome struct {
	Project  models.Project   `json:"project"`
	Decision gate.Decision    `json:"decision"`
	Effect   lifecycle.Effect `json:"-"`
	Pending  string           `json:"pending,omitempty"`
	Message  string           `json:"message,omitempty"`
}

// Service serializes all state changes. Each operation loads the current
// sets, applies the change and writes the result back.
type Service struct {
	repo      Repository
	notifier  Notifier
	activity  ActivityLog
	indexer   Indexer
	scheduler lifecycle.Scheduler
	logger    *slog.Logger
	delay     time.Duration
	now       func() time.Time
	newID     func() string
	newStepID parser.IDFunc

	mu sync.Mutex
}

// Option configures a Service.
type Option func(*Service)

// WithNotifier sets the message sink.
func WithNotifier(n Notifier) Option { return func(s *Service) { s.notifier = n } }

// WithActivityLog sets where lifecycle events are recorded.
func WithActivityLog(a ActivityLog) Option { return func(s *Service) { s.activity = a } }

// WithIndexer sets the search index refreshed after every successful save.
func WithIndexer(ix Indexer) Option { return func(s *Service) { s.indexer = ix } }

// WithScheduler sets the scheduler for delayed completion effects.
func WithScheduler(sch lifecycle.Scheduler) Option { return func(s *Service) { s.scheduler = sch } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.logger = l } }

// WithCompletionDelay sets the pause between finishing a project and
// archiving or resetting it.
func WithCompletionDelay(d time.Duration) Option { return func(s *Service) { s.delay = d } }

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithIDs overrides project and step id generation.
func WithIDs(project func() string, step parser.IDFunc) Option {
	return func(s *Service) {
		s.newID = project
		s.newStepID = step
	}
}

// NewService creates a Service backed by repo.
func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo:      repo,
		delay:     lifecycle.DefaultCompletionDelay,
		now:       time.Now,
		newID:     func() string { return "project-" + uuid.NewString() },
		newStepID: parser.NewStepID,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.notifier == nil {
		s.notifier = logNotifier{s.logger}
	}
	if s.scheduler == nil {
		s.scheduler = lifecycle.NewTimerScheduler()
	}
	return s
}

type logNotifier struct{ logger *slog.Logger }

func (n logNotifier) Notify(level, message string) {
	n.logger.Info("notification", "level", level, "message", message)
}

func (logNotifier) PublishProjectEvent(string, string) {}

// Get returns a project from either set, active first.
func (s *Service) Get(_ context.Context, id string) (*Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	active := s.repo.LoadActive()
	if i := indexOf(active, id); i >= 0 {
		return &Project{Project: active[i]}, nil
	}
	archived := s.repo.LoadArchived()
	if i := indexOf(archived, id); i >= 0 {
		return &Project{Project: archived[i], Archived: true}, nil
	}
	return nil, apperr.ErrNotFound
}

// ListActive returns active projects ordered by status priority, then by
// due date. Projects without a due date sort last within their status.
func (s *Service) ListActive(_ context.Context) []models.Project {
	s.mu.Lock()
	projects := s.repo.LoadActive()
	s.mu.Unlock()

	sort.SliceStable(projects, func(i, j int) bool {
		a, b := projects[i], projects[j]
		if pa, pb := a.Status.Priority(), b.Status.Priority(); pa != pb {
			return pa < pb
		}
		if (a.DueDate == "") != (b.DueDate == "") {
			return b.DueDate == ""
		}
		return a.DueDate < b.DueDate
	})
	return projects
}

// ListArchived returns archived projects, most recently archived first.
func (s *Service) ListArchived(_ context.Context) []models.Project {
	s.mu.Lock()
	projects := s.repo.LoadArchived()
	s.mu.Unlock()

	sort.SliceStable(projects, func(i, j int) bool {
		a, b := projects[i].ArchivedAt, projects[j].ArchivedAt
		if a == nil || b == nil {
			return b == nil && a != nil
		}
		return a.After(*b)
	})
	return projects
}

// Create validates in and adds a new project. A project created with status
// completed goes straight to the archive.
func (s *Service) Create(_ context.Context, in ProjectInput) (*Project, error) {
	if err := in.validate(""); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	p := models.Project{
		ID:           s.newID(),
		Title:        in.Title,
		Details:      in.Details,
		StartDate:    in.StartDate,
		DueDate:      in.DueDate,
		Status:       in.Status,
		IsRecurring:  in.IsRecurring,
		Dependencies: in.refs(),
		Steps:        parser.ParseSteps(in.Steps, s.newStepID),
		CreatedAt:    now,
	}
	lifecycle.Normalize(&p)

	if lifecycle.ArchiveOnSave("", p.Status, true) {
		lifecycle.Archive(&p, now)
		archived := append(s.repo.LoadArchived(), p)
		if err := s.repo.SaveArchived(archived); err != nil {
			return nil, s.saveFailed(err)
		}
		s.reindex()
		s.record(p.ID, history.EventCreated, "created as completed")
		s.announceArchived(p)
		return &Project{Project: p, Archived: true}, nil
	}

	active := append(s.repo.LoadActive(), p)
	if err := s.repo.SaveActive(active); err != nil {
		return nil, s.saveFailed(err)
	}
	s.reindex()
	s.record(p.ID, history.EventCreated, "created")
	s.notifier.Notify(LevelSuccess, "Project saved successfully!")
	s.notifier.PublishProjectEvent("created", p.ID)
	return &Project{Project: p}, nil
}

// Update replaces the editable fields of an active project. Step completion
// is carried over for steps whose text is unchanged. Changing the status to
// completed archives the project immediately, recurring or not.
func (s *Service) Update(_ context.Context, id string, in ProjectInput) (*Project, error) {
	if err := in.validate(id); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	active := s.repo.LoadActive()
	i := indexOf(active, id)
	if i < 0 {
		return nil, apperr.ErrNotFound
	}
	prev := active[i]

	next := prev.Clone()
	next.Title = in.Title
	next.Details = in.Details
	next.StartDate = in.StartDate
	next.DueDate = in.DueDate
	next.Status = in.Status
	next.IsRecurring = in.IsRecurring
	next.Dependencies = in.refs()
	next.Steps = parser.Reconcile(prev.Steps, parser.ParseSteps(in.Steps, s.newStepID))
	lifecycle.Normalize(&next)

	if lifecycle.ArchiveOnSave(prev.Status, next.Status, false) {
		lifecycle.Archive(&next, s.now())
		active = append(active[:i], active[i+1:]...)
		archived := append(s.repo.LoadArchived(), next)
		if err := s.repo.SaveBoth(active, archived); err != nil {
			return nil, s.saveFailed(err)
		}
		s.reindex()
		s.scheduler.Cancel(id)
		s.record(id, history.EventArchived, "archived on save")
		s.announceArchived(next)
		return &Project{Project: next, Archived: true}, nil
	}

	active[i] = next
	if err := s.repo.SaveActive(active); err != nil {
		return nil, s.saveFailed(err)
	}
	s.reindex()
	s.record(id, history.EventUpdated, "updated")
	s.notifier.Notify(LevelSuccess, "Project saved successfully!")
	s.notifier.PublishProjectEvent("updated", id)
	return &Project{Project: next}, nil
}

// Delete removes a project from whichever set holds it and cancels any
// pending completion effect.
func (s *Service) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.scheduler.Cancel(id)

	active := s.repo.LoadActive()
	if i := indexOf(active, id); i >= 0 {
		title := active[i].Title
		if err := s.repo.SaveActive(append(active[:i], active[i+1:]...)); err != nil {
			return s.saveFailed(err)
		}
		s.reindex()
		s.deleted(id, title)
		return nil
	}

	archived := s.repo.LoadArchived()
	i := indexOf(archived, id)
	if i < 0 {
		return apperr.ErrNotFound
	}
	title := archived[i].Title
	if err := s.repo.SaveArchived(append(archived[:i], archived[i+1:]...)); err != nil {
		return s.saveFailed(err)
	}
	s.reindex()
	s.deleted(id, title)
	return nil
}

func (s *Service) deleted(id, title string) {
	s.record(id, history.EventDeleted, fmt.Sprintf("deleted %q", title))
	s.notifier.Notify(LevelInfo, fmt.Sprintf("Project %q deleted.", title))
	s.notifier.PublishProjectEvent("deleted", id)
}

// CanToggle evaluates the completion gate without changing anything.
func (s *Service) CanToggle(_ context.Context, projectID, stepID string) (gate.Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	active, archived := s.repo.LoadActive(), s.repo.LoadArchived()
	i := indexOf(active, projectID)
	if i < 0 {
		return gate.Decision{}, apperr.ErrNotFound
	}
	return gate.CanToggleStep(&active[i], stepID, resolver.NewCatalog(active, archived)), nil
}

// ToggleStep flips a step if the gate allows it. Completing the last step
// schedules the archive or reset after the completion delay.
func (s *Service) ToggleStep(_ context.Context, projectID, stepID string) (*ToggleOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	active, archived := s.repo.LoadActive(), s.repo.LoadArchived()
	i := indexOf(active, projectID)
	if i < 0 {
		return nil, apperr.ErrNotFound
	}
	p := &active[i]
	if _, ok := p.Step(stepID); !ok {
		return nil, fmt.Errorf("step %s: %w", stepID, apperr.ErrNotFound)
	}

	res := lifecycle.Toggle(p, stepID, resolver.NewCatalog(active, archived))
	out := &ToggleOutcome{Project: *p, Decision: res.Decision, Effect: res.Effect}
	if !res.Decision.Allowed {
		out.Message = DenialMessage(res.Decision.Reason)
		s.notifier.Notify(LevelError, out.Message)
		return out, nil
	}

	if err := s.repo.SaveActive(active); err != nil {
		return nil, s.saveFailed(err)
	}
	s.reindex()
	state := "completed"
	if !res.Completed {
		state = "reopened"
		s.scheduler.Cancel(projectID)
	}
	step, _ := p.Step(stepID)
	s.record(projectID, history.EventStepToggle, fmt.Sprintf("%s %q", state, step.Text))
	s.notifier.PublishProjectEvent("updated", projectID)

	switch res.Effect {
	case lifecycle.EffectArchive:
		out.Pending = res.Effect.String()
		s.record(projectID, history.EventCompleted, "all steps completed")
		s.notifier.Notify(LevelSuccess, fmt.Sprintf("Project %q completed! Moving to archive...", p.Title))
		s.scheduler.Schedule(projectID, s.delay, func() { s.finishOneOff(projectID) })
	case lifecycle.EffectReset:
		out.Pending = res.Effect.String()
		s.record(projectID, history.EventCompleted, "cycle completed")
		s.notifier.Notify(LevelSuccess, fmt.Sprintf("Great job! %q completed successfully!", p.Title))
		s.scheduler.Schedule(projectID, s.delay, func() { s.finishRecurring(projectID) })
	}
	return out, nil
}

// finishOneOff archives a completed project once the delay has passed. It
// re-checks the project because it may have been edited, reopened or
// deleted in the meantime.
func (s *Service) finishOneOff(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	active := s.repo.LoadActive()
	i := indexOf(active, id)
	if i < 0 {
		return
	}
	p := active[i]
	if p.Status != models.StatusCompleted || !lifecycle.AllComplete(p.Steps) {
		s.logger.Debug("completion effect skipped", "project", id)
		return
	}
	lifecycle.Archive(&p, s.now())
	active = append(active[:i], active[i+1:]...)
	archived := append(s.repo.LoadArchived(), p)
	if err := s.repo.SaveBoth(active, archived); err != nil {
		s.saveFailed(err)
		return
	}
	s.reindex()
	s.record(id, history.EventArchived, "archived after completion")
	s.announceArchived(p)
}

func (s *Service) finishRecurring(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	active := s.repo.LoadActive()
	i := indexOf(active, id)
	if i < 0 || !lifecycle.AllComplete(active[i].Steps) {
		return
	}
	lifecycle.ResetRecurring(&active[i])
	if err := s.repo.SaveActive(active); err != nil {
		s.saveFailed(err)
		return
	}
	s.reindex()
	s.record(id, history.EventReset, "recurring cycle reset")
	s.notifier.Notify(LevelSuccess, fmt.Sprintf("Recurring project %q has been reset and is ready for the next cycle!", active[i].Title))
	s.notifier.PublishProjectEvent("reset", id)
}

// Archive moves an active project to the archive right away.
func (s *Service) Archive(_ context.Context, id string) (*Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	active := s.repo.LoadActive()
	i := indexOf(active, id)
	if i < 0 {
		return nil, apperr.ErrNotFound
	}
	p := active[i]
	lifecycle.Archive(&p, s.now())
	active = append(active[:i], active[i+1:]...)
	archived := append(s.repo.LoadArchived(), p)
	if err := s.repo.SaveBoth(active, archived); err != nil {
		return nil, s.saveFailed(err)
	}
	s.reindex()
	s.scheduler.Cancel(id)
	s.record(id, history.EventArchived, "archived")
	s.announceArchived(p)
	return &Project{Project: p, Archived: true}, nil
}

// Unarchive returns an archived project to the active set as in-progress.
func (s *Service) Unarchive(_ context.Context, id string) (*Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	archived := s.repo.LoadArchived()
	i := indexOf(archived, id)
	if i < 0 {
		return nil, apperr.ErrNotFound
	}
	active := s.repo.LoadActive()
	if indexOf(active, id) >= 0 {
		// An import can bring back an id that is still archived.
		return nil, fmt.Errorf("project %s is already active: %w", id, apperr.ErrAlreadyExists)
	}
	p := archived[i]
	lifecycle.Unarchive(&p, s.now())
	archived = append(archived[:i], archived[i+1:]...)
	active = append(active, p)
	if err := s.repo.SaveBoth(active, archived); err != nil {
		return nil, s.saveFailed(err)
	}
	s.reindex()
	s.record(id, history.EventUnarchived, "moved back to active")
	s.notifier.Notify(LevelSuccess, "Project moved back to active dashboard!")
	s.notifier.PublishProjectEvent("unarchived", id)
	return &Project{Project: p}, nil
}

// Dependencies resolves every dependency of a project for display.
func (s *Service) Dependencies(_ context.Context, id string) (*resolver.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	active, archived := s.repo.LoadActive(), s.repo.LoadArchived()
	cat := resolver.NewCatalog(active, archived)
	p, _, ok := cat.Lookup(id)
	if !ok {
		return nil, apperr.ErrNotFound
	}
	r := cat.Describe(p)
	return &r, nil
}

// Export encodes the active set in the export file format.
func (s *Service) Export(_ context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return projectstore.EncodeExport(s.repo.LoadActive(), s.now())
}

// ExportArchived encodes the archived set.
func (s *Service) ExportArchived(_ context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return projectstore.EncodeArchiveExport(s.repo.LoadArchived(), s.now())
}

// Import replaces the active set with the projects in data. It requires
// explicit confirmation and leaves the current set untouched on any error.
func (s *Service) Import(_ context.Context, data []byte, confirm bool) (int, error) {
	projects, err := projectstore.DecodeImport(data)
	if err != nil {
		return 0, err
	}
	if !confirm {
		return 0, fmt.Errorf("import would replace all active projects: %w", apperr.ErrConfirmationRequired)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.repo.LoadActive() {
		s.scheduler.Cancel(p.ID)
	}
	if err := s.repo.SaveActive(projects); err != nil {
		return 0, s.saveFailed(err)
	}
	s.reindex()
	s.record("", history.EventImported, fmt.Sprintf("imported %d projects", len(projects)))
	s.notifier.Notify(LevelSuccess, "Projects imported successfully!")
	s.notifier.PublishProjectEvent("imported", "")
	return len(projects), nil
}

func (s *Service) announceArchived(p models.Project) {
	s.notifier.Notify(LevelSuccess, fmt.Sprintf("Project %q has been archived!", p.Title))
	s.notifier.PublishProjectEvent("archived", p.ID)
}

func (s *Service) saveFailed(err error) error {
	s.logger.Warn("save failed", "error", err)
	s.notifier.Notify(LevelError, "Could not save changes. Storage may be full or unavailable.")
	return err
}

func (s *Service) reindex() {
	if s.indexer == nil {
		return
	}
	if err := s.indexer.Refresh(); err != nil {
		s.logger.Warn("search index refresh failed", slog.String("error", err.Error()))
	}
}

func (s *Service) record(projectID string, kind history.EventKind, message string) {
	if s.activity == nil {
		return
	}
	if err := s.activity.LogEvent(history.Event{ProjectID: projectID, Kind: kind, Message: message, CreatedAt: s.now().UTC()}); err != nil {
		s.logger.Warn("activity log failed", "kind", kind, "error", err)
	}
}

func indexOf(projects []models.Project, id string) int {
	for i := range projects {
		if projects[i].ID == id {
			return i
		}
	}
	return -1
}
