package tracker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/starford/statusboard/internal/apperr"
	"github.com/starford/statusboard/internal/gate"
	"github.com/starford/statusboard/internal/history"
	"github.com/starford/statusboard/internal/lifecycle"
	"github.com/starford/statusboard/internal/models"
	"github.com/starford/statusboard/internal/projectstore"
	"github.com/starford/statusboard/internal/testutil"
	"github.com/starford/statusboard/internal/tracker"
)

type message struct{ level, text string }

type notifier struct {
	mu       sync.Mutex
	messages []message
	events   []string
}

func (n *notifier) Notify(level, text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message{level, text})
}

func (n *notifier) PublishProjectEvent(kind, id string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, kind+":"+id)
}

func (n *notifier) last() message {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.messages) == 0 {
		return message{}
	}
	return n.messages[len(n.messages)-1]
}

type env struct {
	svc   *tracker.Service
	store *projectstore.Store
	sched *testutil.ManualScheduler
	note  *notifier
	now   time.Time
}

func newEnv(t *testing.T, opts ...tracker.Option) *env {
	t.Helper()
	_, store := testutil.TestStore(t)
	e := &env{
		store: store,
		sched: testutil.NewManualScheduler(),
		note:  &notifier{},
		now:   time.Date(2026, 5, 14, 9, 30, 0, 0, time.UTC),
	}
	var n, sn int
	base := []tracker.Option{
		tracker.WithScheduler(e.sched),
		tracker.WithNotifier(e.note),
		tracker.WithLogger(testutil.Logger()),
		tracker.WithClock(func() time.Time { return e.now }),
		tracker.WithIDs(
			func() string { n++; return fmt.Sprintf("p%d", n) },
			func() string { sn++; return fmt.Sprintf("s%d", sn) },
		),
	}
	e.svc = tracker.NewService(store, append(base, opts...)...)
	return e
}

func input(title, steps string) tracker.ProjectInput {
	return tracker.ProjectInput{
		Title:     title,
		StartDate: "2026-05-01",
		DueDate:   "2026-06-01",
		Status:    models.StatusInProgress,
		Steps:     steps,
	}
}

func stepID(t *testing.T, p models.Project, text string) string {
	t.Helper()
	for _, s := range p.Steps {
		if s.Text == text {
			return s.ID
		}
	}
	t.Fatalf("step %q not found", text)
	return ""
}

func TestCreate_Validation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	cases := []struct {
		name  string
		in    tracker.ProjectInput
		field string
	}{
		{"blank title", func() tracker.ProjectInput { in := input("  ", ""); return in }(), "title"},
		{"missing start", func() tracker.ProjectInput { in := input("A", ""); in.StartDate = ""; return in }(), "startDate"},
		{"bad date", func() tracker.ProjectInput { in := input("A", ""); in.DueDate = "06/01/2026"; return in }(), "dueDate"},
		{"due before start", func() tracker.ProjectInput { in := input("A", ""); in.DueDate = "2026-04-01"; return in }(), "dueDate"},
		{"unknown status", func() tracker.ProjectInput { in := input("A", ""); in.Status = "done"; return in }(), "status"},
		{"malformed dependency", func() tracker.ProjectInput {
			in := input("A", "")
			in.Dependencies = []string{"task:only-project"}
			return in
		}(), "dependencies"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.svc.Create(ctx, tc.in)
			require.ErrorIs(t, err, apperr.ErrValidation)
			var verr *apperr.ValidationError
			require.ErrorAs(t, err, &verr)
			require.Contains(t, verr.Fields, tc.field)
		})
	}
	require.Empty(t, e.store.LoadActive())
}

func TestCreate_DefaultsAndOrdering(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	hold := input("Hold", "")
	hold.Status = models.StatusOnHold
	_, err := e.svc.Create(ctx, hold)
	require.NoError(t, err)

	late := input("Late", "")
	late.DueDate = "2026-09-01"
	_, err = e.svc.Create(ctx, late)
	require.NoError(t, err)

	early := input("Early", "A\n+ B")
	created, err := e.svc.Create(ctx, early)
	require.NoError(t, err)
	require.Len(t, created.Steps, 2)
	require.Equal(t, 0, created.Progress)
	require.Equal(t, e.now, created.CreatedAt)

	blank := input("Unset", "")
	blank.Status = ""
	p, err := e.svc.Create(ctx, blank)
	require.NoError(t, err)
	require.Equal(t, models.StatusNotStarted, p.Status)

	var titles []string
	for _, p := range e.svc.ListActive(ctx) {
		titles = append(titles, p.Title)
	}
	require.Equal(t, []string{"Early", "Late", "Unset", "Hold"}, titles)
}

func TestCreate_CompletedGoesToArchive(t *testing.T) {
	e := newEnv(t)
	in := input("Shipped", "")
	in.Status = models.StatusCompleted

	p, err := e.svc.Create(context.Background(), in)
	require.NoError(t, err)
	require.True(t, p.Archived)
	require.Empty(t, e.store.LoadActive())
	require.Len(t, e.store.LoadArchived(), 1)
	require.Equal(t, message{tracker.LevelSuccess, `Project "Shipped" has been archived!`}, e.note.last())
}

// The last step completes a one-off project, which is archived
// after the completion delay.
func TestToggleStep_OneOffArchivesAfterDelay(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p, err := e.svc.Create(ctx, input("Launch", "Prepare\n+ Draft\n+ Review"))
	require.NoError(t, err)

	out, err := e.svc.ToggleStep(ctx, p.ID, stepID(t, p.Project, "Prepare"))
	require.NoError(t, err)
	require.False(t, out.Decision.Allowed)
	require.Equal(t, gate.ReasonSubtasksIncomplete, out.Decision.Reason)
	require.Equal(t, tracker.LevelError, e.note.last().level)

	for _, text := range []string{"Draft", "Review"} {
		out, err = e.svc.ToggleStep(ctx, p.ID, stepID(t, p.Project, text))
		require.NoError(t, err)
		require.True(t, out.Decision.Allowed)
	}
	require.Equal(t, 67, out.Project.Progress)

	out, err = e.svc.ToggleStep(ctx, p.ID, stepID(t, p.Project, "Prepare"))
	require.NoError(t, err)
	require.Equal(t, "archive", out.Pending)
	require.Equal(t, models.StatusCompleted, out.Project.Status)
	require.Equal(t, []string{p.ID}, e.sched.Keys())
	require.Equal(t, lifecycle.DefaultCompletionDelay, e.sched.Delay(p.ID))
	require.Len(t, e.store.LoadActive(), 1, "archive waits for the delay")

	e.now = e.now.Add(2 * time.Second)
	require.True(t, e.sched.Fire(p.ID))

	require.Empty(t, e.store.LoadActive())
	archived := e.store.LoadArchived()
	require.Len(t, archived, 1)
	require.Equal(t, e.now, *archived[0].ArchivedAt)
	require.Equal(t, 100, archived[0].Progress)
	require.Equal(t, message{tracker.LevelSuccess, `Project "Launch" has been archived!`}, e.note.last())
}

// A recurring project resets instead of archiving.
func TestToggleStep_RecurringResets(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	in := input("Weekly report", "Collect numbers\nSend")
	in.IsRecurring = true
	p, err := e.svc.Create(ctx, in)
	require.NoError(t, err)

	for _, s := range p.Steps {
		_, err := e.svc.ToggleStep(ctx, p.ID, s.ID)
		require.NoError(t, err)
	}
	require.Equal(t, message{tracker.LevelSuccess, `Great job! "Weekly report" completed successfully!`}, e.note.last())

	e.sched.FireAll()

	active := e.store.LoadActive()
	require.Len(t, active, 1)
	require.Empty(t, e.store.LoadArchived())
	require.Equal(t, 0, active[0].Progress)
	require.Equal(t, models.StatusInProgress, active[0].Status)
	for _, s := range active[0].Steps {
		require.False(t, s.Completed)
	}
	require.Equal(t, message{tracker.LevelSuccess, `Recurring project "Weekly report" has been reset and is ready for the next cycle!`}, e.note.last())
}

// A dependent project unlocks once its dependency is archived
// as completed.
func TestToggleStep_DependencyUnlocksAfterArchive(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a, err := e.svc.Create(ctx, input("Foundation", "Pour"))
	require.NoError(t, err)

	bIn := input("House", "Frame")
	bIn.Dependencies = []string{a.ID}
	b, err := e.svc.Create(ctx, bIn)
	require.NoError(t, err)
	require.Equal(t, models.ProjectRef(a.ID), b.Dependencies[0])

	frame := stepID(t, b.Project, "Frame")
	d, err := e.svc.CanToggle(ctx, b.ID, frame)
	require.NoError(t, err)
	require.Equal(t, gate.ReasonDependenciesUnmet, d.Reason)

	_, err = e.svc.ToggleStep(ctx, a.ID, stepID(t, a.Project, "Pour"))
	require.NoError(t, err)
	e.sched.Fire(a.ID)

	report, err := e.svc.Dependencies(ctx, b.ID)
	require.NoError(t, err)
	require.False(t, report.Blocked)
	require.True(t, report.Dependencies[0].Archived)

	out, err := e.svc.ToggleStep(ctx, b.ID, frame)
	require.NoError(t, err)
	require.True(t, out.Decision.Allowed)
}

func TestToggleStep_TaskDependency(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a, err := e.svc.Create(ctx, input("Design", "Sketch\nReview"))
	require.NoError(t, err)
	sketch := stepID(t, a.Project, "Sketch")

	bIn := input("Build", "Cut")
	bIn.Dependencies = []string{"task:" + a.ID + ":" + sketch}
	b, err := e.svc.Create(ctx, bIn)
	require.NoError(t, err)

	out, err := e.svc.ToggleStep(ctx, b.ID, stepID(t, b.Project, "Cut"))
	require.NoError(t, err)
	require.False(t, out.Decision.Allowed)

	_, err = e.svc.ToggleStep(ctx, a.ID, sketch)
	require.NoError(t, err)

	out, err = e.svc.ToggleStep(ctx, b.ID, stepID(t, b.Project, "Cut"))
	require.NoError(t, err)
	require.True(t, out.Decision.Allowed)
}

func TestToggleStep_ReopenCancelsPendingArchive(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p, err := e.svc.Create(ctx, input("Quick", "Only"))
	require.NoError(t, err)
	only := stepID(t, p.Project, "Only")

	_, err = e.svc.ToggleStep(ctx, p.ID, only)
	require.NoError(t, err)
	require.Len(t, e.sched.Keys(), 1)

	out, err := e.svc.ToggleStep(ctx, p.ID, only)
	require.NoError(t, err)
	require.Empty(t, e.sched.Keys())
	require.Equal(t, models.StatusInProgress, out.Project.Status)
	require.Len(t, e.store.LoadActive(), 1)
}

func TestToggleStep_StaleEffectIsSkipped(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p, err := e.svc.Create(ctx, input("Quick", "Only"))
	require.NoError(t, err)
	_, err = e.svc.ToggleStep(ctx, p.ID, stepID(t, p.Project, "Only"))
	require.NoError(t, err)

	// The set is replaced behind the scheduler's back.
	active := e.store.LoadActive()
	active[0].Steps[0].Completed = false
	active[0].Status = models.StatusInProgress
	require.NoError(t, e.store.SaveActive(active))

	e.sched.FireAll()
	require.Len(t, e.store.LoadActive(), 1)
	require.Empty(t, e.store.LoadArchived())
}

func TestToggleStep_NotFound(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p, err := e.svc.Create(ctx, input("A", "Step"))
	require.NoError(t, err)

	_, err = e.svc.ToggleStep(ctx, "missing", "s1")
	require.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = e.svc.ToggleStep(ctx, p.ID, "missing")
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

// Editing with the steps text unchanged keeps completion.
func TestUpdate_PreservesCompletion(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p, err := e.svc.Create(ctx, input("Docs", "Outline\n+ Intro\nPublish"))
	require.NoError(t, err)
	_, err = e.svc.ToggleStep(ctx, p.ID, stepID(t, p.Project, "Intro"))
	require.NoError(t, err)

	in := input("Docs v2", "Outline\n+ Intro\nPublish\nAnnounce")
	updated, err := e.svc.Update(ctx, p.ID, in)
	require.NoError(t, err)
	require.Equal(t, "Docs v2", updated.Title)
	require.Len(t, updated.Steps, 4)

	intro, ok := updated.Step(stepID(t, updated.Project, "Intro"))
	require.True(t, ok)
	require.True(t, intro.Completed)
	require.Equal(t, 25, updated.Progress)
	require.Equal(t, p.CreatedAt, updated.CreatedAt)
}

func TestUpdate_RejectsSelfDependency(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p, err := e.svc.Create(ctx, input("Loop", ""))
	require.NoError(t, err)

	in := input("Loop", "")
	in.Dependencies = []string{p.ID}
	_, err = e.svc.Update(ctx, p.ID, in)
	var verr *apperr.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Contains(t, verr.Fields["dependencies"], "itself")
}

func TestUpdate_CompletedStatusArchivesRecurring(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	in := input("Standup", "Notes")
	in.IsRecurring = true
	p, err := e.svc.Create(ctx, in)
	require.NoError(t, err)

	in.Status = models.StatusCompleted
	out, err := e.svc.Update(ctx, p.ID, in)
	require.NoError(t, err)
	require.True(t, out.Archived)
	require.NotNil(t, out.ArchivedAt)
	require.Empty(t, e.store.LoadActive())
	require.Len(t, e.store.LoadArchived(), 1)
}

func TestUpdate_NotFoundForArchived(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p, err := e.svc.Create(ctx, input("Old", ""))
	require.NoError(t, err)
	_, err = e.svc.Archive(ctx, p.ID)
	require.NoError(t, err)

	_, err = e.svc.Update(ctx, p.ID, input("Old", ""))
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestArchiveUnarchive(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p, err := e.svc.Create(ctx, input("Paused", ""))
	require.NoError(t, err)

	archived, err := e.svc.Archive(ctx, p.ID)
	require.NoError(t, err)
	require.True(t, archived.Archived)

	got, err := e.svc.Get(ctx, p.ID)
	require.NoError(t, err)
	require.True(t, got.Archived)

	e.now = e.now.Add(time.Hour)
	back, err := e.svc.Unarchive(ctx, p.ID)
	require.NoError(t, err)
	require.False(t, back.Archived)
	require.Equal(t, models.StatusInProgress, back.Status)
	require.Equal(t, e.now, *back.UnarchivedAt)
	require.Equal(t, message{tracker.LevelSuccess, "Project moved back to active dashboard!"}, e.note.last())

	_, err = e.svc.Unarchive(ctx, p.ID)
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestCreate_KeepsRepeatedDependencies(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	up, err := e.svc.Create(ctx, input("Upstream", ""))
	require.NoError(t, err)

	in := input("Downstream", "")
	in.Dependencies = []string{"project:" + up.ID, up.ID, "project:" + up.ID}
	p, err := e.svc.Create(ctx, in)
	require.NoError(t, err)
	require.Len(t, p.Dependencies, 3)

	stored, err := e.svc.Get(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, stored.Dependencies, 3)
	for _, d := range stored.Dependencies {
		require.Equal(t, "project:"+up.ID, d.String())
	}
}

func TestUnarchive_IDAlreadyActive(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p, err := e.svc.Create(ctx, input("Twice", ""))
	require.NoError(t, err)

	data, err := e.svc.Export(ctx)
	require.NoError(t, err)
	_, err = e.svc.Archive(ctx, p.ID)
	require.NoError(t, err)
	_, err = e.svc.Import(ctx, data, true)
	require.NoError(t, err)

	_, err = e.svc.Unarchive(ctx, p.ID)
	require.ErrorIs(t, err, apperr.ErrAlreadyExists)
	require.Len(t, e.svc.ListArchived(ctx), 1)
}

func TestDelete(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a, err := e.svc.Create(ctx, input("Active", "X"))
	require.NoError(t, err)
	b, err := e.svc.Create(ctx, input("Archived", ""))
	require.NoError(t, err)
	_, err = e.svc.Archive(ctx, b.ID)
	require.NoError(t, err)

	_, err = e.svc.ToggleStep(ctx, a.ID, stepID(t, a.Project, "X"))
	require.NoError(t, err)
	require.NoError(t, e.svc.Delete(ctx, a.ID))
	require.Empty(t, e.sched.Keys(), "pending archive cancelled")

	require.NoError(t, e.svc.Delete(ctx, b.ID))
	require.Empty(t, e.store.LoadActive())
	require.Empty(t, e.store.LoadArchived())
	require.ErrorIs(t, e.svc.Delete(ctx, a.ID), apperr.ErrNotFound)
}

func TestImportExport(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, err := e.svc.Create(ctx, input("Keep", "One"))
	require.NoError(t, err)

	data, err := e.svc.Export(ctx)
	require.NoError(t, err)

	other := newEnv(t)
	_, err = other.svc.Create(ctx, input("Replaced", ""))
	require.NoError(t, err)

	_, err = other.svc.Import(ctx, data, false)
	require.ErrorIs(t, err, apperr.ErrConfirmationRequired)
	require.Equal(t, "Replaced", other.store.LoadActive()[0].Title)

	n, err := other.svc.Import(ctx, data, true)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, "Keep", other.store.LoadActive()[0].Title)

	_, err = other.svc.Import(ctx, []byte(`{"version":"2.0","projects":[]}`), true)
	require.ErrorIs(t, err, apperr.ErrImportFormat)
	require.Equal(t, "Keep", other.store.LoadActive()[0].Title)
}

func TestStats(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	for _, st := range []models.Status{models.StatusInProgress, models.StatusOnHold, models.StatusNotStarted} {
		in := input(string(st), "")
		in.Status = st
		_, err := e.svc.Create(ctx, in)
		require.NoError(t, err)
	}
	done, err := e.svc.Create(ctx, input("Done", ""))
	require.NoError(t, err)
	_, err = e.svc.Archive(ctx, done.ID)
	require.NoError(t, err)

	st := e.svc.Stats(ctx)
	require.Equal(t, 3, st.Total)
	require.Equal(t, 1, st.ByStatus[models.StatusOnHold])
	require.Equal(t, 0, st.ByStatus[models.StatusCompleted])
	require.Equal(t, 0, st.CompletionRate)
	require.Equal(t, tracker.ArchiveStats{Total: 1, ThisMonth: 1, ThisYear: 1}, st.Archive)

	e.now = e.now.AddDate(0, 2, 0)
	st = e.svc.Stats(ctx)
	require.Equal(t, tracker.ArchiveStats{Total: 1, ThisMonth: 0, ThisYear: 1}, st.Archive)
}

func TestActivityLog(t *testing.T) {
	db := testutil.TestDB(t)
	e := newEnv(t, tracker.WithActivityLog(db))
	ctx := context.Background()

	p, err := e.svc.Create(ctx, input("Logged", "Only"))
	require.NoError(t, err)
	_, err = e.svc.ToggleStep(ctx, p.ID, stepID(t, p.Project, "Only"))
	require.NoError(t, err)
	e.sched.FireAll()

	events, err := db.Events(p.ID, 10)
	require.NoError(t, err)
	var kinds []history.EventKind
	for _, ev := range events {
		kinds = append(kinds, ev.Kind)
	}
	require.ElementsMatch(t, []history.EventKind{
		history.EventCreated, history.EventStepToggle, history.EventCompleted, history.EventArchived,
	}, kinds)
}

func TestSearchIndexFollowsWrites(t *testing.T) {
	db := testutil.TestDB(t)
	_, store := testutil.TestStore(t)
	svc := tracker.NewService(store,
		tracker.WithIndexer(history.NewIndexer(db, store.Provider())),
		tracker.WithScheduler(testutil.NewManualScheduler()),
		tracker.WithLogger(testutil.Logger()),
	)
	ctx := context.Background()

	p, err := svc.Create(ctx, input("Quarterly taxes", "Gather receipts"))
	require.NoError(t, err)

	hits, err := db.Search("Quarterly", 20)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, p.ID, hits[0].ProjectID)
	require.False(t, hits[0].Archived)

	_, err = svc.Archive(ctx, p.ID)
	require.NoError(t, err)
	hits, err = db.Search("Quarterly", 20)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.True(t, hits[0].Archived)

	require.NoError(t, svc.Delete(ctx, p.ID))
	hits, err = db.Search("Quarterly", 20)
	require.NoError(t, err)
	require.Empty(t, hits)
}

type failingRepo struct {
	tracker.Repository
}

func (failingRepo) SaveActive([]models.Project) error {
	return &apperr.StorageWriteError{Key: projectstore.KeyActive, Err: errors.New("quota exceeded")}
}

func TestSaveFailureIsReported(t *testing.T) {
	_, store := testutil.TestStore(t)
	note := &notifier{}
	svc := tracker.NewService(failingRepo{store},
		tracker.WithNotifier(note),
		tracker.WithScheduler(testutil.NewManualScheduler()),
		tracker.WithLogger(testutil.Logger()),
	)

	_, err := svc.Create(context.Background(), input("Lost", ""))
	require.ErrorIs(t, err, apperr.ErrStorageWrite)
	require.Equal(t, tracker.LevelError, note.last().level)
	require.Empty(t, store.LoadActive())
}
