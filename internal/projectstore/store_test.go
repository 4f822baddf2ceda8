package projectstore_test

import (
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/starford/statusboard/internal/apperr"
	"github.com/starford/statusboard/internal/checksum"
	"github.com/starford/statusboard/internal/models"
	"github.com/starford/statusboard/internal/projectstore"
	"github.com/starford/statusboard/internal/storage"
)

// faultyProvider fails Put for the keys in failPut.
type faultyProvider struct {
	storage.Provider
	failPut map[string]bool
}

func (f *faultyProvider) Put(key string, value []byte) error {
	if f.failPut[key] {
		return errors.New("disk full")
	}
	return f.Provider.Put(key, value)
}

func newProvider(t *testing.T) *storage.FS {
	t.Helper()
	fs, err := storage.NewFS(t.TempDir())
	require.NoError(t, err)
	return fs
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func sample(id string) models.Project {
	return models.Project{
		ID:        id,
		Title:     "Project " + id,
		StartDate: "2026-01-01",
		DueDate:   "2026-02-01",
		Status:    models.StatusInProgress,
		Steps: []models.Step{
			{ID: "s1", Text: "one", Completed: true},
			{ID: "s2", Text: "two"},
		},
		Dependencies: []models.DependencyRef{models.ProjectRef("other")},
	}
}

func TestLoad_MissingAndMalformedAreEmpty(t *testing.T) {
	p := newProvider(t)
	s := projectstore.New(p, quietLogger())

	require.Empty(t, s.LoadActive())

	require.NoError(t, p.Put(projectstore.KeyArchived, []byte("{not json")))
	archived := s.LoadArchived()
	require.NotNil(t, archived)
	require.Empty(t, archived)
}

func TestSaveAndLoadRecomputesProgress(t *testing.T) {
	s := projectstore.New(newProvider(t), quietLogger())
	proj := sample("a")
	proj.Progress = 99

	require.NoError(t, s.SaveActive([]models.Project{proj}))
	loaded := s.LoadActive()
	require.Len(t, loaded, 1)
	require.Equal(t, 50, loaded[0].Progress)
	require.Equal(t, []models.DependencyRef{models.ProjectRef("other")}, loaded[0].Dependencies)
}

func TestLoad_BrowserFormat(t *testing.T) {
	p := newProvider(t)
	raw := `[{"id":1712345678901,"title":"Legacy","startDate":"2026-01-01","dueDate":"2026-01-31",
		"status":"in-progress","dependencies":["1712345678000","task:1712345678000:step-1-0"],
		"steps":[{"id":"step-1-0","text":"Only","completed":true,"subtasks":[],"level":0}],
		"progress":100,"createdAt":"2026-01-01T09:00:00.000Z"}]`
	require.NoError(t, p.Put(projectstore.KeyActive, []byte(raw)))

	loaded := projectstore.New(p, quietLogger()).LoadActive()
	require.Len(t, loaded, 1)
	require.Equal(t, "1712345678901", loaded[0].ID)
	require.Equal(t, models.ProjectRef("1712345678000"), loaded[0].Dependencies[0])
	require.Equal(t, models.TaskRef("1712345678000", "step-1-0"), loaded[0].Dependencies[1])
}

func TestSaveActive_RotatesBackups(t *testing.T) {
	clock := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	s := projectstore.New(newProvider(t), quietLogger(),
		projectstore.WithMaxBackups(3),
		projectstore.WithClock(func() time.Time {
			clock = clock.Add(time.Minute)
			return clock
		}),
	)

	for i := 0; i < 5; i++ {
		projects := make([]models.Project, i+1)
		for j := range projects {
			projects[j] = sample(string(rune('a' + j)))
		}
		require.NoError(t, s.SaveActive(projects))
	}

	history, err := s.Backups()
	require.NoError(t, err)
	require.Len(t, history, 3)
	require.Len(t, history[0].Projects, 5, "newest first")
	require.Len(t, history[2].Projects, 3)
	require.True(t, history[0].Timestamp.After(history[1].Timestamp))
	require.Equal(t, projectstore.FormatVersion, history[0].Version)
}

func TestSaveActive_WriteFailureIsStorageWriteError(t *testing.T) {
	p := &faultyProvider{Provider: newProvider(t), failPut: map[string]bool{projectstore.KeyActive: true}}
	s := projectstore.New(p, quietLogger())

	err := s.SaveActive([]models.Project{sample("a")})
	require.ErrorIs(t, err, apperr.ErrStorageWrite)

	var swe *apperr.StorageWriteError
	require.ErrorAs(t, err, &swe)
	require.Equal(t, projectstore.KeyActive, swe.Key)
}

func TestSaveActive_BackupFailureIsNotFatal(t *testing.T) {
	p := &faultyProvider{Provider: newProvider(t), failPut: map[string]bool{projectstore.KeyBackups: true}}
	s := projectstore.New(p, quietLogger())
	require.NoError(t, s.SaveActive([]models.Project{sample("a")}))
	require.Len(t, s.LoadActive(), 1)
}

func TestSaveBoth_RollsBackArchivedOnActiveFailure(t *testing.T) {
	base := newProvider(t)
	s := projectstore.New(base, quietLogger())
	require.NoError(t, s.SaveBoth([]models.Project{sample("a")}, []models.Project{sample("old")}))

	faulty := &faultyProvider{Provider: base, failPut: map[string]bool{projectstore.KeyActive: true}}
	s = projectstore.New(faulty, quietLogger())
	err := s.SaveBoth(nil, []models.Project{sample("old"), sample("a")})
	require.ErrorIs(t, err, apperr.ErrStorageWrite)

	archived := s.LoadArchived()
	require.Len(t, archived, 1)
	require.Equal(t, "old", archived[0].ID)
	require.Len(t, s.LoadActive(), 1)
}

func TestSaveBoth_RollbackRemovesNewArchiveKey(t *testing.T) {
	base := newProvider(t)
	faulty := &faultyProvider{Provider: base, failPut: map[string]bool{projectstore.KeyActive: true}}
	s := projectstore.New(faulty, quietLogger())

	require.Error(t, s.SaveBoth(nil, []models.Project{sample("a")}))
	_, err := base.Get(projectstore.KeyArchived)
	require.ErrorIs(t, err, storage.ErrNotExist)
}

func TestIsOwnWrite(t *testing.T) {
	p := newProvider(t)
	s := projectstore.New(p, quietLogger())
	require.NoError(t, s.SaveActive([]models.Project{sample("a")}))

	data, err := p.Get(projectstore.KeyActive)
	require.NoError(t, err)
	require.True(t, s.IsOwnWrite(projectstore.KeyActive, checksum.Sum(data)))

	require.NoError(t, p.Put(projectstore.KeyActive, []byte("[]")))
	require.False(t, s.IsOwnWrite(projectstore.KeyActive, checksum.Sum([]byte("[]"))))
}
