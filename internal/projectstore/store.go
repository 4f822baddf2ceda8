// Package projectstore persists the active and archived project sets on top
// of a storage.Provider.
package projectstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/statusboard/internal/apperr"
	"github.com/starford/statusboard/internal/checksum"
	"github.com/starford/statusboard/internal/lifecycle"
	"github.com/starford/statusboard/internal/models"
	"github.com/starford/statusboard/internal/storage"
)

// Store keys. The names match the browser dashboard's localStorage keys.
const (
	KeyActive   = "projects"
	KeyArchived = "archivedProjects"
	KeyBackup   = "projects_backup"
	KeyBackups  = "projects_backups"
)

// DefaultMaxBackups is the rotation depth of KeyBackups.
const DefaultMaxBackups = 5

// Backup is one snapshot of the active set.
type Backup struct {
	Projects  []models.Project `json:"projects"`
	Timestamp time.Time        `json:"timestamp"`
	Version   string           `json:"version"`
}

// Store reads and writes project sets. Callers serialize mutations;
// IsOwnWrite may be called concurrently.
type Store struct {
	provider   storage.Provider
	logger     *slog.Logger
	maxBackups int
	now        func() time.Time

	mu      sync.Mutex
	written map[string]string // key -> checksum of our last write
}

// Option configures a Store.
type Option func(*Store)

// WithMaxBackups sets how many snapshots KeyBackups keeps.
func WithMaxBackups(n int) Option {
	return func(s *Store) {
		s.maxBackups = n
	}
}

// WithClock overrides the time source used for backup timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates a Store.
func New(provider storage.Provider, logger *slog.Logger, opts ...Option) *Store {
	s := &Store{
		provider:   provider,
		logger:     logger,
		maxBackups: DefaultMaxBackups,
		now:        time.Now,
		written:    make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// LoadActive returns the active set. Missing or malformed data yields an
// empty set and a warning.
func (s *Store) LoadActive() []models.Project {
	return s.load(KeyActive)
}

// LoadArchived returns the archived set. Missing or malformed data yields
// an empty set and a warning.
func (s *Store) LoadArchived() []models.Project {
	return s.load(KeyArchived)
}

func (s *Store) load(key string) []models.Project {
	data, err := s.provider.Get(key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotExist) {
			s.logger.Warn("store: load failed", slog.String("key", key), slog.String("error", err.Error()))
		}
		return []models.Project{}
	}
	projects, err := Decode(data)
	if err != nil {
		s.logger.Warn("store: malformed data ignored", slog.String("key", key), slog.String("error", err.Error()))
		return []models.Project{}
	}
	return projects
}

// Decode parses a stored project set and recomputes derived fields.
func Decode(data []byte) ([]models.Project, error) {
	var projects []models.Project
	if err := json.Unmarshal(data, &projects); err != nil {
		return nil, err
	}
	if projects == nil {
		projects = []models.Project{}
	}
	for i := range projects {
		lifecycle.Normalize(&projects[i])
	}
	return projects, nil
}

// SaveActive writes the active set and refreshes the backups.
func (s *Store) SaveActive(projects []models.Project) error {
	if err := s.put(KeyActive, projects); err != nil {
		return err
	}
	s.backup(projects)
	return nil
}

// SaveArchived writes the archived set.
func (s *Store) SaveArchived(projects []models.Project) error {
	return s.put(KeyArchived, projects)
}

// SaveBoth writes both sets for a move between them. The archived set is
// written first; if the active write then fails the archived key is
// restored so the two keys never disagree about where a project lives.
func (s *Store) SaveBoth(active, archived []models.Project) error {
	prev, prevErr := s.provider.Get(KeyArchived)
	if prevErr != nil && !errors.Is(prevErr, storage.ErrNotExist) {
		return &apperr.StorageWriteError{Key: KeyArchived, Err: prevErr}
	}

	if err := s.put(KeyArchived, archived); err != nil {
		return err
	}
	if err := s.SaveActive(active); err != nil {
		var rollbackErr error
		if prevErr != nil {
			rollbackErr = s.provider.Delete(KeyArchived)
		} else {
			rollbackErr = s.provider.Put(KeyArchived, prev)
		}
		if rollbackErr == nil {
			s.mu.Lock()
			s.written[KeyArchived] = checksum.Sum(prev)
			s.mu.Unlock()
		} else {
			s.logger.Error("store: rollback failed",
				slog.String("key", KeyArchived),
				slog.String("error", rollbackErr.Error()))
		}
		return err
	}
	return nil
}

func (s *Store) put(key string, projects []models.Project) error {
	if projects == nil {
		projects = []models.Project{}
	}
	data, err := json.Marshal(projects)
	if err != nil {
		return &apperr.StorageWriteError{Key: key, Err: fmt.Errorf("encode: %w", err)}
	}
	if err := s.provider.Put(key, data); err != nil {
		return &apperr.StorageWriteError{Key: key, Err: err}
	}
	s.mu.Lock()
	s.written[key] = checksum.Sum(data)
	s.mu.Unlock()
	return nil
}

// IsOwnWrite reports whether sum matches the last content this Store wrote
// under key. The file watcher uses it to tell external edits apart.
func (s *Store) IsOwnWrite(key, sum string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written[key] == sum
}

// Provider returns the underlying provider.
func (s *Store) Provider() storage.Provider {
	return s.provider
}

// backup writes the latest snapshot and rotates the history. Failures are
// logged only; the primary write already succeeded.
func (s *Store) backup(projects []models.Project) {
	snap := Backup{Projects: projects, Timestamp: s.now().UTC(), Version: FormatVersion}

	data, err := json.Marshal(snap)
	if err == nil {
		err = s.provider.Put(KeyBackup, data)
	}
	if err != nil {
		s.logger.Warn("store: backup failed", slog.String("error", err.Error()))
	}

	if s.maxBackups <= 0 {
		return
	}
	history, err := s.Backups()
	if err != nil {
		s.logger.Warn("store: backup history unreadable, starting over", slog.String("error", err.Error()))
		history = nil
	}
	history = append([]Backup{snap}, history...)
	if len(history) > s.maxBackups {
		history = history[:s.maxBackups]
	}
	data, err = json.Marshal(history)
	if err == nil {
		err = s.provider.Put(KeyBackups, data)
	}
	if err != nil {
		s.logger.Warn("store: backup rotation failed", slog.String("error", err.Error()))
	}
}

// Backups returns the rotated snapshots, newest first.
func (s *Store) Backups() ([]Backup, error) {
	data, err := s.provider.Get(KeyBackups)
	if err != nil {
		if errors.Is(err, storage.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var history []Backup
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, fmt.Errorf("store: decode backups: %w", err)
	}
	return history, nil
}
