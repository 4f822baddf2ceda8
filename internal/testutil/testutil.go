// Package testutil provides shared test helpers for stores, databases and
// delayed effects.
package testutil

import (
	"io"
	"log/slog"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/starford/statusboard/internal/history"
	"github.com/starford/statusboard/internal/projectstore"
	"github.com/starford/statusboard/internal/storage"
)

// Logger returns a logger that discards output.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestDB creates a temporary history database that is automatically cleaned up.
func TestDB(t *testing.T) *history.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "statusboard-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := history.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestStore creates a project store over a temporary directory.
func TestStore(t *testing.T) (*storage.FS, *projectstore.Store) {
	t.Helper()
	fs, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return fs, projectstore.New(fs, Logger())
}

// ManualScheduler records scheduled effects and runs them only when told to.
type ManualScheduler struct {
	mu      sync.Mutex
	pending map[string]func()
	delays  map[string]time.Duration
}

// NewManualScheduler creates an empty ManualScheduler.
func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{pending: map[string]func(){}, delays: map[string]time.Duration{}}
}

// Schedule implements lifecycle.Scheduler.
func (s *ManualScheduler) Schedule(key string, delay time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[key] = fn
	s.delays[key] = delay
}

// Cancel implements lifecycle.Scheduler.
func (s *ManualScheduler) Cancel(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, key)
	delete(s.delays, key)
}

// Keys returns the keys with a pending effect, sorted.
func (s *ManualScheduler) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.pending))
	for k := range s.pending {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Delay returns the delay requested for key.
func (s *ManualScheduler) Delay(key string) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delays[key]
}

// Fire runs and removes the effect for key. It reports whether one was pending.
func (s *ManualScheduler) Fire(key string) bool {
	s.mu.Lock()
	fn, ok := s.pending[key]
	delete(s.pending, key)
	delete(s.delays, key)
	s.mu.Unlock()
	if ok {
		fn()
	}
	return ok
}

// FireAll runs every pending effect.
func (s *ManualScheduler) FireAll() {
	for _, k := range s.Keys() {
		s.Fire(k)
	}
}
