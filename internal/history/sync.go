package history

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/starford/statusboard/internal/checksum"
	"github.com/starford/statusboard/internal/projectstore"
	"github.com/starford/statusboard/internal/storage"
)

// TrackedKeys are the store keys mirrored into the index.
var TrackedKeys = []string{projectstore.KeyActive, projectstore.KeyArchived}

func tracked(key string) bool {
	for _, k := range TrackedKeys {
		if k == key {
			return true
		}
	}
	return false
}

// Sync brings the index up to date with the store. Keys whose checksum
// already matches are skipped.
func Sync(db *DB, store storage.Provider, logger *slog.Logger) error {
	for _, key := range TrackedKeys {
		if _, _, err := syncKey(db, store, key); err != nil {
			logger.Warn("sync: index failed", slog.String("key", key), slog.String("error", err.Error()))
			continue
		}
		logger.Debug("sync: indexed", slog.String("key", key))
	}
	return nil
}

// syncKey re-indexes key when its content differs from the indexed
// checksum. A missing key has an empty checksum.
func syncKey(db *DB, store storage.Provider, key string) (cs string, changed bool, err error) {
	data, err := store.Get(key)
	if err != nil && !errors.Is(err, storage.ErrNotExist) {
		return "", false, err
	}

	if data != nil {
		cs = checksum.Sum(data)
	}
	indexed, err := db.GetChecksum(key)
	if err != nil {
		return "", false, err
	}
	if indexed == cs {
		return cs, false, nil
	}

	projects, err := projectstore.Decode(data)
	if err != nil || data == nil {
		// Unreadable content indexes as an empty set, matching what the
		// store itself serves.
		projects = nil
	}
	if err := db.ReplaceSet(key, cs, key == projectstore.KeyArchived, projects); err != nil {
		return "", false, err
	}
	return cs, true, nil
}

// Indexer refreshes the index from the store on demand, so writes made by
// this process are searchable without waiting for the watcher.
type Indexer struct {
	db    *DB
	store storage.Provider
}

// NewIndexer creates an Indexer over db and store.
func NewIndexer(db *DB, store storage.Provider) *Indexer {
	return &Indexer{db: db, store: store}
}

// Refresh re-indexes every tracked key whose content changed.
func (ix *Indexer) Refresh() error {
	var errs []error
	for _, key := range TrackedKeys {
		if _, _, err := syncKey(ix.db, ix.store, key); err != nil {
			errs = append(errs, fmt.Errorf("history: index %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}
