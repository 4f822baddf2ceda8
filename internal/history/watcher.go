package history

import (
	"context"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/statusboard/internal/storage"
)

const settleDelay = 150 * time.Millisecond

// EventCallback is called after the watcher re-indexes a key whose new
// content was not written by this process. kind is always "changed" for
// now; key is the store key.
type EventCallback func(kind string, key string)

// OwnWriteChecker recognises content this process wrote itself.
type OwnWriteChecker interface {
	IsOwnWrite(key, checksum string) bool
}

// Watch starts an fsnotify watcher on the data directory and keeps the
// index in step with the tracked store keys until ctx is cancelled.
//
// Events are debounced so the temp-file-then-rename write pattern settles
// before the key is read. cb fires only for external edits, such as a
// second process saving over our data.
func Watch(ctx context.Context, db *DB, store storage.Provider, root string, own OwnWriteChecker, logger *slog.Logger, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(root); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", root))

	dirty := make(map[string]struct{})
	var settleTimer *time.Timer
	var settleCh <-chan time.Time

	scheduleSettle := func() {
		if settleTimer == nil {
			settleTimer = time.NewTimer(settleDelay)
			settleCh = settleTimer.C
		} else {
			settleTimer.Reset(settleDelay)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if settleTimer != nil {
				settleTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-settleCh:
			for key := range dirty {
				delete(dirty, key)
				reindex(db, store, key, own, logger, cb)
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			key, ok := storage.KeyForPath(ev.Name)
			if !ok || !tracked(key) {
				continue
			}
			dirty[key] = struct{}{}
			scheduleSettle()

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

func reindex(db *DB, store storage.Provider, key string, own OwnWriteChecker, logger *slog.Logger, cb EventCallback) {
	cs, changed, err := syncKey(db, store, key)
	if err != nil {
		logger.Warn("watcher: index failed", slog.String("key", key), slog.String("error", err.Error()))
		return
	}
	if !changed {
		return
	}
	if own != nil && own.IsOwnWrite(key, cs) {
		logger.Debug("watcher: indexed own write", slog.String("key", key))
		return
	}
	logger.Info("watcher: external change", slog.String("key", key))
	if cb != nil {
		cb("changed", key)
	}
}
