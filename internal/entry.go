// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/statusboard/internal/api"
	"github.com/starford/statusboard/internal/exporter"
	"github.com/starford/statusboard/internal/history"
	"github.com/starford/statusboard/internal/lifecycle"
	"github.com/starford/statusboard/internal/mcpserver"
	"github.com/starford/statusboard/internal/projectstore"
	"github.com/starford/statusboard/internal/sse"
	"github.com/starford/statusboard/internal/storage"
	"github.com/starford/statusboard/internal/tracker"
)

// core holds the components shared by every entrypoint.
type core struct {
	cfg       *Config
	logger    *slog.Logger
	store     *projectstore.Store
	db        *history.DB
	scheduler *lifecycle.TimerScheduler
}

func newApplication(opts []Option) (*application, error) {
	app := &application{logOutput: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// newCore opens the project store and, when configured, the history
// database. The caller must call close.
func newCore(app *application) (*core, error) {
	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(app.logOutput, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("store_path", cfg.Store.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.Duration("completion_delay", cfg.Lifecycle.CompletionDelay),
		slog.String("log_level", cfg.App.LogLevel.String()))

	if err := os.MkdirAll(cfg.Store.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}

	fs, err := storage.NewFS(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	c := &core{
		cfg:       cfg,
		logger:    logger,
		store:     projectstore.New(fs, logger, projectstore.WithMaxBackups(cfg.Lifecycle.MaxBackups)),
		scheduler: lifecycle.NewTimerScheduler(),
	}

	if cfg.SQLite.Enabled() {
		db, err := history.Open(cfg.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("init history: %w", err)
		}
		c.db = db

		if err := history.Sync(db, fs, logger); err != nil {
			logger.Warn("initial sync failed", slog.String("error", err.Error()))
		}
	} else {
		logger.Info("history database disabled, search and activity are unavailable")
	}

	return c, nil
}

func (c *core) close() {
	c.scheduler.Stop()
	if c.db != nil {
		if err := c.db.Close(); err != nil {
			c.logger.Warn("close history", slog.String("error", err.Error()))
		}
	}
}

func (c *core) service(extra ...tracker.Option) *tracker.Service {
	opts := []tracker.Option{
		tracker.WithScheduler(c.scheduler),
		tracker.WithLogger(c.logger),
		tracker.WithCompletionDelay(c.cfg.Lifecycle.CompletionDelay),
	}
	if c.db != nil {
		opts = append(opts,
			tracker.WithActivityLog(c.db),
			tracker.WithIndexer(history.NewIndexer(c.db, c.store.Provider())),
		)
	}
	return tracker.NewService(c.store, append(opts, extra...)...)
}

// history returns the database as an api.History, keeping a nil database
// a nil interface.
func (c *core) history() api.History {
	if c.db == nil {
		return nil
	}
	return c.db
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	c, err := newCore(app)
	if err != nil {
		return err
	}
	defer c.close()

	cfg, logger := c.cfg, c.logger

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	svc := c.service(tracker.WithNotifier(broker))
	apiRouter := api.NewRouter(svc, c.history(), cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Keep the index current and tell clients about external edits.
	if c.db != nil {
		g.Go(func() error {
			err := history.Watch(gCtx, c.db, c.store.Provider(), cfg.Store.Path, c.store, logger, func(_, key string) {
				broker.PublishStoreChanged(key)
			})
			if err != nil {
				logger.Warn("watcher stopped", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group context so the watcher exits with the server.
var errShutdown = errors.New("shutdown")

// RunMCP serves the MCP tools on stdin/stdout until the client disconnects.
// Logs must not go to stdout in this mode; use WithLogOutput.
func RunMCP(_ context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	c, err := newCore(app)
	if err != nil {
		return err
	}
	defer c.close()

	var search mcpserver.Searcher
	if c.db != nil {
		search = c.db
	}
	srv := mcpserver.New(c.service(), search)

	c.logger.Info("MCP server starting on stdio")
	return srv.ServeStdio()
}

// Export writes the active projects as an export document to w.
// With archived set it writes the archive instead.
func Export(ctx context.Context, w io.Writer, archived bool, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	c, err := newCore(app)
	if err != nil {
		return err
	}
	defer c.close()

	svc := c.service()
	var data []byte
	if archived {
		data, err = svc.ExportArchived(ctx)
	} else {
		data, err = svc.Export(ctx)
	}
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// ExportWorkbook writes active and archived projects as an xlsx workbook to w.
func ExportWorkbook(ctx context.Context, w io.Writer, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	c, err := newCore(app)
	if err != nil {
		return err
	}
	defer c.close()

	svc := c.service()
	return exporter.Write(w, svc.ListActive(ctx), svc.ListArchived(ctx))
}

// Import replaces the active projects with the export document read from r.
// It returns the number of projects imported.
func Import(ctx context.Context, r io.Reader, confirm bool, opts ...Option) (int, error) {
	app, err := newApplication(opts)
	if err != nil {
		return 0, err
	}
	c, err := newCore(app)
	if err != nil {
		return 0, err
	}
	defer c.close()

	data, err := io.ReadAll(r)
	if err != nil {
		return 0, fmt.Errorf("read import: %w", err)
	}
	n, err := c.service().Import(ctx, data, confirm)
	if err != nil {
		return 0, err
	}
	if c.db != nil {
		if err := history.Sync(c.db, c.store.Provider(), c.logger); err != nil {
			c.logger.Warn("sync after import failed", slog.String("error", err.Error()))
		}
	}
	return n, nil
}
