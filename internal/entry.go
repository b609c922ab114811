// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/hearth/internal/attachments"
	"github.com/starford/hearth/internal/build"
	"github.com/starford/hearth/internal/cache"
	"github.com/starford/hearth/internal/composer"
	"github.com/starford/hearth/internal/extract"
	"github.com/starford/hearth/internal/fetch"
	"github.com/starford/hearth/internal/importer"
	"github.com/starford/hearth/internal/mcpserver"
	"github.com/starford/hearth/internal/render"
	"github.com/starford/hearth/internal/sse"
	"github.com/starford/hearth/internal/storage"
	"github.com/starford/hearth/internal/watch"
)

// engine holds the wired components shared by every command.
type engine struct {
	cfg    *Config
	log    *slog.Logger
	store  *cache.Store
	corpus storage.Provider
	site   storage.Provider
}

// newEngine initializes the logger, the trees and the cache store. The
// returned close function releases the cache database.
func newEngine(cfg *Config) (*engine, func(), error) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	for _, dir := range []string{cfg.Corpus.Path, cfg.Site.Path} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create dir %s: %w", dir, err)
		}
	}

	corpus, err := storage.NewFS(cfg.Corpus.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("init corpus storage: %w", err)
	}
	site, err := storage.NewFS(cfg.Site.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("init site storage: %w", err)
	}

	store, err := cache.Open(cfg.Cache.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("init cache: %w", err)
	}

	e := &engine{
		cfg:    cfg,
		log:    logger,
		store:  store,
		corpus: corpus,
		site:   site,
	}
	return e, func() { _ = store.Close() }, nil
}

func (e *engine) renderer() *render.HTML {
	return render.NewHTML(e.cfg.Site.Settings.SiteTitle)
}

func (e *engine) composerService() *composer.Service {
	return composer.NewService(e.corpus, e.store, e.renderer(), e.cfg.Tags)
}

func (e *engine) newImporter() *importer.Importer {
	fetcher := fetch.NewClient(e.cfg.Import.Cookie)
	att := attachments.New(e.store, fetcher, e.site, e.log)
	extractor := extract.New(att,
		extract.WithOrigin(e.cfg.Import.Origin),
		extract.WithRemoteHosts(e.cfg.Import.RemoteHosts...),
		extract.WithLogger(e.log),
	)
	return importer.New(e.corpus, e.store, extractor, att, e.cfg.Tags, e.log)
}

func (e *engine) scheduler() *render.Scheduler {
	return render.NewScheduler(e.corpus, e.site, e.store, build.New(e.store),
		e.renderer(), e.cfg.Site.Settings, render.WithLogger(e.log))
}

// RunImport converts exported posts under the configured export dir into
// canonical documents. A non-empty subset restricts the run to those export
// filenames.
func RunImport(ctx context.Context, cfg *Config, subset []string) error {
	e, closeEngine, err := newEngine(cfg)
	if err != nil {
		return err
	}
	defer closeEngine()

	report, err := e.newImporter().ImportDir(ctx, cfg.Import.ExportDir, subset)
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}
	return report.Err()
}

// RunRender regenerates every stale site artifact. A non-empty subset
// restricts post page rendering to those corpus paths.
func RunRender(ctx context.Context, cfg *Config, subset []string) error {
	e, closeEngine, err := newEngine(cfg)
	if err != nil {
		return err
	}
	defer closeEngine()

	report, err := e.scheduler().Run(ctx, subset)
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}
	e.log.Info("render finished",
		slog.Int("rendered", report.Rendered),
		slog.Int("skipped", report.Skipped),
		slog.Int("errors", len(report.Errors)))
	return report.Err()
}

// RunMCP serves archive tools over MCP stdio transport.
func RunMCP(_ context.Context, cfg *Config) error {
	e, closeEngine, err := newEngine(cfg)
	if err != nil {
		return err
	}
	defer closeEngine()

	// Stdio transport owns stdout; keep logs on stderr.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	srv := mcpserver.New(e.corpus, e.store, e.composerService())
	return srv.ServeStdio()
}

// Run starts the composer server with the given options: the HTTP API, the
// SSE event stream, and the corpus file watcher.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	cfg := app.config

	e, closeEngine, err := newEngine(cfg)
	if err != nil {
		return err
	}
	defer closeEngine()

	logger := e.log
	logger.Info("configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("corpus_path", cfg.Corpus.Path),
		slog.String("site_path", cfg.Site.Path),
		slog.String("cache_path", cfg.Cache.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Reconcile the cache with documents changed while the server was down.
	watch.Sync(e.store, e.corpus, logger, nil)

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	// Composer API.
	svc := e.composerService()
	apiRouter := composer.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

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
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	g, gCtx := errgroup.WithContext(ctx)

	// Corpus file watcher with SSE callback.
	g.Go(func() error {
		return watch.Watch(gCtx, e.store, e.corpus, cfg.Corpus.Path, logger, func(kind, path string) {
			broker.PublishDocumentEvent(kind, path)
		})
	})

	// HTTP server.
	g.Go(func() error {
		logger.Info("starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("context cancelled, initiating shutdown")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("server stopped")
	return nil
}
