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

	"github.com/starford/postcards/internal/api"
	"github.com/starford/postcards/internal/mcpserver"
	"github.com/starford/postcards/internal/postcards"
	"github.com/starford/postcards/internal/sse"
	"github.com/starford/postcards/internal/store"
	"github.com/starford/postcards/internal/vault"
	"github.com/starford/postcards/internal/verses"
)

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	logger := newLogger(app.logOutput(os.Stdout), cfg.App.LogLevel)
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("database_driver", cfg.Database.Driver),
		slog.String("lookup_base_url", cfg.Lookup.BaseURL),
		slog.String("vault_path", cfg.Vault.Path),
		slog.String("vault_inbox", cfg.Vault.Inbox),
		slog.String("log_level", cfg.App.LogLevel.String()))

	repo, err := store.Open(ctx, cfg.Database.Driver, cfg.Database.Target())
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer repo.Close()

	// SSE broker.
	broker := sse.NewBroker()
	defer broker.Close()

	// The mirror reads back through the service, so it joins the fan-out after construction.
	notifiers := postcards.MultiNotifier{broker}
	svc := postcards.NewService(repo, postcards.WithNotifier(&notifiers))

	if cfg.Vault.Path != "" {
		fs, err := vault.NewFS(cfg.Vault.Path)
		if err != nil {
			return fmt.Errorf("init vault: %w", err)
		}
		mirror := vault.NewMirror(fs, svc, logger)
		stats, err := mirror.Sync(ctx)
		if err != nil {
			logger.Warn("initial vault sync failed", slog.String("error", err.Error()))
		} else {
			logger.Info("vault synced",
				slog.Int("written", stats.Written),
				slog.Int("unchanged", stats.Unchanged),
				slog.Int("removed", stats.Removed))
		}
		notifiers = append(notifiers, mirror)
	}

	lookup := newLookupClient(cfg)
	handler := newHTTPHandler(cfg, svc, lookup, broker)

	// A zero WriteTimeout keeps event streams open.
	httpServer := &http.Server{
		Addr:         cfg.App.HTTP.Address(),
		Handler:      handler,
		ReadTimeout:  cfg.App.HTTP.ReadTimeout,
		WriteTimeout: cfg.App.HTTP.WriteTimeout,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	if cfg.Vault.Inbox != "" {
		inbox, err := vault.NewFS(cfg.Vault.Inbox)
		if err != nil {
			return fmt.Errorf("init inbox: %w", err)
		}
		importer := vault.NewImporter(svc, logger)
		g.Go(func() error {
			if err := vault.WatchInbox(gCtx, inbox, importer, logger); err != nil {
				logger.Error("inbox watcher failed", slog.String("error", err.Error()))
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

		// Ends open event streams so Shutdown does not wait on them.
		broker.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP serves the postcard tools over stdio. Logs go to stderr so they do
// not corrupt the protocol stream.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	logger := newLogger(app.logOutput(os.Stderr), cfg.App.LogLevel)
	slog.SetDefault(logger)

	repo, err := store.Open(ctx, cfg.Database.Driver, cfg.Database.Target())
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer repo.Close()

	notifiers := postcards.MultiNotifier{}
	svc := postcards.NewService(repo, postcards.WithNotifier(&notifiers))
	if cfg.Vault.Path != "" {
		fs, err := vault.NewFS(cfg.Vault.Path)
		if err != nil {
			return fmt.Errorf("init vault: %w", err)
		}
		notifiers = append(notifiers, vault.NewMirror(fs, svc, logger))
	}

	logger.Info("MCP server starting on stdio")
	if err := mcpserver.New(svc, newLookupClient(cfg)).ServeStdio(); err != nil {
		return fmt.Errorf("mcp serve: %w", err)
	}
	return nil
}

// Export writes every postcard into dir (vault.path when dir is empty).
func Export(ctx context.Context, dir string, opts ...Option) (vault.SyncStats, error) {
	app, err := newApplication(opts)
	if err != nil {
		return vault.SyncStats{}, err
	}
	cfg := app.config
	if dir == "" {
		dir = cfg.Vault.Path
	}
	if dir == "" {
		return vault.SyncStats{}, errors.New("export: no directory given and vault.path is not set")
	}

	logger := newLogger(app.logOutput(os.Stderr), cfg.App.LogLevel)
	repo, err := store.Open(ctx, cfg.Database.Driver, cfg.Database.Target())
	if err != nil {
		return vault.SyncStats{}, fmt.Errorf("init store: %w", err)
	}
	defer repo.Close()

	fs, err := vault.NewFS(dir)
	if err != nil {
		return vault.SyncStats{}, err
	}
	return vault.NewMirror(fs, postcards.NewService(repo), logger).Sync(ctx)
}

// Import reads every document in dir into the store, creating or updating
// postcards by id. Files are left in place.
func Import(ctx context.Context, dir string, opts ...Option) (vault.ImportStats, error) {
	app, err := newApplication(opts)
	if err != nil {
		return vault.ImportStats{}, err
	}
	cfg := app.config

	logger := newLogger(app.logOutput(os.Stderr), cfg.App.LogLevel)
	repo, err := store.Open(ctx, cfg.Database.Driver, cfg.Database.Target())
	if err != nil {
		return vault.ImportStats{}, fmt.Errorf("init store: %w", err)
	}
	defer repo.Close()

	fs, err := vault.NewFS(dir)
	if err != nil {
		return vault.ImportStats{}, err
	}
	return vault.NewImporter(postcards.NewService(repo), logger).ImportDir(ctx, fs, false)
}

// newHTTPHandler builds the root router: request middleware, health checks,
// and the postcard API with its event stream.
func newHTTPHandler(cfg *Config, svc *postcards.Service, lookup api.VerseLookup, broker http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		writeStatus(w, http.StatusOK, "ok")
	})
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()
		if err := svc.Ping(ctx); err != nil {
			writeStatus(w, http.StatusServiceUnavailable, "unavailable")
			return
		}
		writeStatus(w, http.StatusOK, "ok")
	})

	r.Mount("/", api.NewRouter(svc, lookup, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker))
	return r
}

func writeStatus(w http.ResponseWriter, status int, value string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = fmt.Fprintf(w, `{"status":%q}`, value)
}

const lookupIdleConns = 4

// newLookupClient gives the verse proxy its own connection pool so a slow
// upstream cannot hold connections other outbound clients need.
func newLookupClient(cfg *Config) *verses.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = lookupIdleConns
	transport.ResponseHeaderTimeout = cfg.Lookup.Timeout
	return verses.NewClient(
		verses.WithHTTPClient(&http.Client{Transport: transport}),
		verses.WithBaseURL(cfg.Lookup.BaseURL),
		verses.WithTranslation(cfg.Lookup.Translation),
		verses.WithTimeout(cfg.Lookup.Timeout),
	)
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
