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

	"github.com/starford/voiceinvoice/internal/api"
	"github.com/starford/voiceinvoice/internal/archive"
	"github.com/starford/voiceinvoice/internal/commit"
	"github.com/starford/voiceinvoice/internal/directory"
	"github.com/starford/voiceinvoice/internal/draft"
	"github.com/starford/voiceinvoice/internal/interpret/anthropic"
	"github.com/starford/voiceinvoice/internal/invoicing"
	"github.com/starford/voiceinvoice/internal/mail"
	"github.com/starford/voiceinvoice/internal/mcpserver"
	"github.com/starford/voiceinvoice/internal/numbering"
	"github.com/starford/voiceinvoice/internal/render"
	"github.com/starford/voiceinvoice/internal/sse"
	"github.com/starford/voiceinvoice/internal/store"
	"github.com/starford/voiceinvoice/internal/transcribe"
)

func setup(opts []Option) (*application, *slog.Logger, error) {
	app := &application{logOutput: os.Stdout, version: "dev"}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return nil, nil, fmt.Errorf("config is required")
	}

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(app.logOutput, &slog.HandlerOptions{
		Level: app.config.App.LogLevel,
	}))
	slog.SetDefault(logger)

	return app, logger, nil
}

// components are the long-lived parts shared by the HTTP and MCP surfaces.
type components struct {
	db       *store.DB
	broker   *sse.Broker
	svc      *invoicing.Service
	importer *directory.Importer

	// maxAudioBytes caps uploads at what the transcriber accepts.
	maxAudioBytes int64
}

func (c *components) Close() {
	c.broker.Close()
	_ = c.db.Close()
}

func build(cfg *Config, logger *slog.Logger) (*components, error) {
	if err := cfg.RequireServices(); err != nil {
		return nil, err
	}
	loc, err := cfg.Business.Location()
	if err != nil {
		return nil, err
	}

	db, err := store.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	fail := func(err error) (*components, error) {
		_ = db.Close()
		return nil, err
	}

	interpreter, err := anthropic.New(anthropic.Config{
		APIKey:            cfg.Interpreter.APIKey,
		BaseURL:           cfg.Interpreter.BaseURL,
		Model:             cfg.Interpreter.Model,
		Timeout:           cfg.Interpreter.Timeout,
		MaxTokens:         cfg.Interpreter.MaxTokens,
		BusinessName:      cfg.Business.Name,
		RequestsPerSecond: cfg.Interpreter.RequestsPerSecond,
	})
	if err != nil {
		return fail(fmt.Errorf("init interpreter: %w", err))
	}

	mailer, err := mail.New(mail.Config{
		APIKey:            cfg.Mail.APIKey,
		BaseURL:           cfg.Mail.BaseURL,
		From:              cfg.Mail.From,
		BusinessName:      cfg.Business.Name,
		Timeout:           cfg.Mail.Timeout,
		RequestsPerSecond: cfg.Mail.RequestsPerSecond,
	})
	if err != nil {
		return fail(fmt.Errorf("init mail: %w", err))
	}

	var transcriber invoicing.Transcriber
	maxAudio := cfg.App.HTTP.MaxAudioBytes
	if cfg.Transcriber.Enabled() {
		t, err := transcribe.New(transcribe.Config{
			APIKey:            cfg.Transcriber.APIKey,
			BaseURL:           cfg.Transcriber.BaseURL,
			Model:             cfg.Transcriber.Model,
			MaxBytes:          cfg.Transcriber.MaxBytes,
			Timeout:           cfg.Transcriber.Timeout,
			RequestsPerSecond: cfg.Transcriber.RequestsPerSecond,
		})
		if err != nil {
			return fail(fmt.Errorf("init transcriber: %w", err))
		}
		transcriber = t
		maxAudio = audioLimit(maxAudio, t.MaxBytes())
	} else {
		logger.Warn("transcriber api key not set, /api/transcribe is disabled")
	}

	commitOpts := []commit.Option{commit.WithLogger(logger)}
	var documents invoicing.Documents
	if cfg.Archive.Path != "" {
		fs, err := archive.NewFS(cfg.Archive.Path)
		if err != nil {
			return fail(fmt.Errorf("init archive: %w", err))
		}
		commitOpts = append(commitOpts, commit.WithArchiver(fs))
		documents = fs
	}

	authority := numbering.New(db,
		numbering.WithLocation(loc),
		numbering.WithAttempts(cfg.Invoice.NumberingAttempts),
		numbering.WithLogger(logger))

	renderer := render.New(render.Config{
		BusinessName:   cfg.Business.Name,
		CurrencySymbol: cfg.Business.CurrencySymbol,
		Location:       loc,
	})

	broker := sse.NewBroker(2 * time.Second)

	svc := invoicing.New(invoicing.Deps{
		Store:       db,
		Interpreter: interpreter,
		Transcriber: transcriber,
		Committer:   commit.New(authority, renderer, mailer, db, commitOpts...),
		Sessions:    draft.NewSessions(cfg.Session.IdleTTL),
		Engine:      draft.Engine{DefaultTaxRate: cfg.Invoice.DefaultTaxRate},
		Events:      broker,
		Documents:   documents,
		Logger:      logger,
	})

	return &components{
		db:       db,
		broker:   broker,
		svc:      svc,
		importer: directory.NewImporter(db, logger),

		maxAudioBytes: maxAudio,
	}, nil
}

// audioLimit returns the smaller of the HTTP upload cap and the transcriber
// limit. A non-positive HTTP cap defers to the transcriber.
func audioLimit(httpMax, transcriberMax int64) int64 {
	if transcriberMax > 0 && (httpMax <= 0 || transcriberMax < httpMax) {
		return transcriberMax
	}
	return httpMax
}

// importSeed loads the configured seed file once. Failures are logged; a
// broken seed file never blocks startup.
func importSeed(ctx context.Context, cfg *Config, c *components, logger *slog.Logger) {
	if cfg.Directory.SeedFile == "" {
		return
	}
	res, err := c.importer.ImportFile(ctx, cfg.Directory.SeedFile)
	if err != nil {
		logger.Warn("client seed import failed", slog.String("error", err.Error()))
		return
	}
	for _, created := range res.Created {
		c.broker.PublishClientCreated(created)
	}
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, logger, err := setup(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("archive_path", cfg.Archive.Path),
		slog.String("business", cfg.Business.Name),
		slog.String("log_level", cfg.App.LogLevel.String()))

	c, err := build(cfg, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	importSeed(ctx, cfg, c, logger)

	apiRouter := api.NewRouter(c.svc, c.maxAudioBytes, c.broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(api.RequestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := c.db.Ping(r.Context()); err != nil {
			logger.Error("readiness check failed", slog.String("error", err.Error()))
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
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

	// A signal cancels ctx, which stops the watcher as well as the server.
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	// Re-import the seed file on change and tell open clients.
	if cfg.Directory.Watch {
		g.Go(func() error {
			err := c.importer.Watch(gCtx, cfg.Directory.SeedFile, func(res directory.Result) {
				for _, created := range res.Created {
					c.broker.PublishClientCreated(created)
				}
			})
			if err != nil {
				logger.Warn("client seed watcher stopped", slog.String("error", err.Error()))
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
		<-gCtx.Done()
		logger.Info("Shutting down server...", slog.String("cause", context.Cause(gCtx).Error()))

		// Event streams never finish on their own.
		c.broker.Close()

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

// RunMCP serves the MCP tools over stdio. Logs go to stderr unless
// WithLogOutput says otherwise.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, logger, err := setup(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return err
	}
	cfg := app.config

	c, err := build(cfg, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	importSeed(ctx, cfg, c, logger)

	logger.Info("MCP server starting on stdio", slog.String("version", app.version))
	return mcpserver.New(c.svc, app.version).ServeStdio()
}

// Offline opens the store behind a service limited to the client directory
// and the invoice history. No credentials are needed.
func Offline(cfg *Config) (*invoicing.Service, io.Closer, error) {
	db, err := store.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("init store: %w", err)
	}
	return invoicing.New(invoicing.Deps{Store: db}), db, nil
}
