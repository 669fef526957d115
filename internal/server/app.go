// Package server builds the relay's dependency graph and runs the HTTP server.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/secavis-relay/internal/api"
	"github.com/JakeFAU/secavis-relay/internal/clock/system"
	"github.com/JakeFAU/secavis-relay/internal/config"
	"github.com/JakeFAU/secavis-relay/internal/hash/sha256"
	"github.com/JakeFAU/secavis-relay/internal/id/uuid"
	"github.com/JakeFAU/secavis-relay/internal/intake"
	"github.com/JakeFAU/secavis-relay/internal/logging"
	"github.com/JakeFAU/secavis-relay/internal/notice"
	"github.com/JakeFAU/secavis-relay/internal/parser"
	"github.com/JakeFAU/secavis-relay/internal/pipeline"
	"github.com/JakeFAU/secavis-relay/internal/policy/ratelimit"
	"github.com/JakeFAU/secavis-relay/internal/portal"
	gcppublisher "github.com/JakeFAU/secavis-relay/internal/publisher/pubsub"
	gcsstorage "github.com/JakeFAU/secavis-relay/internal/storage/gcs"
	localstorage "github.com/JakeFAU/secavis-relay/internal/storage/local"
	memorystorage "github.com/JakeFAU/secavis-relay/internal/storage/memory"
	pgstore "github.com/JakeFAU/secavis-relay/internal/storage/postgres"
	sqlitestore "github.com/JakeFAU/secavis-relay/internal/storage/sqlite"
)

const shutdownTimeout = 10 * time.Second

// App contains the application's dependencies.
type App struct {
	cfg             *config.Config
	logger          *zap.Logger
	apiServer       *api.Server
	pipeline        *pipeline.Service
	store           notice.Store
	pubsubClient    *pubsub.Client
	pubsubPublisher *pubsub.Publisher
	storage         *storage.Client
}

// Pipeline exposes the orchestrator for CLI commands.
func (a *App) Pipeline() *pipeline.Service {
	return a.pipeline
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Run serves HTTP until ctx is canceled or a termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}

	closeErr := a.Close(shutdownCtx)
	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	default:
		return closeErr
	}
}

// Close releases infrastructure clients.
func (a *App) Close(_ context.Context) error {
	var errs []error
	if a.pubsubPublisher != nil {
		a.pubsubPublisher.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("pubsub client close: %w", err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("gcs client close: %w", err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("ledger close: %w", err))
		}
	}
	_ = a.logger.Sync()
	return errors.Join(errs...)
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return BuildWithLogger(ctx, cfg, logger)
}

// BuildWithLogger is Build with a caller supplied logger.
func BuildWithLogger(ctx context.Context, cfg *config.Config, logger *zap.Logger) (app *App, err error) {
	app = &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = app.Close(ctx)
		}
	}()

	logger.Info("building application",
		zap.Int("port", cfg.Server.Port),
		zap.String("store", cfg.Store.Backend),
		zap.String("archive", cfg.Archive.Backend),
		zap.Bool("intake", cfg.Intake.Enabled),
	)

	if app.store, err = setupStore(ctx, cfg, logger); err != nil {
		return nil, err
	}
	archive, err := setupArchive(ctx, app)
	if err != nil {
		return nil, err
	}
	publisher, err := setupPublisher(ctx, app)
	if err != nil {
		return nil, err
	}
	retriever, err := setupDriver(cfg, logger)
	if err != nil {
		return nil, err
	}

	clock := system.New()
	deps := pipeline.Deps{
		Store:     app.store,
		Retriever: retriever,
		Archive:   archive,
		Publisher: publisher,
		Hasher:    sha256.New(),
		Clock:     clock,
		IDs:       uuid.NewUUIDGenerator(),
	}

	var auth api.Authenticator
	if cfg.Intake.Enabled {
		client, cerr := intake.NewClient(intake.ClientConfig{
			BaseURL: cfg.Intake.BaseURL,
			Timeout: cfg.IntakeTimeout(),
		}, logger)
		if cerr != nil {
			return nil, fmt.Errorf("intake client init failed: %w", cerr)
		}
		deps.Forwarder = intake.NewForwarder(client, clock, logger)
		auth = client
		logger.Info("intake forwarding enabled", zap.String("form_id", cfg.Intake.FormID))
	}

	app.pipeline, err = pipeline.New(deps, pipeline.Config{
		FormURL:       cfg.Portal.FormURL,
		ArchivePrefix: cfg.Archive.Prefix,
		Topic:         cfg.PubSub.TopicName,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("pipeline init failed: %w", err)
	}

	app.apiServer = api.NewServer(app.pipeline, auth, *cfg, logger)
	return app, nil
}

func setupStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (notice.Store, error) {
	switch cfg.Store.Backend {
	case "postgres":
		ledger, err := pgstore.NewLedger(ctx, pgstore.LedgerConfig{
			DSN:             cfg.Store.DSN,
			Table:           cfg.Store.Table,
			MaxConns:        cfg.Store.MaxConns,
			MinConns:        cfg.Store.MinConns,
			MaxConnLifetime: cfg.MaxConnLifetime(),
		})
		if err != nil {
			return nil, fmt.Errorf("postgres ledger init failed: %w", err)
		}
		if err := ledger.EnsureSchema(ctx); err != nil {
			_ = ledger.Close()
			return nil, err
		}
		logger.Info("using postgres ledger", zap.String("table", cfg.Store.Table))
		return ledger, nil
	case "sqlite":
		ledger, err := sqlitestore.Open(ctx, cfg.Store.Path)
		if err != nil {
			return nil, fmt.Errorf("sqlite ledger init failed: %w", err)
		}
		logger.Info("using sqlite ledger", zap.String("path", cfg.Store.Path))
		return ledger, nil
	default:
		logger.Warn("using in-memory ledger; processed pairs are lost on restart")
		return memorystorage.NewLedger(), nil
	}
}

func setupArchive(ctx context.Context, app *App) (notice.BlobStore, error) {
	cfg := app.cfg.Archive
	switch cfg.Backend {
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		app.storage = client
		store, err := gcsstorage.New(client, gcsstorage.Config{Bucket: cfg.Bucket})
		if err != nil {
			return nil, fmt.Errorf("gcs archive init failed: %w", err)
		}
		app.logger.Info("archiving captures to GCS", zap.String("bucket", cfg.Bucket))
		return store, nil
	case "local":
		store, err := localstorage.New(localstorage.Config{BaseDir: cfg.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local archive init failed: %w", err)
		}
		app.logger.Info("archiving captures locally", zap.String("path", cfg.BaseDir))
		return store, nil
	case "memory":
		return memorystorage.NewBlobStore(), nil
	default:
		app.logger.Info("capture archive disabled")
		return nil, nil
	}
}

func setupPublisher(ctx context.Context, app *App) (notice.Publisher, error) {
	cfg := app.cfg.PubSub
	if cfg.TopicName == "" || cfg.ProjectID == "" {
		app.logger.Info("no Pub/Sub topic configured, publishing disabled")
		return nil, nil
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	app.pubsubClient = client
	app.pubsubPublisher = client.Publisher(cfg.TopicName)
	app.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", cfg.ProjectID),
		zap.String("topic", cfg.TopicName),
	)
	return gcppublisher.New(app.pubsubPublisher), nil
}

func setupDriver(cfg *config.Config, logger *zap.Logger) (*portal.Driver, error) {
	launcher, err := portal.NewChromeLauncher(portal.ChromeConfig{
		ExecPath:       cfg.Portal.ChromePath,
		UserAgent:      cfg.Portal.UserAgent,
		Headless:       cfg.Portal.Headless,
		CaptureQuality: cfg.Portal.CaptureQuality,
	}, logger.Named("chrome"))
	if err != nil {
		return nil, fmt.Errorf("chrome launcher init failed: %w", err)
	}
	limiter := ratelimit.New(ratelimit.Config{
		RPS:   cfg.Portal.RatePerSecond,
		Burst: cfg.Portal.Burst,
	})
	driver, err := portal.NewDriver(portal.Config{
		SessionTimeout: cfg.NavTimeout(),
		MaxParallel:    cfg.Portal.MaxParallel,
	}, launcher, parser.New(), limiter, logger.Named("portal"))
	if err != nil {
		return nil, fmt.Errorf("portal driver init failed: %w", err)
	}
	return driver, nil
}
