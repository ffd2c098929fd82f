package api

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/storage"

	"github.com/FACorreiaa/gst-reconciler/internal/domain/reconcile/archive"
	"github.com/FACorreiaa/gst-reconciler/internal/domain/reconcile/handler"
	"github.com/FACorreiaa/gst-reconciler/internal/domain/reconcile/normalizer"
	"github.com/FACorreiaa/gst-reconciler/internal/domain/reconcile/repository"
	"github.com/FACorreiaa/gst-reconciler/internal/domain/reconcile/service"
	"github.com/FACorreiaa/gst-reconciler/pkg/config"
	"github.com/FACorreiaa/gst-reconciler/pkg/db"
)

// Dependencies holds all application dependencies
type Dependencies struct {
	Config *config.Config
	DB     *db.DB
	Logger *slog.Logger

	// Storage
	RunRepo repository.RunRepository
	Archive archive.Store

	// Services
	ReconcileService *service.ReconciliationService

	// Handlers
	ReconcileHandler *handler.ReconcileHandler

	gcsClient *storage.Client
}

// InitDependencies initializes all application dependencies
func InitDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if cfg.Database.Enabled {
		if err := deps.initDatabase(); err != nil {
			return nil, fmt.Errorf("failed to init database: %w", err)
		}
	} else {
		logger.Warn("database disabled; runs will not be indexed")
	}

	if err := deps.initArchive(ctx); err != nil {
		deps.Cleanup()
		return nil, fmt.Errorf("failed to init archive: %w", err)
	}

	deps.initRepositories()

	if err := deps.initServices(); err != nil {
		deps.Cleanup()
		return nil, fmt.Errorf("failed to init services: %w", err)
	}

	deps.initHandlers()

	logger.Info("all dependencies initialized successfully")

	return deps, nil
}

// initDatabase initializes the database connection and runs migrations
func (d *Dependencies) initDatabase() error {
	database, err := db.New(db.Config{
		DSN:             d.Config.Database.DSN(),
		MaxConns:        10,
		MinConns:        1,
		MaxConnLifetime: 5 * time.Minute,
		MaxConnIdleTime: 10 * time.Minute,
	}, d.Logger)
	if err != nil {
		return err
	}

	d.DB = database

	if err := d.DB.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	d.Logger.Info("database connected and migrations completed successfully")
	return nil
}

func (d *Dependencies) initArchive(ctx context.Context) error {
	cfg := d.Config.Archive

	switch cfg.Backend {
	case config.ArchiveGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("failed to create storage client: %w", err)
		}
		d.gcsClient = client
		d.Archive = archive.NewGCSStore(client, cfg.Bucket, cfg.Prefix)
		d.Logger.Info("archive ready", "backend", cfg.Backend, "bucket", cfg.Bucket, "prefix", cfg.Prefix)
	default:
		store, err := archive.NewFileStore(cfg.Dir)
		if err != nil {
			return err
		}
		d.Archive = store
		d.Logger.Info("archive ready", "backend", config.ArchiveFS, "dir", store.Dir())
	}
	return nil
}

// initRepositories initializes all repository layer dependencies
func (d *Dependencies) initRepositories() {
	if d.DB != nil {
		d.RunRepo = repository.NewPostgresRunRepository(d.DB.Pool)
	}
	d.Logger.Info("repositories initialized", "run_index", d.RunRepo != nil)
}

// initServices initializes all service layer dependencies
func (d *Dependencies) initServices() error {
	var synonyms map[string]string
	if path := d.Config.Reconcile.SynonymsFile; path != "" {
		loaded, err := normalizer.LoadSynonyms(path)
		if err != nil {
			return err
		}
		synonyms = loaded
		d.Logger.Info("loaded header synonyms", "file", path, "count", len(synonyms))
	}

	opts := service.Options{Normalizer: normalizer.New(synonyms)}.
		WithTolerance(d.Config.Reconcile.Tolerance)

	d.ReconcileService = service.NewReconciliationService(d.RunRepo, d.Archive, opts, d.Logger)

	d.Logger.Info("services initialized", "tolerance", d.Config.Reconcile.Tolerance.String())
	return nil
}

// initHandlers initializes all handler dependencies
func (d *Dependencies) initHandlers() {
	d.ReconcileHandler = handler.NewReconcileHandler(d.ReconcileService, d.Logger)
	d.Logger.Info("handlers initialized")
}

// Cleanup closes all resources
func (d *Dependencies) Cleanup() {
	if d.gcsClient != nil {
		if err := d.gcsClient.Close(); err != nil {
			d.Logger.Warn("failed to close storage client", "error", err)
		}
	}
	if d.DB != nil {
		d.DB.Close()
	}
	d.Logger.Info("cleanup completed")
}
