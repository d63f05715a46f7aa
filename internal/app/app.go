// Package app builds the long-lived services behind one ingest run and owns
// their shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	gcstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/journal-ingest/internal/api"
	"github.com/JakeFAU/journal-ingest/internal/articles"
	"github.com/JakeFAU/journal-ingest/internal/config"
	"github.com/JakeFAU/journal-ingest/internal/ingest"
	"github.com/JakeFAU/journal-ingest/internal/metrics"
	pubsubpublisher "github.com/JakeFAU/journal-ingest/internal/publisher/pubsub"
	"github.com/JakeFAU/journal-ingest/internal/storage"
	"github.com/JakeFAU/journal-ingest/internal/storage/gcs"
	"github.com/JakeFAU/journal-ingest/internal/storage/local"
	"github.com/JakeFAU/journal-ingest/internal/storage/memory"
	"github.com/JakeFAU/journal-ingest/internal/storage/postgres"
	"github.com/JakeFAU/journal-ingest/internal/storage/s3"
)

const shutdownTimeout = 10 * time.Second

// App holds the services shared by a run. It is built once at startup and
// closed when the command finishes.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	store    storage.Provider
	ingester *ingest.Ingester

	statusLn  net.Listener
	statusSrv *http.Server

	closers []func() error
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Store exposes the configured blob store.
func (a *App) Store() storage.Provider {
	return a.store
}

// Ingester returns the page loop driver.
func (a *App) Ingester() *ingest.Ingester {
	return a.ingester
}

// StatusAddr reports the address the status server listens on, or "" when it is disabled.
func (a *App) StatusAddr() string {
	if a.statusLn == nil {
		return ""
	}
	return a.statusLn.Addr().String()
}

// New creates every service named by cfg. It fails fast: a store, ledger or
// topic that cannot be reached stops startup.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	a := &App{cfg: cfg, logger: logger}
	logger.Info("Initializing application services...")

	store, err := a.newStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.store = store

	fetcher, err := articles.New(articles.Config{
		BaseURL:   cfg.Source.BaseURL,
		Sort:      cfg.Source.Sort,
		UserAgent: cfg.Source.UserAgent,
		Timeout:   cfg.HTTPTimeout(),
	}, nil, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize article client: %w", err)
	}

	var publisher ingest.Publisher
	if cfg.PubSub.TopicName != "" {
		logger.Info("Connecting to GCP Pub/Sub", zap.String("topic", cfg.PubSub.TopicName))
		pub, client, err := pubsubpublisher.Open(ctx, cfg.PubSub.ProjectID, cfg.PubSub.TopicName)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize publisher: %w", err)
		}
		a.closers = append(a.closers, func() error {
			pub.Stop()
			return client.Close()
		})
		publisher = pub
	}

	var recorder ingest.RunRecorder
	if cfg.DB.DSN != "" {
		logger.Info("Connecting to PostgreSQL...", zap.String("table", cfg.DB.Table))
		runs, err := postgres.NewRunStore(ctx, postgres.RunStoreConfig{
			DSN:      cfg.DB.DSN,
			Table:    cfg.DB.Table,
			MaxConns: int32(cfg.DB.MaxConns), //nolint:gosec // pool sizes are small
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize run ledger: %w", err)
		}
		a.closers = append(a.closers, func() error {
			runs.Close()
			return nil
		})
		recorder = runs
	}

	in, err := ingest.New(cfg.Driver(), fetcher, store, publisher, recorder, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize ingester: %w", err)
	}
	a.ingester = in

	if cfg.Server.Port > 0 {
		ln, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.Port))
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to listen for status server: %w", err)
		}
		a.statusLn = ln
		a.statusSrv = &http.Server{
			Handler:           api.NewServer(in, logger).Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	logger.Info("Application services initialized successfully.")
	return a, nil
}

func (a *App) newStore(ctx context.Context) (storage.Provider, error) {
	cfg := a.cfg.Storage
	switch cfg.Provider {
	case config.ProviderGCS:
		a.logger.Info("Using GCS storage provider",
			zap.String("project", cfg.Project), zap.String("bucket", cfg.Bucket))
		gcsCfg := gcs.Config{Bucket: cfg.Bucket, Endpoint: cfg.GCS.Endpoint}
		client, err := gcs.NewClient(ctx, gcsCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		return a.newGCSStore(ctx, client, gcsCfg)
	case config.ProviderS3:
		a.logger.Info("Using S3 storage provider",
			zap.String("endpoint", cfg.S3.Endpoint), zap.String("bucket", cfg.Bucket))
		client, err := s3.NewClient(s3.Config{
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Region:    cfg.S3.Region,
			Bucket:    cfg.Bucket,
			UseSSL:    cfg.S3.UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		return s3.New(client, cfg.Bucket)
	case config.ProviderLocal:
		a.logger.Info("Using local storage provider", zap.String("base_dir", cfg.Local.BaseDir))
		store, err := local.New(local.Config{BaseDir: cfg.Local.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		return store, nil
	case config.ProviderMemory:
		a.logger.Info("Using in-memory storage provider. Pages are lost on exit.")
		return memory.NewBlobStore(), nil
	case config.ProviderNoop:
		a.logger.Info("Using No-Op storage provider. Pages will be discarded.")
		return &storage.NoOpProvider{}, nil
	default:
		return nil, fmt.Errorf("unknown storage provider: %s", cfg.Provider)
	}
}

// newGCSStore verifies the bucket before any page is fetched.
func (a *App) newGCSStore(ctx context.Context, client *gcstorage.Client, cfg gcs.Config) (storage.Provider, error) {
	store, err := gcs.New(client, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	if err := store.CheckBucket(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// Run executes one ingest pass. The status server, when enabled, serves for
// the duration of the pass; metrics are pushed afterwards when a Pushgateway
// is configured.
func (a *App) Run(ctx context.Context) (ingest.Summary, error) {
	if a.statusSrv != nil {
		go func() {
			a.logger.Info("status server started", zap.String("addr", a.StatusAddr()))
			if err := a.statusSrv.Serve(a.statusLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("status server error", zap.Error(err))
			}
		}()
		defer a.shutdownStatus()
	}

	summary, err := a.ingester.Run(ctx)

	if url := a.cfg.Metrics.PushgatewayURL; url != "" {
		pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if perr := metrics.Push(pushCtx, url, a.cfg.Metrics.JobName); perr != nil {
			a.logger.Warn("Failed to push metrics", zap.Error(perr))
		}
	}
	return summary, err
}

func (a *App) shutdownStatus() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.statusSrv.Shutdown(ctx); err != nil {
		a.logger.Warn("status server shutdown error", zap.Error(err))
	}
	a.statusSrv = nil
}

// Close releases every client opened by New, last opened first.
func (a *App) Close() {
	a.logger.Info("Shutting down application services...")
	if a.statusSrv != nil {
		a.shutdownStatus()
	}
	if a.statusLn != nil {
		_ = a.statusLn.Close()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("Error closing service", zap.Error(err))
		}
	}
	a.closers = nil
	_ = a.logger.Sync()
}
