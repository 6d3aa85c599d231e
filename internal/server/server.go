// Package server builds the application graph and runs the HTTP service.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/infobox-crawler/internal/api"
	gcsarchive "github.com/JakeFAU/infobox-crawler/internal/archive/gcs"
	localarchive "github.com/JakeFAU/infobox-crawler/internal/archive/local"
	memoryarchive "github.com/JakeFAU/infobox-crawler/internal/archive/memory"
	"github.com/JakeFAU/infobox-crawler/internal/catalog"
	"github.com/JakeFAU/infobox-crawler/internal/clock/system"
	"github.com/JakeFAU/infobox-crawler/internal/config"
	"github.com/JakeFAU/infobox-crawler/internal/extract"
	collyfetcher "github.com/JakeFAU/infobox-crawler/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/infobox-crawler/internal/fetcher/headless"
	"github.com/JakeFAU/infobox-crawler/internal/hash/sha256"
	"github.com/JakeFAU/infobox-crawler/internal/headless/detector"
	"github.com/JakeFAU/infobox-crawler/internal/id/uuid"
	"github.com/JakeFAU/infobox-crawler/internal/infobox"
	gcppublisher "github.com/JakeFAU/infobox-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/infobox-crawler/internal/query"
	"github.com/JakeFAU/infobox-crawler/internal/scrape"
	memorystore "github.com/JakeFAU/infobox-crawler/internal/storage/memory"
	pgstore "github.com/JakeFAU/infobox-crawler/internal/storage/postgres"
	sqlitestore "github.com/JakeFAU/infobox-crawler/internal/storage/sqlite"
	"github.com/JakeFAU/infobox-crawler/internal/writer"
)

// App contains the application's dependencies.
type App struct {
	cfg          config.Config
	logger       *zap.Logger
	store        infobox.Store
	orchestrator *scrape.Orchestrator
	apiServer    *api.Server
	headless     *headlessfetcher.Fetcher
	pubsubClient *pubsub.Client
	publisher    *gcppublisher.Publisher
	storage      *storage.Client
}

// Build creates the application's dependencies. The caller owns the returned
// App and must Close it.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	app := &App{cfg: cfg, logger: logger}
	logger.Info("building application dependencies",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("database_driver", cfg.Database.Driver),
		zap.String("fetcher_backend", cfg.Fetcher.Backend),
		zap.String("storage_backend", cfg.Storage.Backend),
	)

	store, err := OpenStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	app.store = store

	if err := app.buildPipeline(ctx); err != nil {
		app.Close()
		return nil, err
	}

	app.apiServer = api.NewServer(
		app.orchestrator,
		query.New(store),
		catalog.New(store),
		store,
		cfg,
		logger,
	)
	return app, nil
}

func (a *App) buildPipeline(ctx context.Context) error {
	blobStore, err := a.setupArchive(ctx)
	if err != nil {
		return err
	}
	deps, err := a.setupFetchers()
	if err != nil {
		return err
	}
	deps.Extractor = extract.New(extract.Config{
		TitleSelector: a.cfg.Extract.TitleSelector,
		TableSelector: a.cfg.Extract.TableSelector,
	})
	clock := system.New()
	deps.Writer = writer.New(a.store, uuid.New(), clock, a.logger.Named("writer"))
	deps.Clock = clock
	if blobStore != nil {
		deps.Archive = blobStore
		deps.Hasher = sha256.New()
	}
	if err := a.setupPublisher(ctx); err != nil {
		return err
	}
	if a.publisher != nil {
		deps.Publisher = a.publisher
	}

	a.orchestrator = scrape.New(deps, scrape.Config{
		ContentType:    a.cfg.Storage.ContentType,
		SnapshotPrefix: a.cfg.Storage.Prefix,
		Topic:          a.cfg.PubSub.TopicName,
	}, a.logger.Named("scrape"))
	return nil
}

// OpenStore connects to the configured fact store and migrates it when
// database.auto_migrate is set.
func OpenStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (infobox.Store, error) {
	var (
		store infobox.Store
		err   error
	)
	switch cfg.Database.Driver {
	case config.DriverSQLite:
		logger.Info("using sqlite fact store")
		store, err = sqlitestore.New(cfg.Database.DSN)
	case config.DriverPostgres:
		logger.Info("using postgres fact store")
		store, err = pgstore.New(ctx, pgstore.Config{
			DSN:             cfg.Database.DSN,
			MaxConns:        cfg.Database.MaxConns,
			MinConns:        cfg.Database.MinConns,
			MaxConnLifetime: cfg.Database.MaxConnLifetime,
		})
	default:
		logger.Warn("using in-memory fact store, data is lost on exit")
		store = memorystore.NewFactStore()
	}
	if err != nil {
		return nil, fmt.Errorf("fact store init failed: %w", err)
	}
	if cfg.Database.AutoMigrate {
		if err := store.Migrate(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("fact store migrate failed: %w", err)
		}
		logger.Debug("fact store schema migrated")
	}
	return store, nil
}

func (a *App) setupFetchers() (scrape.Deps, error) {
	probe := collyfetcher.New(collyfetcher.Config{
		UserAgent:     a.cfg.Crawler.UserAgent,
		RespectRobots: !a.cfg.Crawler.IgnoreRobots,
		Timeout:       a.cfg.FetchTimeout(),
	})
	if a.cfg.Fetcher.Backend == config.FetcherColly {
		a.logger.Info("using colly fetcher", zap.String("user_agent", a.cfg.Crawler.UserAgent))
		return scrape.Deps{Fetcher: probe}, nil
	}

	headless, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
		MaxParallel:       a.cfg.Headless.MaxParallel,
		UserAgent:         a.cfg.Crawler.UserAgent,
		NavigationTimeout: time.Duration(a.cfg.Headless.NavTimeoutSec) * time.Second,
		WaitSelector:      a.cfg.Extract.TableSelector,
	})
	if err != nil {
		return scrape.Deps{}, fmt.Errorf("headless fetcher init failed: %w", err)
	}
	a.headless = headless

	if a.cfg.Fetcher.Backend == config.FetcherHeadless {
		a.logger.Info("using headless fetcher", zap.Int("max_parallel", a.cfg.Headless.MaxParallel))
		return scrape.Deps{Fetcher: headless}, nil
	}
	a.logger.Info("using colly fetcher with headless promotion",
		zap.Int("promotion_threshold", a.cfg.Headless.PromotionThreshold),
		zap.String("promotion_marker", a.cfg.Headless.PromotionMarker),
	)
	return scrape.Deps{
		Fetcher:  probe,
		Headless: headless,
		Detector: detector.NewHeuristic(a.cfg.Headless.PromotionThreshold, a.cfg.Headless.PromotionMarker),
	}, nil
}

func (a *App) setupArchive(ctx context.Context) (infobox.BlobStore, error) {
	switch a.cfg.Storage.Backend {
	case config.StorageGCS:
		a.logger.Info("using GCS snapshot archive", zap.String("bucket", a.cfg.Storage.Bucket))
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		a.storage = client
		blobStore, err := gcsarchive.New(client, gcsarchive.Config{Bucket: a.cfg.Storage.Bucket})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		return blobStore, nil
	case config.StorageLocal:
		a.logger.Info("using local snapshot archive", zap.String("path", a.cfg.Storage.Local.BaseDir))
		blobStore, err := localarchive.New(localarchive.Config{BaseDir: a.cfg.Storage.Local.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		return blobStore, nil
	case config.StorageMemory:
		a.logger.Info("using in-memory snapshot archive")
		return memoryarchive.NewBlobStore(), nil
	default:
		a.logger.Info("snapshot archiving disabled")
		return nil, nil
	}
}

func (a *App) setupPublisher(ctx context.Context) error {
	if a.cfg.PubSub.TopicName == "" {
		a.logger.Info("no Pub/Sub topic configured, page events disabled")
		return nil
	}
	client, err := pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return fmt.Errorf("pubsub client init failed: %w", err)
	}
	a.pubsubClient = client
	a.publisher = gcppublisher.New(client.Topic(a.cfg.PubSub.TopicName))
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName),
	)
	return nil
}

// Handler exposes the API router.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Scraper exposes the batch scrape use case to the CLI.
func (a *App) Scraper() *scrape.Orchestrator {
	return a.orchestrator
}

// Run serves HTTP until ctx is canceled or SIGINT/SIGTERM arrives, then
// drains in-flight requests and closes dependencies.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
		a.logger.Error("http server error", zap.Error(serveErr))
	}
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	a.Close()
	if serveErr != nil {
		return fmt.Errorf("http server: %w", serveErr)
	}
	return nil
}

// Close releases every dependency Build opened.
func (a *App) Close() {
	if a.headless != nil {
		a.headless.Close()
	}
	if a.publisher != nil {
		a.publisher.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("fact store close failed", zap.Error(err))
		}
	}
	a.logger.Info("shutdown complete")
}
