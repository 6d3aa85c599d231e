package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/infobox-crawler/internal/config"
	"github.com/JakeFAU/infobox-crawler/internal/infobox"
	memorystore "github.com/JakeFAU/infobox-crawler/internal/storage/memory"
	sqlitestore "github.com/JakeFAU/infobox-crawler/internal/storage/sqlite"
)

func baseConfig() config.Config {
	return config.Config{
		Server:   config.ServerConfig{Port: 8080, RequestTimeoutSeconds: 30},
		HTTP:     config.HTTPConfig{TimeoutSeconds: 5},
		Crawler:  config.CrawlerConfig{UserAgent: "infobox-crawler-test"},
		Fetcher:  config.FetcherConfig{Backend: config.FetcherColly},
		Database: config.DatabaseConfig{Driver: config.DriverMemory, AutoMigrate: true},
		Storage:  config.StorageConfig{Backend: config.StorageNone, Prefix: "snapshots"},
	}
}

func TestBuildWithMemoryStore(t *testing.T) {
	t.Parallel()

	app, err := Build(context.Background(), baseConfig(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(app.Close)

	require.IsType(t, &memorystore.FactStore{}, app.store)
	require.NotNil(t, app.Scraper())
	assert.Nil(t, app.headless)
	assert.Nil(t, app.publisher)

	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBuildWithSQLiteAndLocalArchive(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg := baseConfig()
	cfg.Database.Driver = config.DriverSQLite
	cfg.Database.DSN = filepath.Join(dir, "facts.db")
	cfg.Storage.Backend = config.StorageLocal
	cfg.Storage.Local.BaseDir = filepath.Join(dir, "snapshots")

	app, err := Build(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(app.Close)

	require.IsType(t, &sqlitestore.Store{}, app.store)

	// Skipped URLs never reach the network.
	summary, err := app.Scraper().ScrapeAndPersist(context.Background(), []string{"http://example.org"})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Skipped)

	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/filters/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"fields":[]}`, rec.Body.String())
}

func TestBuildRejectsTooManyURLs(t *testing.T) {
	t.Parallel()

	app, err := Build(context.Background(), baseConfig(), nil)
	require.NoError(t, err)
	t.Cleanup(app.Close)

	_, err = app.Scraper().ScrapeAndPersist(context.Background(), make([]string, infobox.MaxBatchURLs+1))
	require.ErrorIs(t, err, infobox.ErrTooManyURLs)
}

func TestOpenStoreFailsWithoutDSN(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	cfg.Database.Driver = config.DriverSQLite
	_, err := OpenStore(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
}

func TestOpenStoreMigratesSQLite(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	cfg.Database.Driver = config.DriverSQLite
	cfg.Database.DSN = filepath.Join(t.TempDir(), "facts.db")

	store, err := OpenStore(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	n, err := store.CountFields(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}
