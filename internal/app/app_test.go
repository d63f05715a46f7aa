package app_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/journal-ingest/internal/app"
	"github.com/JakeFAU/journal-ingest/internal/config"
	"github.com/JakeFAU/journal-ingest/internal/storage"
	"github.com/JakeFAU/journal-ingest/internal/storage/local"
	"github.com/JakeFAU/journal-ingest/internal/storage/memory"
)

// newUpstream serves `pages` non-empty pages of two records each, then empty pages.
func newUpstream(t *testing.T, pages int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, err := strconv.Atoi(r.URL.Query().Get("page"))
		if err != nil {
			http.Error(w, "bad page", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if page > pages {
			_, _ = io.WriteString(w, "[]")
			return
		}
		_, _ = fmt.Fprintf(w, `[{"id":"%d-a"},{"id":"%d-b"}]`, page, page)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func baseConfig(baseURL, provider string) config.Config {
	return config.Config{
		Source: config.SourceConfig{
			BaseURL:   baseURL,
			Sort:      "publishingDate",
			PerPage:   2,
			StartPage: 1,
			UserAgent: "journal-ingest-test",
		},
		HTTP:    config.HTTPConfig{TimeoutSeconds: 5},
		Storage: config.StorageConfig{Provider: provider, Project: "p", Bucket: "b", Prefix: "metadata"},
		Ingest:  config.IngestConfig{ProbePolicy: "fail_open"},
		Metrics: config.MetricsConfig{JobName: "journal_ingest_test"},
	}
}

func TestNew_MemoryProviderRunsToCompletion(t *testing.T) {
	upstream := newUpstream(t, 3)

	a, err := app.New(context.Background(), baseConfig(upstream.URL, config.ProviderMemory), zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	store, ok := a.Store().(*memory.BlobStore)
	require.True(t, ok, "expected in-memory store, got %T", a.Store())
	assert.Empty(t, a.StatusAddr())

	summary, err := a.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, summary.PagesUploaded)
	assert.Equal(t, 6, summary.ArticlesUploaded)
	assert.Equal(t, 4, summary.StopPage)
	assert.Equal(t, []string{"metadata/page=1.json", "metadata/page=2.json", "metadata/page=3.json"}, store.Keys())

	data, contentType, ok := store.Object("metadata/page=2.json")
	require.True(t, ok)
	assert.Equal(t, "application/json", contentType)
	assert.JSONEq(t, `[{"id":"2-a"},{"id":"2-b"}]`, string(data))
}

func TestNew_LocalProviderIsIdempotent(t *testing.T) {
	upstream := newUpstream(t, 2)
	cfg := baseConfig(upstream.URL, config.ProviderLocal)
	cfg.Storage.Local.BaseDir = t.TempDir()

	first, err := app.New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &local.BlobStore{}, first.Store())
	summary, err := first.Run(context.Background())
	require.NoError(t, err)
	first.Close()
	assert.Equal(t, 2, summary.PagesUploaded)

	_, err = os.Stat(filepath.Join(cfg.Storage.Local.BaseDir, "metadata", "page=1.json"))
	require.NoError(t, err)

	second, err := app.New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer second.Close()
	summary, err = second.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.PagesUploaded)
	assert.Equal(t, 2, summary.PagesExisting)
}

func TestNew_NoopProvider(t *testing.T) {
	upstream := newUpstream(t, 1)

	a, err := app.New(context.Background(), baseConfig(upstream.URL, config.ProviderNoop), zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	assert.IsType(t, &storage.NoOpProvider{}, a.Store())
	assert.NotNil(t, a.Ingester())
	assert.NotNil(t, a.Logger())
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := baseConfig("https://example.com/api", "ftp")

	_, err := app.New(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage.provider")
}

func TestRun_PushesMetrics(t *testing.T) {
	upstream := newUpstream(t, 1)

	var (
		mu     sync.Mutex
		pushes []string
	)
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		pushes = append(pushes, r.Method+" "+r.URL.Path)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer gateway.Close()

	cfg := baseConfig(upstream.URL, config.ProviderMemory)
	cfg.Metrics.PushgatewayURL = gateway.URL

	a, err := app.New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	_, err = a.Run(context.Background())
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, pushes, 1)
	assert.Equal(t, "PUT /metrics/job/journal_ingest_test", pushes[0])
}

func TestRun_FetchErrorIsReturned(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer upstream.Close()

	a, err := app.New(context.Background(), baseConfig(upstream.URL, config.ProviderMemory), zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	summary, err := a.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Error 500")
	assert.Equal(t, 0, summary.PagesUploaded)
}

func TestNew_GCSProviderChecksBucket(t *testing.T) {
	upstream := newUpstream(t, 1)

	var bucketPaths []string
	var mu sync.Mutex
	gcsAPI := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		bucketPaths = append(bucketPaths, r.URL.Path)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"name":"cf-journal"}`)
	}))
	defer gcsAPI.Close()

	cfg := baseConfig(upstream.URL, config.ProviderGCS)
	cfg.Storage.Project = "crossfit-journal-rag-app"
	cfg.Storage.Bucket = "cf-journal"
	cfg.Storage.GCS.Endpoint = gcsAPI.URL

	a, err := app.New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, bucketPaths)
	assert.Contains(t, bucketPaths[0], "/b/cf-journal")
}

func TestNew_GCSProviderFailsOnUnreachableBucket(t *testing.T) {
	gcsAPI := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `{"error":{"code":403,"message":"Forbidden"}}`)
	}))
	defer gcsAPI.Close()

	cfg := baseConfig("https://example.com/api", config.ProviderGCS)
	cfg.Storage.GCS.Endpoint = gcsAPI.URL

	_, err := app.New(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to get GCS bucket")
}
