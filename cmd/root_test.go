package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/journal-ingest/internal/config"
	"github.com/JakeFAU/journal-ingest/internal/ingest"
)

type mockApp struct {
	mock.Mock
}

func (m *mockApp) Run(ctx context.Context) (ingest.Summary, error) {
	args := m.Called(ctx)
	return args.Get(0).(ingest.Summary), args.Error(1)
}

func (m *mockApp) Logger() *zap.Logger {
	return zap.NewNop()
}

func (m *mockApp) Close() {
	m.Called()
}

// withApp swaps the factory for the duration of a test. Tests using it must not run in parallel.
func withApp(t *testing.T, factory func(context.Context, config.Config, *zap.Logger) (App, error)) {
	t.Helper()
	original := newApp
	newApp = factory
	t.Cleanup(func() { newApp = original })
}

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage:\n  provider: memory\nsource:\n  per_page: 5\n"), 0o600))
	return path
}

func execute(args ...string) (string, error) {
	var out bytes.Buffer
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRunCommand_RunsAndCloses(t *testing.T) {
	m := &mockApp{}
	m.On("Run", mock.Anything).Return(ingest.Summary{
		RunID:         "run-42",
		StartPage:     1,
		StopPage:      3,
		PagesUploaded: 2,
		FailedPages:   []int{},
	}, nil).Once()
	m.On("Close").Return().Once()

	var got config.Config
	withApp(t, func(_ context.Context, cfg config.Config, _ *zap.Logger) (App, error) {
		got = cfg
		return m, nil
	})

	out, err := execute("run", "--config", writeConfig(t))
	require.NoError(t, err)
	m.AssertExpectations(t)
	assert.Contains(t, out, "Run run-42")
	assert.Contains(t, out, "1-3")
	assert.Contains(t, out, "none")
	assert.Equal(t, config.ProviderMemory, got.Storage.Provider)
	assert.Equal(t, 5, got.Source.PerPage)
}

func TestRunCommand_PropagatesRunError(t *testing.T) {
	m := &mockApp{}
	m.On("Run", mock.Anything).Return(ingest.Summary{StopPage: 3}, errors.New("fetch page 3: Error 500")).Once()
	m.On("Close").Return().Once()

	withApp(t, func(context.Context, config.Config, *zap.Logger) (App, error) {
		return m, nil
	})

	_, err := execute("run", "--config", writeConfig(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch page 3")
	m.AssertExpectations(t)
}

func TestRootCommand_FactoryError(t *testing.T) {
	withApp(t, func(context.Context, config.Config, *zap.Logger) (App, error) {
		return nil, errors.New("bucket unreachable")
	})

	_, err := execute("run", "--config", writeConfig(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket unreachable")
}

func TestRootCommand_BadConfigPath(t *testing.T) {
	withApp(t, func(context.Context, config.Config, *zap.Logger) (App, error) {
		t.Fatal("factory should not be called")
		return nil, nil
	})

	_, err := execute("run", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load config")
}

func TestResolveApp_Missing(t *testing.T) {
	_, err := resolveApp(context.Background())
	require.Error(t, err)
}

func TestRenderSummaryListsFailedPages(t *testing.T) {
	var out bytes.Buffer
	renderSummary(&out, ingest.Summary{
		RunID:         "r1",
		StartPage:     1,
		StopPage:      8,
		PagesUploaded: 6,
		FailedPages:   []int{5, 7},
	})

	assert.Contains(t, out.String(), "5, 7")
	assert.Contains(t, out.String(), "Already stored")
}

func TestRootCommandHelpDescribesPrefix(t *testing.T) {
	root := newRootCmd()
	assert.Contains(t, root.Long, "under storage.prefix (default metadata)")
	assert.NotContains(t, root.Long, "metadata/page=")
}
