package di

import (
	"path/filepath"
	"testing"

	"github.com/samber/do/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagetrail/pagetrail/internal/config"
	"github.com/pagetrail/pagetrail/internal/di/providers"
	"github.com/pagetrail/pagetrail/internal/ingest"
	"github.com/pagetrail/pagetrail/internal/migrate"
	"github.com/pagetrail/pagetrail/internal/reconcile"
	"github.com/pagetrail/pagetrail/internal/tracker"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		App:    config.AppConfig{Environment: "test"},
		Logger: config.LoggerConfig{Level: "error"},
		Store:  config.StoreConfig{Path: filepath.Join(t.TempDir(), "nested", "reading.sqlite")},
		GitHub: config.GitHubConfig{
			Repository: "reader/books",
			APIURL:     config.DefaultAPIURL,
		},
		Ingest: config.IngestConfig{
			AutoClosedLabel:  config.DefaultAutoClosedLabel,
			StateReasonClose: "not_planned",
		},
		Reconcile: config.ReconcileConfig{DryRun: true},
	}
}

func TestNewContainer_ResolvesCommandServices(t *testing.T) {
	injector := NewContainer(testConfig(t))
	t.Cleanup(func() { _ = injector.Shutdown() })

	svc, err := do.Invoke[*ingest.Service](injector)
	require.NoError(t, err)
	assert.NotNil(t, svc)

	engine, err := do.Invoke[*reconcile.Engine](injector)
	require.NoError(t, err)
	assert.NotNil(t, engine)

	m, err := do.Invoke[*migrate.Migrator](injector)
	require.NoError(t, err)
	assert.Equal(t, 6, m.Latest())

	client, err := do.Invoke[*tracker.Client](injector)
	require.NoError(t, err)
	assert.False(t, client.Writable())

	// The store is shared between services.
	a := do.MustInvoke[*providers.StoreHandle](injector)
	b := do.MustInvoke[*providers.StoreHandle](injector)
	assert.Same(t, a, b)
}

func TestNewContainer_InvalidRepository(t *testing.T) {
	cfg := testConfig(t)
	cfg.GitHub.Repository = "not-a-repo"
	injector := NewContainer(cfg)
	t.Cleanup(func() { _ = injector.Shutdown() })

	_, err := do.Invoke[*tracker.Client](injector)
	assert.Error(t, err)
}
