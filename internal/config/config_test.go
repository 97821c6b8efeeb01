package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagetrail/pagetrail/internal/errors"
)

// clearEnv blanks every variable LoadConfig reads so the host environment
// cannot leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"ENV", "LOG_LEVEL", "LOG_FILE", "DB_PATH", "GITHUB_TOKEN", "GITHUB_REPOSITORY",
		"GITHUB_API_URL", "GITHUB_TIMEOUT", "GITHUB_EVENT_PATH", "GITHUB_TEST_EVENT_PATH",
		"DEBUG_PAYLOAD_DIR", "REPORT_PATH", "AUTO_CLOSED_LABEL", "RECONCILE_DRY_RUN",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.App.Environment)
	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, DefaultDBPath, cfg.Store.Path)
	assert.Equal(t, DefaultAPIURL, cfg.GitHub.APIURL)
	assert.Equal(t, 30*time.Second, cfg.GitHub.Timeout)
	assert.Equal(t, DefaultReportPath, cfg.Reconcile.ReportPath)
	assert.Equal(t, "auto-closed", cfg.Ingest.AutoClosedLabel)
	assert.ElementsMatch(t, []string{"abandon", "give_up"}, cfg.Ingest.AbandonKeywords)
	assert.False(t, cfg.Live())
}

func TestLoadConfig_EnvFileDoesNotOverrideEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("DB_PATH", "/from/env.sqlite")
	// godotenv skips keys that exist at all, even when empty; t.Setenv above
	// restores the original value on cleanup.
	os.Unsetenv("GITHUB_REPOSITORY")

	envFile := filepath.Join(t.TempDir(), ".env")
	content := "DB_PATH=/from/file.sqlite\nGITHUB_REPOSITORY=reader/books\n# comment\n"
	require.NoError(t, os.WriteFile(envFile, []byte(content), 0o600))

	cfg, err := LoadConfig(envFile)
	require.NoError(t, err)

	assert.Equal(t, "/from/env.sqlite", cfg.Store.Path)
	assert.Equal(t, "reader/books", cfg.GitHub.Repository)
}

func TestLoadConfig_MissingEnvFileIsIgnored(t *testing.T) {
	clearEnv(t)

	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.env"))
	assert.NoError(t, err)
}

func TestLoadConfig_EventPathFallback(t *testing.T) {
	clearEnv(t)
	t.Setenv("GITHUB_TEST_EVENT_PATH", "/tmp/test-event.json")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/test-event.json", cfg.Ingest.EventPath)

	t.Setenv("GITHUB_EVENT_PATH", "/tmp/real-event.json")
	cfg, err = LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/real-event.json", cfg.Ingest.EventPath)
}

func TestLoadConfig_InvalidTimeout(t *testing.T) {
	clearEnv(t)
	t.Setenv("GITHUB_TIMEOUT", "soon")

	_, err := LoadConfig("")
	assert.ErrorIs(t, err, errors.ErrConfig)
}

func TestLoadConfig_DryRun(t *testing.T) {
	clearEnv(t)
	t.Setenv("RECONCILE_DRY_RUN", "true")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.True(t, cfg.Reconcile.DryRun)

	t.Setenv("RECONCILE_DRY_RUN", "maybe")
	_, err = LoadConfig("")
	assert.ErrorIs(t, err, errors.ErrConfig)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			App:    AppConfig{Environment: "production"},
			Logger: LoggerConfig{Level: "warn"},
			Store:  StoreConfig{Path: "data/reading.sqlite"},
		}
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
		valid  bool
	}{
		{name: "valid", mutate: func(*Config) {}, valid: true},
		{name: "bad environment", mutate: func(c *Config) { c.App.Environment = "staging" }},
		{name: "bad level", mutate: func(c *Config) { c.Logger.Level = "loud" }},
		{name: "empty db path", mutate: func(c *Config) { c.Store.Path = "" }},
		{name: "bad repository", mutate: func(c *Config) { c.GitHub.Repository = "no-slash" }},
		{name: "good repository", mutate: func(c *Config) { c.GitHub.Repository = "reader/books" }, valid: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, errors.ErrConfig)
			}
		})
	}
}

func TestValidateIngest(t *testing.T) {
	cfg := &Config{}
	assert.ErrorIs(t, cfg.ValidateIngest(), errors.ErrConfig)

	cfg.Ingest.EventPath = filepath.Join(t.TempDir(), "missing.json")
	assert.ErrorIs(t, cfg.ValidateIngest(), errors.ErrConfig)

	path := filepath.Join(t.TempDir(), "event.json")
	require.NoError(t, os.WriteFile(path, []byte(`{}`), 0o600))
	cfg.Ingest.EventPath = path
	assert.NoError(t, cfg.ValidateIngest())

	// A token switches to live mode, which needs the repository.
	cfg.GitHub.Token = "ghp_x"
	assert.ErrorIs(t, cfg.ValidateIngest(), errors.ErrConfig)

	cfg.GitHub.Repository = "no-slash"
	assert.ErrorIs(t, cfg.ValidateIngest(), errors.ErrConfig)

	cfg.GitHub.Repository = "reader/books"
	assert.NoError(t, cfg.ValidateIngest())
}

func TestLoadConfig_LiveIngestWithoutRepository(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "event.json")
	require.NoError(t, os.WriteFile(path, []byte(`{}`), 0o600))
	t.Setenv("GITHUB_TOKEN", "tok")
	t.Setenv("GITHUB_EVENT_PATH", path)

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.True(t, cfg.Live())

	err = cfg.ValidateIngest()
	assert.ErrorIs(t, err, errors.ErrConfig)
	assert.Equal(t, 2, errors.ExitCode(err))
}

func TestValidateReconcile(t *testing.T) {
	cfg := &Config{Reconcile: ReconcileConfig{ReportPath: "r.md"}}
	assert.ErrorIs(t, cfg.ValidateReconcile(), errors.ErrConfig)

	cfg.GitHub.Token = "ghp_x"
	assert.ErrorIs(t, cfg.ValidateReconcile(), errors.ErrConfig)

	cfg.GitHub.Repository = "reader/books"
	assert.NoError(t, cfg.ValidateReconcile())
}

func TestOwnerRepo(t *testing.T) {
	owner, repo, err := GitHubConfig{Repository: "reader/books"}.OwnerRepo()
	require.NoError(t, err)
	assert.Equal(t, "reader", owner)
	assert.Equal(t, "books", repo)

	_, _, err = GitHubConfig{Repository: "a/b/c"}.OwnerRepo()
	assert.Error(t, err)
}

func TestEnsureDataDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "data", "reading.sqlite")
	require.NoError(t, EnsureDataDir(path))

	info, err := os.Stat(filepath.Dir(path))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
