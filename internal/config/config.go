// Package config builds the pagetrail configuration from environment variables and an optional .env file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/pagetrail/pagetrail/internal/errors"
)

// Config holds the application configuration. It is built once at process
// entry and passed down explicitly; nothing below main reads the environment.
type Config struct {
	App       AppConfig
	Logger    LoggerConfig
	Store     StoreConfig
	GitHub    GitHubConfig
	Ingest    IngestConfig
	Reconcile ReconcileConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string
	File  string // Optional rotating log file
}

// StoreConfig holds the embedded database location.
type StoreConfig struct {
	Path string
}

// GitHubConfig holds the external tracker settings.
type GitHubConfig struct {
	Token      string        // Bearer credential; empty means read-only local mode
	Repository string        // owner/repo
	APIURL     string        // default: https://api.github.com
	Timeout    time.Duration // per-request timeout (default: 30s)
}

// IngestConfig holds settings for the ingest command.
type IngestConfig struct {
	EventPath        string // GITHUB_EVENT_PATH, falling back to GITHUB_TEST_EVENT_PATH
	DebugPayloadDir  string // Optional; dumps issue.json/comment.json when set
	AutoClosedLabel  string
	AbandonKeywords  []string
	StateReasonClose string
}

// ReconcileConfig holds settings for the reconcile command.
type ReconcileConfig struct {
	ReportPath string
	DryRun     bool // RECONCILE_DRY_RUN; the --dry-run flag also sets it
}

// Defaults.
const (
	DefaultDBPath          = "data/reading.sqlite"
	DefaultReportPath      = "data/validation_report.md"
	DefaultAPIURL          = "https://api.github.com"
	DefaultAutoClosedLabel = "auto-closed"
)

// LoadConfig loads configuration with precedence:
// 1. Environment variables (highest priority).
// 2. The .env file at envFile (never overrides the real environment).
// 3. Default values.
func LoadConfig(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return nil, errors.Wrapf(err, errors.CodeConfig, "load env file %s", envFile)
		}
	}

	cfg := &Config{
		App: AppConfig{
			Environment: getEnv("ENV", "development"),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
			File:  getEnv("LOG_FILE", ""),
		},
		Store: StoreConfig{
			Path: getEnv("DB_PATH", DefaultDBPath),
		},
		GitHub: GitHubConfig{
			Token:      getEnv("GITHUB_TOKEN", ""),
			Repository: getEnv("GITHUB_REPOSITORY", ""),
			APIURL:     strings.TrimRight(getEnv("GITHUB_API_URL", DefaultAPIURL), "/"),
		},
		Ingest: IngestConfig{
			EventPath:        firstNonEmpty(os.Getenv("GITHUB_EVENT_PATH"), os.Getenv("GITHUB_TEST_EVENT_PATH")),
			DebugPayloadDir:  getEnv("DEBUG_PAYLOAD_DIR", ""),
			AutoClosedLabel:  getEnv("AUTO_CLOSED_LABEL", DefaultAutoClosedLabel),
			AbandonKeywords:  []string{"abandon", "give_up"},
			StateReasonClose: "not_planned",
		},
		Reconcile: ReconcileConfig{
			ReportPath: getEnv("REPORT_PATH", DefaultReportPath),
		},
	}

	timeoutStr := getEnv("GITHUB_TIMEOUT", "30s")
	timeout, err := time.ParseDuration(timeoutStr)
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodeConfig, "invalid GITHUB_TIMEOUT %q", timeoutStr)
	}
	cfg.GitHub.Timeout = timeout

	dryRunStr := getEnv("RECONCILE_DRY_RUN", "false")
	dryRun, err := strconv.ParseBool(dryRunStr)
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodeConfig, "invalid RECONCILE_DRY_RUN %q", dryRunStr)
	}
	cfg.Reconcile.DryRun = dryRun

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings shared by every command.
func (c *Config) Validate() error {
	validEnvs := map[string]bool{"development": true, "test": true, "production": true}
	if !validEnvs[c.App.Environment] {
		return errors.Configf("invalid environment: %s (must be development, test, or production)", c.App.Environment)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logger.Level)] {
		return errors.Configf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	if c.Store.Path == "" {
		return errors.Config("DB_PATH cannot be empty")
	}

	if c.GitHub.Repository != "" {
		if _, _, err := c.GitHub.OwnerRepo(); err != nil {
			return err
		}
	}
	return nil
}

// ValidateIngest checks the settings the ingest command cannot run without.
func (c *Config) ValidateIngest() error {
	if c.Ingest.EventPath == "" {
		return errors.Config("GITHUB_EVENT_PATH or GITHUB_TEST_EVENT_PATH not set; " +
			"run inside GitHub Actions or point GITHUB_TEST_EVENT_PATH at a mock event file")
	}
	if _, err := os.Stat(c.Ingest.EventPath); err != nil {
		return errors.Wrapf(err, errors.CodeConfig, "event file not found at %s", c.Ingest.EventPath)
	}
	if c.Live() {
		if c.GitHub.Repository == "" {
			return errors.Config("GITHUB_REPOSITORY not set; live ingest fetches the issue from it")
		}
		if _, _, err := c.GitHub.OwnerRepo(); err != nil {
			return err
		}
	}
	return nil
}

// ValidateReconcile checks the settings the reconcile command cannot run without.
func (c *Config) ValidateReconcile() error {
	if c.GitHub.Token == "" {
		return errors.Config("GITHUB_TOKEN not set")
	}
	if c.GitHub.Repository == "" {
		return errors.Config("GITHUB_REPOSITORY not set")
	}
	if c.Reconcile.ReportPath == "" {
		return errors.Config("REPORT_PATH cannot be empty")
	}
	return nil
}

// Live reports whether a tracker credential is configured. Without one the
// commands never call write endpoints and ingest uses the payload as-is.
func (c *Config) Live() bool {
	return c.GitHub.Token != ""
}

// OwnerRepo splits GITHUB_REPOSITORY into owner and repository name.
func (g GitHubConfig) OwnerRepo() (owner, repo string, err error) {
	owner, repo, ok := strings.Cut(g.Repository, "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return "", "", errors.Configf("invalid GITHUB_REPOSITORY %q (want owner/repo)", g.Repository)
	}
	return owner, repo, nil
}

// EnsureDataDir creates the parent directory of path if it is missing.
func EnsureDataDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}
	return nil
}

// getEnv returns the environment value for key or the default.
func getEnv(key, defaultValue string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return defaultValue
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
