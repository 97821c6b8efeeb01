// Package providers contains dependency injection providers for the
// pagetrail commands.
package providers

import (
	"os"

	"github.com/samber/do/v2"

	"github.com/pagetrail/pagetrail/internal/config"
	"github.com/pagetrail/pagetrail/internal/logger"
	"github.com/pagetrail/pagetrail/internal/validation"
)

// LoggerHandle wraps the logger so the container closes its log file.
type LoggerHandle struct {
	*logger.Logger
}

// Shutdown implements do.Shutdownable.
func (h *LoggerHandle) Shutdown() error {
	return h.Close()
}

// ProvideLogger provides the structured logger. Records go to stderr so
// command output stays clean.
func ProvideLogger(i do.Injector) (*LoggerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)

	log := logger.New(logger.Config{
		Writer:      os.Stderr,
		Level:       logger.ParseLevel(cfg.Logger.Level),
		AddSource:   cfg.App.Environment == "development",
		Environment: cfg.App.Environment,
		File:        cfg.Logger.File,
	})

	log.Debug("logger initialized",
		"environment", cfg.App.Environment,
		"log_level", cfg.Logger.Level,
		"db_path", cfg.Store.Path,
		"live", cfg.Live(),
	)

	return &LoggerHandle{Logger: log}, nil
}

// ProvideValidator provides the payload validator.
func ProvideValidator(i do.Injector) (*validation.Validator, error) {
	return validation.New(), nil
}
