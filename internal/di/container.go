// Package di provides dependency injection configuration for the pagetrail
// commands.
package di

import (
	"github.com/samber/do/v2"

	"github.com/pagetrail/pagetrail/internal/config"
	"github.com/pagetrail/pagetrail/internal/di/providers"
)

// NewContainer creates and configures the DI container with all providers.
// Configuration is loaded by the caller so that its errors map to exit
// codes before anything else starts.
func NewContainer(cfg *config.Config) *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.ProvideValue(injector, cfg)
	do.Provide(injector, providers.ProvideLogger)
	do.Provide(injector, providers.ProvideValidator)

	// Database layer
	do.Provide(injector, providers.ProvideStore)
	do.Provide(injector, providers.ProvideMigrator)

	// Tracker
	do.Provide(injector, providers.ProvideTracker)

	// Commands
	do.Provide(injector, providers.ProvideIngestService)
	do.Provide(injector, providers.ProvideReconcileEngine)

	return injector
}
