package providers

import (
	"github.com/samber/do/v2"

	"github.com/pagetrail/pagetrail/internal/config"
	"github.com/pagetrail/pagetrail/internal/migrate"
	"github.com/pagetrail/pagetrail/internal/store"
)

// StoreHandle wraps the store with shutdown capability.
type StoreHandle struct {
	*store.Store
}

// Shutdown implements do.Shutdownable.
func (h *StoreHandle) Shutdown() error {
	return h.Close()
}

// ProvideStore opens the reading database, creating its directory.
func ProvideStore(i do.Injector) (*StoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*LoggerHandle](i)

	if err := config.EnsureDataDir(cfg.Store.Path); err != nil {
		return nil, err
	}
	db, err := store.Open(cfg.Store.Path, log.Logger.Logger)
	if err != nil {
		return nil, err
	}

	log.Debug("database opened", "path", cfg.Store.Path)
	return &StoreHandle{Store: db}, nil
}

// ProvideMigrator provides the schema migrator over the store's database.
func ProvideMigrator(i do.Injector) (*migrate.Migrator, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	log := do.MustInvoke[*LoggerHandle](i)

	return migrate.New(storeHandle.DB(), log.Logger.Logger), nil
}
