package providers

import (
	"github.com/samber/do/v2"

	"github.com/pagetrail/pagetrail/internal/config"
	"github.com/pagetrail/pagetrail/internal/ingest"
	"github.com/pagetrail/pagetrail/internal/reconcile"
	"github.com/pagetrail/pagetrail/internal/tracker"
)

// ProvideIngestService provides the ingestion service.
func ProvideIngestService(i do.Injector) (*ingest.Service, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*LoggerHandle](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	client := do.MustInvoke[*tracker.Client](i)

	return ingest.NewService(storeHandle.Store, client, ingest.Options{
		Live:            cfg.Live(),
		AutoClosedLabel: cfg.Ingest.AutoClosedLabel,
		AbandonKeywords: cfg.Ingest.AbandonKeywords,
		StateReason:     cfg.Ingest.StateReasonClose,
		DebugPayloadDir: cfg.Ingest.DebugPayloadDir,
	}, log.Logger.Logger), nil
}

// ProvideReconcileEngine provides the reconciliation engine.
func ProvideReconcileEngine(i do.Injector) (*reconcile.Engine, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*LoggerHandle](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	client := do.MustInvoke[*tracker.Client](i)

	return reconcile.NewEngine(storeHandle.Store, client, reconcile.Options{
		DryRun: cfg.Reconcile.DryRun,
	}, log.Logger.Logger), nil
}
