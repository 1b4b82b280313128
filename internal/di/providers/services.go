package providers

import (
	"github.com/samber/do/v2"

	"github.com/shelfmark/shelfmark-server/internal/config"
	"github.com/shelfmark/shelfmark-server/internal/logger"
	"github.com/shelfmark/shelfmark-server/internal/relay"
	"github.com/shelfmark/shelfmark-server/internal/service"
)

// ProvideReconciler provides the merge engine.
func ProvideReconciler(i do.Injector) (*service.Reconciler, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewReconciler(storeHandle.Store, log.Logger), nil
}

// ProvideLibraryService provides the book library service.
func ProvideLibraryService(i do.Injector) (*service.LibraryService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	identity := do.MustInvoke[relay.Identity](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewLibraryService(storeHandle.Store, identity, log.Logger), nil
}

// ProvideSyncService provides the sync orchestrator.
func ProvideSyncService(i do.Injector) (*service.SyncService, error) {
	cfg := do.MustInvoke[*config.Config](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	reconciler := do.MustInvoke[*service.Reconciler](i)
	client := do.MustInvoke[relay.Client](i)
	identity := do.MustInvoke[relay.Identity](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewSyncService(storeHandle.Store, reconciler, client, identity, cfg.Relay.Relays, log.Logger), nil
}

// ProvideAnnotationService provides the annotation service.
func ProvideAnnotationService(i do.Injector) (*service.AnnotationService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	identity := do.MustInvoke[relay.Identity](i)
	syncService := do.MustInvoke[*service.SyncService](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewAnnotationService(storeHandle.Store, identity, syncService, log.Logger), nil
}

// ProvideSpectateService provides the spectate controller.
func ProvideSpectateService(i do.Injector) (*service.SpectateService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	reconciler := do.MustInvoke[*service.Reconciler](i)
	client := do.MustInvoke[relay.Client](i)
	identity := do.MustInvoke[relay.Identity](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewSpectateService(storeHandle.Store, reconciler, client, identity, log.Logger), nil
}
