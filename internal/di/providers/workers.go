package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/shelfmark/shelfmark-server/internal/config"
	"github.com/shelfmark/shelfmark-server/internal/importer"
	"github.com/shelfmark/shelfmark-server/internal/logger"
	"github.com/shelfmark/shelfmark-server/internal/service"
)

// ImporterHandle wraps the drop-folder importer with lifecycle management.
// The Importer field is nil when no watch path is configured.
type ImporterHandle struct {
	*importer.Importer
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *ImporterHandle) Shutdown() error {
	if h.Importer == nil {
		return nil
	}
	h.cancel()
	h.Stop()
	return nil
}

// ProvideImporter provides the drop-folder importer, watching the configured
// directory for new EPUB files.
func ProvideImporter(i do.Injector) (*ImporterHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if cfg.Import.WatchPath == "" {
		log.Info("No import watch path configured, drop-folder import disabled")
		return &ImporterHandle{}, nil
	}

	library := do.MustInvoke[*service.LibraryService](i)

	imp, err := importer.New(cfg.Import.WatchPath, library, log.Logger)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		if err := imp.Start(ctx); err != nil {
			log.Error("Importer stopped with error", "error", err)
		}
	}()

	log.Info("Drop-folder importer started", "path", cfg.Import.WatchPath)

	return &ImporterHandle{Importer: imp, cancel: cancel}, nil
}
