package providers

import (
	"github.com/samber/do/v2"

	"github.com/shelfmark/shelfmark-server/internal/config"
	"github.com/shelfmark/shelfmark-server/internal/logger"
	"github.com/shelfmark/shelfmark-server/internal/relay"
	"github.com/shelfmark/shelfmark-server/internal/store"
)

// StoreHandle wraps the store with shutdown capability.
type StoreHandle struct {
	*store.Store
}

// Shutdown implements do.Shutdownable.
func (h *StoreHandle) Shutdown() error {
	return h.Close()
}

// ProvideStore provides the database store.
func ProvideStore(i do.Injector) (*StoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	dbPath := cfg.DatabasePath()
	db, err := store.New(dbPath, log.Logger)
	if err != nil {
		return nil, err
	}

	log.Info("Database initialized", "path", dbPath)

	return &StoreHandle{Store: db}, nil
}

// ProvideIdentity loads or generates the owner's signing identity. Its public
// key names the owner partition and authors every published record.
func ProvideIdentity(i do.Injector) (relay.Identity, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	identity, err := relay.LoadOrGenerateIdentity(cfg.Data.BasePath)
	if err != nil {
		return nil, err
	}

	log.Info("Owner identity loaded", "identity", identity.PublicKey())
	return identity, nil
}

// ProvideRelayClient provides the pub/sub client used for publish and fetch.
//
// The wire protocol is intentionally behind the relay.Client interface; the
// in-memory relay backs local development and single-device use, where the
// server is its own network.
func ProvideRelayClient(i do.Injector) (relay.Client, error) {
	identity := do.MustInvoke[relay.Identity](i)
	return relay.NewMemoryRelay("local", identity), nil
}
