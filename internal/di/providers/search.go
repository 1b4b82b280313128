package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/shelfmark/shelfmark-server/internal/config"
	"github.com/shelfmark/shelfmark-server/internal/logger"
	"github.com/shelfmark/shelfmark-server/internal/relay"
	"github.com/shelfmark/shelfmark-server/internal/search"
)

// SearchIndexHandle wraps the search index with shutdown capability.
type SearchIndexHandle struct {
	*search.SearchIndex
}

// Shutdown implements do.Shutdownable.
func (h *SearchIndexHandle) Shutdown() error {
	return h.Close()
}

// ProvideSearchIndex provides the Bleve search index and wires it to the
// store for automatic indexing.
func ProvideSearchIndex(i do.Injector) (*SearchIndexHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)

	index, err := search.NewSearchIndex(search.Options{
		DataPath: cfg.Data.BasePath,
		Logger:   log.Logger,
	})
	if err != nil {
		return nil, err
	}

	storeHandle.SetSearchIndexer(index)

	docCount, _ := index.DocumentCount()
	log.Info("Search index initialized", "documents", docCount)

	return &SearchIndexHandle{SearchIndex: index}, nil
}

// TriggerSearchReindexIfNeeded rebuilds an empty index from the store.
// Happens after a mapping version bump wiped the index, or after the index
// directory was deleted by hand. Should be called after all services are wired.
func TriggerSearchReindexIfNeeded(i do.Injector) {
	indexHandle := do.MustInvoke[*SearchIndexHandle](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	identity := do.MustInvoke[relay.Identity](i)
	log := do.MustInvoke[*logger.Logger](i)

	docCount, _ := indexHandle.DocumentCount()
	if docCount > 0 {
		return
	}

	ctx := context.Background()

	// Every partition the store can hold: the owner's own plus any
	// previously spectated identities.
	owners := []string{identity.PublicKey()}
	if history, err := storeHandle.GetSpectateHistory(ctx); err == nil {
		for _, entry := range history.Entries {
			owners = append(owners, entry.Target)
		}
	}

	var docs []*search.SearchDocument
	for _, owner := range owners {
		books, err := storeHandle.ListBooks(ctx, owner)
		if err != nil {
			log.Warn("Reindex: failed to list books", "owner", owner, "error", err)
			continue
		}
		for _, book := range books {
			docs = append(docs, search.BookToSearchDocument(book))
		}

		annotations, err := storeHandle.ListAnnotations(ctx, owner)
		if err != nil {
			log.Warn("Reindex: failed to list annotations", "owner", owner, "error", err)
			continue
		}
		for _, a := range annotations {
			docs = append(docs, search.AnnotationToSearchDocument(a))
		}
	}

	if len(docs) == 0 {
		return
	}

	log.Info("Search index is empty but records exist, triggering reindex",
		"documents", len(docs),
	)

	go func() {
		if err := indexHandle.IndexDocuments(docs); err != nil {
			log.Error("Search reindex failed", "error", err)
			return
		}
		count, _ := indexHandle.DocumentCount()
		log.Info("Search reindex completed", "documents", count)
	}()
}
