// Package importer watches a drop folder and ingests EPUB files into the
// library. Copy a file in, it shows up in your books; no upload step needed
// for local use.
package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	domainerrors "github.com/shelfmark/shelfmark-server/internal/errors"
	"github.com/shelfmark/shelfmark-server/internal/service"
)

// settleDelay is how long a file must stay quiet before import. Copies into
// the drop folder arrive as a burst of write events; importing mid-copy
// would hash a truncated file.
const settleDelay = 2 * time.Second

// failedDirName is the subfolder where files that could not be imported are
// parked for inspection.
const failedDirName = "failed"

// Importer monitors the drop folder with debounced fsnotify events.
type Importer struct {
	dir     string
	library *service.LibraryService
	logger  *slog.Logger
	watcher *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]*time.Timer

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a drop-folder importer. The folder is created if missing.
func New(dir string, library *service.LibraryService, logger *slog.Logger) (*Importer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create drop folder: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch drop folder: %w", err)
	}

	return &Importer{
		dir:     dir,
		library: library,
		logger:  logger,
		watcher: watcher,
		pending: make(map[string]*time.Timer),
		done:    make(chan struct{}),
	}, nil
}

// Start processes drop-folder events until the context is cancelled. Files
// already sitting in the folder at startup are imported first.
func (i *Importer) Start(ctx context.Context) error {
	i.scanExisting(ctx)

	i.wg.Add(1)
	go i.processEvents(ctx)

	<-ctx.Done()
	return i.Stop()
}

// Stop shuts the watcher down and waits for in-flight work.
func (i *Importer) Stop() error {
	var err error
	i.stopOnce.Do(func() {
		close(i.done)
		err = i.watcher.Close()
		i.wg.Wait()
	})
	return err
}

// scanExisting imports files that were dropped while the server was down.
func (i *Importer) scanExisting(ctx context.Context) {
	entries, err := os.ReadDir(i.dir)
	if err != nil {
		i.logger.Warn("drop folder scan failed", "error", err)
		return
	}
	for _, entry := range entries {
		if entry.IsDir() || !isEpub(entry.Name()) {
			continue
		}
		i.importFile(ctx, filepath.Join(i.dir, entry.Name()))
	}
}

func (i *Importer) processEvents(ctx context.Context) {
	defer i.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-i.done:
			return
		case event, ok := <-i.watcher.Events:
			if !ok {
				return
			}
			i.handleEvent(ctx, event)
		case err, ok := <-i.watcher.Errors:
			if !ok {
				return
			}
			i.logger.Warn("drop folder watch error", "error", err)
		}
	}
}

// handleEvent debounces write bursts: every event on a path resets its
// settle timer, and only a quiet file gets imported.
func (i *Importer) handleEvent(ctx context.Context, event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}
	path := event.Name
	if !isEpub(path) {
		return
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	if timer, ok := i.pending[path]; ok {
		timer.Reset(settleDelay)
		return
	}
	i.pending[path] = time.AfterFunc(settleDelay, func() {
		i.mu.Lock()
		delete(i.pending, path)
		i.mu.Unlock()

		select {
		case <-i.done:
			return
		default:
		}
		i.importFile(ctx, path)
	})
}

// importFile ingests one file and removes it from the drop folder. Failures
// park the file in the failed subfolder instead of retrying forever.
func (i *Importer) importFile(ctx context.Context, path string) {
	data, err := os.ReadFile(path) //#nosec G304 -- path is inside the configured drop folder
	if err != nil {
		i.logger.Warn("drop folder file unreadable", "path", path, "error", err)
		return
	}

	book, err := i.library.ImportBook(ctx, data)
	if err != nil {
		if errors.Is(err, domainerrors.ErrAlreadyExists) {
			i.logger.Info("drop folder file already in library, removing",
				"path", path)
			i.remove(path)
			return
		}
		i.logger.Warn("drop folder import failed", "path", path, "error", err)
		i.parkFailed(path)
		return
	}

	i.logger.Info("imported from drop folder",
		"path", path, "local_id", book.LocalID, "title", book.Title)
	i.remove(path)
}

func (i *Importer) remove(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		i.logger.Warn("failed to remove imported file", "path", path, "error", err)
	}
}

func (i *Importer) parkFailed(path string) {
	failedDir := filepath.Join(i.dir, failedDirName)
	if err := os.MkdirAll(failedDir, 0o755); err != nil {
		i.logger.Warn("failed to create failed folder", "error", err)
		return
	}
	dest := filepath.Join(failedDir, filepath.Base(path))
	if err := os.Rename(path, dest); err != nil {
		i.logger.Warn("failed to park unimportable file", "path", path, "error", err)
	}
}

func isEpub(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".epub")
}
