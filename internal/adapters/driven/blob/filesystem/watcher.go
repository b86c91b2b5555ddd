package filesystem

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/doraemo/internal/core/domain"
	"github.com/custodia-labs/doraemo/internal/core/ports/driven"
	"github.com/custodia-labs/doraemo/internal/logger"
)

// Ensure Watcher implements the interface.
var _ driven.BlobWatcher = (*Watcher)(nil)

// DefaultDebounce is how long a file must stay quiet before it is announced.
const DefaultDebounce = 500 * time.Millisecond

// Watcher turns filesystem writes under a Store's root into
// DOCUMENT_UPLOADED events. fsnotify is not recursive, so every
// directory is watched individually and new ones are added as they appear.
type Watcher struct {
	store    *Store
	debounce time.Duration
	log      *logger.Logger
}

// NewWatcher creates a watcher for the store's root.
func NewWatcher(store *Store, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{store: store, debounce: debounce, log: logger.Component("blob-watcher")}
}

// Watch delivers one event per settled write until ctx is done.
//
//nolint:gocognit // event loop
func (w *Watcher) Watch(ctx context.Context, handle func(domain.DocumentEvent)) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer fsw.Close()

	pending := make(map[domain.DocumentKey]time.Time)
	if err := w.addTree(fsw, w.store.root, nil); err != nil {
		return err
	}
	w.log.Info("watching %s", w.store.root)

	ticker := time.NewTicker(w.debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			for _, key := range w.handleFsEvent(fsw, ev) {
				pending[key] = time.Now()
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch error: %v", err)

		case now := <-ticker.C:
			var ready []domain.DocumentKey
			for key, seen := range pending {
				if now.Sub(seen) >= w.debounce {
					ready = append(ready, key)
				}
			}
			sort.Slice(ready, func(i, j int) bool { return ready[i] < ready[j] })
			for _, key := range ready {
				delete(pending, key)
				w.log.Debug("announcing %s", key)
				handle(domain.DocumentEvent{EventType: domain.EventTypeDocumentUploaded, DocumentPath: string(key)})
			}
		}
	}
}

// handleFsEvent returns the document keys touched by an event.
// Created directories are watched and any files already inside are reported.
func (w *Watcher) handleFsEvent(fsw *fsnotify.Watcher, ev fsnotify.Event) []domain.DocumentKey {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
			w.log.Debug("ignoring removal of %s", ev.Name)
		}
		return nil
	}

	rel, err := filepath.Rel(w.store.root, ev.Name)
	if err != nil || isHidden(filepath.ToSlash(rel)) {
		return nil
	}

	st, err := os.Stat(ev.Name)
	if err != nil {
		return nil
	}
	if st.IsDir() {
		var found []domain.DocumentKey
		if err := w.addTree(fsw, ev.Name, &found); err != nil {
			w.log.Warn("watching %s: %v", ev.Name, err)
		}
		return found
	}
	if !st.Mode().IsRegular() {
		return nil
	}
	if key, ok := w.store.keyFor(ev.Name); ok {
		return []domain.DocumentKey{key}
	}
	return nil
}

// addTree watches dir and every visible subdirectory. When found is not
// nil, regular files already present are appended to it.
func (w *Watcher) addTree(fsw *fsnotify.Watcher, dir string, found *[]domain.DocumentKey) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr // skip unreadable entries
		}
		rel, _ := filepath.Rel(w.store.root, p)
		if rel != "." && isHidden(filepath.ToSlash(rel)) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if err := fsw.Add(p); err != nil {
				return fmt.Errorf("watching %s: %w", p, err)
			}
			return nil
		}
		if found != nil && d.Type().IsRegular() {
			if key, ok := w.store.keyFor(p); ok {
				*found = append(*found, key)
			}
		}
		return nil
	})
}
