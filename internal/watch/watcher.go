// Package watch keeps the cache in sync with the corpus while the composer
// is running: document edits made outside the API (an editor, a git pull)
// update file hashes and the search index without a full re-import.
package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/hearth/internal/cache"
	"github.com/starford/hearth/internal/checksum"
	"github.com/starford/hearth/internal/document"
	"github.com/starford/hearth/internal/storage"
)

// EventCallback is called after a watcher-driven cache change.
// kind is one of "created", "updated", "deleted".
type EventCallback func(kind string, path string)

// isDocument reports whether a corpus path holds a post document.
func isDocument(path string) bool {
	return strings.HasSuffix(path, ".html") || strings.HasSuffix(path, ".md")
}

// Watch starts an fsnotify watcher on the corpus root and processes file
// change events until ctx is cancelled. It calls cb (if non-nil) after
// each successful cache mutation.
//
// New directories created at runtime are automatically added to the watch
// list. Rename events trigger a reconciliation pass that removes stale
// cache rows whose files no longer exist on disk.
func Watch(ctx context.Context, store *cache.Store, corpus storage.Provider, root string, logger *slog.Logger, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, root); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", root))

	// reconcileTimer is used to debounce rename reconciliation.
	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time

	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(200 * time.Millisecond)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(200 * time.Millisecond)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			Sync(store, corpus, logger, cb)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			absPath := ev.Name

			// --- Handle new directories: add to watcher ---
			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(absPath); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, absPath); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", absPath),
							slog.String("error", addErr.Error()))
					} else {
						logger.Debug("watcher: watching new dir", slog.String("path", absPath))
					}
					// Record any documents already in the new directory.
					recordNewDir(store, corpus, root, absPath, logger, cb)
					continue
				}
			}

			// Only process documents from here on.
			if !isDocument(absPath) {
				continue
			}

			rel, relErr := filepath.Rel(root, absPath)
			if relErr != nil {
				continue
			}
			rel = filepath.ToSlash(rel)

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				data, readErr := corpus.Read(rel)
				if readErr != nil {
					logger.Warn("watcher: read failed", slog.String("path", rel), slog.String("error", readErr.Error()))
					continue
				}
				if recErr := recordDocument(store, rel, data); recErr != nil {
					logger.Warn("watcher: record failed", slog.String("path", rel), slog.String("error", recErr.Error()))
					continue
				}
				kind := "updated"
				if ev.Op&fsnotify.Create != 0 {
					kind = "created"
				}
				logger.Debug("watcher: recorded", slog.String("path", rel), slog.String("op", kind))
				if cb != nil {
					cb(kind, rel)
				}

			case ev.Op&fsnotify.Remove != 0:
				if delErr := store.DeleteFile(rel); delErr != nil {
					logger.Warn("watcher: delete failed", slog.String("path", rel), slog.String("error", delErr.Error()))
					continue
				}
				logger.Debug("watcher: deleted", slog.String("path", rel))
				if cb != nil {
					cb("deleted", rel)
				}

			case ev.Op&fsnotify.Rename != 0:
				// fsnotify fires Rename on the OLD path only. The new
				// path will arrive as a separate Create event (if it
				// stays within a watched dir). We delete the old row
				// immediately and schedule a short reconciliation pass
				// to catch any stragglers.
				if delErr := store.DeleteFile(rel); delErr != nil {
					logger.Warn("watcher: rename delete failed", slog.String("path", rel), slog.String("error", delErr.Error()))
				} else {
					logger.Debug("watcher: rename old deleted", slog.String("path", rel))
					if cb != nil {
						cb("deleted", rel)
					}
				}
				scheduleReconcile()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// Sync does a lightweight reconciliation using batch lookups: cache rows
// without a corresponding file on disk are removed, and on-disk documents
// whose hash differs from the recorded one are re-recorded.
func Sync(store *cache.Store, corpus storage.Provider, logger *slog.Logger, cb EventCallback) {
	hashes, err := store.AllFileHashes()
	if err != nil {
		logger.Warn("sync: all file hashes failed", slog.String("error", err.Error()))
		return
	}

	metas, err := corpus.List("")
	if err != nil {
		logger.Warn("sync: list failed", slog.String("error", err.Error()))
		return
	}

	disk := make(map[string]string, len(metas))
	for _, m := range metas {
		if isDocument(m.Path) {
			disk[m.Path] = m.Checksum
		}
	}

	for p := range hashes {
		if _, ok := disk[p]; !ok {
			if delErr := store.DeleteFile(p); delErr == nil {
				logger.Debug("sync: removed stale", slog.String("path", p))
				if cb != nil {
					cb("deleted", p)
				}
			}
		}
	}

	for p, cs := range disk {
		if hashes[p] == cs {
			continue
		}
		data, readErr := corpus.Read(p)
		if readErr != nil {
			continue
		}
		if recErr := recordDocument(store, p, data); recErr == nil {
			logger.Debug("sync: recorded", slog.String("path", p))
			if cb != nil {
				cb("created", p)
			}
		}
	}
}

// recordDocument parses a document and refreshes its cache rows: file hash,
// reference edges, and search index entry.
func recordDocument(store *cache.Store, path string, data []byte) error {
	doc, err := document.Parse(path, data)
	if err != nil {
		return err
	}
	hash := checksum.Sum(data)
	if err := store.PutFileHash(path, hash); err != nil {
		return err
	}
	if len(doc.Meta.References) > 0 {
		if err := store.ReplaceDependencies(path, hash, doc.Meta.References); err != nil {
			return err
		}
	}
	return store.IndexPost(path, doc.Meta.Title, doc.Meta.Tags, doc.Body)
}

// recordNewDir records any documents found in a newly created directory.
func recordNewDir(store *cache.Store, corpus storage.Provider, root, dirPath string, logger *slog.Logger, cb EventCallback) {
	_ = filepath.WalkDir(dirPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !isDocument(path) {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		data, readErr := corpus.Read(rel)
		if readErr != nil {
			return nil
		}
		if recErr := recordDocument(store, rel, data); recErr == nil {
			logger.Debug("watcher: recorded from new dir", slog.String("path", rel))
			if cb != nil {
				cb("created", rel)
			}
		}
		return nil
	})
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
