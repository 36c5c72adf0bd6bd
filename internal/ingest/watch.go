package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce batches rapid successive file events into one run.
const DefaultDebounce = 2 * time.Second

// Watch re-runs the pipeline whenever corpus files change. Events are
// debounced so an editor save or a bulk copy triggers a single pass.
// Blocks until ctx is cancelled.
func (p *Pipeline) Watch(ctx context.Context, debounce time.Duration) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := addRecursive(watcher, p.corpusDir); err != nil {
		return err
	}

	// The timer starts drained; only a file event arms it.
	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}

	p.logger.Info("watching corpus", "dir", p.corpusDir, "debounce", debounce)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			// New department subfolders need their own watch.
			if ev.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := addRecursive(watcher, ev.Name); err != nil {
						p.logger.Warn("watching new directory failed", "dir", ev.Name, "error", err)
					}
				}
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			p.logger.Warn("watcher error", "error", err)

		case <-timer.C:
			res, err := p.Run(ctx)
			if err != nil {
				p.logger.Error("re-ingestion failed", "error", err)
				continue
			}
			if res.FilesProcessed+res.FilesRemoved+res.FilesFailed > 0 {
				p.logger.Info("corpus re-ingested",
					"processed", res.FilesProcessed,
					"removed", res.FilesRemoved,
					"failed", res.FilesFailed,
					"chunks", res.ChunksAdded)
			}
		}
	}
}

// addRecursive registers root and every non-hidden subdirectory with the
// watcher.
func addRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := watcher.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		return nil
	})
}
