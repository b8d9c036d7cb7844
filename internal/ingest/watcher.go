package ingest

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
)

type WatchConfig struct {
	Roots       []string      // directories to watch (recursive)
	GoldSuffix  string        // curated text suffix, e.g. ".curator.txt"
	InitialScan bool          // emit the pages already present under Roots
	Debounce    time.Duration // coalesce rapid write bursts
	Logger      *slog.Logger
}

// Watch emits page bases whose candidate or gold files were created or changed.
// Both channels are closed when ctx ends.
func Watch(ctx context.Context, cfg WatchConfig) (<-chan string, <-chan error, error) {
	if len(cfg.Roots) == 0 {
		return nil, nil, errors.New("no roots provided")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Error("failed to create fsnotify watcher", "error", err)
		return nil, nil, err
	}

	var initial []string
	seen := map[string]struct{}{}
	addDir := func(root string, scan bool) error {
		return filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if d.IsDir() {
				if path != root && IsHidden(path) {
					return filepath.SkipDir
				}
				return w.Add(path)
			}
			if !scan {
				return nil
			}
			if base, ok := PageBaseForFile(path, cfg.GoldSuffix); ok {
				if _, dup := seen[base]; !dup {
					seen[base] = struct{}{}
					initial = append(initial, base)
				}
			}
			return nil
		})
	}
	for _, r := range cfg.Roots {
		if err := addDir(r, cfg.InitialScan); err != nil {
			logger.Error("failed to add root directory", "root", r, "error", err)
			_ = w.Close()
			return nil, nil, err
		}
	}
	sort.Strings(initial)

	evCh := make(chan string, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(evCh)
		defer close(errCh)
		defer func() {
			if err := w.Close(); err != nil {
				logger.Warn("failed to close watcher", "error", err)
			}
		}()

		emit := func(base string) bool {
			select {
			case evCh <- base:
				return true
			case <-ctx.Done():
				return false
			}
		}
		for _, base := range initial {
			if !emit(base) {
				return
			}
		}

		pending := map[string]struct{}{}
		flush := func() bool {
			bases := make([]string, 0, len(pending))
			for b := range pending {
				bases = append(bases, b)
			}
			clear(pending)
			sort.Strings(bases)
			for _, b := range bases {
				if !emit(b) {
					return false
				}
			}
			return true
		}

		var (
			timer  *time.Timer
			timerC <-chan time.Time
		)
		defer func() {
			if timer != nil {
				timer.Stop()
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-w.Events:
				if !ok {
					return
				}
				if e.Has(fsnotify.Create) {
					if info, err := os.Stat(e.Name); err == nil && info.IsDir() && !IsHidden(e.Name) {
						if err := addDir(e.Name, false); err != nil {
							logger.Warn("failed to add new directory to watcher", "path", e.Name, "error", err)
						}
						continue
					}
				}
				if !e.Has(fsnotify.Create) && !e.Has(fsnotify.Write) && !e.Has(fsnotify.Rename) {
					continue
				}
				base, ok := PageBaseForFile(e.Name, cfg.GoldSuffix)
				if !ok {
					continue
				}
				pending[base] = struct{}{}
				if cfg.Debounce <= 0 {
					if !flush() {
						return
					}
					continue
				}
				if timer == nil {
					timer = time.NewTimer(cfg.Debounce)
				} else {
					timer.Reset(cfg.Debounce)
				}
				timerC = timer.C
			case <-timerC:
				timerC = nil
				if !flush() {
					return
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Error("watcher error", "error", err)
				select {
				case errCh <- err:
				default:
				}
			}
		}
	}()

	return evCh, errCh, nil
}
