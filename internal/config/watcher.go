package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch watches path for changes and, on each debounced write, reloads
// it and applies the hot-reloadable fields (ports, show-timestamps,
// debug/verbose) onto cfg via ReplaceFrom. A change to a backend
// identity field is logged at Warn and otherwise ignored — re-pointing
// a live session at a different backend requires a restart.
// Only cfg itself is updated: the listeners, the gateway State's
// show-timestamps flag and the logger level are built from cfg once at
// startup and keep those values until the process restarts.
// The watcher runs until ctx is canceled.
func Watch(ctx context.Context, log *slog.Logger, path string, cfg *Config) {
	if path == "" {
		return
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Warn("config watcher: create", "error", err)
		return
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		log.Warn("config watcher: resolve path", "path", path, "error", err)
		watcher.Close()
		return
	}
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		log.Warn("config watcher: watch", "path", absPath, "error", err)
		watcher.Close()
		return
	}

	go func() {
		defer watcher.Close()

		var timer *time.Timer
		const debounce = 500 * time.Millisecond

		reload := func() {
			updated, err := Load(absPath)
			if err != nil {
				log.Warn("config watcher: reload failed", "error", err)
				return
			}
			if cfg.IdentityDiffers(updated) {
				log.Warn("config watcher: backend identity changed, requires restart to take effect")
			}
			cfg.ReplaceFrom(updated)
			log.Info("config reloaded", "hash", cfg.Hash())
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != absPath {
					continue
				}
				if !(event.Op.Has(fsnotify.Write) || event.Op.Has(fsnotify.Create)) {
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(debounce, reload)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn("config watcher: error", "error", err)
			}
		}
	}()
}
