package config

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher reloads the daemon configuration when its file changes on disk.
// Only a subset of parameters can change at runtime; the reload callback
// decides what to apply.
type Watcher struct {
	path    string
	logger  zerolog.Logger
	watcher *fsnotify.Watcher
}

// NewWatcher creates a watcher for one configuration file.
func NewWatcher(path string, logger zerolog.Logger) *Watcher {
	return &Watcher{
		path:   path,
		logger: logger.With().Str("component", "config-watcher").Logger(),
	}
}

// Start begins watching and invokes reloadFn with each successfully parsed
// new configuration. Parse failures are logged and the previous
// configuration stays in effect.
func (w *Watcher) Start(ctx context.Context, reloadFn func(*Config) error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	w.watcher = watcher

	// Watch the directory: editors replace files instead of writing in place.
	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	go w.processEvents(ctx, reloadFn)

	w.logger.Info().Str("path", w.path).Msg("Watching configuration file")
	return nil
}

func (w *Watcher) processEvents(ctx context.Context, reloadFn func(*Config) error) {
	var reloadTimer *time.Timer
	reloadDelay := 500 * time.Millisecond

	base := filepath.Base(w.path)

	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if !strings.EqualFold(filepath.Base(event.Name), base) {
				continue
			}

			w.logger.Debug().
				Str("file", event.Name).
				Str("op", event.Op.String()).
				Msg("Configuration file changed")

			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			reloadTimer = time.AfterFunc(reloadDelay, func() {
				cfg, err := Load(w.path)
				if err != nil {
					w.logger.Error().Err(err).Msg("Failed to reload configuration")
					return
				}
				if err := reloadFn(cfg); err != nil {
					w.logger.Error().Err(err).Msg("Failed to apply reloaded configuration")
					return
				}
				w.logger.Info().Msg("Configuration reloaded")
			})

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}

// Stop stops watching.
func (w *Watcher) Stop() error {
	if w.watcher != nil {
		err := w.watcher.Close()
		w.watcher = nil
		return err
	}
	return nil
}
