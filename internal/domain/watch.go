package domain

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultReloadDebounce coalesces bursts of editor writes into one reload.
const DefaultReloadDebounce = 250 * time.Millisecond

// Watch reloads the reference file at path into h whenever it changes, until
// ctx is cancelled. A file that fails to parse leaves the previous snapshot in
// place. The parent directory is watched so atomic-rename saves are seen.
func Watch(ctx context.Context, path string, h *Holder, debounce time.Duration, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	if debounce <= 0 {
		debounce = DefaultReloadDebounce
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve reference path: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = fsw.Close() }()

	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	reload := make(chan struct{}, 1)
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})
		case <-reload:
			ref, err := LoadReference(abs)
			if err != nil {
				logger.Warn("reference_reload_failed",
					slog.String("path", abs),
					slog.String("error", err.Error()))
				continue
			}
			h.Store(ref)
			logger.Info("reference_reloaded",
				slog.String("path", abs),
				slog.Int("cities", len(ref.Values(DomainCity))),
				slog.Int("countries", len(ref.Values(DomainCountry))))
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("reference_watch_error", slog.String("error", err.Error()))
		}
	}
}
