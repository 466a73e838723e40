package classifier

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// reloadDebounce collapses editor write bursts into one reload.
const reloadDebounce = 250 * time.Millisecond

// Watch reloads the matcher whenever path changes until ctx is done. The
// directory is watched rather than the file so atomic-rename saves are seen.
// Reload failures are logged and the previous recognizer set stays active.
func (m *Matcher) Watch(ctx context.Context, path string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating pattern watcher: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		_ = w.Close()
		return fmt.Errorf("resolving pattern file: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return fmt.Errorf("watching %s: %w", filepath.Dir(abs), err)
	}

	go func() {
		defer w.Close()
		var timer *time.Timer
		fire := make(chan struct{}, 1)
		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != abs {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(reloadDebounce, func() {
					select {
					case fire <- struct{}{}:
					default:
					}
				})
			case <-fire:
				if err := m.Reload(abs); err != nil {
					log.Error().Err(err).Str("path", abs).Msg("pattern_reload_failed")
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Warn().Err(err).Msg("pattern_watcher_error")
			}
		}
	}()
	return nil
}
