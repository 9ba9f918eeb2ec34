package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watch reloads the config file on write events and calls onChange with
// each successfully parsed config. Invalid intermediate states are logged
// and skipped. Watch blocks until ctx is cancelled.
//
// The parent directory is watched rather than the file itself: editors
// often replace the file atomically, which would drop a file-level watch.
func Watch(ctx context.Context, path string, log zerolog.Logger, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return err
	}
	target := filepath.Clean(path)

	var debounce *time.Timer
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			// editors emit bursts of events per save
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(200*time.Millisecond, func() {
				cfg, err := Load(path)
				if err != nil {
					log.Warn().Err(err).Str("path", path).Msg("config reload skipped")
					return
				}
				log.Info().Str("path", path).Msg("config reloaded")
				onChange(cfg)
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("config watcher error")
		}
	}
}
