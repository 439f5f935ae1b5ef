package config

import (
	"context"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watch reloads the file at path on every write and hands the new Config to
// onChange. A reload that fails to parse or validate is logged and skipped.
// It blocks until ctx is cancelled.
func Watch(ctx context.Context, path string, log *zap.Logger, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return err
	}
	log.Info("config_watch_started", zap.String("path", path))

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// editors often save via rename, which shows up as Create
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			cfg, err := Load(path)
			if err != nil {
				log.Error("config_reload_failed", zap.String("path", path), zap.Error(err))
				continue
			}
			log.Info("config_reloaded", zap.String("path", path))
			onChange(cfg)

			_ = watcher.Add(path)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Error("config_watch_error", zap.Error(err))
		}
	}
}
