package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"media-metadata-go/pkg/logging"
)

// Reload re-reads the config file and environment into a fresh Config.
func Reload(path string) (*Config, error) {
	cfg := Defaults()
	if err := cfg.applyFile(path); err != nil {
		return nil, err
	}
	cfg.ConfigFile = path
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Watch reloads the config file whenever it is written or replaced and hands
// the result to apply. It returns once the watcher is registered; the watch
// loop runs until ctx is cancelled.
func Watch(ctx context.Context, path string, log *logging.Logger, apply func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("fsnotify.NewWatcher: %w", err)
	}

	// Editors replace files via rename, so watch the directory.
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch directory %s: %w", dir, err)
	}

	log = log.WithComponent("config-watcher")
	target := filepath.Base(path)

	go func() {
		defer func() {
			_ = watcher.Close()
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				cfg, err := Reload(path)
				if err != nil {
					log.Warn("config reload failed, keeping previous settings", "path", path, "error", err)
					continue
				}
				log.Info("config reloaded", "path", path)
				apply(cfg)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn("fsnotify watcher error", "error", err)
			}
		}
	}()

	return nil
}
