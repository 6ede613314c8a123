package config

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/codefionn/chatd/internal/logger"
	"github.com/fsnotify/fsnotify"
)

// reloadDebounce collapses the burst of events editors emit for one save.
const reloadDebounce = 200 * time.Millisecond

// Watch calls onChange with the freshly loaded config whenever the file at
// path is written, created or renamed into place. The environment is applied
// on top of the file, as at startup; .env values were already merged into it
// by LoadDotEnv. It watches the parent directory so atomic-rename saves are
// seen. Watch blocks until ctx is done.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		return err
	}

	log := logger.Global().WithPrefix("config")
	var timer *time.Timer
	fire := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != absPath {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
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
			cfg, err := Load(absPath)
			if err != nil {
				log.Warn("Ignoring config change, reload failed: %v", err)
				continue
			}
			cfg.ApplyEnv(os.Getenv)
			log.Info("Config file %s changed, reloading", absPath)
			onChange(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Error("config watcher error: %v", err)
		}
	}
}
