package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDelay coalesces the burst of events an editor produces on save.
const reloadDelay = 100 * time.Millisecond

// Watch reloads the config at path whenever it changes, handing each
// successfully parsed config to onChange and each failure to onError. The
// parent directory is watched so editors that replace the file by rename
// are seen. Watch blocks until ctx is done.
func Watch(ctx context.Context, path string, onChange func(Config), onError func(error)) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating config watcher: %w", err)
	}
	defer fsw.Close()

	target := filepath.Clean(path)
	if err := fsw.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(target), err)
	}

	if onError == nil {
		onError = func(error) {}
	}

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
				pending = time.After(reloadDelay)
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			onError(err)
		case <-pending:
			pending = nil
			cfg, err := LoadFrom(target)
			if err != nil {
				onError(err)
				continue
			}
			onChange(cfg)
		}
	}
}
