package media

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"fetchrelay/internal/logger"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// watchGrowth calls onStall once when path has neither been written nor
// grown for timeout. Write events come from fsnotify; a ticker also compares
// sizes so a missing watcher only delays detection.
func watchGrowth(ctx context.Context, path string, timeout time.Duration, onStall func()) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Log.Warn("stall watcher unavailable", zap.Error(err))
	} else {
		defer func() { _ = watcher.Close() }()
		if err := watcher.Add(filepath.Dir(path)); err != nil {
			logger.Log.Warn("failed to watch remux output", zap.String("path", path), zap.Error(err))
		}
	}

	var events <-chan fsnotify.Event
	var errs <-chan error
	if watcher != nil {
		events = watcher.Events
		errs = watcher.Errors
	}

	tick := max(timeout/4, 10*time.Millisecond)
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	lastGrowth := time.Now()
	lastSize := fileSize(path)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Clean(ev.Name) == filepath.Clean(path) && (ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
				lastGrowth = time.Now()
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			logger.Log.Debug("stall watcher error", zap.Error(err))
		case <-ticker.C:
			if size := fileSize(path); size != lastSize {
				lastSize = size
				lastGrowth = time.Now()
				continue
			}
			if time.Since(lastGrowth) >= timeout {
				logger.Log.Warn("remux output stalled",
					zap.String("path", path),
					zap.Duration("timeout", timeout))
				onStall()
				return
			}
		}
	}
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return -1
	}
	return info.Size()
}
