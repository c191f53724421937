// Copyright (C) 2026 FaultSentinel Authors (maintainers@faultsentinel.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package detector

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceWindow coalesces the write bursts editors and atomic-rename
// writers produce for a single logical update.
const debounceWindow = 250 * time.Millisecond

// Watcher hot-reloads the calibration artifact when it is rewritten on
// disk. Retraining happens offline; operators drop the new artifact in
// place and the monitor picks it up without a restart.
type Watcher struct {
	detector *Detector
	path     string
	logger   *slog.Logger
}

// NewWatcher creates a watcher that reloads path into detector.
func NewWatcher(detector *Detector, path string, logger *slog.Logger) *Watcher {
	return &Watcher{detector: detector, path: path, logger: logger}
}

// Run blocks until ctx is cancelled, reloading the calibration on every
// write or create of the watched file. Invalid artifacts are logged and
// ignored; the last good calibration stays live.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create calibration watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory, not the file: atomic renames replace the
	// inode and a file-level watch would go stale after the first swap.
	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	var timer *time.Timer
	var timerCh <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounceWindow)
				timerCh = timer.C
			} else {
				timer.Reset(debounceWindow)
			}

		case <-timerCh:
			timer = nil
			timerCh = nil
			w.reload()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("calibration watcher error", "error", err)
		}
	}
}

func (w *Watcher) reload() {
	cal, err := LoadCalibration(w.path)
	if err != nil {
		w.logger.Error("calibration reload failed, keeping previous model",
			"path", w.path, "error", err)
		return
	}
	if err := w.detector.Swap(cal); err != nil {
		w.logger.Error("calibration swap rejected", "path", w.path, "error", err)
		return
	}
	w.logger.Info("calibration reloaded",
		"path", w.path,
		"channels", len(cal.Channels),
		"components", len(cal.Components),
	)
}
