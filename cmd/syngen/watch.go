package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// settle is how long the watcher waits for a burst of writes to end
// before re-running.
const settle = 200 * time.Millisecond

// watch runs once, then again whenever one of the configuration files
// changes, until ctx is cancelled.
func (r *runner) watch(ctx context.Context) error {
	files := r.watchedFiles()
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	// Editors often replace files by rename, so watch the directories.
	dirs := make(map[string]bool)
	for f := range files {
		dir := filepath.Dir(f)
		if dirs[dir] {
			continue
		}
		if err := w.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
		dirs[dir] = true
	}

	r.rerun(ctx)

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			path, err := filepath.Abs(ev.Name)
			if err != nil || !files[path] {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			r.log.Debug("config changed", zap.String("path", path), zap.Stringer("op", ev.Op))
			if timer == nil {
				timer = time.NewTimer(settle)
			} else {
				timer.Reset(settle)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			r.rerun(ctx)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			r.log.Warn("watch error", zap.Error(err))
		}
	}
}

func (r *runner) rerun(ctx context.Context) {
	res, err := r.runOnce(ctx)
	if err != nil {
		r.log.Error("run failed", zap.Error(err))
		return
	}
	out, err := renderReport(res.report)
	if err != nil {
		r.log.Error("render report", zap.Error(err))
		return
	}
	fmt.Printf("--- %s (%s) ---\n%s\n", r.title(res), res.elapsed.Round(time.Millisecond), out)
}

func (r *runner) watchedFiles() map[string]bool {
	files := make(map[string]bool)
	for _, f := range []string{r.opts.network, r.opts.environment, r.opts.args} {
		if f == "" {
			continue
		}
		if abs, err := filepath.Abs(f); err == nil {
			files[abs] = true
		}
	}
	return files
}
