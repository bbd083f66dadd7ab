// Watches a record directory and prints the record when it changes.

package main

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"
)

func (e *env) cmdWatch(ctx context.Context, args []string) error {
	fs := newFlagSet("watch")
	manifest := fs.String("manifest", "", "Record manifest (YAML)")
	dir := fs.String("dir", "", "Record directory")
	format := fs.String("format", "json", "Output format (json, yaml)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *dir == "" {
		return errors.New("-dir is required")
	}
	s, err := loadSchema(*manifest)
	if err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()
	if err := w.Add(*dir); err != nil {
		return err
	}

	// Field files of a record are usually created in a burst; coalesce them.
	limiter := rate.NewLimiter(rate.Every(time.Duration(e.cfg.WatchInterval)), 1)
	var last []byte
	reload := func() error {
		doc, err := e.read(s, *dir)
		if err != nil {
			// Required fields may not all be there yet.
			e.logger.WarnContext(ctx, "Record not readable", "dir", *dir, "err", err)
			return nil
		}
		out, err := render(s, doc, *format)
		if err != nil {
			return err
		}
		if bytes.Equal(out, last) {
			return nil
		}
		last = out
		_, err = e.stdout.Write(out)
		return err
	}
	if err := reload(); err != nil {
		return err
	}
	e.logger.InfoContext(ctx, "Watching", "dir", *dir)
	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			e.logger.ErrorContext(ctx, "Watcher", "err", err)
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Ext(ev.Name) != ".json" || !ev.Has(fsnotify.Create|fsnotify.Write|fsnotify.Chmod|fsnotify.Remove) {
				continue
			}
			e.logger.DebugContext(ctx, "Event", "name", ev.Name, "op", ev.Op.String())
			if err := limiter.Wait(ctx); err != nil {
				return nil
			}
			drain(w.Events)
			if err := reload(); err != nil {
				return err
			}
		}
	}
}

// drain discards events queued while waiting on the limiter; the reload that
// follows observes them.
func drain(c <-chan fsnotify.Event) {
	for {
		select {
		case _, ok := <-c:
			if !ok {
				return
			}
		default:
			return
		}
	}
}
