package render

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dmitrymomot/dispatchkit/pkg/logger"
)

const reloadDebounce = 250 * time.Millisecond

// Watch reloads the catalogue at path whenever it changes, until ctx is done.
// extra is merged under the file on every reload. Reload failures are logged
// and the previous templates stay active.
func (r *Renderer) Watch(ctx context.Context, path string, log *slog.Logger, extra ...Template) error {
	if log == nil {
		log = logger.Discard()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	// Watch the directory: editors replace files by rename.
	if err := w.Add(filepath.Dir(path)); err != nil {
		return err
	}
	file := filepath.Base(path)

	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	reload := func() {
		if err := r.LoadFile(path, extra...); err != nil {
			log.WarnContext(ctx, "template reload failed",
				logger.Component("render"), slog.String("path", path), logger.Error(err))
			return
		}
		log.InfoContext(ctx, "templates reloaded",
			logger.Component("render"), slog.String("path", path), logger.Count(len(r.Names())))
	}
	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != file {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			mu.Lock()
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(reloadDebounce, reload)
			mu.Unlock()
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.WarnContext(ctx, "template watch error", logger.Component("render"), logger.Error(err))
		}
	}
}
