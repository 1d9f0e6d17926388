package directory

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounce collapses the burst of events editors emit on save.
const debounce = 200 * time.Millisecond

// Watch re-imports path whenever it changes, until ctx is cancelled. The
// parent directory is watched so that rename-on-save editors are handled.
// cb (if non-nil) receives the result of every pass that created clients.
func (im *Importer) Watch(ctx context.Context, path string, cb func(Result)) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(abs)); err != nil {
		return err
	}
	im.logger.Info("directory: watching seed file", slog.String("path", abs))

	var timer *time.Timer
	var fire <-chan time.Time
	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(debounce)
			fire = timer.C
		} else {
			timer.Reset(debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			im.logger.Info("directory: watcher stopped")
			return nil

		case <-fire:
			res, err := im.ImportFile(ctx, abs)
			if err != nil {
				im.logger.Warn("directory: reimport failed", slog.String("error", err.Error()))
				continue
			}
			if cb != nil && len(res.Created) > 0 {
				cb(res)
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				schedule()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			im.logger.Error("directory: watcher error", slog.String("error", watchErr.Error()))
		}
	}
}
