package vault

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

const inboxDebounce = 200 * time.Millisecond

// WatchInbox imports documents dropped into inbox until ctx is cancelled.
// Files already present are imported on start. Bursts of events are
// debounced into one ImportDir pass; imported files are removed.
func WatchInbox(ctx context.Context, inbox *FS, im *Importer, logger *slog.Logger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(inbox.Root()); err != nil {
		return err
	}
	logger.Info("inbox: started", slog.String("root", inbox.Root()))

	sweep := func() {
		stats, err := im.ImportDir(ctx, inbox, true)
		if err != nil {
			if ctx.Err() == nil {
				logger.Warn("inbox: import pass failed", slog.String("error", err.Error()))
			}
			return
		}
		if stats.Created+stats.Updated+stats.Failed > 0 {
			logger.Info("inbox: imported",
				slog.Int("created", stats.Created),
				slog.Int("updated", stats.Updated),
				slog.Int("failed", stats.Failed))
		}
	}
	sweep()

	var timer *time.Timer
	var timerCh <-chan time.Time
	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(inboxDebounce)
			timerCh = timer.C
		} else {
			timer.Reset(inboxDebounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("inbox: stopped")
			return nil

		case <-timerCh:
			sweep()

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !strings.HasSuffix(ev.Name, Ext) {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				schedule()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("inbox: error", slog.String("error", watchErr.Error()))
		}
	}
}
