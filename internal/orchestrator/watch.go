package orchestrator

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/embedsearch/embedsearch/internal/scanner"
	"github.com/embedsearch/embedsearch/internal/watcher"
)

// Watch starts a HybridWatcher over root and reconciles the index as
// files change: modified/created files are re-indexed through the same
// atomic per-file path IndexDirectory uses, deleted files are dropped
// from every backend. It blocks until ctx is cancelled or one of the
// watcher's channels closes; errors the watcher reports are logged and
// watching continues.
func (o *Orchestrator) Watch(ctx context.Context, root string, chunkSize int) error {
	w, err := watcher.NewHybridWatcher(watcher.DefaultOptions())
	if err != nil {
		return err
	}
	if err := w.Start(ctx, root); err != nil {
		return err
	}
	defer w.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err, ok := <-w.Errors():
			if !ok {
				return nil
			}
			slog.Default().Warn("watch: backend error", "error", err)
		case batch, ok := <-w.Events():
			if !ok {
				return nil
			}
			o.reconcile(ctx, root, chunkSize, batch)
		}
	}
}

func (o *Orchestrator) reconcile(ctx context.Context, root string, chunkSize int, events []watcher.FileEvent) {
	for _, ev := range events {
		if ev.IsDir {
			continue
		}
		switch ev.Operation {
		case watcher.OpDelete:
			if err := o.us.RemoveFile(ctx, ev.Path); err != nil {
				slog.Default().Warn("watch: remove file failed", "path", ev.Path, "error", err)
			}
		default:
			content, err := os.ReadFile(filepath.Join(root, ev.Path))
			if err != nil {
				// file vanished between the event and the read; treat as delete
				_ = o.us.RemoveFile(ctx, ev.Path)
				continue
			}
			language := scanner.DetectLanguage(ev.Path)
			if err := o.us.IndexFile(ctx, ev.Path, content, language, chunkSize); err != nil {
				slog.Default().Warn("watch: index file failed", "path", ev.Path, "error", err)
			}
		}
	}
}
