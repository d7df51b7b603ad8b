package orchestrator

import (
	"context"
	"fmt"

	"github.com/embedsearch/embedsearch/internal/async"
	"github.com/embedsearch/embedsearch/internal/indexer"
)

// IndexDirectoryAsync starts indexDirectory in a background goroutine
// under dataDir's indexing.lock (internal/async.BackgroundIndexer),
// returning immediately. IndexingSnapshot reports its progress until it
// completes; a second call while one is already running is a no-op —
// the existing run's snapshot is returned. This is the async path the
// status tool's Indexing field observes.
func (o *Orchestrator) IndexDirectoryAsync(ctx context.Context, dataDir, root string, opts indexer.Options) *async.IndexProgress {
	o.bgMu.Lock()
	defer o.bgMu.Unlock()

	if o.bg != nil && o.bg.IsRunning() {
		return o.bg.Progress()
	}

	bg := async.NewBackgroundIndexer(async.IndexerConfig{DataDir: dataDir})
	bg.IndexFunc = func(ctx context.Context, progress *async.IndexProgress) error {
		progress.SetStage(async.StageScanning, 0)
		stats, err := o.us.IndexDirectory(ctx, root, opts)
		if err != nil {
			return fmt.Errorf("index %s: %w", root, err)
		}
		progress.SetStage(async.StageIndexing, stats.FilesIndexed)
		progress.UpdateFiles(stats.FilesIndexed)
		return nil
	}

	o.bg = bg
	bg.Start(ctx)
	return bg.Progress()
}

// IndexingSnapshot reports the progress of the most recent
// IndexDirectoryAsync run, or nil if none has started.
func (o *Orchestrator) IndexingSnapshot() *async.IndexProgressSnapshot {
	o.bgMu.Lock()
	bg := o.bg
	o.bgMu.Unlock()
	if bg == nil {
		return nil
	}
	snap := bg.Progress().Snapshot()
	return &snap
}
