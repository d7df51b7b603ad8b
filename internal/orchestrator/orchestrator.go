// Package orchestrator implements the Orchestrator capability
// (spec.md §4.10): it wraps UnifiedSearcher with admission control, a
// wall-clock timeout, partial-failure gating, and aggregate metrics
// safe for concurrent readers.
package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/embedsearch/embedsearch/internal/async"
	aerrors "github.com/embedsearch/embedsearch/internal/errors"
	"github.com/embedsearch/embedsearch/internal/indexer"
	"github.com/embedsearch/embedsearch/internal/unifiedsearch"
)

// Config carries the admission and gating tunables.
type Config struct {
	// MaxConcurrentSearches bounds how many searches run at once; the
	// rest block on Search until a slot frees up.
	MaxConcurrentSearches int
	// SearchTimeout is the wall-clock budget for one Search call.
	SearchTimeout time.Duration
	// PartialFailureThreshold is in [0,1]. If the fraction of backends
	// that failed during a search exceeds it, the search is reported
	// as failed even though some results may have been fused.
	PartialFailureThreshold float64
}

// DefaultConfig mirrors the spec's default tunables.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentSearches:   10,
		SearchTimeout:           5 * time.Second,
		PartialFailureThreshold: 0.5,
	}
}

// Report is the result of one orchestrated search.
type Report struct {
	Results  []unifiedsearch.SearchResult
	Backends []unifiedsearch.BackendStatus
	Failed   bool
}

// Orchestrator wraps a UnifiedSearcher with a concurrency semaphore, a
// per-call timeout, partial-failure gating, and monotonic aggregate
// metrics.
type Orchestrator struct {
	us  *unifiedsearch.UnifiedSearcher
	cfg Config
	sem chan struct{}

	mu                  sync.RWMutex
	totalSearches       int64
	successCount        int64
	failureCount        int64
	backendLatencySumNS map[string]int64
	backendLatencyCount map[string]int64

	bgMu sync.Mutex
	bg   *async.BackgroundIndexer
}

// New constructs an Orchestrator wrapping us. Zero-value fields in cfg
// fall back to DefaultConfig's values.
func New(us *unifiedsearch.UnifiedSearcher, cfg Config) *Orchestrator {
	if cfg.MaxConcurrentSearches <= 0 {
		cfg.MaxConcurrentSearches = DefaultConfig().MaxConcurrentSearches
	}
	if cfg.SearchTimeout <= 0 {
		cfg.SearchTimeout = DefaultConfig().SearchTimeout
	}
	if cfg.PartialFailureThreshold <= 0 {
		cfg.PartialFailureThreshold = DefaultConfig().PartialFailureThreshold
	}
	return &Orchestrator{
		us:                  us,
		cfg:                 cfg,
		sem:                 make(chan struct{}, cfg.MaxConcurrentSearches),
		backendLatencySumNS: make(map[string]int64),
		backendLatencyCount: make(map[string]int64),
	}
}

// Search admits the call through the concurrency semaphore, bounds it
// by SearchTimeout, and gates it by PartialFailureThreshold. It never
// returns a non-nil error for a partial failure — that case is
// reported via Report.Failed so callers can still inspect whatever
// results were obtained. A non-nil error means the call couldn't be
// admitted or timed out before any backend responded.
func (o *Orchestrator) Search(ctx context.Context, query string, limit int) (Report, error) {
	return o.search(ctx, func(tctx context.Context) ([]unifiedsearch.SearchResult, []unifiedsearch.BackendStatus, error) {
		return o.us.SearchDetailed(tctx, query, limit)
	})
}

// SearchTrack is Search restricted to one conceptual track ("text",
// "semantic", "symbol", or "hybrid"), subject to the same admission
// control, timeout, and gating.
func (o *Orchestrator) SearchTrack(ctx context.Context, query string, limit int, track string) (Report, error) {
	return o.search(ctx, func(tctx context.Context) ([]unifiedsearch.SearchResult, []unifiedsearch.BackendStatus, error) {
		return o.us.SearchTrackDetailed(tctx, query, limit, track)
	})
}

// search admits the call through the concurrency semaphore, bounds it
// by SearchTimeout, runs fn, and gates the outcome by
// PartialFailureThreshold, recording metrics along the way.
func (o *Orchestrator) search(ctx context.Context, fn func(context.Context) ([]unifiedsearch.SearchResult, []unifiedsearch.BackendStatus, error)) (Report, error) {
	select {
	case o.sem <- struct{}{}:
	case <-ctx.Done():
		return Report{}, ctx.Err()
	}
	defer func() { <-o.sem }()

	tctx, cancel := context.WithTimeout(ctx, o.cfg.SearchTimeout)
	defer cancel()

	results, statuses, err := fn(tctx)

	o.mu.Lock()
	o.totalSearches++
	for _, s := range statuses {
		o.backendLatencySumNS[s.Name] += s.Latency.Nanoseconds()
		o.backendLatencyCount[s.Name]++
	}
	o.mu.Unlock()

	if err != nil {
		o.recordOutcome(false)
		return Report{}, aerrors.BackendFailed("orchestrator", err)
	}

	if len(results) == 0 && errors.Is(tctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		o.recordOutcome(false)
		return Report{Backends: statuses}, aerrors.SearchTimeout()
	}

	failed := partialFailureExceeds(statuses, o.cfg.PartialFailureThreshold)
	o.recordOutcome(!failed)

	return Report{Results: results, Backends: statuses, Failed: failed}, nil
}

func (o *Orchestrator) recordOutcome(succeeded bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if succeeded {
		o.successCount++
	} else {
		o.failureCount++
	}
}

// partialFailureExceeds reports whether the fraction of backends that
// ran and failed exceeds threshold. No backends having run at all is
// not a failure — there was simply nothing configured to fail.
func partialFailureExceeds(statuses []unifiedsearch.BackendStatus, threshold float64) bool {
	if len(statuses) == 0 {
		return false
	}
	failed := 0
	for _, s := range statuses {
		if !s.Succeeded {
			failed++
		}
	}
	return float64(failed)/float64(len(statuses)) > threshold
}

// Metrics is a point-in-time snapshot of the aggregate counters.
type Metrics struct {
	TotalSearches int64
	SuccessCount  int64
	FailureCount  int64
	BackendAvgMS  map[string]float64
}

// Snapshot returns the current aggregate metrics. Safe to call
// concurrently with Search.
func (o *Orchestrator) Snapshot() Metrics {
	o.mu.RLock()
	defer o.mu.RUnlock()

	avg := make(map[string]float64, len(o.backendLatencySumNS))
	for name, sumNS := range o.backendLatencySumNS {
		count := o.backendLatencyCount[name]
		if count == 0 {
			continue
		}
		avg[name] = float64(sumNS) / float64(count) / float64(time.Millisecond)
	}

	return Metrics{
		TotalSearches: o.totalSearches,
		SuccessCount:  o.successCount,
		FailureCount:  o.failureCount,
		BackendAvgMS:  avg,
	}
}

// IndexDirectory and ClearIndex pass through to the wrapped
// UnifiedSearcher unchanged — admission control and metrics apply only
// to Search, per spec.md §4.10.
func (o *Orchestrator) IndexDirectory(ctx context.Context, root string, opts indexer.Options) (indexer.Stats, error) {
	return o.us.IndexDirectory(ctx, root, opts)
}

func (o *Orchestrator) ClearIndex(ctx context.Context) error {
	return o.us.ClearIndex(ctx)
}
