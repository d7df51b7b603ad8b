// Package unifiedsearch implements the UnifiedSearcher capability
// (spec.md §4.9): fan out a query to every available backend in
// parallel, fuse their results, and expand each fused hit into a
// three-chunk context window using the Indexer's per-file chunk
// registry.
package unifiedsearch

import (
	"context"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/embedsearch/embedsearch/internal/bm25"
	"github.com/embedsearch/embedsearch/internal/chunk"
	"github.com/embedsearch/embedsearch/internal/embed"
	"github.com/embedsearch/embedsearch/internal/exactsearch"
	"github.com/embedsearch/embedsearch/internal/fusion"
	"github.com/embedsearch/embedsearch/internal/indexer"
	"github.com/embedsearch/embedsearch/internal/symboldb"
	"github.com/embedsearch/embedsearch/internal/textindex"
	"github.com/embedsearch/embedsearch/internal/vectorstore"
)

// DefaultSearchCacheSize is the spec's default search_cache_size.
const DefaultSearchCacheSize = 100

// ChunkContext is one neighboring chunk surfaced alongside a hit.
type ChunkContext struct {
	ChunkIndex int
	Content    string
	StartLine  int
	EndLine    int
}

// SearchResult is one fused, context-expanded hit.
type SearchResult struct {
	FilePath   string
	LineNumber *int
	ChunkIndex *int
	Score      float64
	MatchType  fusion.MatchType
	Content    string
	StartLine  int
	EndLine    int
	Above      *ChunkContext
	Below      *ChunkContext
}

// Backend names as reported in BackendStatus, also used by Orchestrator
// to key its per-backend aggregate latency metrics.
const (
	BackendExact    = "exact"
	BackendBM25     = "bm25"
	BackendSemantic = "semantic"
	BackendSymbol   = "symbol"
)

// BackendStatus reports whether one backend track produced results
// during a fan-out and how long it took. Orchestrator (spec.md §4.10)
// uses these to gate partial failures and to track average latency.
type BackendStatus struct {
	Name      string
	Succeeded bool
	Latency   time.Duration
}

// UnifiedSearcher fans a query out to the Exact, BM25, Semantic
// (VectorStore or, as a fallback, TextIndex), and Symbol tracks, fuses
// the results, and caches the fused-and-expanded list per query.
type UnifiedSearcher struct {
	exact    *exactsearch.Searcher
	bm25     *bm25.Index
	text     *textindex.Index
	vec      *vectorstore.Store
	embedder embed.Embedder
	symbols  *symboldb.DB
	idx      *indexer.Indexer

	weights fusion.Weights

	cache *lru.Cache[string, []SearchResult]

	// trackLabel namespaces the cache key for a track-restricted view
	// produced by SearchTrack; "" for the full hybrid searcher.
	trackLabel string
}

// Track names accepted by SearchTrack, matching the MCP search tool's
// search_type argument.
const (
	TrackHybrid   = "hybrid"
	TrackSemantic = "semantic"
	TrackText     = "text"
	TrackSymbol   = "symbol"
)

// SearchTrack behaves like Search but restricts the fan-out to one
// conceptual track: "text" runs the lexical tracks (Exact + BM25),
// "semantic" runs the Semantic track alone, "symbol" runs the Symbol
// track alone, and "hybrid" (or any unrecognized value) behaves like
// Search. The result cache is keyed per-track, so a hybrid search and
// a single-track search for the same query never collide.
func (u *UnifiedSearcher) SearchTrack(ctx context.Context, query string, limit int, track string) ([]SearchResult, error) {
	view := *u
	view.trackLabel = track
	switch track {
	case TrackSemantic:
		view.exact, view.bm25, view.symbols = nil, nil, nil
	case TrackText:
		view.vec, view.embedder, view.text, view.symbols = nil, nil, nil, nil
	case TrackSymbol:
		view.exact, view.bm25, view.vec, view.embedder, view.text = nil, nil, nil, nil, nil
	default:
		view.trackLabel = ""
	}
	return view.Search(ctx, query, limit)
}

// SearchTrackDetailed is SearchTrack with the same per-backend status
// reporting as SearchDetailed, for callers (Orchestrator) that need
// both track restriction and backend status/latency reporting.
func (u *UnifiedSearcher) SearchTrackDetailed(ctx context.Context, query string, limit int, track string) ([]SearchResult, []BackendStatus, error) {
	view := *u
	view.trackLabel = track
	switch track {
	case TrackSemantic:
		view.exact, view.bm25, view.symbols = nil, nil, nil
	case TrackText:
		view.vec, view.embedder, view.text, view.symbols = nil, nil, nil, nil
	case TrackSymbol:
		view.exact, view.bm25, view.vec, view.embedder, view.text = nil, nil, nil, nil, nil
	default:
		view.trackLabel = ""
	}
	return view.SearchDetailed(ctx, query, limit)
}

// Config carries the optional backends and tunables. Any backend left
// nil is simply skipped during fan-out, per spec.md §4.9's independent
// per-backend failure tolerance.
type Config struct {
	Exact     *exactsearch.Searcher
	BM25      *bm25.Index
	Text      *textindex.Index
	Vector    *vectorstore.Store
	Embedder  embed.Embedder
	Symbols   *symboldb.DB
	Weights   fusion.Weights
	CacheSize int
}

// New constructs a UnifiedSearcher. idx supplies the per-file chunk
// registry used for three-chunk context expansion and backs
// IndexDirectory/ClearIndex.
func New(idx *indexer.Indexer, cfg Config) (*UnifiedSearcher, error) {
	cacheSize := cfg.CacheSize
	if cacheSize <= 0 {
		cacheSize = DefaultSearchCacheSize
	}
	cache, err := lru.New[string, []SearchResult](cacheSize)
	if err != nil {
		return nil, err
	}
	weights := cfg.Weights
	if weights == (fusion.Weights{}) {
		weights = fusion.DefaultWeights()
	}
	return &UnifiedSearcher{
		exact:    cfg.Exact,
		bm25:     cfg.BM25,
		text:     cfg.Text,
		vec:      cfg.Vector,
		embedder: cfg.Embedder,
		symbols:  cfg.Symbols,
		idx:      idx,
		weights:  weights,
		cache:    cache,
	}, nil
}

// Search fans query out to every configured backend in parallel, fuses
// the results, and expands each into a three-chunk context. An
// empty/whitespace-only query returns an empty slice. limit truncates
// the final list; a non-positive limit falls back to fusion.MaxResults.
func (u *UnifiedSearcher) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	results, _, err := u.SearchDetailed(ctx, query, limit)
	return results, err
}

// SearchDetailed behaves like Search but also reports, for each backend
// that ran, whether it succeeded and how long it took. A cache hit
// short-circuits the fan-out entirely, so it reports no backend
// statuses — the cached list is already authoritative. Orchestrator
// (spec.md §4.10) uses the statuses for partial-failure gating and
// per-backend latency metrics.
func (u *UnifiedSearcher) SearchDetailed(ctx context.Context, query string, limit int) ([]SearchResult, []BackendStatus, error) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return []SearchResult{}, nil, nil
	}
	if limit <= 0 {
		limit = fusion.MaxResults
	}

	cacheKey := u.trackLabel + "|" + strings.ToLower(trimmed)
	if cached, ok := u.cache.Get(cacheKey); ok {
		return truncate(cached, limit), nil, nil
	}

	var (
		exactRecs    []fusion.ExactRecord
		bm25Recs     []fusion.BM25Record
		semanticRecs []fusion.SemanticRecord
		symbolRecs   []fusion.SymbolRecord
	)

	// Each enabled backend owns a fixed slot, so concurrent goroutines
	// never write the same statuses element — no extra locking needed.
	var statuses [4]BackendStatus
	var ran [4]bool

	g, gctx := errgroup.WithContext(ctx)

	if u.exact != nil {
		g.Go(func() error {
			start := time.Now()
			for _, m := range u.exact.Search(trimmed, fusion.MaxResults) {
				exactRecs = append(exactRecs, fusion.ExactRecord{
					FilePath:   m.FilePath,
					LineNumber: m.LineNumber,
					Content:    m.LineContent,
					StartLine:  m.LineNumber,
					EndLine:    m.LineNumber,
				})
			}
			ran[0] = true
			statuses[0] = BackendStatus{Name: BackendExact, Succeeded: true, Latency: time.Since(start)}
			return nil
		})
	}

	if u.bm25 != nil {
		g.Go(func() error {
			start := time.Now()
			matches, err := u.bm25.Search(trimmed, fusion.MaxResults)
			ran[1] = true
			if err != nil {
				statuses[1] = BackendStatus{Name: BackendBM25, Succeeded: false, Latency: time.Since(start)}
				return nil // a backend's own failure must not abort the others
			}
			for _, m := range matches {
				filePath, chunkIndex, perr := bm25.ParseDocID(m.DocID)
				if perr != nil {
					continue
				}
				bm25Recs = append(bm25Recs, fusion.BM25Record{DocID: bm25.FormatDocID(filePath, chunkIndex), Score: m.Score})
			}
			statuses[1] = BackendStatus{Name: BackendBM25, Succeeded: true, Latency: time.Since(start)}
			return nil
		})
	}

	if u.vec != nil && u.embedder != nil {
		g.Go(func() error {
			start := time.Now()
			vec, err := u.embedder.Embed(gctx, trimmed, embed.TaskSearchQuery)
			ran[2] = true
			if err != nil {
				statuses[2] = BackendStatus{Name: BackendSemantic, Succeeded: false, Latency: time.Since(start)}
				return nil
			}
			results, err := u.vec.Search(gctx, vec, fusion.MaxResults)
			if err != nil {
				statuses[2] = BackendStatus{Name: BackendSemantic, Succeeded: false, Latency: time.Since(start)}
				return nil
			}
			for _, r := range results {
				sim := r.Similarity
				semanticRecs = append(semanticRecs, fusion.SemanticRecord{FilePath: r.FilePath, ChunkIndex: r.ChunkIndex, Similarity: &sim})
			}
			statuses[2] = BackendStatus{Name: BackendSemantic, Succeeded: true, Latency: time.Since(start)}
			return nil
		})
	} else if u.text != nil {
		// No real semantic backend configured: remap TextIndex's fuzzy
		// full-text matches onto the Semantic track, per spec.md §4.6,
		// rather than exposing them as a fifth independent track.
		g.Go(func() error {
			start := time.Now()
			matches, err := u.text.Search(gctx, trimmed, fusion.MaxResults)
			ran[2] = true
			if err != nil {
				statuses[2] = BackendStatus{Name: BackendSemantic, Succeeded: false, Latency: time.Since(start)}
				return nil
			}
			for _, m := range matches {
				sim := textScoreToSimilarity(m.Score)
				semanticRecs = append(semanticRecs, fusion.SemanticRecord{FilePath: m.FilePath, ChunkIndex: m.ChunkIndex, Similarity: &sim})
			}
			statuses[2] = BackendStatus{Name: BackendSemantic, Succeeded: true, Latency: time.Since(start)}
			return nil
		})
	}

	if u.symbols != nil {
		g.Go(func() error {
			start := time.Now()
			results, err := u.symbols.Search(gctx, trimmed, fusion.MaxResults)
			ran[3] = true
			if err != nil {
				statuses[3] = BackendStatus{Name: BackendSymbol, Succeeded: false, Latency: time.Since(start)}
				return nil
			}
			for _, r := range results {
				symbolRecs = append(symbolRecs, fusion.SymbolRecord{
					FilePath:   r.FilePath,
					ChunkIndex: r.ChunkIndex,
					StartLine:  r.StartLine,
					EndLine:    r.EndLine,
					Content:    r.DefinitionText,
				})
			}
			statuses[3] = BackendStatus{Name: BackendSymbol, Succeeded: true, Latency: time.Since(start)}
			return nil
		})
	}

	_ = g.Wait() // every Go above swallows its own error; this never fails

	fused, err := fusion.Fuse(exactRecs, bm25Recs, semanticRecs, symbolRecs, u.weights)
	if err != nil {
		return nil, nil, err
	}

	expanded := u.expandContext(fused)
	u.cache.Add(cacheKey, expanded)

	reported := make([]BackendStatus, 0, 4)
	for i, didRun := range ran {
		if didRun {
			reported = append(reported, statuses[i])
		}
	}

	return truncate(expanded, limit), reported, nil
}

// textScoreToSimilarity maps bleve's unbounded non-negative relevance
// score into (0,1], so TextIndex matches can be combined through
// Fusion's semantic-track normalization like a real cosine similarity.
func textScoreToSimilarity(score float64) float32 {
	if score < 0 {
		score = 0
	}
	return float32(score / (score + 1))
}

func truncate(results []SearchResult, limit int) []SearchResult {
	if limit > 0 && len(results) > limit {
		return results[:limit]
	}
	return results
}

// expandContext resolves each fused result's surrounding chunks via
// the Indexer's per-file chunk registry: above is the chunk
// immediately before the hit in that file (if any), below the chunk
// immediately after. Exact hits carry a line number rather than a
// chunk index, so their center chunk is the one containing that line.
func (u *UnifiedSearcher) expandContext(fused []fusion.Result) []SearchResult {
	out := make([]SearchResult, 0, len(fused))
	for _, r := range fused {
		sr := SearchResult{
			FilePath:   r.FilePath,
			LineNumber: r.LineNumber,
			ChunkIndex: r.ChunkIndex,
			Score:      r.Score,
			MatchType:  r.MatchType,
			Content:    r.Content,
			StartLine:  r.StartLine,
			EndLine:    r.EndLine,
		}

		chunks := u.idx.ChunksForFile(r.FilePath)
		if len(chunks) > 0 {
			center, ok := centerIndex(chunks, r)
			if ok {
				if center > 0 {
					c := chunks[center-1]
					sr.Above = &ChunkContext{ChunkIndex: c.ChunkIndex, Content: c.Content, StartLine: c.StartLine, EndLine: c.EndLine}
				}
				if center < len(chunks)-1 {
					c := chunks[center+1]
					sr.Below = &ChunkContext{ChunkIndex: c.ChunkIndex, Content: c.Content, StartLine: c.StartLine, EndLine: c.EndLine}
				}
			}
		}

		out = append(out, sr)
	}
	return out
}

// centerIndex resolves r's position within chunks, the file's
// chunks in file order (chunk_index == slice position).
func centerIndex(chunks []*chunk.Chunk, r fusion.Result) (int, bool) {
	if r.ChunkIndex != nil {
		idx := *r.ChunkIndex
		if idx >= 0 && idx < len(chunks) {
			return idx, true
		}
		return 0, false
	}
	if r.LineNumber != nil {
		line := *r.LineNumber
		for i, c := range chunks {
			if line >= c.StartLine && line <= c.EndLine {
				return i, true
			}
		}
	}
	return 0, false
}

// IndexDirectory runs the Indexer over root and invalidates the result
// cache, since any index mutation stales prior cached searches.
func (u *UnifiedSearcher) IndexDirectory(ctx context.Context, root string, opts indexer.Options) (indexer.Stats, error) {
	stats, err := u.idx.IndexDirectory(ctx, root, opts)
	u.cache.Purge()
	return stats, err
}

// ClearIndex removes every tracked file from every backend and
// invalidates the result cache.
func (u *UnifiedSearcher) ClearIndex(ctx context.Context) error {
	err := u.idx.Clear(ctx)
	u.cache.Purge()
	return err
}

// IndexFile re-indexes one file's content and invalidates the result
// cache, for callers (the watch-mode reconciler) that re-index a single
// changed path rather than rescanning the whole tree.
func (u *UnifiedSearcher) IndexFile(ctx context.Context, filePath string, content []byte, language string, chunkSize int) error {
	err := u.idx.IndexFile(ctx, filePath, content, language, chunkSize)
	u.cache.Purge()
	return err
}

// RemoveFile drops one path from every backend and invalidates the
// result cache, for the watch-mode reconciler's delete events.
func (u *UnifiedSearcher) RemoveFile(ctx context.Context, filePath string) error {
	err := u.idx.RemoveFile(ctx, filePath)
	u.cache.Purge()
	return err
}
