// Package indexer walks a project directory and dispatches each file's
// chunks to the BM25Index, TextIndex, VectorStore, SymbolDatabase, and
// ExactSearcher projections, keeping a per-file chunk registry so the
// UnifiedSearcher can expand a hit into its three-chunk context window.
package indexer

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/embedsearch/embedsearch/internal/bm25"
	"github.com/embedsearch/embedsearch/internal/chunk"
	"github.com/embedsearch/embedsearch/internal/embed"
	aerrors "github.com/embedsearch/embedsearch/internal/errors"
	"github.com/embedsearch/embedsearch/internal/exactsearch"
	"github.com/embedsearch/embedsearch/internal/scanner"
	"github.com/embedsearch/embedsearch/internal/symboldb"
	"github.com/embedsearch/embedsearch/internal/textindex"
	"github.com/embedsearch/embedsearch/internal/tokenize"
	"github.com/embedsearch/embedsearch/internal/vectorstore"
)

// Options configures a directory index run.
type Options struct {
	ChunkSize        int
	IncludeTestFiles bool
	MaxFileSize      int64
	Extensions       []string // file extensions without a leading dot; empty means "all supported"
}

// DefaultOptions returns the spec's default indexing knobs.
func DefaultOptions() Options {
	return Options{
		ChunkSize:   chunk.DefaultChunkSizeTarget,
		MaxFileSize: 100000,
	}
}

// Stats summarizes one IndexDirectory run.
type Stats struct {
	FilesIndexed int
	FilesSkipped int
	Warnings     []string
}

// Indexer owns the four backend projections plus the ExactSearcher
// line-snapshot and applies every file update atomically across them.
type Indexer struct {
	bm25Index  *bm25.Index
	textIndex  *textindex.Index
	vecStore   *vectorstore.Store
	embedder   embed.Embedder
	symbolDB   *symboldb.DB
	exactIndex *exactsearch.Searcher

	symbols   *chunk.SymbolCapability
	tokenizer *tokenize.Tokenizer
	scanner   *scanner.Scanner

	mu       sync.RWMutex
	registry map[string][]*chunk.Chunk
}

// New wires an Indexer to its backend projections. vecStore and
// embedder may both be nil (semantic indexing disabled); the other
// three are required.
func New(bm25Index *bm25.Index, textIndex *textindex.Index, vecStore *vectorstore.Store, embedder embed.Embedder, symbolDB *symboldb.DB, exactIndex *exactsearch.Searcher) (*Indexer, error) {
	sc, err := scanner.New()
	if err != nil {
		return nil, fmt.Errorf("create scanner: %w", err)
	}
	return &Indexer{
		bm25Index:  bm25Index,
		textIndex:  textIndex,
		vecStore:   vecStore,
		embedder:   embedder,
		symbolDB:   symbolDB,
		exactIndex: exactIndex,
		symbols:    chunk.NewSymbolCapability(),
		tokenizer:  tokenize.New(tokenize.DefaultConfig()),
		scanner:    sc,
		registry:   make(map[string][]*chunk.Chunk),
	}, nil
}

// Close releases the tree-sitter parser behind symbol extraction.
func (ix *Indexer) Close() {
	ix.symbols.Close()
}

// ChunksForFile returns the registered chunk list for filePath, in
// file order, used by the UnifiedSearcher for three-chunk expansion.
func (ix *Indexer) ChunksForFile(filePath string) []*chunk.Chunk {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.registry[filePath]
}

// FileCount and ChunkCount report the size of the live index, for the
// status tool.
func (ix *Indexer) FileCount() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.registry)
}

func (ix *Indexer) ChunkCount() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	total := 0
	for _, chunks := range ix.registry {
		total += len(chunks)
	}
	return total
}

// IndexDirectory walks root, filtering by extension, test-file
// heuristic, and size cap, and dispatches each surviving file to
// IndexFile. A single file's failure is recorded as a warning and does
// not abort the walk.
func (ix *Indexer) IndexDirectory(ctx context.Context, root string, opts Options) (Stats, error) {
	if opts.ChunkSize <= 0 {
		opts = DefaultOptions()
	}

	results, err := ix.scanner.Scan(ctx, &scanner.ScanOptions{
		RootDir:          root,
		RespectGitignore: true,
		MaxFileSize:      math.MaxInt64, // the indexer enforces its own cap, with a recorded warning
	})
	if err != nil {
		return Stats{}, fmt.Errorf("scan %s: %w", root, err)
	}

	var stats Stats
	for res := range results {
		if res.Error != nil {
			stats.Warnings = append(stats.Warnings, res.Error.Error())
			continue
		}
		file := res.File

		if len(opts.Extensions) > 0 && !hasExtension(file.Path, opts.Extensions) {
			continue
		}
		if !opts.IncludeTestFiles && isTestFile(file.Path) {
			continue
		}
		if opts.MaxFileSize > 0 && file.Size > opts.MaxFileSize {
			stats.Warnings = append(stats.Warnings, fmt.Sprintf("skipped %s: %d bytes exceeds max_file_size %d", file.Path, file.Size, opts.MaxFileSize))
			stats.FilesSkipped++
			continue
		}

		content, err := os.ReadFile(file.AbsPath)
		if err != nil {
			stats.Warnings = append(stats.Warnings, fmt.Sprintf("skipped %s: %v", file.Path, err))
			stats.FilesSkipped++
			continue
		}

		if err := ix.IndexFile(ctx, file.Path, content, file.Language, opts.ChunkSize); err != nil {
			stats.Warnings = append(stats.Warnings, fmt.Sprintf("failed %s: %v", file.Path, err))
			stats.FilesSkipped++
			continue
		}
		stats.FilesIndexed++
	}

	return stats, nil
}

// isTestFile reports whether path should be excluded under the
// include_test_files=false default: any path containing a "tests"
// directory component or a "_test." infix.
func isTestFile(path string) bool {
	if strings.Contains(path, "_test.") {
		return true
	}
	parts := strings.Split(filepath.ToSlash(path), "/")
	for _, p := range parts {
		if p == "tests" {
			return true
		}
	}
	return false
}

func hasExtension(path string, extensions []string) bool {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	for _, e := range extensions {
		if strings.EqualFold(ext, strings.TrimPrefix(e, ".")) {
			return true
		}
	}
	return false
}

// IndexFile chunks content and dispatches it to every backend
// projection. On any backend failure, every projection already
// written for this file in this call is removed so no projection is
// left holding a half-applied update; the caller sees the file as
// failed rather than partially indexed.
func (ix *Indexer) IndexFile(ctx context.Context, filePath string, content []byte, language string, chunkSize int) error {
	if chunkSize <= 0 {
		chunkSize = chunk.DefaultChunkSizeTarget
	}

	chunks, err := ix.chunkFile(ctx, filePath, content, language, chunkSize)
	if err != nil {
		return fmt.Errorf("chunk %s: %w", filePath, err)
	}

	ix.mu.RLock()
	oldChunks := ix.registry[filePath]
	ix.mu.RUnlock()

	var vectors [][]float32
	if ix.embedder != nil && ix.vecStore != nil && len(chunks) > 0 {
		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Content
		}
		vectors, err = ix.embedder.EmbedBatch(ctx, texts, embed.TaskSearchDocument)
		if err != nil {
			return aerrors.BackendFailed("embedder", err)
		}
	}

	applied := map[string]bool{}
	rollback := func() {
		if applied["exact"] {
			ix.exactIndex.RemoveFile(filePath)
		}
		if applied["bm25"] {
			ix.removeBM25File(filePath, len(chunks))
		}
		if applied["text"] {
			_ = ix.textIndex.RemoveFile(filePath)
		}
		if applied["vector"] {
			_ = ix.vecStore.DeleteFile(ctx, filePath)
		}
		if applied["symbol"] {
			_ = ix.symbolDB.RemoveFile(ctx, filePath)
		}
	}

	if ix.exactIndex != nil {
		ix.exactIndex.IndexFile(filePath, string(content))
		applied["exact"] = true
	}

	if ix.bm25Index != nil {
		// Marked before the writes so a failure part-way through is rolled back too.
		applied["bm25"] = true
		if err := ix.applyBM25(filePath, chunks, oldChunks, language); err != nil {
			rollback()
			return aerrors.BackendFailed("bm25", err)
		}
	}

	if ix.textIndex != nil {
		docs := make([]textindex.Document, len(chunks))
		for i, c := range chunks {
			docs[i] = textindex.Document{FilePath: filePath, ChunkIndex: c.ChunkIndex, Content: c.Content}
		}
		if err := ix.textIndex.IndexFile(ctx, filePath, docs); err != nil {
			rollback()
			return aerrors.BackendFailed("textindex", err)
		}
		applied["text"] = true
	}

	if ix.vecStore != nil && vectors != nil {
		if err := ix.vecStore.DeleteFile(ctx, filePath); err != nil {
			rollback()
			return aerrors.BackendFailed("vectorstore", err)
		}
		applied["vector"] = true
		for i, c := range chunks {
			if err := ix.vecStore.Upsert(ctx, filePath, c.ChunkIndex, vectors[i]); err != nil {
				rollback()
				return aerrors.BackendFailed("vectorstore", err)
			}
		}
	}

	if ix.symbolDB != nil {
		var records []symboldb.Record
		for _, c := range chunks {
			syms := ix.extractSymbols(ctx, c, language)
			records = append(records, symboldb.RecordsFromSymbols(filePath, c.ChunkIndex, syms)...)
		}
		if err := ix.symbolDB.ReplaceFile(ctx, filePath, records); err != nil {
			rollback()
			return aerrors.BackendFailed("symboldb", err)
		}
		applied["symbol"] = true
	}

	ix.mu.Lock()
	ix.registry[filePath] = chunks
	ix.mu.Unlock()

	return nil
}

// applyBM25 upserts every new chunk's document and removes any stale
// chunk index left over from a prior, longer version of the file.
func (ix *Indexer) applyBM25(filePath string, chunks, oldChunks []*chunk.Chunk, language string) error {
	for _, c := range chunks {
		tokens := ix.tokenizer.Tokenize(c.Content, language)
		if len(tokens) == 0 {
			continue // a chunk with no indexable terms contributes nothing to BM25
		}
		doc := &bm25.Document{
			ID:         bm25.FormatDocID(filePath, c.ChunkIndex),
			FilePath:   filePath,
			ChunkIndex: c.ChunkIndex,
			Tokens:     tokens,
			StartLine:  c.StartLine,
			EndLine:    c.EndLine,
			Language:   language,
		}
		if err := ix.bm25Index.AddDocument(doc); err != nil {
			return err
		}
	}
	for i := len(chunks); i < len(oldChunks); i++ {
		_ = ix.bm25Index.RemoveDocument(bm25.FormatDocID(filePath, i))
	}
	return nil
}

func (ix *Indexer) removeBM25File(filePath string, chunkCount int) {
	for i := 0; i < chunkCount; i++ {
		_ = ix.bm25Index.RemoveDocument(bm25.FormatDocID(filePath, i))
	}
}

// RemoveFile drops filePath from every backend projection and the
// chunk registry.
func (ix *Indexer) RemoveFile(ctx context.Context, filePath string) error {
	ix.mu.Lock()
	chunks := ix.registry[filePath]
	delete(ix.registry, filePath)
	ix.mu.Unlock()

	if ix.exactIndex != nil {
		ix.exactIndex.RemoveFile(filePath)
	}
	if ix.bm25Index != nil {
		ix.removeBM25File(filePath, len(chunks))
	}
	if ix.textIndex != nil {
		if err := ix.textIndex.RemoveFile(filePath); err != nil {
			return fmt.Errorf("remove %s from textindex: %w", filePath, err)
		}
	}
	if ix.vecStore != nil {
		if err := ix.vecStore.DeleteFile(ctx, filePath); err != nil {
			return fmt.Errorf("remove %s from vectorstore: %w", filePath, err)
		}
	}
	if ix.symbolDB != nil {
		if err := ix.symbolDB.RemoveFile(ctx, filePath); err != nil {
			return fmt.Errorf("remove %s from symboldb: %w", filePath, err)
		}
	}
	return nil
}

// Clear removes every file currently tracked by the chunk registry
// from every backend projection.
func (ix *Indexer) Clear(ctx context.Context) error {
	ix.mu.RLock()
	paths := make([]string, 0, len(ix.registry))
	for p := range ix.registry {
		paths = append(paths, p)
	}
	ix.mu.RUnlock()

	if ix.exactIndex != nil {
		ix.exactIndex.Clear()
	}
	for _, p := range paths {
		if err := ix.RemoveFile(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// chunkFile selects the Markdown or regex-boundary chunker by
// extension and splits content accordingly.
func (ix *Indexer) chunkFile(ctx context.Context, filePath string, content []byte, language string, chunkSize int) ([]*chunk.Chunk, error) {
	var chunker chunk.Chunker
	if strings.EqualFold(filepath.Ext(filePath), ".md") || strings.EqualFold(filepath.Ext(filePath), ".markdown") {
		chunker = chunk.NewMarkdownChunkerWithSize(chunkSize)
	} else {
		chunker = chunk.NewRegexChunker(chunkSize)
	}
	return chunker.Chunk(ctx, &chunk.FileInput{Path: filePath, Content: content, Language: language})
}

// extractSymbols parses one chunk's content with the tree-sitter
// SymbolExtractor capability. Languages without a registered grammar
// simply contribute no symbols, since symbol extraction is opportunistic.
func (ix *Indexer) extractSymbols(ctx context.Context, c *chunk.Chunk, language string) []*chunk.Symbol {
	syms, err := ix.symbols.Extract(ctx, c.Content, language)
	if err != nil {
		return nil
	}
	return syms
}
