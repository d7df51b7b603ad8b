// Package textindex implements the TextIndex capability (C6): an
// opaque fuzzy/full-text source backed by bleve, registered with a
// code-aware custom analyzer so identifiers split the same way the
// BM25Index and tokenizer packages split them.
package textindex

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"
	"github.com/blevesearch/bleve/v2/search"

	"github.com/embedsearch/embedsearch/internal/tokenize"
)

const (
	codeTokenizerName  = "code_tokenizer"
	codeStopFilterName = "code_stop"
	codeAnalyzerName   = "code_analyzer"
)

func init() {
	_ = registry.RegisterTokenizer(codeTokenizerName, codeTokenizerConstructor)
	_ = registry.RegisterTokenFilter(codeStopFilterName, codeStopFilterConstructor)
}

// Document is one chunk offered for fuzzy indexing.
type Document struct {
	FilePath   string
	ChunkIndex int
	Content    string
}

// Match is one fuzzy/full-text hit. Score is "higher is better" but not
// directly comparable to BM25 or cosine similarity — callers treat it
// as opaque per spec.md's TextIndex contract.
type Match struct {
	FilePath     string
	ChunkIndex   int
	Score        float64
	MatchedTerms []string
}

// bleveDoc is the document shape stored in the index.
type bleveDoc struct {
	Content string `json:"content"`
}

// Index wraps a bleve index as the TextIndex capability.
type Index struct {
	mu     sync.RWMutex
	bleve  bleve.Index
	path   string
	closed bool
}

// docID formats the "{file_path}#{chunk_index}" key shared with
// BM25Index and VectorStore.
func docID(filePath string, chunkIndex int) string {
	return filePath + "#" + strconv.Itoa(chunkIndex)
}

func parseDocID(id string) (filePath string, chunkIndex int, ok bool) {
	i := strings.LastIndexByte(id, '#')
	if i <= 0 {
		return "", 0, false
	}
	n, err := strconv.Atoi(id[i+1:])
	if err != nil {
		return "", 0, false
	}
	return id[:i], n, true
}

// New opens (or creates) a TextIndex at path. An empty path creates an
// in-memory index, useful for tests and ephemeral sessions.
func New(path string) (*Index, error) {
	indexMapping, err := buildMapping()
	if err != nil {
		return nil, fmt.Errorf("build index mapping: %w", err)
	}

	var idx bleve.Index
	if path == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		if dir := filepath.Dir(path); dir != "" {
			if mkErr := os.MkdirAll(dir, 0755); mkErr != nil {
				return nil, fmt.Errorf("create directory %s: %w", dir, mkErr)
			}
		}

		if validErr := validateIntegrity(path); validErr != nil {
			slog.Warn("textindex_corrupted", slog.String("path", path), slog.String("error", validErr.Error()))
			if rmErr := os.RemoveAll(path); rmErr != nil {
				return nil, fmt.Errorf("textindex corrupted at %s and cannot remove: %w (original: %v)", path, rmErr, validErr)
			}
			slog.Info("textindex_cleared", slog.String("path", path), slog.String("reason", "corruption detected, reindex required"))
		}

		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, indexMapping)
		} else if err != nil && isCorruptionError(err) {
			slog.Warn("textindex_open_failed", slog.String("path", path), slog.String("error", err.Error()))
			if rmErr := os.RemoveAll(path); rmErr != nil {
				return nil, fmt.Errorf("textindex corrupted, cannot clear: %w (original: %v)", rmErr, err)
			}
			idx, err = bleve.New(path, indexMapping)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("create/open textindex: %w", err)
	}

	return &Index{bleve: idx, path: path}, nil
}

func buildMapping() (*mapping.IndexMappingImpl, error) {
	m := bleve.NewIndexMapping()
	err := m.AddCustomAnalyzer(codeAnalyzerName, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     codeTokenizerName,
		"token_filters": []string{lowercase.Name, codeStopFilterName},
	})
	if err != nil {
		return nil, fmt.Errorf("add custom analyzer: %w", err)
	}
	m.DefaultAnalyzer = codeAnalyzerName
	return m, nil
}

// IndexFile replaces every chunk's entry for filePath with docs,
// atomically via one batch.
func (idx *Index) IndexFile(ctx context.Context, filePath string, docs []Document) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed {
		return fmt.Errorf("textindex is closed")
	}

	ids, err := idx.idsForFileLocked(filePath)
	if err != nil {
		return err
	}
	if len(ids) == 0 && len(docs) == 0 {
		return nil
	}

	batch := idx.bleve.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	for _, d := range docs {
		if err := batch.Index(docID(d.FilePath, d.ChunkIndex), bleveDoc{Content: d.Content}); err != nil {
			return fmt.Errorf("index chunk %s#%d: %w", d.FilePath, d.ChunkIndex, err)
		}
	}
	if err := idx.bleve.Batch(batch); err != nil {
		return fmt.Errorf("execute batch: %w", err)
	}
	return nil
}

// RemoveFile deletes every indexed chunk belonging to filePath.
func (idx *Index) RemoveFile(filePath string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return fmt.Errorf("textindex is closed")
	}
	return idx.removeFileLocked(filePath)
}

func (idx *Index) removeFileLocked(filePath string) error {
	ids, err := idx.idsForFileLocked(filePath)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	batch := idx.bleve.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	return idx.bleve.Batch(batch)
}

func (idx *Index) idsForFileLocked(filePath string) ([]string, error) {
	q := bleve.NewMatchAllQuery()
	count, _ := idx.bleve.DocCount()
	req := bleve.NewSearchRequest(q)
	req.Size = int(count)
	req.Fields = nil

	result, err := idx.bleve.Search(req)
	if err != nil {
		return nil, fmt.Errorf("scan for file ids: %w", err)
	}
	prefix := filePath + "#"
	var ids []string
	for _, hit := range result.Hits {
		if strings.HasPrefix(hit.ID, prefix) {
			ids = append(ids, hit.ID)
		}
	}
	return ids, nil
}

// Search performs a fuzzy/full-text match query, returning at most
// limit hits ordered by bleve's relevance score descending. An
// empty/whitespace query returns no results.
func (idx *Index) Search(ctx context.Context, query string, limit int) ([]Match, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.closed {
		return nil, fmt.Errorf("textindex is closed")
	}
	if strings.TrimSpace(query) == "" {
		return []Match{}, nil
	}

	mq := bleve.NewMatchQuery(query)
	mq.SetField("content")
	mq.Fuzziness = 1 // tolerate single-character typos (S2)

	req := bleve.NewSearchRequest(mq)
	req.Size = limit
	req.IncludeLocations = true

	result, err := idx.bleve.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	matches := make([]Match, 0, len(result.Hits))
	for _, hit := range result.Hits {
		filePath, chunkIndex, ok := parseDocID(hit.ID)
		if !ok {
			continue
		}
		matches = append(matches, Match{
			FilePath:     filePath,
			ChunkIndex:   chunkIndex,
			Score:        hit.Score,
			MatchedTerms: matchedTerms(hit),
		})
	}
	return matches, nil
}

// Stats reports the current document count.
type Stats struct {
	DocumentCount int
}

func (idx *Index) Stats() Stats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.closed {
		return Stats{}
	}
	count, _ := idx.bleve.DocCount()
	return Stats{DocumentCount: int(count)}
}

// Close releases the underlying bleve index.
func (idx *Index) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return nil
	}
	idx.closed = true
	if idx.bleve != nil {
		return idx.bleve.Close()
	}
	return nil
}

func matchedTerms(hit *search.DocumentMatch) []string {
	seen := map[string]struct{}{}
	for field, locations := range hit.Locations {
		if field != "content" {
			continue
		}
		for term := range locations {
			seen[term] = struct{}{}
		}
	}
	terms := make([]string, 0, len(seen))
	for term := range seen {
		terms = append(terms, term)
	}
	return terms
}

func validateIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	metaPath := filepath.Join(path, "index_meta.json")
	info, err := os.Stat(metaPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("index_meta.json missing (corrupted index)")
	}
	if err != nil {
		return fmt.Errorf("stat index_meta.json: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("index_meta.json is empty (corrupted)")
	}
	data, err := os.ReadFile(metaPath)
	if err != nil {
		return fmt.Errorf("read index_meta.json: %w", err)
	}
	var meta map[string]interface{}
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}
	return nil
}

func isCorruptionError(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "unexpected end of JSON") ||
		strings.Contains(s, "error parsing mapping JSON") ||
		strings.Contains(s, "failed to load segment") ||
		strings.Contains(s, "error opening bolt") ||
		strings.Contains(s, "no such file or directory") ||
		err == bleve.ErrorIndexMetaCorrupt
}

// codeTokenizerConstructor adapts the tokenize package's C3 pipeline
// into a bleve analysis.Tokenizer so fuzzy search splits identifiers
// the same way the statistical track does.
func codeTokenizerConstructor(_ map[string]interface{}, _ *registry.Cache) (analysis.Tokenizer, error) {
	return &codeTokenizer{tok: tokenize.New(tokenize.DefaultConfig())}, nil
}

type codeTokenizer struct {
	tok *tokenize.Tokenizer
}

func (t *codeTokenizer) Tokenize(input []byte) analysis.TokenStream {
	text := string(input)
	tokens := t.tok.Tokenize(text, "")

	stream := make(analysis.TokenStream, 0, len(tokens))
	pos := 1
	offset := 0
	lowerText := strings.ToLower(text)
	for _, tk := range tokens {
		lowerTerm := strings.ToLower(tk.Text)
		start := strings.Index(lowerText[offset:], lowerTerm)
		if start == -1 {
			start = offset
		} else {
			start += offset
		}
		end := start + len(tk.Text)

		stream = append(stream, &analysis.Token{
			Term:     []byte(tk.Text),
			Start:    start,
			End:      end,
			Position: pos,
			Type:     analysis.AlphaNumeric,
		})
		pos++
		if end <= len(text) {
			offset = end
		}
	}
	return stream
}

func codeStopFilterConstructor(_ map[string]interface{}, _ *registry.Cache) (analysis.TokenFilter, error) {
	return &codeStopFilter{stopWords: tokenize.BuildStopWordMap(tokenize.DefaultStopWords)}, nil
}

type codeStopFilter struct {
	stopWords map[string]struct{}
}

func (f *codeStopFilter) Filter(input analysis.TokenStream) analysis.TokenStream {
	out := make(analysis.TokenStream, 0, len(input))
	for _, tok := range input {
		term := strings.ToLower(string(tok.Term))
		if _, stop := f.stopWords[term]; !stop {
			out = append(out, tok)
		}
	}
	return out
}

// Verify the analyzer hooks satisfy bleve's interfaces at compile time.
var (
	_ analysis.Tokenizer   = (*codeTokenizer)(nil)
	_ analysis.TokenFilter = (*codeStopFilter)(nil)
)
