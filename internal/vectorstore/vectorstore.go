// Package vectorstore implements the VectorStore capability (C7): a
// dense-vector nearest-neighbor index keyed by (file_path, chunk_index),
// backed by an in-process HNSW graph.
package vectorstore

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/coder/hnsw"
)

// Config configures the vector store.
type Config struct {
	// Dimensions is the vector dimension. Must match the Embedder in use.
	Dimensions int

	// Metric is the distance metric: "cos" (cosine) or "l2" (euclidean).
	Metric string

	// M is HNSW max connections per layer.
	M int

	// EfSearch is HNSW query-time search width.
	EfSearch int
}

// DefaultConfig returns sensible defaults for the given dimensionality.
func DefaultConfig(dimensions int) Config {
	return Config{
		Dimensions: dimensions,
		Metric:     "cos",
		M:          16,
		EfSearch:   20,
	}
}

// Record is one search hit: the chunk's location and its similarity to
// the query vector. Similarity is always populated (never nil) by this
// store — Fusion's MissingSimilarityScore guard exists for callers that
// assemble records from elsewhere.
type Record struct {
	FilePath   string
	ChunkIndex int
	Similarity float32 // in [-1, 1] for cosine metric
}

// ErrDimensionMismatch indicates a vector whose length doesn't match
// the store's configured dimensionality.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}

// Store is an HNSW-backed VectorStore. Keys are formatted as
// "{file_path}#{chunk_index}", matching the doc_id convention used by
// BM25Index and Fusion so the same chunk identity threads through every
// projection.
type Store struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config Config

	idMap   map[string]uint64 // "{file_path}#{chunk_index}" -> internal key
	keyMap  map[uint64]string // internal key -> id string
	nextKey uint64

	closed bool
}

type storeMetadata struct {
	IDMap   map[string]uint64
	NextKey uint64
	Config  Config
}

// New creates a new HNSW-based vector store.
func New(cfg Config) (*Store, error) {
	if cfg.Metric == "" {
		cfg.Metric = "cos"
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 20
	}

	graph := hnsw.NewGraph[uint64]()
	switch cfg.Metric {
	case "l2":
		graph.Distance = hnsw.EuclideanDistance
	default:
		graph.Distance = hnsw.CosineDistance
	}
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25

	return &Store{
		graph:  graph,
		config: cfg,
		idMap:  make(map[string]uint64),
		keyMap: make(map[uint64]string),
	}, nil
}

// FormatID builds the "{file_path}#{chunk_index}" key for a chunk.
func FormatID(filePath string, chunkIndex int) string {
	return filePath + "#" + strconv.Itoa(chunkIndex)
}

// ParseID splits a store key back into file path and chunk index.
func ParseID(id string) (filePath string, chunkIndex int, ok bool) {
	i := strings.LastIndexByte(id, '#')
	if i < 0 || i == 0 {
		return "", 0, false
	}
	n, err := strconv.Atoi(id[i+1:])
	if err != nil {
		return "", 0, false
	}
	return id[:i], n, true
}

// Upsert inserts or replaces the vector for (filePath, chunkIndex).
// Replacing an existing key uses lazy deletion: the old graph node is
// orphaned rather than removed, since coder/hnsw does not support safe
// deletion of arbitrary nodes.
func (s *Store) Upsert(ctx context.Context, filePath string, chunkIndex int, vector []float32) error {
	return s.Add(ctx, []string{FormatID(filePath, chunkIndex)}, [][]float32{vector})
}

// Add inserts vectors with their IDs. If an ID already exists it is
// replaced.
func (s *Store) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("vector store is closed")
	}

	for _, v := range vectors {
		if len(v) != s.config.Dimensions {
			return ErrDimensionMismatch{Expected: s.config.Dimensions, Got: len(v)}
		}
	}

	for i, id := range ids {
		if existingKey, exists := s.idMap[id]; exists {
			delete(s.keyMap, existingKey)
			delete(s.idMap, id)
		}

		key := s.nextKey
		s.nextKey++

		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		if s.config.Metric == "cos" {
			normalizeInPlace(vec)
		}

		s.graph.Add(hnsw.MakeNode(key, vec))
		s.idMap[id] = key
		s.keyMap[key] = id
	}

	return nil
}

// Search finds the k nearest chunks to query, reporting cosine
// similarity in [-1, 1] (for the "cos" metric) or an L2-derived score
// otherwise.
func (s *Store) Search(ctx context.Context, query []float32, k int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("vector store is closed")
	}
	if len(query) != s.config.Dimensions {
		return nil, ErrDimensionMismatch{Expected: s.config.Dimensions, Got: len(query)}
	}
	if s.graph.Len() == 0 || k <= 0 {
		return []Record{}, nil
	}

	q := make([]float32, len(query))
	copy(q, query)
	if s.config.Metric == "cos" {
		normalizeInPlace(q)
	}

	nodes := s.graph.Search(q, k)

	results := make([]Record, 0, len(nodes))
	for _, node := range nodes {
		id, exists := s.keyMap[node.Key]
		if !exists {
			continue // orphaned (lazily deleted) node
		}
		filePath, chunkIndex, ok := ParseID(id)
		if !ok {
			continue
		}

		distance := s.graph.Distance(q, node.Value)
		results = append(results, Record{
			FilePath:   filePath,
			ChunkIndex: chunkIndex,
			Similarity: distanceToSimilarity(distance, s.config.Metric),
		})
	}

	return results, nil
}

// Delete removes vectors by ID (lazy deletion — see Add).
func (s *Store) Delete(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("vector store is closed")
	}

	for _, id := range ids {
		if key, exists := s.idMap[id]; exists {
			delete(s.keyMap, key)
			delete(s.idMap, id)
		}
	}
	return nil
}

// DeleteFile removes every chunk vector belonging to filePath. Used by
// the Indexer's atomic per-file re-index.
func (s *Store) DeleteFile(ctx context.Context, filePath string) error {
	s.mu.Lock()
	prefix := filePath + "#"
	var toDelete []string
	for id := range s.idMap {
		if strings.HasPrefix(id, prefix) {
			toDelete = append(toDelete, id)
		}
	}
	s.mu.Unlock()
	return s.Delete(ctx, toDelete)
}

// Contains reports whether id exists.
func (s *Store) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	_, exists := s.idMap[id]
	return exists
}

// Count returns the number of live (non-orphaned) vectors.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0
	}
	return len(s.idMap)
}

// Stats reports graph-level bookkeeping, including how many nodes are
// orphaned by lazy deletion and so ripe for a future compaction pass.
type Stats struct {
	ValidIDs   int
	GraphNodes int
	Orphans    int
}

func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Stats{}
	}
	valid := len(s.idMap)
	nodes := s.graph.Len()
	return Stats{ValidIDs: valid, GraphNodes: nodes, Orphans: nodes - valid}
}

// Save persists the graph and ID mappings to path (+".meta"), atomically
// via temp file + rename.
func (s *Store) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return fmt.Errorf("vector store is closed")
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	}

	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	if err := s.graph.Export(file); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("export graph: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close index file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename index file: %w", err)
	}

	return s.saveMetadata(path + ".meta")
}

func (s *Store) saveMetadata(path string) error {
	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp metadata file: %w", err)
	}

	meta := storeMetadata{IDMap: s.idMap, NextKey: s.nextKey, Config: s.config}
	if err := gob.NewEncoder(file).Encode(meta); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close metadata file: %w", err)
	}
	return os.Rename(tmpPath, path)
}

// Load restores the graph and ID mappings from path (+".meta").
func (s *Store) Load(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("vector store is closed")
	}

	if err := s.loadMetadata(path + ".meta"); err != nil {
		return fmt.Errorf("load metadata: %w", err)
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open index file: %w", err)
	}
	defer file.Close()

	reader := bufio.NewReader(file)
	if err := s.graph.Import(reader); err != nil {
		return fmt.Errorf("import graph: %w", err)
	}
	return nil
}

func (s *Store) loadMetadata(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open metadata file: %w", err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			slog.Warn("vectorstore_metadata_close_failed", slog.String("error", err.Error()))
		}
	}()

	var meta storeMetadata
	if err := gob.NewDecoder(file).Decode(&meta); err != nil {
		return fmt.Errorf("decode metadata: %w", err)
	}

	s.idMap = meta.IDMap
	s.keyMap = make(map[uint64]string, len(meta.IDMap))
	s.nextKey = meta.NextKey
	s.config = meta.Config
	for id, key := range s.idMap {
		s.keyMap[key] = id
	}
	return nil
}

// Close releases resources. A closed store rejects further operations.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.graph = nil
	return nil
}

func normalizeInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}

// distanceToSimilarity converts a graph distance into the spec's
// similarity ∈ [-1,1] contract. Cosine distance (as coder/hnsw defines
// it) is 1 - cosine_similarity, ranging 0 (identical) to 2 (opposite),
// so similarity = 1 - distance falls directly in [-1,1]. L2 distance
// has no natural [-1,1] mapping, so it's squashed through 1/(1+d) and
// rescaled into the same range for a consistent contract across metrics.
func distanceToSimilarity(distance float32, metric string) float32 {
	if metric == "l2" {
		return 2.0/(1.0+distance) - 1.0
	}
	return 1.0 - distance
}
