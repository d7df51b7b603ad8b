// Package fusion merges the up-to-four ranked lists produced by the
// Exact, Statistical (BM25), Semantic, and Symbol tracks into a single
// ordering under strict score-validity, normalization, and
// deduplication rules.
package fusion

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	aerrors "github.com/embedsearch/embedsearch/internal/errors"
)

// MatchType identifies which track produced a result.
type MatchType string

const (
	MatchExact       MatchType = "exact"
	MatchSymbol      MatchType = "symbol"
	MatchStatistical MatchType = "statistical"
	MatchSemantic    MatchType = "semantic"
)

// priority orders match types for tie-breaking and deduplication:
// Exact > Symbol > Statistical > Semantic (lower number wins).
var priority = map[MatchType]int{
	MatchExact:       0,
	MatchSymbol:      1,
	MatchStatistical: 2,
	MatchSemantic:    3,
}

// MaxResults is the hard cap on fused output length.
const MaxResults = 20

// Weights are the per-track combination weights. Present tracks are
// combined as a weighted sum divided by the sum of present weights, so
// a single-track hit keeps its normalized score.
type Weights struct {
	Exact    float64
	BM25     float64
	Semantic float64
	Symbol   float64
}

// DefaultWeights returns the spec's default fusion weights.
func DefaultWeights() Weights {
	return Weights{Exact: 0.4, BM25: 0.25, Semantic: 0.25, Symbol: 0.1}
}

// ExactRecord is one raw result from the ExactSearcher track.
type ExactRecord struct {
	FilePath   string
	LineNumber int
	Content    string
	StartLine  int
	EndLine    int
}

// BM25Record is one raw result from the BM25Index track. DocID must be
// of the form "file_path#chunk_index".
type BM25Record struct {
	DocID     string
	Score     float32
	StartLine int
	EndLine   int
}

// SemanticRecord is one raw result from the VectorStore track.
type SemanticRecord struct {
	FilePath   string
	ChunkIndex int
	Similarity *float32 // nil means the field was absent (hard error)
	StartLine  int
	EndLine    int
}

// SymbolRecord is one raw result from the SymbolDatabase track.
type SymbolRecord struct {
	FilePath   string
	ChunkIndex int
	StartLine  int
	EndLine    int
	Content    string
}

// Result is one fused, deduplicated, normalized ranking entry.
type Result struct {
	FilePath   string
	LineNumber *int
	ChunkIndex *int
	Score      float64
	MatchType  MatchType
	Content    string
	StartLine  int
	EndLine    int
}

// key identifies a result for deduplication: (file_path, line_number
// or chunk_index).
type key struct {
	filePath string
	line     int
	useLine  bool
	chunk    int
}

func keyFor(filePath string, line *int, chunk *int) key {
	if line != nil {
		return key{filePath: filePath, line: *line, useLine: true}
	}
	c := 0
	if chunk != nil {
		c = *chunk
	}
	return key{filePath: filePath, chunk: c}
}

// entry accumulates normalized per-track scores for a single key
// before the weighted combination is computed.
type entry struct {
	filePath   string
	lineNumber *int
	chunkIndex *int
	startLine  int
	endLine    int
	content    string

	// firstSeen records which track produced the first occurrence,
	// per the Exact -> Symbol -> Statistical -> Semantic priority
	// order, for deduplication and tie-breaking purposes.
	firstSeen MatchType

	normalized map[MatchType]float64
}

// Fuse merges up to four ranked lists into a single ordering. Any
// input score that is NaN or infinite fails with CorruptedData. Any
// BM25 doc_id that fails to parse fails with InvalidDocId. Any
// semantic record missing Similarity fails with MissingSimilarityScore.
func Fuse(exact []ExactRecord, bm25 []BM25Record, semantic []SemanticRecord, symbol []SymbolRecord, weights Weights) ([]Result, error) {
	entries := map[key]*entry{}

	order := func(k key, filePath string, line *int, chunk *int, startLine, endLine int, content string, mt MatchType) *entry {
		e, ok := entries[k]
		if !ok {
			e = &entry{
				filePath:   filePath,
				lineNumber: line,
				chunkIndex: chunk,
				startLine:  startLine,
				endLine:    endLine,
				content:    content,
				firstSeen:  mt,
				normalized: map[MatchType]float64{},
			}
			entries[k] = e
		}
		return e
	}

	// Exact -> fixed 1.0.
	for _, r := range exact {
		if err := checkFinite(float64(1.0), "exact", r.FilePath); err != nil {
			return nil, err
		}
		line := r.LineNumber
		k := keyFor(r.FilePath, &line, nil)
		e := order(k, r.FilePath, &line, nil, r.StartLine, r.EndLine, r.Content, MatchExact)
		e.normalized[MatchExact] = 1.0
	}

	// Symbol -> fixed 0.95.
	for _, r := range symbol {
		if err := checkFinite(0.95, "symbol", r.FilePath); err != nil {
			return nil, err
		}
		chunk := r.ChunkIndex
		k := keyFor(r.FilePath, nil, &chunk)
		e := order(k, r.FilePath, nil, &chunk, r.StartLine, r.EndLine, r.Content, MatchSymbol)
		e.normalized[MatchSymbol] = 0.95
	}

	// Statistical (BM25) -> min(raw/20.0, 1.0) * 0.9.
	for _, r := range bm25 {
		if math.IsNaN(float64(r.Score)) || math.IsInf(float64(r.Score), 0) {
			return nil, aerrors.CorruptedData(fmt.Sprintf("bm25 score for %s is not finite", r.DocID))
		}
		filePath, chunkIndex, err := parseDocID(r.DocID)
		if err != nil {
			return nil, err
		}
		normalized := math.Min(float64(r.Score)/20.0, 1.0) * 0.9
		chunk := chunkIndex
		k := keyFor(filePath, nil, &chunk)
		e := order(k, filePath, nil, &chunk, r.StartLine, r.EndLine, "", MatchStatistical)
		e.normalized[MatchStatistical] = normalized
	}

	// Semantic -> max(0, similarity) * 0.7.
	for _, r := range semantic {
		if r.Similarity == nil {
			return nil, aerrors.MissingSimilarityScore(r.FilePath, r.ChunkIndex)
		}
		sim := float64(*r.Similarity)
		if math.IsNaN(sim) || math.IsInf(sim, 0) {
			return nil, aerrors.CorruptedData(fmt.Sprintf("semantic similarity for %s is not finite", r.FilePath))
		}
		normalized := math.Max(0, sim) * 0.7
		chunk := r.ChunkIndex
		k := keyFor(r.FilePath, nil, &chunk)
		e := order(k, r.FilePath, nil, &chunk, r.StartLine, r.EndLine, "", MatchSemantic)
		e.normalized[MatchSemantic] = normalized
	}

	results := make([]Result, 0, len(entries))
	for _, e := range entries {
		score, mt := combine(e, weights)
		results = append(results, Result{
			FilePath:   e.filePath,
			LineNumber: e.lineNumber,
			ChunkIndex: e.chunkIndex,
			Score:      score,
			MatchType:  mt,
			Content:    e.content,
			StartLine:  e.startLine,
			EndLine:    e.endLine,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		pi, pj := priority[results[i].MatchType], priority[results[j].MatchType]
		if pi != pj {
			return pi < pj
		}
		if results[i].FilePath != results[j].FilePath {
			return results[i].FilePath < results[j].FilePath
		}
		return results[i].StartLine < results[j].StartLine
	})

	if len(results) > MaxResults {
		results = results[:MaxResults]
	}
	return results, nil
}

// combine computes the weighted-sum score across present tracks for
// an entry, dividing by the sum of present weights so a single-track
// hit keeps its normalized score, and reports the match type of the
// first-seen track in priority order for dedup/tie-break purposes.
func combine(e *entry, w Weights) (float64, MatchType) {
	var sum, weightSum float64
	for mt, norm := range e.normalized {
		weight := trackWeight(mt, w)
		sum += norm * weight
		weightSum += weight
	}
	if weightSum == 0 {
		return 0, e.firstSeen
	}
	return sum / weightSum, e.firstSeen
}

func trackWeight(mt MatchType, w Weights) float64 {
	switch mt {
	case MatchExact:
		return w.Exact
	case MatchStatistical:
		return w.BM25
	case MatchSemantic:
		return w.Semantic
	case MatchSymbol:
		return w.Symbol
	default:
		return 0
	}
}

func checkFinite(score float64, track, filePath string) error {
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return aerrors.CorruptedData(fmt.Sprintf("%s score for %s is not finite", track, filePath))
	}
	return nil
}

// parseDocID splits "file_path#chunk_index", failing with InvalidDocId
// on malformed input.
func parseDocID(docID string) (string, int, error) {
	for i := len(docID) - 1; i >= 0; i-- {
		if docID[i] == '#' {
			filePath := docID[:i]
			chunkStr := docID[i+1:]
			if filePath == "" {
				return "", 0, aerrors.InvalidDocID(docID)
			}
			chunkIndex, err := strconv.Atoi(chunkStr)
			if err != nil {
				return "", 0, aerrors.InvalidDocID(docID)
			}
			return filePath, chunkIndex, nil
		}
	}
	return "", 0, aerrors.InvalidDocID(docID)
}
