// Package bm25 implements an in-memory inverted index with Okapi BM25
// scoring. Unlike the project's TextIndex capability (backed by an
// external full-text library), this index keeps its postings, document
// registry, and length aggregates directly inspectable so the exact
// Robertson IDF and TF-saturation math required of it stay testable.
package bm25

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"

	aerrors "github.com/embedsearch/embedsearch/internal/errors"
	"github.com/embedsearch/embedsearch/internal/tokenize"
)

// Document is a single indexed unit. ID must be unique across the
// index and takes the form "file_path#chunk_index".
type Document struct {
	ID         string
	FilePath   string
	ChunkIndex int
	Tokens     []tokenize.Token
	StartLine  int
	EndLine    int
	Language   string
}

// posting records one document's contribution to a single term.
type posting struct {
	docID               string
	termFrequency       int
	sumImportanceWeight float32
}

// Config holds the BM25 hyperparameters and tokenizer settings.
type Config struct {
	K1            float32
	B             float32
	MinTermLength int
	MaxTermLength int
	StopWords     []string
}

// DefaultConfig returns the spec's default BM25 parameters.
func DefaultConfig() Config {
	return Config{
		K1:            1.2,
		B:             0.75,
		MinTermLength: 2,
		MaxTermLength: 50,
		StopWords:     tokenize.DefaultStopWords,
	}
}

// Match is one scored result from Search.
type Match struct {
	DocID        string
	Score        float32
	MatchedTerms []string
	TermScores   map[string]float32
}

// Index is the in-memory BM25 inverted index described by spec
// section 3 ("BM25Index state") and section 4.4.
type Index struct {
	mu sync.RWMutex

	postings   map[string][]posting
	docLengths map[string]int
	documents  map[string]*Document

	avgdl float64

	k1 float32
	b  float32

	tokenizer *tokenize.Tokenizer
}

// New constructs an empty index with the given configuration.
func New(cfg Config) *Index {
	return &Index{
		postings:   make(map[string][]posting),
		docLengths: make(map[string]int),
		documents:  make(map[string]*Document),
		k1:         cfg.K1,
		b:          cfg.B,
		tokenizer: tokenize.New(tokenize.Config{
			MinTermLength: cfg.MinTermLength,
			MaxTermLength: cfg.MaxTermLength,
			StopWords:     tokenize.BuildStopWordMap(cfg.StopWords),
		}),
	}
}

// N returns the number of documents currently indexed.
func (idx *Index) N() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.documents)
}

// AvgDL returns the current mean document length.
func (idx *Index) AvgDL() float64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.avgdl
}

// AddDocument indexes doc, updating postings, doc_lengths, documents,
// and recomputing avgdl to the exact new mean. Fails with
// EmptyDocument if doc.Tokens is empty.
func (idx *Index) AddDocument(doc *Document) error {
	if len(doc.Tokens) == 0 {
		return aerrors.EmptyDocument(doc.ID)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, exists := idx.documents[doc.ID]; exists {
		idx.removeLocked(doc.ID)
	}

	termAgg := map[string]*posting{}
	length := 0
	for _, tok := range doc.Tokens {
		p, ok := termAgg[tok.Text]
		if !ok {
			p = &posting{docID: doc.ID}
			termAgg[tok.Text] = p
		}
		p.termFrequency++
		p.sumImportanceWeight += tok.ImportanceWeight
		length++
	}

	for term, p := range termAgg {
		idx.postings[term] = append(idx.postings[term], *p)
	}

	idx.documents[doc.ID] = doc
	idx.docLengths[doc.ID] = length
	idx.recomputeAvgDL()

	return nil
}

// RemoveDocument removes doc_id from the index. Fails with
// UnknownDocument if it isn't present.
func (idx *Index) RemoveDocument(docID string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, exists := idx.documents[docID]; !exists {
		return aerrors.UnknownDocument(docID)
	}
	idx.removeLocked(docID)
	idx.recomputeAvgDL()
	return nil
}

// removeLocked removes a document's postings and registry entry.
// Caller must hold idx.mu.
func (idx *Index) removeLocked(docID string) {
	delete(idx.documents, docID)
	delete(idx.docLengths, docID)
	for term, plist := range idx.postings {
		filtered := plist[:0]
		for _, p := range plist {
			if p.docID != docID {
				filtered = append(filtered, p)
			}
		}
		if len(filtered) == 0 {
			delete(idx.postings, term)
		} else {
			idx.postings[term] = filtered
		}
	}
}

// recomputeAvgDL recomputes avgdl to the exact mean. Caller must hold
// idx.mu.
func (idx *Index) recomputeAvgDL() {
	if len(idx.docLengths) == 0 {
		idx.avgdl = 0
		return
	}
	var sum int
	for _, l := range idx.docLengths {
		sum += l
	}
	idx.avgdl = float64(sum) / float64(len(idx.docLengths))
}

// CalculateIDF returns the Robertson-smoothed inverse document
// frequency for term: ln(1 + (N - df + 0.5) / (df + 0.5)). The
// function is total: terms absent from the index are scored as if
// df = 0.
func (idx *Index) CalculateIDF(term string) float32 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.calculateIDFLocked(term)
}

func (idx *Index) calculateIDFLocked(term string) float32 {
	n := float64(len(idx.documents))
	df := float64(len(idx.postings[term]))
	return float32(math.Log(1 + (n-df+0.5)/(df+0.5)))
}

// CalculateBM25Score computes the BM25 score of docID against
// queryTerms: the sum over query terms of
// idf(t) * ((k1+1)*tf_eff) / (tf_eff + k1*(1 - b + b*(dl/avgdl))),
// where tf_eff is the document's summed importance_weight for t.
func (idx *Index) CalculateBM25Score(queryTerms []string, docID string) float32 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.scoreLocked(queryTerms, docID, nil)
}

// scoreLocked computes the score and, if breakdown is non-nil,
// populates it with the per-term contribution. Caller must hold
// idx.mu (read lock is sufficient).
func (idx *Index) scoreLocked(queryTerms []string, docID string, breakdown map[string]float32) float32 {
	dl, ok := idx.docLengths[docID]
	if !ok {
		return 0
	}
	avgdl := idx.avgdl
	if avgdl == 0 {
		avgdl = float64(dl)
	}

	var total float32
	for _, term := range queryTerms {
		tfEff := idx.tfEffLocked(term, docID)
		if tfEff == 0 {
			continue
		}
		idf := idx.calculateIDFLocked(term)
		numerator := (idx.k1 + 1) * tfEff
		denominator := tfEff + idx.k1*float32(1-float64(idx.b)+float64(idx.b)*(float64(dl)/avgdl))
		contribution := idf * numerator / denominator
		total += contribution
		if breakdown != nil {
			breakdown[term] += contribution
		}
	}
	return total
}

func (idx *Index) tfEffLocked(term, docID string) float32 {
	for _, p := range idx.postings[term] {
		if p.docID == docID {
			return p.sumImportanceWeight
		}
	}
	return 0
}

// Search tokenizes query with the index's own tokenizer, rejects
// empty/whitespace-only queries with EmptyQuery, scores only documents
// containing at least one query term, sorts descending by score with a
// stable tie-break on doc_id, and truncates to limit.
func (idx *Index) Search(query string, limit int) ([]Match, error) {
	if strings.TrimSpace(query) == "" {
		return nil, aerrors.EmptyQuery()
	}
	if limit == 0 {
		return []Match{}, nil
	}

	queryTokens := idx.tokenizer.Tokenize(query, "")
	terms := make([]string, 0, len(queryTokens))
	termSet := map[string]struct{}{}
	for _, t := range queryTokens {
		if _, ok := termSet[t.Text]; !ok {
			termSet[t.Text] = struct{}{}
			terms = append(terms, t.Text)
		}
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	candidates := map[string]struct{}{}
	for _, term := range terms {
		for _, p := range idx.postings[term] {
			candidates[p.docID] = struct{}{}
		}
	}

	matches := make([]Match, 0, len(candidates))
	for docID := range candidates {
		breakdown := map[string]float32{}
		score := idx.scoreLocked(terms, docID, breakdown)
		var matched []string
		for term := range breakdown {
			matched = append(matched, term)
		}
		sort.Strings(matched)
		matches = append(matches, Match{DocID: docID, Score: score, MatchedTerms: matched, TermScores: breakdown})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].DocID < matches[j].DocID
	})

	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// Stats summarizes the index's size for status reporting.
type Stats struct {
	DocumentCount int
	TermCount     int
	AvgDocLength  float64
}

// Stats returns the current index statistics.
func (idx *Index) Stats() Stats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return Stats{
		DocumentCount: len(idx.documents),
		TermCount:     len(idx.postings),
		AvgDocLength:  idx.avgdl,
	}
}

// ParseDocID splits a BM25 doc_id of the form "file_path#chunk_index".
func ParseDocID(docID string) (filePath string, chunkIndex int, err error) {
	idxSep := strings.LastIndex(docID, "#")
	if idxSep < 0 {
		return "", 0, aerrors.InvalidDocID(docID)
	}
	filePath = docID[:idxSep]
	chunkStr := docID[idxSep+1:]
	chunkIndex, convErr := strconv.Atoi(chunkStr)
	if convErr != nil || filePath == "" {
		return "", 0, aerrors.InvalidDocID(docID)
	}
	return filePath, chunkIndex, nil
}

// FormatDocID builds the canonical doc_id for (filePath, chunkIndex).
func FormatDocID(filePath string, chunkIndex int) string {
	return fmt.Sprintf("%s#%d", filePath, chunkIndex)
}
