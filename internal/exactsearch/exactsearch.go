// Package exactsearch implements a case-sensitive line-level substring
// matcher across a set of indexed files (C5 ExactSearcher).
package exactsearch

import (
	"sort"
	"strings"
	"sync"
)

// Match is a single exact hit.
type Match struct {
	FilePath    string
	LineNumber  int // 1-based
	LineContent string
}

// fileLines holds the line-split content of one indexed file.
type fileLines struct {
	filePath string
	lines    []string
}

// Searcher is a line-scan substring matcher. It holds a snapshot of
// every indexed file's lines, kept in sync by the Indexer on each
// per-file atomic update.
type Searcher struct {
	mu    sync.RWMutex
	files map[string]*fileLines
}

// New constructs an empty Searcher.
func New() *Searcher {
	return &Searcher{files: map[string]*fileLines{}}
}

// IndexFile replaces the line snapshot for filePath. Indexing a file
// that was already indexed atomically replaces its prior lines.
func (s *Searcher) IndexFile(filePath, content string) {
	lines := strings.Split(strings.TrimSuffix(content, "\n"), "\n")
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[filePath] = &fileLines{filePath: filePath, lines: lines}
}

// RemoveFile drops a file's line snapshot.
func (s *Searcher) RemoveFile(filePath string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.files, filePath)
}

// Clear removes every indexed file.
func (s *Searcher) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files = map[string]*fileLines{}
}

// Search finds every line containing query as a case-sensitive
// substring, ordered by (file_path, line_number) ascending, truncated
// to limit. An empty query matches nothing (callers are expected to
// reject empty queries upstream, but Search itself never panics on
// one).
func (s *Searcher) Search(query string, limit int) []Match {
	if query == "" || limit == 0 {
		return []Match{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []Match
	for _, f := range s.files {
		for i, line := range f.lines {
			if strings.Contains(line, query) {
				matches = append(matches, Match{
					FilePath:    f.filePath,
					LineNumber:  i + 1,
					LineContent: line,
				})
			}
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].FilePath != matches[j].FilePath {
			return matches[i].FilePath < matches[j].FilePath
		}
		return matches[i].LineNumber < matches[j].LineNumber
	})

	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}
