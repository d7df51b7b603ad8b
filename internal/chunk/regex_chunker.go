package chunk

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// boundaryPatterns are the semantic-boundary regular expressions a
// line must match to start a new chunk: function, class, struct,
// trait, enum, interface, or module-header declarations across the
// supported languages (Rust, Python, JavaScript/TypeScript, Go,
// Java/C#, C++, SQL).
var boundaryPatterns = []*regexp.Regexp{
	// Go
	regexp.MustCompile(`^\s*func\s+`),
	regexp.MustCompile(`^\s*type\s+\w+\s+(struct|interface)\b`),
	// Rust
	regexp.MustCompile(`^\s*(pub\s+)?fn\s+`),
	regexp.MustCompile(`^\s*(pub\s+)?struct\s+`),
	regexp.MustCompile(`^\s*(pub\s+)?enum\s+`),
	regexp.MustCompile(`^\s*(pub\s+)?trait\s+`),
	regexp.MustCompile(`^\s*(pub\s+)?impl\b`),
	regexp.MustCompile(`^\s*mod\s+\w+`),
	// Python
	regexp.MustCompile(`^\s*(async\s+)?def\s+`),
	regexp.MustCompile(`^\s*class\s+`),
	// JavaScript / TypeScript
	regexp.MustCompile(`^\s*(export\s+)?(default\s+)?(async\s+)?function\s*\*?\s*\w*\s*\(`),
	regexp.MustCompile(`^\s*(export\s+)?(default\s+)?class\s+`),
	regexp.MustCompile(`^\s*(export\s+)?interface\s+`),
	regexp.MustCompile(`^\s*(export\s+)?(type|enum)\s+\w+`),
	// Java / C#
	regexp.MustCompile(`^\s*(public|private|protected|internal)\s+(static\s+)?(class|interface|enum|struct)\s+`),
	regexp.MustCompile(`^\s*(public|private|protected|internal)\s+.*\)\s*\{?\s*$`),
	// C++
	regexp.MustCompile(`^\s*(class|struct|namespace)\s+\w+`),
	regexp.MustCompile(`^\s*template\s*<`),
	// SQL
	regexp.MustCompile(`(?i)^\s*create\s+(or\s+replace\s+)?(table|view|function|procedure|trigger)\s+`),
}

// DefaultChunkSizeTarget is the default line-count ceiling per chunk.
const DefaultChunkSizeTarget = 100

// RegexChunker splits source files into chunks using a fixed set of
// semantic-boundary regular expressions combined with a hard
// line-count ceiling, per spec section 4.1. It never fails on valid
// UTF-8 input.
type RegexChunker struct {
	chunkSizeTarget int
}

// NewRegexChunker constructs a chunker with the given chunk_size_target
// (lines per chunk ceiling). A non-positive value falls back to
// DefaultChunkSizeTarget.
func NewRegexChunker(chunkSizeTarget int) *RegexChunker {
	if chunkSizeTarget <= 0 {
		chunkSizeTarget = DefaultChunkSizeTarget
	}
	return &RegexChunker{chunkSizeTarget: chunkSizeTarget}
}

// SupportedExtensions lists the languages the boundary patterns target.
func (c *RegexChunker) SupportedExtensions() []string {
	return []string{".go", ".rs", ".py", ".js", ".jsx", ".ts", ".tsx", ".java", ".cs", ".cpp", ".cc", ".h", ".hpp", ".sql"}
}

// Chunk splits file.Content into ordered, line-bounded chunks. The
// output covers every line of the input exactly once: chunks partition
// the file's lines contiguously with no gaps and no overlap.
func (c *RegexChunker) Chunk(_ context.Context, file *FileInput) ([]*Chunk, error) {
	lines := splitLinesPreserving(string(file.Content))
	if len(lines) == 0 {
		return []*Chunk{}, nil
	}

	now := time.Now()
	var chunks []*Chunk
	var current []string
	currentStart := 1 // 1-based

	flush := func(endLine int) {
		if len(current) == 0 {
			return
		}
		content := strings.Join(current, "\n")
		chunks = append(chunks, &Chunk{
			ID:          generateChunkID(file.Path, content),
			FilePath:    file.Path,
			Content:     content,
			RawContent:  content,
			ContentType: ContentTypeCode,
			Language:    file.Language,
			StartLine:   currentStart,
			EndLine:     endLine,
			ChunkIndex:  len(chunks),
			CreatedAt:   now,
			UpdatedAt:   now,
		})
		current = nil
	}

	for i, line := range lines {
		lineNum := i + 1

		// The first line never induces a break: there is nothing above it.
		if lineNum > 1 && len(current) > 0 && matchesBoundary(line) {
			flush(lineNum - 1)
			currentStart = lineNum
		}

		current = append(current, line)

		if len(current) >= c.chunkSizeTarget {
			flush(lineNum)
			currentStart = lineNum + 1
		}
	}
	flush(len(lines))

	return chunks, nil
}

// matchesBoundary reports whether line matches any semantic-boundary
// pattern.
func matchesBoundary(line string) bool {
	for _, re := range boundaryPatterns {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

// splitLinesPreserving splits content into lines without the trailing
// newline, matching the "modulo a final newline" coverage invariant:
// joining the result with "\n" reproduces content up to a possible
// trailing newline.
func splitLinesPreserving(content string) []string {
	if content == "" {
		return nil
	}
	trimmed := strings.TrimSuffix(content, "\n")
	return strings.Split(trimmed, "\n")
}

// generateChunkID derives a stable, content-addressable chunk ID from
// the file path and chunk content so identity survives line-number
// shifts elsewhere in the file.
func generateChunkID(filePath, content string) string {
	contentHash := sha256.Sum256([]byte(content))
	contentHashStr := hex.EncodeToString(contentHash[:])[:16]
	input := fmt.Sprintf("%s:%s", filePath, contentHashStr)
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:])[:16]
}

var _ Chunker = (*RegexChunker)(nil)
