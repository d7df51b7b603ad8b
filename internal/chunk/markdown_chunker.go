package chunk

import (
	"context"
	"regexp"
	"strings"
	"time"
)

// MarkdownTag is one of the chunk tags spec.md's Markdown mode assigns,
// checked in the priority order Header -> CodeBlock -> TaskList ->
// Table -> List -> Blockquote -> HorizontalRule -> Text.
type MarkdownTag string

const (
	TagHeader         MarkdownTag = "header"
	TagCodeBlock      MarkdownTag = "code_block"
	TagList           MarkdownTag = "list"
	TagTaskList       MarkdownTag = "task_list"
	TagTable          MarkdownTag = "table"
	TagBlockquote     MarkdownTag = "blockquote"
	TagHorizontalRule MarkdownTag = "horizontal_rule"
	TagText           MarkdownTag = "text"
)

var (
	atxHeaderPattern   = regexp.MustCompile(`^#{1,6}\s+.+$`)
	setextUnderlinePat = regexp.MustCompile(`^(=+|-+)\s*$`)
	horizontalRulePat  = regexp.MustCompile(`^\s*([-*_])\s*(\1\s*){2,}$`)
	fenceOpenPat       = regexp.MustCompile("^(```|~~~)")
	taskListPat        = regexp.MustCompile(`^\s*[-*+]\s+\[[ xX]\]\s+`)
	listPat            = regexp.MustCompile(`^\s*([-*+]|\d+[.)])\s+`)
	tableRowPat        = regexp.MustCompile(`^\s*\|.*\|\s*$`)
	blockquotePat      = regexp.MustCompile(`^\s*>`)
)

// MarkdownChunker implements the Markdown mode described in spec
// section 4.1: boundaries are ATX headers, Setext underlines,
// horizontal rules, and fence openings, with fenced code blocks
// absorbed whole regardless of chunk_size_target.
type MarkdownChunker struct {
	chunkSizeTarget int
}

// NewMarkdownChunker constructs a Markdown chunker with the spec
// default chunk_size_target.
func NewMarkdownChunker() *MarkdownChunker {
	return NewMarkdownChunkerWithSize(DefaultChunkSizeTarget)
}

// NewMarkdownChunkerWithSize constructs a Markdown chunker with an
// explicit chunk_size_target.
func NewMarkdownChunkerWithSize(chunkSizeTarget int) *MarkdownChunker {
	if chunkSizeTarget <= 0 {
		chunkSizeTarget = DefaultChunkSizeTarget
	}
	return &MarkdownChunker{chunkSizeTarget: chunkSizeTarget}
}

// SupportedExtensions returns the file extensions this chunker handles.
func (c *MarkdownChunker) SupportedExtensions() []string {
	return []string{".md", ".markdown", ".mdx"}
}

// Chunk splits a markdown file into tagged chunks.
func (c *MarkdownChunker) Chunk(_ context.Context, file *FileInput) ([]*Chunk, error) {
	lines := splitLinesPreserving(string(file.Content))
	if len(lines) == 0 {
		return []*Chunk{}, nil
	}

	now := time.Now()
	var chunks []*Chunk
	var current []string
	currentStart := 1
	inFence := false
	var fenceMarker string

	flush := func(endLine int) {
		if len(current) == 0 {
			return
		}
		content := strings.Join(current, "\n")
		tag := classifyMarkdownChunk(current)
		chunks = append(chunks, &Chunk{
			ID:          generateChunkID(file.Path, content),
			FilePath:    file.Path,
			Content:     content,
			RawContent:  content,
			ContentType: ContentTypeMarkdown,
			Language:    "markdown",
			StartLine:   currentStart,
			EndLine:     endLine,
			ChunkIndex:  len(chunks),
			Metadata:    map[string]string{"tag": string(tag)},
			CreatedAt:   now,
			UpdatedAt:   now,
		})
		current = nil
	}

	for i := 0; i < len(lines); i++ {
		line := lines[i]
		lineNum := i + 1

		if inFence {
			current = append(current, line)
			if strings.HasPrefix(strings.TrimSpace(line), fenceMarker) {
				inFence = false
				flush(lineNum)
				currentStart = lineNum + 1
			}
			continue
		}

		isBoundary := lineNum > 1 && len(current) > 0 && isMarkdownBoundary(lines, i)
		if isBoundary {
			flush(lineNum - 1)
			currentStart = lineNum
		}

		if m := fenceOpenPat.FindString(strings.TrimSpace(line)); m != "" && len(current) <= 1 {
			inFence = true
			fenceMarker = m
			current = append(current, line)
			continue
		}

		current = append(current, line)

		if !inFence && len(current) >= c.chunkSizeTarget {
			flush(lineNum)
			currentStart = lineNum + 1
		}
	}
	flush(len(lines))

	return chunks, nil
}

// isMarkdownBoundary reports whether the line at index i starts a new
// chunk: an ATX header, a Setext underline belonging to the previous
// line, a horizontal rule, or a fence opening.
func isMarkdownBoundary(lines []string, i int) bool {
	line := lines[i]
	if atxHeaderPattern.MatchString(line) {
		return true
	}
	if horizontalRulePat.MatchString(line) {
		return true
	}
	if strings.TrimSpace(fenceOpenPat.FindString(strings.TrimSpace(line))) != "" {
		return true
	}
	if i+1 < len(lines) && setextUnderlinePat.MatchString(lines[i+1]) && strings.TrimSpace(line) != "" {
		return true
	}
	return false
}

// classifyMarkdownChunk tags a chunk's content by inspecting its first
// (and for Setext, first+second) line against the tag-specific
// patterns, in priority order Header -> CodeBlock -> TaskList -> Table
// -> List -> Blockquote -> HorizontalRule -> Text. TaskList is checked
// before List because every task-list line also matches the list pattern.
func classifyMarkdownChunk(lines []string) MarkdownTag {
	if len(lines) == 0 {
		return TagText
	}
	first := lines[0]
	second := ""
	if len(lines) > 1 {
		second = lines[1]
	}

	switch {
	case atxHeaderPattern.MatchString(first):
		return TagHeader
	case setextUnderlinePat.MatchString(second) && strings.TrimSpace(first) != "":
		return TagHeader
	case fenceOpenPat.MatchString(strings.TrimSpace(first)):
		return TagCodeBlock
	case taskListPat.MatchString(first):
		return TagTaskList
	case tableRowPat.MatchString(first):
		return TagTable
	case listPat.MatchString(first):
		return TagList
	case blockquotePat.MatchString(first):
		return TagBlockquote
	case horizontalRulePat.MatchString(first):
		return TagHorizontalRule
	default:
		return TagText
	}
}

var _ Chunker = (*MarkdownChunker)(nil)
