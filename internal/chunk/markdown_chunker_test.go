package chunk

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkdownChunkerCoversEveryLine(t *testing.T) {
	c := NewMarkdownChunker()
	content := "# Title\n\nSome text.\n\n## Section\n\nMore text.\n"
	chunks, err := c.Chunk(context.Background(), &FileInput{Path: "README.md", Content: []byte(content)})
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	var parts []string
	for _, ch := range chunks {
		parts = append(parts, ch.Content)
	}
	assert.Equal(t, strings.TrimSuffix(content, "\n"), strings.Join(parts, "\n"))
}

func TestMarkdownChunkerTagsHeader(t *testing.T) {
	c := NewMarkdownChunker()
	content := "# Authentication\n\nSome body text.\n"
	chunks, err := c.Chunk(context.Background(), &FileInput{Path: "README.md", Content: []byte(content)})
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	assert.Equal(t, string(TagHeader), chunks[0].Metadata["tag"])
}

func TestMarkdownChunkerFencedCodeBlockNeverSplitsMidFence(t *testing.T) {
	c := NewMarkdownChunkerWithSize(2)
	content := "# Title\n\n```go\nline1\nline2\nline3\nline4\n```\n\nAfter.\n"
	chunks, err := c.Chunk(context.Background(), &FileInput{Path: "README.md", Content: []byte(content)})
	require.NoError(t, err)

	var codeChunk *Chunk
	for _, ch := range chunks {
		if ch.Metadata["tag"] == string(TagCodeBlock) {
			codeChunk = ch
		}
	}
	require.NotNil(t, codeChunk)
	assert.True(t, strings.HasPrefix(strings.TrimSpace(strings.Split(codeChunk.Content, "\n")[0]), "```"))
	assert.Contains(t, codeChunk.Content, "line1")
	assert.Contains(t, codeChunk.Content, "line4")
}

func TestMarkdownChunkerHorizontalRule(t *testing.T) {
	c := NewMarkdownChunker()
	content := "Para one.\n\n---\n\nPara two.\n"
	chunks, err := c.Chunk(context.Background(), &FileInput{Path: "x.md", Content: []byte(content)})
	require.NoError(t, err)
	var found bool
	for _, ch := range chunks {
		if ch.Metadata["tag"] == string(TagHorizontalRule) {
			found = true
		}
	}
	assert.True(t, found)
}

func TestMarkdownChunkerTaskList(t *testing.T) {
	c := NewMarkdownChunker()
	content := "# Todo\n\n- [ ] one\n- [x] two\n"
	chunks, err := c.Chunk(context.Background(), &FileInput{Path: "x.md", Content: []byte(content)})
	require.NoError(t, err)
	var found bool
	for _, ch := range chunks {
		if ch.Metadata["tag"] == string(TagTaskList) {
			found = true
		}
	}
	assert.True(t, found)
}

func TestMarkdownChunkerEmptyInput(t *testing.T) {
	c := NewMarkdownChunker()
	chunks, err := c.Chunk(context.Background(), &FileInput{Path: "empty.md", Content: []byte("")})
	require.NoError(t, err)
	assert.Empty(t, chunks)
}
