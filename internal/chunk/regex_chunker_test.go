package chunk

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegexChunkerCoversEveryLine(t *testing.T) {
	c := NewRegexChunker(5)
	content := "package main\n\nfunc A() {\n\treturn\n}\n\nfunc B() {\n\treturn\n}\n"
	chunks, err := c.Chunk(context.Background(), &FileInput{Path: "x.go", Content: []byte(content), Language: "go"})
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	var parts []string
	for _, ch := range chunks {
		parts = append(parts, ch.Content)
		assert.GreaterOrEqual(t, ch.EndLine, ch.StartLine)
	}
	reconstructed := strings.Join(parts, "\n")
	assert.Equal(t, strings.TrimSuffix(content, "\n"), reconstructed)
}

func TestRegexChunkerBreaksOnBoundary(t *testing.T) {
	c := NewRegexChunker(100)
	content := "package main\n\nfunc A() {\n\treturn\n}\n\nfunc B() {\n\treturn\n}\n"
	chunks, err := c.Chunk(context.Background(), &FileInput{Path: "x.go", Content: []byte(content), Language: "go"})
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(chunks), 2)
}

func TestRegexChunkerSizeCeiling(t *testing.T) {
	c := NewRegexChunker(3)
	var b strings.Builder
	for i := 0; i < 10; i++ {
		b.WriteString("x = 1\n")
	}
	chunks, err := c.Chunk(context.Background(), &FileInput{Path: "x.py", Content: []byte(b.String()), Language: "python"})
	require.NoError(t, err)
	for _, ch := range chunks {
		lineCount := ch.EndLine - ch.StartLine + 1
		assert.LessOrEqual(t, lineCount, 3)
	}
}

func TestRegexChunkerFirstLineNeverBreaks(t *testing.T) {
	c := NewRegexChunker(100)
	content := "func first() {\n\treturn\n}\n"
	chunks, err := c.Chunk(context.Background(), &FileInput{Path: "x.go", Content: []byte(content), Language: "go"})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, 1, chunks[0].StartLine)
}

func TestRegexChunkerEmptyInput(t *testing.T) {
	c := NewRegexChunker(100)
	chunks, err := c.Chunk(context.Background(), &FileInput{Path: "empty.go", Content: []byte(""), Language: "go"})
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestRegexChunkerIndexAssignment(t *testing.T) {
	c := NewRegexChunker(2)
	content := "a\nb\nc\nd\ne\nf\n"
	chunks, err := c.Chunk(context.Background(), &FileInput{Path: "x.txt", Content: []byte(content)})
	require.NoError(t, err)
	for i, ch := range chunks {
		assert.Equal(t, i, ch.ChunkIndex)
	}
}
