package indexer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embedsearch/embedsearch/internal/bm25"
	"github.com/embedsearch/embedsearch/internal/embed"
	"github.com/embedsearch/embedsearch/internal/exactsearch"
	"github.com/embedsearch/embedsearch/internal/symboldb"
	"github.com/embedsearch/embedsearch/internal/textindex"
	"github.com/embedsearch/embedsearch/internal/vectorstore"
)

func newTestIndexer(t *testing.T) *Indexer {
	t.Helper()
	bm25Index := bm25.New(bm25.DefaultConfig())
	textIdx, err := textindex.New("")
	require.NoError(t, err)
	vecStore, err := vectorstore.New(vectorstore.DefaultConfig(embed.StaticDimensions))
	require.NoError(t, err)
	symbolDB, err := symboldb.Open("")
	require.NoError(t, err)
	exactIdx := exactsearch.New()
	embedder := embed.NewStaticEmbedder()

	ix, err := New(bm25Index, textIdx, vecStore, embedder, symbolDB, exactIdx)
	require.NoError(t, err)
	t.Cleanup(ix.Close)
	return ix
}

const sampleGo = `package auth

func AuthenticateUser(username, password string) bool {
	return username != "" && password != ""
}

func HashPassword(password string) string {
	return password
}
`

func TestIndexFileDispatchesToAllBackends(t *testing.T) {
	ix := newTestIndexer(t)
	ctx := context.Background()

	require.NoError(t, ix.IndexFile(ctx, "auth.go", []byte(sampleGo), "go", 5))

	chunks := ix.ChunksForFile("auth.go")
	require.NotEmpty(t, chunks)

	bm25Matches, err := ix.bm25Index.Search("AuthenticateUser", 10)
	require.NoError(t, err)
	assert.NotEmpty(t, bm25Matches)

	textMatches, err := ix.textIndex.Search(ctx, "AuthenticateUser", 10)
	require.NoError(t, err)
	assert.NotEmpty(t, textMatches)

	symResults, err := ix.symbolDB.Search(ctx, "AuthenticateUser", 10)
	require.NoError(t, err)
	assert.NotEmpty(t, symResults)

	exactMatches := ix.exactIndex.Search("AuthenticateUser", 10)
	assert.NotEmpty(t, exactMatches)
}

func TestIndexFileReplacesShrunkFile(t *testing.T) {
	ix := newTestIndexer(t)
	ctx := context.Background()

	require.NoError(t, ix.IndexFile(ctx, "auth.go", []byte(sampleGo), "go", 3))
	firstCount := len(ix.ChunksForFile("auth.go"))
	require.Greater(t, firstCount, 1)

	shrunk := "package auth\n\nfunc AuthenticateUser(u, p string) bool { return true }\n"
	require.NoError(t, ix.IndexFile(ctx, "auth.go", []byte(shrunk), "go", 100))

	chunks := ix.ChunksForFile("auth.go")
	assert.Len(t, chunks, 1)

	// stale chunk indices from the longer version must be gone from bm25
	for i := 1; i < firstCount; i++ {
		matches, err := ix.bm25Index.Search("HashPassword", 10)
		require.NoError(t, err)
		assert.Empty(t, matches)
	}
}

func TestRemoveFileClearsAllBackends(t *testing.T) {
	ix := newTestIndexer(t)
	ctx := context.Background()

	require.NoError(t, ix.IndexFile(ctx, "auth.go", []byte(sampleGo), "go", 100))
	require.NoError(t, ix.RemoveFile(ctx, "auth.go"))

	assert.Empty(t, ix.ChunksForFile("auth.go"))
	assert.Equal(t, 0, ix.bm25Index.N())

	symResults, err := ix.symbolDB.Search(ctx, "AuthenticateUser", 10)
	require.NoError(t, err)
	assert.Empty(t, symResults)

	assert.Empty(t, ix.exactIndex.Search("AuthenticateUser", 10))
}

func TestIsTestFileHeuristic(t *testing.T) {
	assert.True(t, isTestFile("internal/foo/foo_test.go"))
	assert.True(t, isTestFile("tests/fixtures/sample.py"))
	assert.False(t, isTestFile("internal/foo/foo.go"))
}

func TestClearRemovesEveryTrackedFile(t *testing.T) {
	ix := newTestIndexer(t)
	ctx := context.Background()

	require.NoError(t, ix.IndexFile(ctx, "auth.go", []byte(sampleGo), "go", 100))
	require.NoError(t, ix.IndexFile(ctx, "db.go", []byte("package db\n\nfunc Connect() {}\n"), "go", 100))

	require.NoError(t, ix.Clear(ctx))

	assert.Equal(t, 0, ix.bm25Index.N())
	assert.Empty(t, ix.ChunksForFile("auth.go"))
	assert.Empty(t, ix.ChunksForFile("db.go"))
}
