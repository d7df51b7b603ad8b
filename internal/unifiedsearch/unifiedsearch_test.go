package unifiedsearch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embedsearch/embedsearch/internal/bm25"
	"github.com/embedsearch/embedsearch/internal/embed"
	"github.com/embedsearch/embedsearch/internal/exactsearch"
	"github.com/embedsearch/embedsearch/internal/indexer"
	"github.com/embedsearch/embedsearch/internal/symboldb"
	"github.com/embedsearch/embedsearch/internal/textindex"
	"github.com/embedsearch/embedsearch/internal/vectorstore"
)

const sampleAuthGo = `package auth

func AuthenticateUser(username, password string) bool {
	return username != "" && password != ""
}

func HashPassword(password string) string {
	return password
}
`

func newTestSearcher(t *testing.T) (*UnifiedSearcher, *indexer.Indexer) {
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

	ix, err := indexer.New(bm25Index, textIdx, vecStore, embedder, symbolDB, exactIdx)
	require.NoError(t, err)
	t.Cleanup(ix.Close)

	us, err := New(ix, Config{
		Exact:    exactIdx,
		BM25:     bm25Index,
		Text:     textIdx,
		Vector:   vecStore,
		Embedder: embedder,
		Symbols:  symbolDB,
	})
	require.NoError(t, err)
	return us, ix
}

func TestSearchEmptyQueryReturnsEmptySlice(t *testing.T) {
	us, _ := newTestSearcher(t)
	results, err := us.Search(context.Background(), "   ", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchFindsExactHitWithContext(t *testing.T) {
	us, ix := newTestSearcher(t)
	ctx := context.Background()
	require.NoError(t, ix.IndexFile(ctx, "auth.go", []byte(sampleAuthGo), "go", 3))

	results, err := us.Search(ctx, "AuthenticateUser", 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "auth.go", results[0].FilePath)
}

func TestSearchCacheIsInvalidatedByClearIndex(t *testing.T) {
	us, ix := newTestSearcher(t)
	ctx := context.Background()
	require.NoError(t, ix.IndexFile(ctx, "auth.go", []byte(sampleAuthGo), "go", 3))

	first, err := us.Search(ctx, "AuthenticateUser", 10)
	require.NoError(t, err)
	require.NotEmpty(t, first)

	require.NoError(t, us.ClearIndex(ctx))

	second, err := us.Search(ctx, "AuthenticateUser", 10)
	require.NoError(t, err)
	assert.Empty(t, second)
}

func TestSearchRespectsLimit(t *testing.T) {
	us, ix := newTestSearcher(t)
	ctx := context.Background()
	require.NoError(t, ix.IndexFile(ctx, "auth.go", []byte(sampleAuthGo), "go", 1))

	results, err := us.Search(ctx, "password", 1)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(results), 1)
}
