package mcp

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embedsearch/embedsearch/internal/bm25"
	"github.com/embedsearch/embedsearch/internal/config"
	"github.com/embedsearch/embedsearch/internal/embed"
	"github.com/embedsearch/embedsearch/internal/exactsearch"
	"github.com/embedsearch/embedsearch/internal/indexer"
	"github.com/embedsearch/embedsearch/internal/orchestrator"
	"github.com/embedsearch/embedsearch/internal/symboldb"
	"github.com/embedsearch/embedsearch/internal/textindex"
	"github.com/embedsearch/embedsearch/internal/unifiedsearch"
	"github.com/embedsearch/embedsearch/internal/vectorstore"
)

const sampleGo = `package auth

func AuthenticateUser(username, password string) bool {
	return username != "" && password != ""
}
`

func newTestServer(t *testing.T) (*Server, *indexer.Indexer) {
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

	us, err := unifiedsearch.New(ix, unifiedsearch.Config{
		Exact:    exactIdx,
		BM25:     bm25Index,
		Text:     textIdx,
		Vector:   vecStore,
		Embedder: embedder,
		Symbols:  symbolDB,
	})
	require.NoError(t, err)

	orch := orchestrator.New(us, orchestrator.DefaultConfig())
	srv := NewServer(orch, ix, embedder, config.New())
	t.Cleanup(srv.Close)
	return srv, ix
}

func TestHandleSearchRequiresNonEmptyQuery(t *testing.T) {
	srv, _ := newTestServer(t)
	_, _, err := srv.handleSearch(context.Background(), nil, SearchInput{Query: "   "})
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeToolFailed, mcpErr.Code)
}

func TestHandleSearchFindsIndexedFile(t *testing.T) {
	srv, ix := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, ix.IndexFile(ctx, "auth.go", []byte(sampleGo), "go", 5))

	_, out, err := srv.handleSearch(ctx, nil, SearchInput{Query: "AuthenticateUser"})
	require.NoError(t, err)
	require.NotEmpty(t, out.Results)
	assert.Equal(t, "auth.go", out.Results[0].FilePath)
}

func TestHandleSearchRespectsSearchType(t *testing.T) {
	srv, ix := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, ix.IndexFile(ctx, "auth.go", []byte(sampleGo), "go", 5))

	_, out, err := srv.handleSearch(ctx, nil, SearchInput{Query: "AuthenticateUser", SearchType: unifiedsearch.TrackSymbol})
	require.NoError(t, err)
	require.NotEmpty(t, out.Results)
}

func TestHandleIndexRequiresPath(t *testing.T) {
	srv, _ := newTestServer(t)
	_, _, err := srv.handleIndex(context.Background(), nil, IndexInput{})
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeToolFailed, mcpErr.Code)
}

func TestHandleIndexAppliesDefaultExtensions(t *testing.T) {
	srv, _ := newTestServer(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(dir+"/auth.py", []byte("def login():\n    pass\n"), 0644))

	_, out, err := srv.handleIndex(context.Background(), nil, IndexInput{Path: dir})
	require.NoError(t, err)
	assert.Equal(t, 1, out.FilesIndexed)
}

const samplePython = `def authenticate_user(username, password):
    return bool(username) and bool(password)
`

func TestHandleExtractSymbolsMapsExtensionToLanguage(t *testing.T) {
	srv, _ := newTestServer(t)
	_, out, err := srv.handleExtractSymbols(context.Background(), nil, ExtractSymbolsInput{
		Code:          samplePython,
		FileExtension: "py",
	})
	require.NoError(t, err)
	require.NotEmpty(t, out.Symbols)
	assert.Equal(t, "authenticate_user", out.Symbols[0].Name)
}

func TestHandleExtractSymbolsRustIsUnsupported(t *testing.T) {
	srv, _ := newTestServer(t)
	_, _, err := srv.handleExtractSymbols(context.Background(), nil, ExtractSymbolsInput{
		Code:          "fn main() {}",
		FileExtension: "rs",
	})
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeToolFailed, mcpErr.Code)
}

func TestHandleExtractSymbolsRejectsUnknownExtension(t *testing.T) {
	srv, _ := newTestServer(t)
	_, _, err := srv.handleExtractSymbols(context.Background(), nil, ExtractSymbolsInput{
		Code:          "",
		FileExtension: "cpp",
	})
	require.Error(t, err)
}

func TestHandleStatusReportsIndexAndEmbedderState(t *testing.T) {
	srv, ix := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, ix.IndexFile(ctx, "auth.go", []byte(sampleGo), "go", 5))

	_, out, err := srv.handleStatus(ctx, nil, StatusInput{})
	require.NoError(t, err)
	assert.Equal(t, 1, out.FileCount)
	assert.True(t, out.EmbedderAvailable)
}

func TestHandleClearRequiresConfirmation(t *testing.T) {
	srv, ix := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, ix.IndexFile(ctx, "auth.go", []byte(sampleGo), "go", 5))

	_, out, err := srv.handleClear(ctx, nil, ClearInput{Confirm: false})
	require.NoError(t, err)
	assert.Equal(t, "confirmation_required", out.Status)
	assert.Equal(t, 1, ix.FileCount())
}

func TestHandleClearConfirmedClearsIndex(t *testing.T) {
	srv, ix := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, ix.IndexFile(ctx, "auth.go", []byte(sampleGo), "go", 5))

	_, out, err := srv.handleClear(ctx, nil, ClearInput{Confirm: true})
	require.NoError(t, err)
	assert.Equal(t, "cleared", out.Status)
	assert.Equal(t, 0, ix.FileCount())
}
