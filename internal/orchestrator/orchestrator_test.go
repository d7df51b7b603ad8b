package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embedsearch/embedsearch/internal/bm25"
	"github.com/embedsearch/embedsearch/internal/embed"
	"github.com/embedsearch/embedsearch/internal/exactsearch"
	"github.com/embedsearch/embedsearch/internal/indexer"
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

func newTestOrchestrator(t *testing.T, cfg Config) (*Orchestrator, *indexer.Indexer) {
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

	return New(us, cfg), ix
}

func TestSearchReportsSuccessAndMetrics(t *testing.T) {
	orch, ix := newTestOrchestrator(t, DefaultConfig())
	ctx := context.Background()
	require.NoError(t, ix.IndexFile(ctx, "auth.go", []byte(sampleGo), "go", 5))

	report, err := orch.Search(ctx, "AuthenticateUser", 10)
	require.NoError(t, err)
	assert.False(t, report.Failed)
	assert.NotEmpty(t, report.Results)
	assert.NotEmpty(t, report.Backends)

	snap := orch.Snapshot()
	assert.Equal(t, int64(1), snap.TotalSearches)
	assert.Equal(t, int64(1), snap.SuccessCount)
	assert.Equal(t, int64(0), snap.FailureCount)
	assert.NotEmpty(t, snap.BackendAvgMS)
}

func TestSearchRespectsConcurrencyLimit(t *testing.T) {
	orch, ix := newTestOrchestrator(t, Config{MaxConcurrentSearches: 1, SearchTimeout: time.Second, PartialFailureThreshold: 1})
	ctx := context.Background()
	require.NoError(t, ix.IndexFile(ctx, "auth.go", []byte(sampleGo), "go", 5))

	done := make(chan struct{})
	go func() {
		_, _ = orch.Search(ctx, "AuthenticateUser", 10)
		close(done)
	}()

	report, err := orch.Search(ctx, "AuthenticateUser", 10)
	require.NoError(t, err)
	assert.False(t, report.Failed)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second search never completed")
	}

	snap := orch.Snapshot()
	assert.Equal(t, int64(2), snap.TotalSearches)
}

func TestSearchIsCountedWhenBudgetTooShort(t *testing.T) {
	orch, ix := newTestOrchestrator(t, Config{MaxConcurrentSearches: 1, SearchTimeout: time.Nanosecond, PartialFailureThreshold: 1})
	ctx := context.Background()
	require.NoError(t, ix.IndexFile(ctx, "auth.go", []byte(sampleGo), "go", 5))

	_, _ = orch.Search(ctx, "AuthenticateUser", 10)

	snap := orch.Snapshot()
	assert.Equal(t, int64(1), snap.TotalSearches)
}

func TestPartialFailureExceedsThresholdMarksReportFailed(t *testing.T) {
	statuses := []unifiedsearch.BackendStatus{
		{Name: unifiedsearch.BackendExact, Succeeded: true},
		{Name: unifiedsearch.BackendBM25, Succeeded: false},
		{Name: unifiedsearch.BackendSymbol, Succeeded: false},
	}
	assert.True(t, partialFailureExceeds(statuses, 0.5))
	assert.False(t, partialFailureExceeds(statuses, 0.7))
}

func TestPartialFailureExceedsIsFalseWithNoBackends(t *testing.T) {
	assert.False(t, partialFailureExceeds(nil, 0))
}
