package symboldb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embedsearch/embedsearch/internal/chunk"
)

func TestReplaceFileThenSearchExactMatchRanksFirst(t *testing.T) {
	db, err := Open("")
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	require.NoError(t, db.ReplaceFile(ctx, "auth.py", []Record{
		{FilePath: "auth.py", ChunkIndex: 0, Name: "authenticate_user_helper", Kind: chunk.SymbolTypeFunction, StartLine: 1, EndLine: 2, DefinitionText: "def authenticate_user_helper():"},
		{FilePath: "auth.py", ChunkIndex: 1, Name: "authenticate_user", Kind: chunk.SymbolTypeFunction, StartLine: 10, EndLine: 12, DefinitionText: "def authenticate_user(u, p):"},
	}))

	results, err := db.Search(ctx, "authenticate_user", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "authenticate_user", results[0].Name)
}

func TestReplaceFileIsAtomic(t *testing.T) {
	db, err := Open("")
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	require.NoError(t, db.ReplaceFile(ctx, "a.go", []Record{
		{FilePath: "a.go", ChunkIndex: 0, Name: "Widget", Kind: chunk.SymbolTypeClass},
	}))
	require.NoError(t, db.ReplaceFile(ctx, "a.go", []Record{
		{FilePath: "a.go", ChunkIndex: 0, Name: "Gadget", Kind: chunk.SymbolTypeClass},
	}))

	count, err := db.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	results, err := db.Search(ctx, "Widget", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRemoveFileDeletesSymbols(t *testing.T) {
	db, err := Open("")
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	require.NoError(t, db.ReplaceFile(ctx, "a.go", []Record{
		{FilePath: "a.go", ChunkIndex: 0, Name: "Widget", Kind: chunk.SymbolTypeClass},
	}))
	require.NoError(t, db.RemoveFile(ctx, "a.go"))

	count, err := db.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestSearchEmptyNameReturnsEmpty(t *testing.T) {
	db, err := Open("")
	require.NoError(t, err)
	defer db.Close()

	results, err := db.Search(context.Background(), "", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRecordsFromSymbols(t *testing.T) {
	symbols := []*chunk.Symbol{
		{Name: "Foo", Type: chunk.SymbolTypeFunction, StartLine: 1, EndLine: 3, Signature: "func Foo() {"},
	}
	records := RecordsFromSymbols("a.go", 2, symbols)
	require.Len(t, records, 1)
	assert.Equal(t, "a.go", records[0].FilePath)
	assert.Equal(t, 2, records[0].ChunkIndex)
	assert.Equal(t, "func Foo() {", records[0].DefinitionText)
}

func TestClosedDBRejectsOperations(t *testing.T) {
	db, err := Open("")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	ctx := context.Background()
	assert.Error(t, db.ReplaceFile(ctx, "a.go", nil))
	_, err = db.Search(ctx, "x", 10)
	assert.Error(t, err)
}
