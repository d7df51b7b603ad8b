package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unit(dims, hot int) []float32 {
	v := make([]float32, dims)
	v[hot%dims] = 1.0
	return v
}

func TestFormatAndParseID(t *testing.T) {
	id := FormatID("auth.py", 3)
	assert.Equal(t, "auth.py#3", id)

	fp, idx, ok := ParseID(id)
	require.True(t, ok)
	assert.Equal(t, "auth.py", fp)
	assert.Equal(t, 3, idx)
}

func TestParseIDRejectsMalformed(t *testing.T) {
	for _, bad := range []string{"noHash", "#5", "a.go#abc"} {
		_, _, ok := ParseID(bad)
		assert.False(t, ok, "expected %q to be rejected", bad)
	}
}

func TestSearchFindsExactMatch(t *testing.T) {
	s, err := New(DefaultConfig(4))
	require.NoError(t, err)

	require.NoError(t, s.Upsert(context.Background(), "a.go", 0, unit(4, 0)))
	require.NoError(t, s.Upsert(context.Background(), "b.go", 0, unit(4, 1)))

	results, err := s.Search(context.Background(), unit(4, 0), 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a.go", results[0].FilePath)
	assert.InDelta(t, 1.0, results[0].Similarity, 1e-5)
}

func TestSimilarityWithinUnitRange(t *testing.T) {
	s, err := New(DefaultConfig(4))
	require.NoError(t, err)

	require.NoError(t, s.Upsert(context.Background(), "a.go", 0, unit(4, 0)))
	require.NoError(t, s.Upsert(context.Background(), "a.go", 1, unit(4, 2)))

	results, err := s.Search(context.Background(), unit(4, 0), 2)
	require.NoError(t, err)
	for _, r := range results {
		assert.GreaterOrEqual(t, r.Similarity, float32(-1.0))
		assert.LessOrEqual(t, r.Similarity, float32(1.0))
	}
}

func TestAddDimensionMismatch(t *testing.T) {
	s, err := New(DefaultConfig(4))
	require.NoError(t, err)

	err = s.Add(context.Background(), []string{"a.go#0"}, [][]float32{{1, 2, 3}})
	require.Error(t, err)
	var dimErr ErrDimensionMismatch
	assert.ErrorAs(t, err, &dimErr)
}

func TestUpsertReplacesExisting(t *testing.T) {
	s, err := New(DefaultConfig(4))
	require.NoError(t, err)

	require.NoError(t, s.Upsert(context.Background(), "a.go", 0, unit(4, 0)))
	require.NoError(t, s.Upsert(context.Background(), "a.go", 0, unit(4, 1)))

	assert.Equal(t, 1, s.Count())
	assert.True(t, s.Contains("a.go#0"))
}

func TestDeleteFileRemovesAllChunks(t *testing.T) {
	s, err := New(DefaultConfig(4))
	require.NoError(t, err)

	require.NoError(t, s.Upsert(context.Background(), "a.go", 0, unit(4, 0)))
	require.NoError(t, s.Upsert(context.Background(), "a.go", 1, unit(4, 1)))
	require.NoError(t, s.Upsert(context.Background(), "b.go", 0, unit(4, 2)))

	require.NoError(t, s.DeleteFile(context.Background(), "a.go"))
	assert.Equal(t, 1, s.Count())
	assert.True(t, s.Contains("b.go#0"))
}

func TestSearchEmptyStoreReturnsEmpty(t *testing.T) {
	s, err := New(DefaultConfig(4))
	require.NoError(t, err)

	results, err := s.Search(context.Background(), unit(4, 0), 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestClosedStoreRejectsOperations(t *testing.T) {
	s, err := New(DefaultConfig(4))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	assert.Error(t, s.Add(context.Background(), []string{"a.go#0"}, [][]float32{unit(4, 0)}))
	_, err = s.Search(context.Background(), unit(4, 0), 1)
	assert.Error(t, err)
	assert.False(t, s.Contains("a.go#0"))
	assert.Equal(t, 0, s.Count())
}
