package exactsearch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchOrdersByFileThenLine(t *testing.T) {
	s := New()
	s.IndexFile("b.py", "def authenticate_user(u,p):\n    pass\n")
	s.IndexFile("a.py", "x\ndef authenticate_user(u,p):\n")

	matches := s.Search("authenticate_user", 10)
	require.Len(t, matches, 2)
	assert.Equal(t, "a.py", matches[0].FilePath)
	assert.Equal(t, 2, matches[0].LineNumber)
	assert.Equal(t, "b.py", matches[1].FilePath)
}

func TestSearchCaseSensitive(t *testing.T) {
	s := New()
	s.IndexFile("a.go", "func Dashboard() {}\n")
	assert.Empty(t, s.Search("dashboard", 10))
	assert.NotEmpty(t, s.Search("Dashboard", 10))
}

func TestSearchLimitZero(t *testing.T) {
	s := New()
	s.IndexFile("a.go", "hit hit hit\n")
	assert.Empty(t, s.Search("hit", 0))
}

func TestSearchEmptyQuery(t *testing.T) {
	s := New()
	s.IndexFile("a.go", "hit\n")
	assert.Empty(t, s.Search("", 10))
}

func TestRemoveFile(t *testing.T) {
	s := New()
	s.IndexFile("a.go", "needle\n")
	require.NotEmpty(t, s.Search("needle", 10))
	s.RemoveFile("a.go")
	assert.Empty(t, s.Search("needle", 10))
}
