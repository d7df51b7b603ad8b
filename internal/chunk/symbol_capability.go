package chunk

import (
	"context"

	aerrors "github.com/embedsearch/embedsearch/internal/errors"
)

// SymbolCapability is the SymbolExtractor capability spec.md section
// 4.2 describes: from a code string and a language tag, produce a
// sequence of (name, kind, line, definition) records in source order.
// It wraps the tree-sitter-backed Parser and SymbolExtractor.
type SymbolCapability struct {
	parser    *Parser
	extractor *SymbolExtractor
}

// NewSymbolCapability constructs the capability with the default
// language registry (Go, TypeScript, JavaScript, Python).
func NewSymbolCapability() *SymbolCapability {
	registry := DefaultRegistry()
	return &SymbolCapability{
		parser:    NewParserWithRegistry(registry),
		extractor: NewSymbolExtractorWithRegistry(registry),
	}
}

// Extract parses code as languageTag and returns its symbols in
// source order. Returns UnsupportedLanguage if languageTag has no
// registered tree-sitter grammar.
func (c *SymbolCapability) Extract(ctx context.Context, code string, languageTag string) ([]*Symbol, error) {
	tree, err := c.parser.Parse(ctx, []byte(code), languageTag)
	if err != nil {
		return nil, aerrors.UnsupportedLanguage(languageTag)
	}
	return c.extractor.Extract(tree, []byte(code)), nil
}

// Close releases the underlying tree-sitter parser.
func (c *SymbolCapability) Close() {
	c.parser.Close()
}
