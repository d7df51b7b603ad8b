package mcp

// SearchInput defines the input schema for the search tool.
type SearchInput struct {
	Query      string `json:"query" jsonschema:"the search query to execute"`
	Limit      int    `json:"limit,omitempty" jsonschema:"maximum number of results, 1-50, default 10"`
	SearchType string `json:"search_type,omitempty" jsonschema:"hybrid, semantic, text, or symbol, default hybrid"`
}

// SearchOutput defines the output schema for the search tool.
type SearchOutput struct {
	Results []SearchResultOutput `json:"results" jsonschema:"list of search results"`
	Failed  bool                 `json:"failed,omitempty" jsonschema:"true if more backends failed than the partial-failure threshold allows"`
}

// SearchResultOutput is one fused, context-expanded search hit.
type SearchResultOutput struct {
	FilePath   string  `json:"file_path" jsonschema:"file path relative to the indexed root"`
	Content    string  `json:"content" jsonschema:"matched chunk content"`
	Score      float64 `json:"score" jsonschema:"fused relevance score"`
	MatchType  string  `json:"match_type" jsonschema:"exact, symbol, statistical, or semantic"`
	StartLine  int     `json:"start_line"`
	EndLine    int     `json:"end_line"`
	LineNumber *int    `json:"line_number,omitempty" jsonschema:"matched line, for exact matches"`
}

// IndexInput defines the input schema for the index tool.
type IndexInput struct {
	Path           string   `json:"path" jsonschema:"directory to index"`
	FileExtensions []string `json:"file_extensions,omitempty" jsonschema:"extensions to include without a leading dot, default [rs py js ts]"`
	MaxFileSize    int      `json:"max_file_size,omitempty" jsonschema:"largest file size in bytes to index, default 100000"`
}

// IndexOutput defines the output schema for the index tool.
type IndexOutput struct {
	FilesIndexed int      `json:"files_indexed"`
	FilesSkipped int      `json:"files_skipped"`
	Warnings     []string `json:"warnings,omitempty"`
}

// ExtractSymbolsInput defines the input schema for the extract_symbols tool.
type ExtractSymbolsInput struct {
	Code          string `json:"code" jsonschema:"source code to parse"`
	FileExtension string `json:"file_extension" jsonschema:"rs, py, js, or ts"`
}

// ExtractSymbolsOutput defines the output schema for the extract_symbols tool.
type ExtractSymbolsOutput struct {
	Symbols []SymbolOutput `json:"symbols"`
}

// SymbolOutput is one extracted symbol.
type SymbolOutput struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	StartLine  int    `json:"start_line"`
	EndLine    int    `json:"end_line"`
	Signature  string `json:"signature,omitempty"`
	DocComment string `json:"doc_comment,omitempty"`
}

// StatusInput defines the input schema for the status tool (no parameters).
type StatusInput struct{}

// StatusOutput defines the output schema for the status tool.
type StatusOutput struct {
	FileCount         int                `json:"file_count"`
	ChunkCount        int                `json:"chunk_count"`
	SearchBackend     string             `json:"search_backend"`
	EmbedderModel     string             `json:"embedder_model"`
	EmbedderDimension int                `json:"embedder_dimension"`
	EmbedderAvailable bool               `json:"embedder_available"`
	Metrics           OrchestratorStatus `json:"metrics"`
	Indexing          *IndexingStatus    `json:"indexing,omitempty" jsonschema:"progress of the most recent background index run, if any"`
}

// IndexingStatus mirrors async.IndexProgressSnapshot for JSON output.
type IndexingStatus struct {
	Status         string  `json:"status"`
	Stage          string  `json:"stage"`
	FilesTotal     int     `json:"files_total"`
	FilesProcessed int     `json:"files_processed"`
	ProgressPct    float64 `json:"progress_pct"`
	ElapsedSeconds int     `json:"elapsed_seconds"`
	ErrorMessage   string  `json:"error_message,omitempty"`
}

// OrchestratorStatus mirrors orchestrator.Metrics for JSON output.
type OrchestratorStatus struct {
	TotalSearches int64              `json:"total_searches"`
	SuccessCount  int64              `json:"success_count"`
	FailureCount  int64              `json:"failure_count"`
	BackendAvgMS  map[string]float64 `json:"backend_avg_ms,omitempty"`
}

// ClearInput defines the input schema for the clear tool.
type ClearInput struct {
	Confirm bool `json:"confirm,omitempty" jsonschema:"must be true to actually clear the index, default false"`
}

// ClearOutput defines the output schema for the clear tool.
type ClearOutput struct {
	Status  string `json:"status" jsonschema:"cleared or confirmation_required"`
	Message string `json:"message,omitempty"`
}
