package mcp

import (
	"context"
	"log/slog"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/embedsearch/embedsearch/internal/chunk"
	"github.com/embedsearch/embedsearch/internal/config"
	"github.com/embedsearch/embedsearch/internal/embed"
	"github.com/embedsearch/embedsearch/internal/indexer"
	"github.com/embedsearch/embedsearch/internal/orchestrator"
	"github.com/embedsearch/embedsearch/internal/unifiedsearch"
	"github.com/embedsearch/embedsearch/pkg/version"
)

// extensionLanguage maps an extract_symbols file_extension to the
// registry language name chunk.SymbolCapability.Extract expects. The
// default registry has no Rust grammar, so "rs" deliberately maps to a
// tag Extract will reject with UnsupportedLanguage.
var extensionLanguage = map[string]string{
	"rs": "rust",
	"py": "python",
	"js": "javascript",
	"ts": "typescript",
}

// Server is the MCP server bridging AI clients to the search engine.
type Server struct {
	mcp    *mcp.Server
	orch   *orchestrator.Orchestrator
	idx    *indexer.Indexer
	syms   *chunk.SymbolCapability
	embedr embed.Embedder
	cfg    *config.Config
	logger *slog.Logger
}

// NewServer wires an MCP server around an already-constructed
// Orchestrator and Indexer. embedder may be nil if semantic search is
// disabled.
func NewServer(orch *orchestrator.Orchestrator, idx *indexer.Indexer, embedder embed.Embedder, cfg *config.Config) *Server {
	if cfg == nil {
		cfg = config.New()
	}

	s := &Server{
		orch:   orch,
		idx:    idx,
		syms:   chunk.NewSymbolCapability(),
		embedr: embedder,
		cfg:    cfg,
		logger: slog.Default(),
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "embedsearch",
			Version: version.Version,
		},
		nil,
	)

	s.registerTools()

	return s
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Close releases the symbol extractor's tree-sitter parser.
func (s *Server) Close() {
	s.syms.Close()
}

// Serve starts the server over the given transport. Only "stdio" is
// supported; the MCP SDK has no HTTP/SSE transport wired in yet.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("starting MCP server", slog.String("transport", "stdio"))
	err := s.mcp.Run(ctx, &mcp.StdioTransport{})
	if err != nil && err != context.Canceled {
		s.logger.Error("MCP server stopped with error", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("MCP server stopped")
	return nil
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search",
		Description: "Search the index. search_type selects hybrid (default, all backends fused), semantic, text (exact+BM25), or symbol.",
	}, s.handleSearch)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "index",
		Description: "Index (or re-index) a directory, chunking and projecting every supported file into the search backends.",
	}, s.handleIndex)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "extract_symbols",
		Description: "Parse a code snippet and return its top-level symbols (functions, classes, types) in source order.",
	}, s.handleExtractSymbols)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "status",
		Description: "Report index size, embedder state, and aggregate search metrics.",
	}, s.handleStatus)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "clear",
		Description: "Clear the index. Requires confirm:true, otherwise reports confirmation_required without clearing anything.",
	}, s.handleClear)

	s.logger.Debug("registered MCP tools", slog.Int("count", 5))
}

func (s *Server) handleSearch(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (
	*mcp.CallToolResult,
	SearchOutput,
	error,
) {
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return nil, SearchOutput{}, NewToolFailedError(errRequiredQuery)
	}

	limit := clampLimit(input.Limit, 10, 1, 50)
	track := input.SearchType
	if track == "" {
		track = unifiedsearch.TrackHybrid
	}

	report, err := s.orch.SearchTrack(ctx, query, limit, track)
	if err != nil {
		return nil, SearchOutput{}, NewToolFailedError(err)
	}

	output := SearchOutput{
		Results: make([]SearchResultOutput, 0, len(report.Results)),
		Failed:  report.Failed,
	}
	for _, r := range report.Results {
		output.Results = append(output.Results, SearchResultOutput{
			FilePath:   r.FilePath,
			Content:    r.Content,
			Score:      r.Score,
			MatchType:  string(r.MatchType),
			StartLine:  r.StartLine,
			EndLine:    r.EndLine,
			LineNumber: r.LineNumber,
		})
	}
	return nil, output, nil
}

// defaultIndexExtensions is the spec's default file_extensions list
// for the index tool.
var defaultIndexExtensions = []string{"rs", "py", "js", "ts"}

func (s *Server) handleIndex(ctx context.Context, _ *mcp.CallToolRequest, input IndexInput) (
	*mcp.CallToolResult,
	IndexOutput,
	error,
) {
	if strings.TrimSpace(input.Path) == "" {
		return nil, IndexOutput{}, NewToolFailedError(errRequiredPath)
	}

	opts := indexer.DefaultOptions()
	opts.Extensions = input.FileExtensions
	if len(opts.Extensions) == 0 {
		opts.Extensions = defaultIndexExtensions
	}
	opts.MaxFileSize = int64(input.MaxFileSize)
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = 100000
	}

	stats, err := s.orch.IndexDirectory(ctx, input.Path, opts)
	if err != nil {
		return nil, IndexOutput{}, NewToolFailedError(err)
	}

	return nil, IndexOutput{
		FilesIndexed: stats.FilesIndexed,
		FilesSkipped: stats.FilesSkipped,
		Warnings:     stats.Warnings,
	}, nil
}

func (s *Server) handleExtractSymbols(ctx context.Context, _ *mcp.CallToolRequest, input ExtractSymbolsInput) (
	*mcp.CallToolResult,
	ExtractSymbolsOutput,
	error,
) {
	lang, ok := extensionLanguage[strings.ToLower(input.FileExtension)]
	if !ok {
		return nil, ExtractSymbolsOutput{}, NewToolFailedError(errUnrecognizedExtension(input.FileExtension))
	}

	symbols, err := s.syms.Extract(ctx, input.Code, lang)
	if err != nil {
		return nil, ExtractSymbolsOutput{}, NewToolFailedError(err)
	}

	output := ExtractSymbolsOutput{Symbols: make([]SymbolOutput, 0, len(symbols))}
	for _, sym := range symbols {
		output.Symbols = append(output.Symbols, SymbolOutput{
			Name:       sym.Name,
			Type:       string(sym.Type),
			StartLine:  sym.StartLine,
			EndLine:    sym.EndLine,
			Signature:  sym.Signature,
			DocComment: sym.DocComment,
		})
	}
	return nil, output, nil
}

func (s *Server) handleStatus(_ context.Context, _ *mcp.CallToolRequest, _ StatusInput) (
	*mcp.CallToolResult,
	StatusOutput,
	error,
) {
	metrics := s.orch.Snapshot()

	output := StatusOutput{
		FileCount:     s.idx.FileCount(),
		ChunkCount:    s.idx.ChunkCount(),
		SearchBackend: s.cfg.SearchBackend,
		Metrics: OrchestratorStatus{
			TotalSearches: metrics.TotalSearches,
			SuccessCount:  metrics.SuccessCount,
			FailureCount:  metrics.FailureCount,
			BackendAvgMS:  metrics.BackendAvgMS,
		},
	}

	if s.embedr != nil {
		output.EmbedderModel = s.embedr.ModelName()
		output.EmbedderDimension = s.embedr.Dimensions()
		output.EmbedderAvailable = true
	}

	if snap := s.orch.IndexingSnapshot(); snap != nil {
		output.Indexing = &IndexingStatus{
			Status:         snap.Status,
			Stage:          snap.Stage,
			FilesTotal:     snap.FilesTotal,
			FilesProcessed: snap.FilesProcessed,
			ProgressPct:    snap.ProgressPct,
			ElapsedSeconds: snap.ElapsedSeconds,
			ErrorMessage:   snap.ErrorMessage,
		}
	}

	return nil, output, nil
}

func (s *Server) handleClear(ctx context.Context, _ *mcp.CallToolRequest, input ClearInput) (
	*mcp.CallToolResult,
	ClearOutput,
	error,
) {
	if !input.Confirm {
		return nil, ClearOutput{
			Status:  "confirmation_required",
			Message: "Set 'confirm': true to clear all indexed data",
		}, nil
	}

	if err := s.orch.ClearIndex(ctx); err != nil {
		return nil, ClearOutput{}, NewToolFailedError(err)
	}
	return nil, ClearOutput{Status: "cleared"}, nil
}

// clampLimit applies def when requested <= 0, then clamps to [min,max].
func clampLimit(requested, def, min, max int) int {
	if requested <= 0 {
		requested = def
	}
	if requested < min {
		return min
	}
	if requested > max {
		return max
	}
	return requested
}
