// Package cmd provides the CLI commands for embedsearch.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/embedsearch/embedsearch/internal/bm25"
	"github.com/embedsearch/embedsearch/internal/config"
	"github.com/embedsearch/embedsearch/internal/embed"
	"github.com/embedsearch/embedsearch/internal/exactsearch"
	"github.com/embedsearch/embedsearch/internal/fusion"
	"github.com/embedsearch/embedsearch/internal/indexer"
	"github.com/embedsearch/embedsearch/internal/logging"
	"github.com/embedsearch/embedsearch/internal/mcp"
	"github.com/embedsearch/embedsearch/internal/orchestrator"
	"github.com/embedsearch/embedsearch/internal/symboldb"
	"github.com/embedsearch/embedsearch/internal/textindex"
	"github.com/embedsearch/embedsearch/internal/unifiedsearch"
	"github.com/embedsearch/embedsearch/internal/vectorstore"
	"github.com/embedsearch/embedsearch/pkg/version"
)

// NewRootCmd creates the root command for the embedsearch CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "embedsearch",
		Short:   "Hybrid code search over a local codebase",
		Long:    `embedsearch fuses exact, BM25, semantic, and symbol search over a project directory, served either as an MCP stdio server or through one-shot CLI commands.`,
		Version: version.Version,
	}
	cmd.SetVersionTemplate("embedsearch version {{.Version}}\n")

	cmd.PersistentFlags().Int("chunk-size", 0, "target chunk size in lines (overrides config)")
	cmd.PersistentFlags().Int("max-search-results", 0, "maximum search results (overrides config)")
	cmd.PersistentFlags().Bool("include-test-files", false, "include test files when indexing (overrides config)")
	cmd.PersistentFlags().String("search-backend", "", "ripgrep, tantivy, or auto (overrides config)")
	cmd.PersistentFlags().String("log-level", "", "trace, debug, info, warn, or error (overrides config)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newClearCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// stack bundles every component built from a loaded Config, wired the
// way Indexer/UnifiedSearcher/Orchestrator expect.
type stack struct {
	cfg    *config.Config
	idx    *indexer.Indexer
	us     *unifiedsearch.UnifiedSearcher
	orch   *orchestrator.Orchestrator
	embedr embed.Embedder
}

// buildStack loads configuration from dir (layered with flags) and
// constructs the full backend set: BM25, TextIndex, VectorStore,
// SymbolDB, ExactSearcher, the Indexer tying them together, and the
// UnifiedSearcher/Orchestrator pair on top.
func buildStack(ctx context.Context, dir string, fs *pflag.FlagSet) (*stack, error) {
	cfg, err := config.Load(dir, fs)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logging.LevelFromString(cfg.LogLevel)})))

	embedr, err := embed.NewDefaultEmbedder(ctx)
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}

	bm25Index := bm25.New(bm25.Config{
		K1:            float32(cfg.BM25.K1),
		B:             float32(cfg.BM25.B),
		MinTermLength: cfg.BM25.MinTermLength,
		MaxTermLength: cfg.BM25.MaxTermLength,
		StopWords:     cfg.BM25.StopWords,
	})

	textIdx, err := textindex.New("")
	if err != nil {
		return nil, fmt.Errorf("create text index: %w", err)
	}

	vecStore, err := vectorstore.New(vectorstore.DefaultConfig(embedr.Dimensions()))
	if err != nil {
		return nil, fmt.Errorf("create vector store: %w", err)
	}

	symbolDB, err := symboldb.Open("")
	if err != nil {
		return nil, fmt.Errorf("open symbol database: %w", err)
	}

	exactIdx := exactsearch.New()

	idx, err := indexer.New(bm25Index, textIdx, vecStore, embedr, symbolDB, exactIdx)
	if err != nil {
		return nil, fmt.Errorf("create indexer: %w", err)
	}

	us, err := unifiedsearch.New(idx, unifiedsearch.Config{
		Exact:    exactIdx,
		BM25:     bm25Index,
		Text:     textIdx,
		Vector:   vecStore,
		Embedder: embedr,
		Symbols:  symbolDB,
		Weights: fusion.Weights{
			Exact:    cfg.Fusion.ExactWeight,
			BM25:     cfg.Fusion.BM25Weight,
			Semantic: cfg.Fusion.SemanticWeight,
			Symbol:   cfg.Fusion.SymbolWeight,
		},
		CacheSize: cfg.SearchCacheSize,
	})
	if err != nil {
		return nil, fmt.Errorf("create unified searcher: %w", err)
	}

	orch := orchestrator.New(us, orchestrator.DefaultConfig())

	return &stack{cfg: cfg, idx: idx, us: us, orch: orch, embedr: embedr}, nil
}

// indexOptionsFromConfig builds the Indexer.Options the config's
// chunk_size/include_test_files knobs imply.
func indexOptionsFromConfig(cfg *config.Config) indexer.Options {
	opts := indexer.DefaultOptions()
	if cfg.ChunkSize > 0 {
		opts.ChunkSize = cfg.ChunkSize
	}
	opts.IncludeTestFiles = cfg.IncludeTestFiles
	return opts
}

func newServeCmd() *cobra.Command {
	var root string
	var watch bool
	c := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP stdio server over a project directory",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			st, err := buildStack(ctx, root, cmd.Flags())
			if err != nil {
				return err
			}
			defer st.idx.Close()

			opts := indexOptionsFromConfig(st.cfg)
			if _, err := st.orch.IndexDirectory(ctx, root, opts); err != nil {
				return fmt.Errorf("index %s: %w", root, err)
			}

			if watch {
				go func() {
					if err := st.orch.Watch(ctx, root, opts.ChunkSize); err != nil && ctx.Err() == nil {
						slog.Default().Warn("watch mode stopped", "error", err)
					}
				}()
			}

			srv := mcp.NewServer(st.orch, st.idx, st.embedr, st.cfg)
			defer srv.Close()
			return srv.Serve(ctx)
		},
	}
	c.Flags().StringVar(&root, "root", ".", "project directory to index and serve")
	c.Flags().BoolVar(&watch, "watch", false, "re-index files on change after the initial index completes")
	return c
}

func newIndexCmd() *cobra.Command {
	var extensions []string
	var maxFileSize int64
	c := &cobra.Command{
		Use:   "index <path>",
		Short: "Index a directory and report file/chunk counts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := buildStack(ctx, args[0], cmd.Flags())
			if err != nil {
				return err
			}
			defer st.idx.Close()

			opts := indexOptionsFromConfig(st.cfg)
			if len(extensions) > 0 {
				opts.Extensions = extensions
			}
			if maxFileSize > 0 {
				opts.MaxFileSize = maxFileSize
			}

			stats, err := st.orch.IndexDirectory(ctx, args[0], opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "indexed %d files, skipped %d\n", stats.FilesIndexed, stats.FilesSkipped)
			for _, w := range stats.Warnings {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning:", w)
			}
			return nil
		},
	}
	c.Flags().StringSliceVar(&extensions, "ext", nil, "file extensions to include (default: config's extensions)")
	c.Flags().Int64Var(&maxFileSize, "max-file-size", 0, "largest file size in bytes to index")
	return c
}

func newSearchCmd() *cobra.Command {
	var root string
	var limit int
	var searchType string
	c := &cobra.Command{
		Use:   "search <query>",
		Short: "Index --root and run a single query against it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := buildStack(ctx, root, cmd.Flags())
			if err != nil {
				return err
			}
			defer st.idx.Close()

			if _, err := st.orch.IndexDirectory(ctx, root, indexOptionsFromConfig(st.cfg)); err != nil {
				return err
			}

			track := searchType
			if track == "" {
				track = unifiedsearch.TrackHybrid
			}
			report, err := st.orch.SearchTrack(ctx, args[0], limit, track)
			if err != nil {
				return err
			}
			for _, r := range report.Results {
				fmt.Fprintf(cmd.OutOrStdout(), "%.3f  %s:%d-%d  (%s)\n", r.Score, r.FilePath, r.StartLine, r.EndLine, r.MatchType)
			}
			return nil
		},
	}
	c.Flags().StringVar(&root, "root", ".", "project directory to index before searching")
	c.Flags().IntVar(&limit, "limit", 10, "maximum number of results")
	c.Flags().StringVar(&searchType, "search-type", "hybrid", "hybrid, semantic, text, or symbol")
	return c
}

func newStatusCmd() *cobra.Command {
	var root string
	c := &cobra.Command{
		Use:   "status",
		Short: "Index --root and report index/embedder state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			st, err := buildStack(ctx, root, cmd.Flags())
			if err != nil {
				return err
			}
			defer st.idx.Close()

			if _, err := st.orch.IndexDirectory(ctx, root, indexOptionsFromConfig(st.cfg)); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "files: %d\nchunks: %d\nembedder: %s (%d dims)\nsearch_backend: %s\n",
				st.idx.FileCount(), st.idx.ChunkCount(), st.embedr.ModelName(), st.embedr.Dimensions(), st.cfg.SearchBackend)
			return nil
		},
	}
	c.Flags().StringVar(&root, "root", ".", "project directory to index before reporting status")
	return c
}

func newClearCmd() *cobra.Command {
	var root string
	var confirm bool
	c := &cobra.Command{
		Use:   "clear",
		Short: "Index --root, then clear it (requires --confirm)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !confirm {
				fmt.Fprintln(cmd.OutOrStdout(), "confirmation_required: pass --confirm to clear the index")
				return nil
			}

			ctx := cmd.Context()
			st, err := buildStack(ctx, root, cmd.Flags())
			if err != nil {
				return err
			}
			defer st.idx.Close()

			if _, err := st.orch.IndexDirectory(ctx, root, indexOptionsFromConfig(st.cfg)); err != nil {
				return err
			}
			if err := st.orch.ClearIndex(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "cleared")
			return nil
		},
	}
	c.Flags().StringVar(&root, "root", ".", "project directory")
	c.Flags().BoolVar(&confirm, "confirm", false, "actually clear the index")
	return c
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), version.String())
			return err
		},
	}
}
