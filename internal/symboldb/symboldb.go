// Package symboldb persists the symbol projection emitted by the
// SymbolExtractor capability (C2), keyed by (file_path, chunk_index),
// and serves the SymbolDatabase side of a search: name lookups ranked
// exact-match first, then substring.
package symboldb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // pure Go SQLite driver, no CGO

	"github.com/embedsearch/embedsearch/internal/chunk"
)

// Record is one stored symbol, anchored to the chunk it was declared
// in so a hit can be joined back into the three-chunk context window.
type Record struct {
	FilePath       string
	ChunkIndex     int
	Name           string
	Kind           chunk.SymbolType
	StartLine      int
	EndLine        int
	DefinitionText string
}

// DB is a SQLite-backed store of extracted symbols.
type DB struct {
	mu     sync.RWMutex
	sql    *sql.DB
	path   string
	closed bool
}

// Open creates or opens the symbol database at path. An empty path
// opens an in-memory database, used for tests and ephemeral sessions.
func Open(path string) (*DB, error) {
	dsn := ":memory:"
	if path != "" {
		if dir := filepath.Dir(path); dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("create directory %s: %w", dir, err)
			}
		}
		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	sdb := &DB{sql: db, path: path}
	if err := sdb.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return sdb, nil
}

func (d *DB) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS symbols (
		file_path       TEXT NOT NULL,
		chunk_index     INTEGER NOT NULL,
		name            TEXT NOT NULL,
		kind            TEXT NOT NULL,
		start_line      INTEGER NOT NULL,
		end_line        INTEGER NOT NULL,
		definition_text TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_symbols_name ON symbols(name);
	CREATE INDEX IF NOT EXISTS idx_symbols_file ON symbols(file_path);
	`
	_, err := d.sql.Exec(schema)
	return err
}

// ReplaceFile atomically replaces every symbol belonging to filePath
// with records, matching the Indexer's all-or-nothing per-file update.
func (d *DB) ReplaceFile(ctx context.Context, filePath string, records []Record) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return fmt.Errorf("symboldb is closed")
	}

	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM symbols WHERE file_path = ?`, filePath); err != nil {
		return fmt.Errorf("delete prior symbols for %s: %w", filePath, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO symbols (file_path, chunk_index, name, kind, start_line, end_line, definition_text)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, r.FilePath, r.ChunkIndex, r.Name, string(r.Kind), r.StartLine, r.EndLine, r.DefinitionText); err != nil {
			return fmt.Errorf("insert symbol %s: %w", r.Name, err)
		}
	}

	return tx.Commit()
}

// RemoveFile deletes every symbol belonging to filePath.
func (d *DB) RemoveFile(ctx context.Context, filePath string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return fmt.Errorf("symboldb is closed")
	}
	_, err := d.sql.ExecContext(ctx, `DELETE FROM symbols WHERE file_path = ?`, filePath)
	return err
}

// Search finds symbols by name, ranking exact (case-insensitive)
// matches before substring matches, then by file path for a
// deterministic order, truncated to limit. An empty name returns no
// results.
func (d *DB) Search(ctx context.Context, name string, limit int) ([]Record, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return nil, fmt.Errorf("symboldb is closed")
	}
	if strings.TrimSpace(name) == "" || limit <= 0 {
		return []Record{}, nil
	}

	rows, err := d.sql.QueryContext(ctx, `
		SELECT file_path, chunk_index, name, kind, start_line, end_line, definition_text
		FROM symbols
		WHERE name LIKE '%' || ? || '%'
		ORDER BY (LOWER(name) = LOWER(?)) DESC, file_path ASC, start_line ASC
		LIMIT ?`, name, name, limit)
	if err != nil {
		return nil, fmt.Errorf("search symbols: %w", err)
	}
	defer rows.Close()

	var results []Record
	for rows.Next() {
		var r Record
		var kind string
		if err := rows.Scan(&r.FilePath, &r.ChunkIndex, &r.Name, &kind, &r.StartLine, &r.EndLine, &r.DefinitionText); err != nil {
			return nil, fmt.Errorf("scan symbol row: %w", err)
		}
		r.Kind = chunk.SymbolType(kind)
		results = append(results, r)
	}
	if results == nil {
		results = []Record{}
	}
	return results, rows.Err()
}

// Count returns the total number of stored symbols.
func (d *DB) Count(ctx context.Context) (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return 0, fmt.Errorf("symboldb is closed")
	}
	var n int
	err := d.sql.QueryRowContext(ctx, `SELECT COUNT(*) FROM symbols`).Scan(&n)
	return n, err
}

// Close releases the underlying database connection.
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.sql.Close()
}

// RecordsFromSymbols converts SymbolExtractor output into storable
// Records anchored to one chunk.
func RecordsFromSymbols(filePath string, chunkIndex int, symbols []*chunk.Symbol) []Record {
	records := make([]Record, 0, len(symbols))
	for _, sym := range symbols {
		records = append(records, Record{
			FilePath:       filePath,
			ChunkIndex:     chunkIndex,
			Name:           sym.Name,
			Kind:           sym.Type,
			StartLine:      sym.StartLine,
			EndLine:        sym.EndLine,
			DefinitionText: sym.Signature,
		})
	}
	return records
}
