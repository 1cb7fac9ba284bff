package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"pdfchat/src/core/rag"
	"pdfchat/src/storage/similarity"
)

const FileName = "index.db"

const schema = `
CREATE TABLE IF NOT EXISTS chunks (
	id TEXT PRIMARY KEY,
	content TEXT NOT NULL,
	metadata TEXT NOT NULL,
	embedding BLOB NOT NULL,
	source TEXT,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_chunks_source ON chunks(source);
`

// Index persists chunks in a SQLite file and scores every stored vector on query.
// Reads may run concurrently; writes are serialised.
type Index struct {
	mu   sync.RWMutex
	db   *sql.DB
	path string
}

// Open creates or opens the index under dir.
func Open(dir string) (*Index, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}

	path := filepath.Join(dir, FileName)
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialise schema: %w", err)
	}

	return &Index{db: db, path: path}, nil
}

func (i *Index) Backend() string { return "sqlite" }

func (i *Index) Path() string { return i.path }

func (i *Index) Close() error {
	return i.db.Close()
}

func (i *Index) Upsert(ctx context.Context, chunks []rag.Chunk) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	tx, err := i.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO chunks (id, content, metadata, embedding, source)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		meta, err := json.Marshal(c.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode metadata of %s: %w", c.ID, err)
		}
		vec, err := json.Marshal(c.Vector)
		if err != nil {
			return fmt.Errorf("failed to encode embedding of %s: %w", c.ID, err)
		}

		if _, err := stmt.ExecContext(ctx, c.ID, c.Content, string(meta), vec, c.Metadata[rag.MetaSource]); err != nil {
			return fmt.Errorf("failed to insert chunk %s: %w", c.ID, err)
		}
	}

	return tx.Commit()
}

func (i *Index) Query(ctx context.Context, vector []float32, k int) ([]rag.ScoredChunk, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	rows, err := i.db.QueryContext(ctx, `SELECT id, content, metadata, embedding FROM chunks`)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var results []rag.ScoredChunk
	for rows.Next() {
		var (
			c         rag.ScoredChunk
			meta, vec []byte
			embedding []float32
		)
		if err := rows.Scan(&c.ID, &c.Content, &meta, &vec); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		if err := json.Unmarshal(meta, &c.Metadata); err != nil {
			return nil, fmt.Errorf("corrupt metadata for %s: %w", c.ID, err)
		}
		if err := json.Unmarshal(vec, &embedding); err != nil {
			return nil, fmt.Errorf("corrupt embedding for %s: %w", c.ID, err)
		}

		c.Score = similarity.Cosine(vector, embedding)
		results = append(results, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}

	return similarity.TopK(results, k), nil
}

func (i *Index) Count(ctx context.Context) (int, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	var n int
	if err := i.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return n, nil
}

// Sources returns the number of chunks stored per source file.
func (i *Index) Sources(ctx context.Context) (map[string]int, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	rows, err := i.db.QueryContext(ctx, `SELECT COALESCE(source, ''), COUNT(*) FROM chunks GROUP BY source`)
	if err != nil {
		return nil, fmt.Errorf("failed to group chunks: %w", err)
	}
	defer rows.Close()

	sources := make(map[string]int)
	for rows.Next() {
		var (
			source string
			n      int
		)
		if err := rows.Scan(&source, &n); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		sources[source] = n
	}
	return sources, rows.Err()
}

func (i *Index) Reset(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if _, err := i.db.ExecContext(ctx, `DELETE FROM chunks`); err != nil {
		return fmt.Errorf("failed to clear chunks: %w", err)
	}
	return nil
}
