// Copyright 2026 The Streamfleet Authors
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// Config holds the parameters for opening the metadata store.
// Path is required; all other fields have sensible defaults.
type Config struct {
	// Path is the filesystem path to the SQLite database file. The
	// parent directory must exist. The file is created if it does
	// not exist. Use ":memory:" with PoolSize 1 for tests.
	Path string

	// PoolSize is the number of connections in the pool. If zero or
	// negative, defaults to max(runtime.NumCPU(), 4). Writes are
	// serialized by SQLite regardless; extra connections help
	// concurrent readers.
	PoolSize int

	// Logger receives operational messages (store open/close). If
	// nil, a no-op logger is used.
	Logger *slog.Logger
}

// Store is the persistent file-metadata store backing the cache and
// the stream dispatcher. It wraps a fixed-size SQLite connection pool
// with standard pragmas.
//
// Store is safe for concurrent use. Close is idempotent and safe to
// call during shutdown even if the store was never used.
type Store struct {
	pool   *sqlitex.Pool
	logger *slog.Logger
	path   string

	closeOnce sync.Once
	closeErr  error
}

// FileRecord is one row of file metadata. Meta is an opaque
// CBOR-encoded blob owned by the cache layer; Digest is the content
// digest of that blob.
type FileRecord struct {
	FileID      string
	Name        string
	Size        int64
	Digest      string
	Meta        []byte
	AccessCount int64
	UpdatedAt   time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS files (
	file_id      TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	size         INTEGER NOT NULL,
	digest       TEXT NOT NULL,
	meta         BLOB NOT NULL,
	access_count INTEGER NOT NULL DEFAULT 0,
	updated_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS files_by_access ON files (access_count DESC);
`

// Open creates the connection pool and ensures the schema exists.
// The caller must call Close when the store is no longer needed.
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("storage: Path is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = runtime.NumCPU()
		if poolSize < 4 {
			poolSize = 4
		}
	}

	pool, err := sqlitex.NewPool(cfg.Path, sqlitex.PoolOptions{
		PoolSize:    poolSize,
		PrepareConn: prepareConnection,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: opening %s: %w", cfg.Path, err)
	}

	logger.Info("metadata store opened", "path", cfg.Path, "pool_size", poolSize)

	return &Store{
		pool:   pool,
		logger: logger,
		path:   cfg.Path,
	}, nil
}

// prepareConnection applies standard pragmas and the schema. Runs
// once per pooled connection, on first use.
func prepareConnection(conn *sqlite.Conn) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("storage: %s: %w", pragma, err)
		}
	}
	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		return fmt.Errorf("storage: applying schema: %w", err)
	}
	return nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close closes all connections in the pool. Blocks until borrowed
// connections are returned. Idempotent: repeated calls return the
// result of the first.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		if err := s.pool.Close(); err != nil {
			s.logger.Error("metadata store close error", "path", s.path, "error", err)
			s.closeErr = fmt.Errorf("storage: closing %s: %w", s.path, err)
			return
		}
		s.logger.Info("metadata store closed", "path", s.path)
	})
	return s.closeErr
}

// UpsertFile inserts or replaces one file record. UpdatedAt is
// stored as Unix seconds.
func (s *Store) UpsertFile(ctx context.Context, record FileRecord) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("storage: take: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, `
		INSERT INTO files (file_id, name, size, digest, meta, access_count, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (file_id) DO UPDATE SET
			name = excluded.name,
			size = excluded.size,
			digest = excluded.digest,
			meta = excluded.meta,
			access_count = excluded.access_count,
			updated_at = excluded.updated_at`,
		&sqlitex.ExecOptions{
			Args: []any{
				record.FileID, record.Name, record.Size, record.Digest,
				record.Meta, record.AccessCount, record.UpdatedAt.Unix(),
			},
		})
	if err != nil {
		return fmt.Errorf("storage: upserting file %s: %w", record.FileID, err)
	}
	return nil
}

// TouchFile increments the access counter for a file. Missing files
// are a no-op; the dispatcher may touch a file that was pruned.
func (s *Store) TouchFile(ctx context.Context, fileID string) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("storage: take: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`UPDATE files SET access_count = access_count + 1 WHERE file_id = ?`,
		&sqlitex.ExecOptions{Args: []any{fileID}})
	if err != nil {
		return fmt.Errorf("storage: touching file %s: %w", fileID, err)
	}
	return nil
}

// HotFiles returns up to limit records ordered by access count,
// most-accessed first. This is the cache refresher's working set.
func (s *Store) HotFiles(ctx context.Context, limit int) ([]FileRecord, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage: take: %w", err)
	}
	defer s.pool.Put(conn)

	var records []FileRecord
	err = sqlitex.Execute(conn, `
		SELECT file_id, name, size, digest, meta, access_count, updated_at
		FROM files ORDER BY access_count DESC, file_id LIMIT ?`,
		&sqlitex.ExecOptions{
			Args: []any{limit},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				meta := make([]byte, stmt.ColumnLen(4))
				stmt.ColumnBytes(4, meta)
				records = append(records, FileRecord{
					FileID:      stmt.ColumnText(0),
					Name:        stmt.ColumnText(1),
					Size:        stmt.ColumnInt64(2),
					Digest:      stmt.ColumnText(3),
					Meta:        meta,
					AccessCount: stmt.ColumnInt64(5),
					UpdatedAt:   time.Unix(stmt.ColumnInt64(6), 0),
				})
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("storage: loading hot files: %w", err)
	}
	return records, nil
}
