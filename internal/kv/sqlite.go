// ABOUTME: SQLite implementation of Backend using modernc.org/sqlite
// ABOUTME: One row per key; WAL mode lets other processes read while a view writes

package kv

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteBackend implements Backend on a single SQLite file.
type SQLiteBackend struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteBackend opens (creating if needed) the database at path.
// Parent directories are created if needed. Pass ":memory:" for a private
// in-memory database.
func NewSQLiteBackend(path string) (*SQLiteBackend, error) {
	logger := slog.Default().With("component", "kv.sqlite")

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// A private :memory: database exists per connection.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode so a second process can read during our writes
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	b := &SQLiteBackend{
		db:     db,
		logger: logger,
	}

	if err := b.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite storage initialized", "path", path)
	return b, nil
}

// createSchema creates the storage table if it doesn't exist
func (b *SQLiteBackend) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS kv_records (
			key        TEXT PRIMARY KEY,
			value      BLOB NOT NULL,
			revision   INTEGER NOT NULL DEFAULT 1,
			writer     TEXT NOT NULL DEFAULT '',
			updated_at TEXT NOT NULL
		);
	`
	_, err := b.db.Exec(schema)
	return err
}

// Get retrieves the record for key.
// Returns ErrNotFound if the key has never been written.
func (b *SQLiteBackend) Get(ctx context.Context, key string) (*Record, error) {
	query := `
		SELECT key, value, revision, writer, updated_at
		FROM kv_records
		WHERE key = ?
	`

	var rec Record
	var updatedAtStr string
	err := b.db.QueryRowContext(ctx, query, key).Scan(
		&rec.Key,
		&rec.Value,
		&rec.Revision,
		&rec.Writer,
		&updatedAtStr,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying record: %w", err)
	}

	rec.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &rec, nil
}

// Put upserts the value for key in a single statement, so the write is
// atomic and the revision increment can't be lost between processes.
func (b *SQLiteBackend) Put(ctx context.Context, key string, value []byte, writer string) (*Record, error) {
	now := time.Now().UTC()
	query := `
		INSERT INTO kv_records (key, value, revision, writer, updated_at)
		VALUES (?, ?, 1, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			revision = kv_records.revision + 1,
			writer = excluded.writer,
			updated_at = excluded.updated_at
		RETURNING revision
	`

	var rev int64
	err := b.db.QueryRowContext(ctx, query,
		key,
		value,
		writer,
		now.Format(time.RFC3339Nano),
	).Scan(&rev)
	if err != nil {
		return nil, fmt.Errorf("writing record: %w", err)
	}

	b.logger.Debug("record written", "key", key, "revision", rev, "bytes", len(value))
	return &Record{
		Key:       key,
		Value:     append([]byte(nil), value...),
		Revision:  rev,
		Writer:    writer,
		UpdatedAt: now,
	}, nil
}

// Revisions returns key, revision and writer for every stored record.
func (b *SQLiteBackend) Revisions(ctx context.Context) ([]Record, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT key, revision, writer FROM kv_records`)
	if err != nil {
		return nil, fmt.Errorf("querying revisions: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.Key, &rec.Revision, &rec.Writer); err != nil {
			return nil, fmt.Errorf("scanning revision: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close closes the database connection
func (b *SQLiteBackend) Close() error {
	b.logger.Info("closing SQLite storage")
	return b.db.Close()
}
