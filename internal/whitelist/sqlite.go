package whitelist

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS whitelist_entries (
	kind       TEXT NOT NULL,
	id         TEXT NOT NULL,
	label      TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (kind, id)
)`

// SQLiteStore persists entries in a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens path, creating the file and schema when missing. ":memory:" is accepted.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Load(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT kind, id, label FROM whitelist_entries ORDER BY kind, id`)
	if err != nil {
		return nil, fmt.Errorf("query whitelist: %w", err)
	}
	defer rows.Close()
	entries := []Entry{}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Kind, &e.ID, &e.Label); err != nil {
			return nil, fmt.Errorf("scan whitelist: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

const sqliteUpsert = `INSERT INTO whitelist_entries (kind, id, label) VALUES (?, ?, ?)
ON CONFLICT (kind, id) DO UPDATE SET label = excluded.label`

func (s *SQLiteStore) Append(ctx context.Context, e Entry) error {
	if _, err := s.db.ExecContext(ctx, sqliteUpsert, e.Kind, e.ID, e.Label); err != nil {
		return fmt.Errorf("insert whitelist entry: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Remove(ctx context.Context, p Principal) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM whitelist_entries WHERE kind = ? AND id = ?`, p.Kind, p.ID); err != nil {
		return fmt.Errorf("delete whitelist entry: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Save(ctx context.Context, entries []Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `DELETE FROM whitelist_entries`); err != nil {
		return fmt.Errorf("clear whitelist: %w", err)
	}
	for _, e := range entries {
		if _, err := tx.ExecContext(ctx, sqliteUpsert, e.Kind, e.ID, e.Label); err != nil {
			return fmt.Errorf("insert whitelist entry: %w", err)
		}
	}
	return tx.Commit()
}
