package tokenstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // CGO-free SQLite
)

// SQLite keeps tokens in a local SQLite database, one row per stream key.
type SQLite struct {
	db  *sql.DB
	key string
}

func OpenSQLite(path, key string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create token dir: %w", err)
		}
	}

	// WAL + busy timeout to avoid "database is locked"
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open token database: %w", err)
	}

	if _, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS stream_tokens(
	  stream_key TEXT PRIMARY KEY,
	  token      TEXT    NOT NULL,
	  updated_at INTEGER NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create token table: %w", err)
	}

	return &SQLite{db: db, key: key}, nil
}

func (s *SQLite) Read(ctx context.Context) (string, bool, error) {
	var token string
	err := s.db.QueryRowContext(ctx,
		`SELECT token FROM stream_tokens WHERE stream_key = ?`, s.key).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return token, token != "", nil
}

func (s *SQLite) Write(ctx context.Context, token string) error {
	if token == "" {
		_, err := s.db.ExecContext(ctx, `DELETE FROM stream_tokens WHERE stream_key = ?`, s.key)
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stream_tokens (stream_key, token, updated_at)
		VALUES (?, ?, strftime('%s','now'))
		ON CONFLICT(stream_key) DO UPDATE SET token = excluded.token, updated_at = excluded.updated_at
	`, s.key, token)
	return err
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
