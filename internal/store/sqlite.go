package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// Store keeps mail bookkeeping only: which messages were already handled and with
// which outcome. Notification records are never persisted.
type Store struct {
	db *sql.DB
}

func New(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply sqlite pragmas: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) AutoMigrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS mail_ingestions (
			id TEXT PRIMARY KEY,
			source_key TEXT NOT NULL,
			uid INTEGER,
			message_id TEXT,
			kind TEXT,
			outcome TEXT NOT NULL,
			created_at_unix INTEGER NOT NULL,
			UNIQUE(source_key, uid),
			UNIQUE(source_key, message_id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_mail_ingestions_outcome ON mail_ingestions(outcome);`,
	}
	for _, query := range queries {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("run migration: %w", err)
		}
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullIfZeroUint32(value uint32) any {
	if value == 0 {
		return nil
	}
	return int64(value)
}
