// Package store persists books, their outlines, reading progress, bookmarks
// and notes in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

// Store wraps a SQLite database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS books (
	id                TEXT PRIMARY KEY,
	user_id           TEXT NOT NULL,
	title             TEXT NOT NULL,
	author            TEXT NOT NULL DEFAULT '',
	filename          TEXT NOT NULL,
	file_path         TEXT NOT NULL,
	content_hash      TEXT NOT NULL,
	size_bytes        INTEGER NOT NULL DEFAULT 0,
	page_count        INTEGER NOT NULL DEFAULT 0,
	searchable_text   TEXT NOT NULL DEFAULT '',
	cover_url         TEXT NOT NULL DEFAULT '',
	toc_confidence    REAL NOT NULL DEFAULT 0,
	toc_method        TEXT NOT NULL DEFAULT '',
	toc_extracted_at  INTEGER,
	toc_processing_ms INTEGER NOT NULL DEFAULT 0,
	created_at        INTEGER NOT NULL,
	updated_at        INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_books_user ON books(user_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_books_user_hash ON books(user_id, content_hash);

CREATE TABLE IF NOT EXISTS toc_entries (
	book_id         TEXT NOT NULL REFERENCES books(id) ON DELETE CASCADE,
	position        INTEGER NOT NULL,
	parent_position INTEGER NOT NULL,
	title           TEXT NOT NULL,
	page            INTEGER NOT NULL,
	level           INTEGER NOT NULL,
	PRIMARY KEY (book_id, position)
);

CREATE TABLE IF NOT EXISTS reading_progress (
	user_id      TEXT NOT NULL,
	book_id      TEXT NOT NULL REFERENCES books(id) ON DELETE CASCADE,
	current_page INTEGER NOT NULL,
	percent      REAL NOT NULL,
	updated_at   INTEGER NOT NULL,
	PRIMARY KEY (user_id, book_id)
);

CREATE TABLE IF NOT EXISTS bookmarks (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	book_id    TEXT NOT NULL REFERENCES books(id) ON DELETE CASCADE,
	page       INTEGER NOT NULL,
	label      TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_bookmarks_book ON bookmarks(book_id, user_id);

CREATE TABLE IF NOT EXISTS notes (
	book_id    TEXT PRIMARY KEY REFERENCES books(id) ON DELETE CASCADE,
	markdown   TEXT NOT NULL,
	model      TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);
`

// Open opens (creating if needed) the database at path and applies the
// schema. Use ":memory:" only with a single connection, which Open enforces.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func millis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func checkAffected(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
