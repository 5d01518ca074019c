package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Book is a stored library entry.
type Book struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	Title          string    `json:"title"`
	Author         string    `json:"author,omitempty"`
	Filename       string    `json:"filename"`
	FilePath       string    `json:"-"`
	ContentHash    string    `json:"content_hash"`
	SizeBytes      int64     `json:"size_bytes"`
	PageCount      int       `json:"page_count"`
	SearchableText string    `json:"-"`
	CoverURL       string    `json:"cover_url,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ErrDuplicate is returned by CreateBook when the user already has a book
// with the same content hash.
var ErrDuplicate = errors.New("duplicate book")

const bookColumns = `id, user_id, title, author, filename, file_path, content_hash,
	size_bytes, page_count, searchable_text, cover_url, created_at, updated_at`

// CreateBook inserts b, assigning an ID when empty.
func (s *Store) CreateBook(ctx context.Context, b *Book) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	now := s.now().UTC()
	b.CreatedAt, b.UpdatedAt = now, now

	if existing, err := s.FindByHash(ctx, b.UserID, b.ContentHash); err == nil {
		return fmt.Errorf("%w: %s", ErrDuplicate, existing.ID)
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO books (`+bookColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.UserID, b.Title, b.Author, b.Filename, b.FilePath, b.ContentHash,
		b.SizeBytes, b.PageCount, b.SearchableText, b.CoverURL, millis(now), millis(now),
	)
	if err != nil {
		var se *sqlite.Error
		if errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
			return fmt.Errorf("%w: %s", ErrDuplicate, b.ContentHash)
		}
		return fmt.Errorf("insert book: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBook(row rowScanner) (*Book, error) {
	var b Book
	var created, updated int64
	err := row.Scan(&b.ID, &b.UserID, &b.Title, &b.Author, &b.Filename, &b.FilePath,
		&b.ContentHash, &b.SizeBytes, &b.PageCount, &b.SearchableText, &b.CoverURL,
		&created, &updated)
	if err != nil {
		return nil, err
	}
	b.CreatedAt, b.UpdatedAt = fromMillis(created), fromMillis(updated)
	return &b, nil
}

func (s *Store) GetBook(ctx context.Context, id string) (*Book, error) {
	b, err := scanBook(s.db.QueryRowContext(ctx,
		`SELECT `+bookColumns+` FROM books WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get book: %w", err)
	}
	return b, nil
}

// FindByHash returns the user's book with the given content hash.
func (s *Store) FindByHash(ctx context.Context, userID, hash string) (*Book, error) {
	b, err := scanBook(s.db.QueryRowContext(ctx,
		`SELECT `+bookColumns+` FROM books WHERE user_id = ? AND content_hash = ?`, userID, hash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find book by hash: %w", err)
	}
	return b, nil
}

// ListBooks returns a user's books, newest first. An empty userID lists
// every book.
func (s *Store) ListBooks(ctx context.Context, userID string) ([]*Book, error) {
	query := `SELECT ` + bookColumns + ` FROM books`
	var args []any
	if userID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY created_at DESC, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	defer rows.Close()

	books := []*Book{}
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("scan book: %w", err)
		}
		books = append(books, b)
	}
	return books, rows.Err()
}

// UpdateParsed stores what parsing learned about a book.
func (s *Store) UpdateParsed(ctx context.Context, id, title, author string, pageCount int) error {
	err := checkAffected(s.db.ExecContext(ctx,
		`UPDATE books SET title = ?, author = ?, page_count = ?, updated_at = ? WHERE id = ?`,
		title, author, pageCount, millis(s.now()), id))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("update book: %w", err)
	}
	return err
}

// UpdateSearchText replaces the stored searchable text.
func (s *Store) UpdateSearchText(ctx context.Context, id, text string) error {
	err := checkAffected(s.db.ExecContext(ctx,
		`UPDATE books SET searchable_text = ?, updated_at = ? WHERE id = ?`,
		text, millis(s.now()), id))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("update searchable text: %w", err)
	}
	return err
}

func (s *Store) SetCover(ctx context.Context, id, coverURL string) error {
	err := checkAffected(s.db.ExecContext(ctx,
		`UPDATE books SET cover_url = ?, updated_at = ? WHERE id = ?`,
		coverURL, millis(s.now()), id))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("set cover: %w", err)
	}
	return err
}

// DeleteBook removes a book and everything attached to it.
func (s *Store) DeleteBook(ctx context.Context, id string) error {
	err := checkAffected(s.db.ExecContext(ctx, `DELETE FROM books WHERE id = ?`, id))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("delete book: %w", err)
	}
	return err
}
