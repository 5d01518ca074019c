package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Progress is a user's position in a book.
type Progress struct {
	UserID      string    `json:"user_id"`
	BookID      string    `json:"book_id"`
	CurrentPage int       `json:"current_page"`
	Percent     float64   `json:"percent"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// SaveProgress upserts p. Percent is derived from pageCount when positive
// and clamped to [0, 100].
func (s *Store) SaveProgress(ctx context.Context, p *Progress, pageCount int) error {
	if p.CurrentPage < 1 {
		p.CurrentPage = 1
	}
	if pageCount > 0 {
		if p.CurrentPage > pageCount {
			p.CurrentPage = pageCount
		}
		p.Percent = float64(p.CurrentPage) / float64(pageCount) * 100
	}
	p.Percent = min(max(p.Percent, 0), 100)
	p.UpdatedAt = s.now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reading_progress (user_id, book_id, current_page, percent, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id, book_id) DO UPDATE
		SET current_page = excluded.current_page, percent = excluded.percent, updated_at = excluded.updated_at`,
		p.UserID, p.BookID, p.CurrentPage, p.Percent, millis(p.UpdatedAt))
	if err != nil {
		return fmt.Errorf("save progress: %w", err)
	}
	return nil
}

func (s *Store) GetProgress(ctx context.Context, userID, bookID string) (*Progress, error) {
	p := Progress{UserID: userID, BookID: bookID}
	var updated int64
	err := s.db.QueryRowContext(ctx,
		`SELECT current_page, percent, updated_at FROM reading_progress WHERE user_id = ? AND book_id = ?`,
		userID, bookID).Scan(&p.CurrentPage, &p.Percent, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get progress: %w", err)
	}
	p.UpdatedAt = fromMillis(updated)
	return &p, nil
}

// Bookmark marks a page in a book for a user.
type Bookmark struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	BookID    string    `json:"book_id"`
	Page      int       `json:"page"`
	Label     string    `json:"label,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Store) AddBookmark(ctx context.Context, b *Bookmark) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	b.CreatedAt = s.now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO bookmarks (id, user_id, book_id, page, label, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		b.ID, b.UserID, b.BookID, b.Page, b.Label, millis(b.CreatedAt))
	if err != nil {
		return fmt.Errorf("add bookmark: %w", err)
	}
	return nil
}

// ListBookmarks returns bookmarks ordered by page. An empty userID returns
// every user's bookmarks for the book.
func (s *Store) ListBookmarks(ctx context.Context, userID, bookID string) ([]*Bookmark, error) {
	query := `SELECT id, user_id, book_id, page, label, created_at FROM bookmarks WHERE book_id = ?`
	args := []any{bookID}
	if userID != "" {
		query += ` AND user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY page, created_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list bookmarks: %w", err)
	}
	defer rows.Close()

	marks := []*Bookmark{}
	for rows.Next() {
		var b Bookmark
		var created int64
		if err := rows.Scan(&b.ID, &b.UserID, &b.BookID, &b.Page, &b.Label, &created); err != nil {
			return nil, fmt.Errorf("scan bookmark: %w", err)
		}
		b.CreatedAt = fromMillis(created)
		marks = append(marks, &b)
	}
	return marks, rows.Err()
}

func (s *Store) DeleteBookmark(ctx context.Context, bookID, id string) error {
	err := checkAffected(s.db.ExecContext(ctx,
		`DELETE FROM bookmarks WHERE id = ? AND book_id = ?`, id, bookID))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("delete bookmark: %w", err)
	}
	return err
}

// Notes are generated study notes for a book.
type Notes struct {
	BookID    string    `json:"book_id"`
	Markdown  string    `json:"markdown"`
	Model     string    `json:"model,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// SaveNotes replaces a book's notes.
func (s *Store) SaveNotes(ctx context.Context, n *Notes) error {
	n.CreatedAt = s.now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notes (book_id, markdown, model, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (book_id) DO UPDATE
		SET markdown = excluded.markdown, model = excluded.model, created_at = excluded.created_at`,
		n.BookID, n.Markdown, n.Model, millis(n.CreatedAt))
	if err != nil {
		return fmt.Errorf("save notes: %w", err)
	}
	return nil
}

func (s *Store) GetNotes(ctx context.Context, bookID string) (*Notes, error) {
	n := Notes{BookID: bookID}
	var created int64
	err := s.db.QueryRowContext(ctx,
		`SELECT markdown, model, created_at FROM notes WHERE book_id = ?`, bookID).
		Scan(&n.Markdown, &n.Model, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get notes: %w", err)
	}
	n.CreatedAt = fromMillis(created)
	return &n, nil
}
