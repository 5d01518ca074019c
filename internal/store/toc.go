package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dgallion1/bookshelf/internal/toc"
)

// SaveTOC replaces a book's stored outline and its extraction metadata.
func (s *Store) SaveTOC(ctx context.Context, bookID string, res toc.Result) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var extractedAt sql.NullInt64
	if !res.ExtractedAt.IsZero() {
		extractedAt = sql.NullInt64{Int64: millis(res.ExtractedAt), Valid: true}
	}
	err = checkAffected(tx.ExecContext(ctx,
		`UPDATE books SET toc_confidence = ?, toc_method = ?, toc_extracted_at = ?,
			toc_processing_ms = ?, updated_at = ? WHERE id = ?`,
		res.Confidence, string(res.Method), extractedAt, res.ProcessingTimeMs, millis(s.now()), bookID))
	if errors.Is(err, ErrNotFound) {
		return err
	}
	if err != nil {
		return fmt.Errorf("update toc metadata: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM toc_entries WHERE book_id = ?`, bookID); err != nil {
		return fmt.Errorf("clear toc: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO toc_entries (book_id, position, parent_position, title, page, level)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare toc insert: %w", err)
	}
	defer stmt.Close()
	for _, e := range toc.FlattenWithParents(res.Items) {
		if _, err := stmt.ExecContext(ctx, bookID, e.Position, e.ParentPosition, e.Title, e.Page, e.Level); err != nil {
			return fmt.Errorf("insert toc entry: %w", err)
		}
	}
	return tx.Commit()
}

// GetTOC returns a book's outline rebuilt from stored parent references.
// A book that was never processed yields an empty result.
func (s *Store) GetTOC(ctx context.Context, bookID string) (toc.Result, error) {
	var res toc.Result
	var method string
	var extractedAt sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT toc_confidence, toc_method, toc_extracted_at, toc_processing_ms FROM books WHERE id = ?`,
		bookID).Scan(&res.Confidence, &method, &extractedAt, &res.ProcessingTimeMs)
	if errors.Is(err, sql.ErrNoRows) {
		return res, ErrNotFound
	}
	if err != nil {
		return res, fmt.Errorf("get toc metadata: %w", err)
	}
	res.Method = toc.Method(method)
	if extractedAt.Valid {
		res.ExtractedAt = fromMillis(extractedAt.Int64)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT position, parent_position, title, page, level FROM toc_entries
		WHERE book_id = ? ORDER BY position`, bookID)
	if err != nil {
		return res, fmt.Errorf("list toc entries: %w", err)
	}
	defer rows.Close()

	var entries []toc.FlatEntry
	for rows.Next() {
		var e toc.FlatEntry
		if err := rows.Scan(&e.Position, &e.ParentPosition, &e.Title, &e.Page, &e.Level); err != nil {
			return res, fmt.Errorf("scan toc entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return res, err
	}
	res.Items = toc.FromParents(entries)
	if res.Items == nil {
		res.Items = []*toc.Node{}
	}
	return res, nil
}
