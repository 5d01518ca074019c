package api

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"regexp"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/bookshelf/internal/notes"
	"github.com/dgallion1/bookshelf/internal/store"
)

func (s *Server) handleGenerateNotes(w http.ResponseWriter, r *http.Request) {
	if !s.notes.Enabled() {
		jsonError(w, "note generation is not configured", http.StatusServiceUnavailable)
		return
	}

	ctx := r.Context()
	book, err := s.store.GetBook(ctx, chi.URLParam(r, "bookID"))
	if err != nil {
		s.storeError(w, "book", err)
		return
	}
	outline, err := s.store.GetTOC(ctx, book.ID)
	if err != nil {
		s.storeError(w, "book", err)
		return
	}
	if book.SearchableText == "" && outline.Count() == 0 {
		jsonError(w, "book has not been processed yet", http.StatusConflict)
		return
	}

	md, err := s.notes.Generate(ctx, notes.PromptInput{
		Title:     book.Title,
		Author:    book.Author,
		Outline:   outline.Items,
		Condensed: book.SearchableText,
	})
	if err != nil {
		s.log.Error("notes generation failed", "book_id", book.ID, "error", err)
		code := http.StatusBadGateway
		if errors.Is(err, notes.ErrNotesTooShort) || errors.Is(err, notes.ErrNotesTooLong) {
			code = http.StatusUnprocessableEntity
		}
		jsonError(w, err.Error(), code)
		return
	}

	n := &store.Notes{BookID: book.ID, Markdown: md, Model: s.notes.Model()}
	if err := s.store.SaveNotes(ctx, n); err != nil {
		s.storeError(w, "notes", err)
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

func (s *Server) handleGetNotes(w http.ResponseWriter, r *http.Request) {
	n, err := s.store.GetNotes(r.Context(), chi.URLParam(r, "bookID"))
	if err != nil {
		s.storeError(w, "notes", err)
		return
	}

	switch format := r.URL.Query().Get("format"); format {
	case "", "markdown":
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.Write([]byte(n.Markdown))
	case "html":
		out, err := notes.ToHTML(n.Markdown)
		if err != nil {
			jsonError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(out))
	case "json":
		writeJSON(w, http.StatusOK, n)
	default:
		jsonError(w, fmt.Sprintf("unknown format %q", format), http.StatusBadRequest)
	}
}

// handleExportNotes writes the book's notes and the user's bookmarks as a
// Word document. Either part may be empty.
func (s *Server) handleExportNotes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	book, err := s.store.GetBook(ctx, chi.URLParam(r, "bookID"))
	if err != nil {
		s.storeError(w, "book", err)
		return
	}

	in := notes.ExportInput{Title: book.Title, Author: book.Author}
	if n, err := s.store.GetNotes(ctx, book.ID); err == nil {
		in.Notes = n.Markdown
	} else if !errors.Is(err, store.ErrNotFound) {
		s.storeError(w, "notes", err)
		return
	}
	marks, err := s.store.ListBookmarks(ctx, r.URL.Query().Get("user_id"), book.ID)
	if err != nil {
		s.storeError(w, "bookmarks", err)
		return
	}
	for _, m := range marks {
		in.Bookmarks = append(in.Bookmarks, notes.ExportBookmark{Page: m.Page, Label: m.Label})
	}

	var buf bytes.Buffer
	if err := notes.WriteDOCX(&buf, in); err != nil {
		s.log.Error("docx export failed", "book_id", book.ID, "error", err)
		jsonError(w, "export failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.wordprocessingml.document")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", exportName(book.Title)))
	w.Write(buf.Bytes())
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func exportName(title string) string {
	name := unsafeName.ReplaceAllString(title, "_")
	if name == "" || name == "_" {
		name = "notes"
	}
	return name + ".docx"
}
