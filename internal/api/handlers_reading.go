package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/bookshelf/internal/store"
)

type progressRequest struct {
	UserID      string  `json:"user_id"`
	CurrentPage int     `json:"current_page"`
	Percent     float64 `json:"percent"`
}

func (s *Server) handleGetProgress(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		jsonError(w, "user_id query parameter is required", http.StatusBadRequest)
		return
	}
	p, err := s.store.GetProgress(r.Context(), userID, chi.URLParam(r, "bookID"))
	if err != nil {
		s.storeError(w, "progress", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handlePutProgress(w http.ResponseWriter, r *http.Request) {
	var req progressRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, "invalid body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		req.UserID = r.URL.Query().Get("user_id")
	}
	if req.UserID == "" {
		jsonError(w, "user_id is required", http.StatusBadRequest)
		return
	}
	if req.CurrentPage < 1 {
		jsonError(w, "current_page must be at least 1", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	book, err := s.store.GetBook(ctx, chi.URLParam(r, "bookID"))
	if err != nil {
		s.storeError(w, "book", err)
		return
	}
	p := &store.Progress{
		UserID:      req.UserID,
		BookID:      book.ID,
		CurrentPage: req.CurrentPage,
		Percent:     req.Percent,
	}
	if err := s.store.SaveProgress(ctx, p, book.PageCount); err != nil {
		s.storeError(w, "progress", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type bookmarkRequest struct {
	UserID string `json:"user_id"`
	Page   int    `json:"page"`
	Label  string `json:"label"`
}

const maxBookmarkLabel = 200

func (s *Server) handleListBookmarks(w http.ResponseWriter, r *http.Request) {
	marks, err := s.store.ListBookmarks(r.Context(), r.URL.Query().Get("user_id"), chi.URLParam(r, "bookID"))
	if err != nil {
		s.storeError(w, "bookmarks", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookmarks": marks})
}

func (s *Server) handleCreateBookmark(w http.ResponseWriter, r *http.Request) {
	var req bookmarkRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, "invalid body: "+err.Error(), http.StatusBadRequest)
		return
	}
	req.Label = strings.TrimSpace(req.Label)
	switch {
	case req.UserID == "":
		jsonError(w, "user_id is required", http.StatusBadRequest)
		return
	case req.Page < 1:
		jsonError(w, "page must be at least 1", http.StatusBadRequest)
		return
	case len([]rune(req.Label)) > maxBookmarkLabel:
		jsonError(w, "label is too long", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	book, err := s.store.GetBook(ctx, chi.URLParam(r, "bookID"))
	if err != nil {
		s.storeError(w, "book", err)
		return
	}
	if book.PageCount > 0 && req.Page > book.PageCount {
		jsonError(w, "page is beyond the end of the book", http.StatusBadRequest)
		return
	}

	b := &store.Bookmark{UserID: req.UserID, BookID: book.ID, Page: req.Page, Label: req.Label}
	if err := s.store.AddBookmark(ctx, b); err != nil {
		s.storeError(w, "bookmark", err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (s *Server) handleDeleteBookmark(w http.ResponseWriter, r *http.Request) {
	err := s.store.DeleteBookmark(r.Context(), chi.URLParam(r, "bookID"), chi.URLParam(r, "bookmarkID"))
	if err != nil {
		s.storeError(w, "bookmark", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
