package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/bookshelf/internal/notes"
	"github.com/dgallion1/bookshelf/internal/parser"
	"github.com/dgallion1/bookshelf/internal/pipeline"
	"github.com/dgallion1/bookshelf/internal/store"
)

const notesPreviewLength = 280

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	// Limit total request size.
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1024*1024) // extra 1MB for form overhead

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	userID := strings.TrimSpace(r.FormValue("user_id"))
	if userID == "" {
		jsonError(w, "user_id is required", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "file is required: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	filename := sanitizeFilename(header.Filename)
	if !parser.IsSupportedExtension(filename) {
		jsonError(w, fmt.Sprintf("unsupported file type: %s", filepath.Ext(filename)), http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, s.cfg.MaxUploadBytes+1))
	if err != nil {
		jsonError(w, "failed to read file", http.StatusInternalServerError)
		return
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		jsonError(w, fmt.Sprintf("file exceeds max size (%d bytes)", s.cfg.MaxUploadBytes), http.StatusRequestEntityTooLarge)
		return
	}
	if len(data) == 0 {
		jsonError(w, "file is empty", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	hash := pipeline.ContentHashHex(data)
	if existing, err := s.store.FindByHash(ctx, userID, hash); err == nil {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":   "book already in library",
			"book_id": existing.ID,
		})
		return
	} else if !errors.Is(err, store.ErrNotFound) {
		s.storeError(w, "book", err)
		return
	}

	title := strings.TrimSpace(r.FormValue("title"))
	author := strings.TrimSpace(r.FormValue("author"))
	book := &store.Book{
		UserID:      userID,
		Title:       title,
		Author:      author,
		Filename:    filename,
		ContentHash: hash,
		SizeBytes:   int64(len(data)),
	}
	if book.Title == "" {
		book.Title = strings.TrimSuffix(filename, filepath.Ext(filename))
	}

	if err := s.storeUpload(ctx, book, data); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			jsonError(w, "book already in library", http.StatusConflict)
			return
		}
		if errors.Is(err, errSaveFile) {
			s.log.Error("save upload failed", "filename", filename, "error", err)
			jsonError(w, "failed to store file", http.StatusInternalServerError)
			return
		}
		s.storeError(w, "book", err)
		return
	}

	job := pipeline.NewJob(pipeline.KindIngest, book.ID, userID, filename)
	job.Title = title
	job.Author = author
	s.submit(w, job)
}

var errSaveFile = errors.New("save file")

// storeUpload saves the file and creates the book row. Files are shared by
// every book with the same content, so saving, the insert and any cleanup
// run under filesMu; a failed insert only removes a file it created.
func (s *Server) storeUpload(ctx context.Context, book *store.Book, data []byte) error {
	s.filesMu.Lock()
	defer s.filesMu.Unlock()

	path, created, err := s.saveFile(book.ContentHash, book.Filename, data)
	if err != nil {
		return fmt.Errorf("%w: %w", errSaveFile, err)
	}
	book.FilePath = path

	if err := s.store.CreateBook(ctx, book); err != nil {
		if created {
			os.Remove(path)
		}
		return err
	}
	return nil
}

// saveFile writes an upload under the library directory, named by content
// hash so identical files share storage across users. created is false when
// the file was already there.
func (s *Server) saveFile(hash, filename string, data []byte) (path string, created bool, err error) {
	if err := os.MkdirAll(s.cfg.LibraryDir, 0o755); err != nil {
		return "", false, err
	}
	path = filepath.Join(s.cfg.LibraryDir, hash+strings.ToLower(filepath.Ext(filename)))
	if _, err := os.Stat(path); err == nil {
		return path, false, nil
	}
	tmp, err := os.CreateTemp(s.cfg.LibraryDir, ".upload-*")
	if err != nil {
		return "", false, err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", false, err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", false, err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", false, err
	}
	return path, true, nil
}

func (s *Server) submit(w http.ResponseWriter, job *pipeline.Job) {
	if err := s.orchestrator.Submit(job); err != nil {
		jsonError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":   job.ID,
		"book_id":  job.BookID,
		"kind":     job.Kind,
		"status":   pipeline.StatusQueued,
		"poll_url": fmt.Sprintf("/api/jobs/%s", job.ID),
	})
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	job := s.orchestrator.GetJob(chi.URLParam(r, "jobID"))
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, job.Snapshot())
}

func (s *Server) handleListBooks(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		jsonError(w, "user_id query parameter is required", http.StatusBadRequest)
		return
	}
	books, err := s.store.ListBooks(r.Context(), userID)
	if err != nil {
		s.storeError(w, "books", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"books": books})
}

func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	book, err := s.store.GetBook(ctx, chi.URLParam(r, "bookID"))
	if err != nil {
		s.storeError(w, "book", err)
		return
	}

	resp := map[string]any{"book": book}
	if res, err := s.store.GetTOC(ctx, book.ID); err == nil {
		resp["toc_entries"] = res.Count()
		resp["toc_method"] = res.Method
		resp["toc_confidence"] = res.Confidence
	}
	if n, err := s.store.GetNotes(ctx, book.ID); err == nil {
		if rendered, err := notes.ToHTML(n.Markdown); err == nil {
			resp["notes_preview"] = notes.Preview(rendered, notesPreviewLength)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleDeleteBook removes the book, its file when no other book shares it,
// and its search engine document.
func (s *Server) handleDeleteBook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	book, err := s.store.GetBook(ctx, chi.URLParam(r, "bookID"))
	if err != nil {
		s.storeError(w, "book", err)
		return
	}
	if err := s.store.DeleteBook(ctx, book.ID); err != nil {
		s.storeError(w, "book", err)
		return
	}

	fileDeleted := false
	s.filesMu.Lock()
	if shared, err := s.fileInUse(r, book.FilePath); err == nil && !shared {
		if err := os.Remove(book.FilePath); err == nil {
			fileDeleted = true
		} else if !errors.Is(err, os.ErrNotExist) {
			s.log.Warn("remove book file failed", "book_id", book.ID, "error", err)
		}
	}
	s.filesMu.Unlock()

	unindexed := false
	if s.search != nil {
		if err := s.search.DeleteBook(ctx, book.ID); err != nil {
			s.log.Warn("search delete failed", "book_id", book.ID, "error", err)
		} else {
			unindexed = true
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"deleted":      true,
		"book_id":      book.ID,
		"file_deleted": fileDeleted,
		"unindexed":    unindexed,
	})
}

func (s *Server) fileInUse(r *http.Request, path string) (bool, error) {
	books, err := s.store.ListBooks(r.Context(), "")
	if err != nil {
		return false, err
	}
	for _, b := range books {
		if b.FilePath == path {
			return true, nil
		}
	}
	return false, nil
}

func (s *Server) handleGetTOC(w http.ResponseWriter, r *http.Request) {
	res, err := s.store.GetTOC(r.Context(), chi.URLParam(r, "bookID"))
	if err != nil {
		s.storeError(w, "book", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleRerunTOC(w http.ResponseWriter, r *http.Request) {
	s.submitForBook(w, r, pipeline.KindRerunTOC)
}

func (s *Server) handleReindex(w http.ResponseWriter, r *http.Request) {
	s.submitForBook(w, r, pipeline.KindReindex)
}

func (s *Server) submitForBook(w http.ResponseWriter, r *http.Request, kind pipeline.JobKind) {
	book, err := s.store.GetBook(r.Context(), chi.URLParam(r, "bookID"))
	if err != nil {
		s.storeError(w, "book", err)
		return
	}
	s.submit(w, pipeline.NewJob(kind, book.ID, book.UserID, book.Filename))
}
