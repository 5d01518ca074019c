package api

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgallion1/bookshelf/internal/config"
	"github.com/dgallion1/bookshelf/internal/notes"
	"github.com/dgallion1/bookshelf/internal/pipeline"
	"github.com/dgallion1/bookshelf/internal/searchindex"
	"github.com/dgallion1/bookshelf/internal/searchtext"
	"github.com/dgallion1/bookshelf/internal/store"
)

// SearchEngine is the external full-text index.
type SearchEngine interface {
	Search(ctx context.Context, query, userID string, limit int) (*searchindex.SearchResponse, error)
	DeleteBook(ctx context.Context, id string) error
}

// Options carries the server's collaborators. Search and Notes may be nil.
type Options struct {
	Store        *store.Store
	Orchestrator *pipeline.Orchestrator
	Search       SearchEngine
	Notes        *notes.Service
	Condenser    *searchtext.Condenser
	Log          *slog.Logger
	Config       config.Config
}

// Server is the HTTP API server for the library.
type Server struct {
	router       chi.Router
	store        *store.Store
	orchestrator *pipeline.Orchestrator
	search       SearchEngine
	notes        *notes.Service
	condenser    *searchtext.Condenser
	log          *slog.Logger
	cfg          config.Config

	// filesMu guards the shared files under LibraryDir.
	filesMu sync.Mutex
}

// NewServer creates and configures the HTTP server.
func NewServer(opts Options) *Server {
	s := &Server{
		store:        opts.Store,
		orchestrator: opts.Orchestrator,
		search:       opts.Search,
		notes:        opts.Notes,
		condenser:    opts.Condenser,
		log:          opts.Log,
		cfg:          opts.Config,
	}
	if s.condenser == nil {
		s.condenser = searchtext.New()
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	// Public endpoints.
	r.Get("/health", s.handleHealth)

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.APIKey, s.log))

		r.Post("/api/books", s.handleUpload)
		r.Get("/api/jobs/{jobID}", s.handleJobStatus)

		r.Get("/api/books", s.handleListBooks)
		r.Route("/api/books/{bookID}", func(r chi.Router) {
			r.Get("/", s.handleGetBook)
			r.Delete("/", s.handleDeleteBook)

			r.Get("/toc", s.handleGetTOC)
			r.Post("/toc/rerun", s.handleRerunTOC)
			r.Post("/reindex", s.handleReindex)

			r.Get("/progress", s.handleGetProgress)
			r.Put("/progress", s.handlePutProgress)

			r.Get("/bookmarks", s.handleListBookmarks)
			r.Post("/bookmarks", s.handleCreateBookmark)
			r.Delete("/bookmarks/{bookmarkID}", s.handleDeleteBookmark)

			r.Post("/notes", s.handleGenerateNotes)
			r.Get("/notes", s.handleGetNotes)
			r.Get("/notes/export", s.handleExportNotes)
		})

		r.Get("/api/search", s.handleSearch)
		r.Get("/api/stats/llm", s.handleLLMStats)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if err := s.store.Ping(r.Context()); err != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":      status,
		"queue_depth": s.orchestrator.QueueDepth(),
		"search":      s.search != nil,
		"notes":       s.notes.Enabled(),
	})
}
