package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/dgallion1/bookshelf/internal/cover"
	"github.com/dgallion1/bookshelf/internal/doctree"
	"github.com/dgallion1/bookshelf/internal/parser"
	"github.com/dgallion1/bookshelf/internal/searchindex"
	"github.com/dgallion1/bookshelf/internal/searchtext"
	"github.com/dgallion1/bookshelf/internal/store"
	"github.com/dgallion1/bookshelf/internal/toc"
)

// BookStore is the persistence the worker writes to.
type BookStore interface {
	GetBook(ctx context.Context, id string) (*store.Book, error)
	UpdateParsed(ctx context.Context, id, title, author string, pageCount int) error
	UpdateSearchText(ctx context.Context, id, text string) error
	SetCover(ctx context.Context, id, coverURL string) error
	SaveTOC(ctx context.Context, bookID string, res toc.Result) error
}

// Indexer pushes a book into the external search engine.
type Indexer interface {
	IndexBook(ctx context.Context, doc searchindex.Document) error
}

// CoverFinder looks up cover art.
type CoverFinder interface {
	Lookup(ctx context.Context, title, author string) (*cover.Match, error)
}

// TOCExtractor runs the outline strategies.
type TOCExtractor interface {
	Extract(ctx context.Context, src toc.Source) toc.Result
}

// Worker runs the steps of a job. Indexer and Covers may be nil.
type Worker struct {
	Store     BookStore
	TOC       TOCExtractor
	Indexer   Indexer
	Covers    CoverFinder
	Condenser *searchtext.Condenser
	Parse     parser.Options
	Log       *slog.Logger
}

// Process runs the steps selected by the job kind. Only failing to load or
// parse the book fails the job; later steps record errors and leave the job
// partial.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.Log.With("job_id", job.ID, "book_id", job.BookID, "user_id", job.UserID, "kind", job.Kind)

	// Phase 1: Load and parse
	job.SetStatus(StatusParsing, "parsing")
	book, data, tree, err := w.load(ctx, job)
	if err != nil {
		log.Error("parse failed", "error", err)
		job.AddError(fmt.Sprintf("parse: %s", err))
		job.SetStatus(StatusFailed, "parsing")
		return
	}
	job.Update(func(p *Progress) { p.PageCount = tree.PageCount })

	if job.Kind == KindIngest {
		title, author := pick(job.Title, tree.Title, book.Title), pick(job.Author, tree.Author, book.Author)
		if err := w.Store.UpdateParsed(ctx, book.ID, title, author, tree.PageCount); err != nil {
			w.stepError(log, job, "store metadata", err)
		} else {
			book.Title, book.Author, book.PageCount = title, author, tree.PageCount
		}
	}

	// Phase 2: Searchable text
	if job.Kind == KindIngest || job.Kind == KindReindex {
		job.SetStatus(StatusCondensing, "condensing")
		text := w.condenser().Condense(tree.FullText())
		job.Update(func(p *Progress) { p.SearchableChars = len([]rune(text)) })
		if err := w.Store.UpdateSearchText(ctx, book.ID, text); err != nil {
			w.stepError(log, job, "store searchable text", err)
		} else {
			book.SearchableText = text
		}
	}

	// Phase 3: Outline
	if job.Kind == KindIngest || job.Kind == KindRerunTOC {
		job.SetStatus(StatusTOC, "extracting_toc")
		src := toc.Source{Filename: book.Filename, Pages: tree.PageTexts()}
		if parser.IsPDF(book.Filename) {
			src.PDF = data
		}
		res := w.TOC.Extract(ctx, src)
		job.Update(func(p *Progress) {
			p.TOCEntries = res.Count()
			p.TOCMethod = string(res.Method)
			p.TOCConfidence = res.Confidence
		})
		if err := w.Store.SaveTOC(ctx, book.ID, res); err != nil {
			w.stepError(log, job, "store toc", err)
		}
	}

	// Phase 4: Cover art
	if job.Kind == KindIngest && w.Covers != nil && book.CoverURL == "" {
		job.SetStatus(StatusCover, "cover_lookup")
		match, err := w.Covers.Lookup(ctx, book.Title, book.Author)
		switch {
		case err != nil:
			w.stepError(log, job, "cover lookup", err)
		case match == nil:
			log.Info("no cover found", "title", book.Title)
		default:
			if err := w.Store.SetCover(ctx, book.ID, match.CoverURL); err != nil {
				w.stepError(log, job, "store cover", err)
			} else {
				job.Update(func(p *Progress) { p.CoverFound = true })
			}
		}
	}

	// Phase 5: Search engine
	if (job.Kind == KindIngest || job.Kind == KindReindex) && w.Indexer != nil {
		job.SetStatus(StatusIndexing, "indexing")
		err := w.Indexer.IndexBook(ctx, searchindex.Document{
			ID:             book.ID,
			UserID:         book.UserID,
			Title:          book.Title,
			Author:         book.Author,
			PageCount:      book.PageCount,
			SearchableText: book.SearchableText,
		})
		if err != nil {
			w.stepError(log, job, "index", err)
		} else {
			job.Update(func(p *Progress) { p.Indexed = true })
		}
	}

	if job.HasErrors() {
		job.SetStatus(StatusPartial, "done")
		log.Warn("job finished with errors")
		return
	}
	job.SetStatus(StatusCompleted, "done")
	log.Info("job completed")
}

func (w *Worker) load(ctx context.Context, job *Job) (*store.Book, []byte, *doctree.DocTree, error) {
	book, err := w.Store.GetBook(ctx, job.BookID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load book: %w", err)
	}
	data, err := os.ReadFile(book.FilePath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("read file: %w", err)
	}
	p, err := parser.ForFile(book.Filename, w.Parse)
	if err != nil {
		return nil, nil, nil, err
	}
	tree, err := p.Parse(bytes.NewReader(data), book.Filename)
	if err != nil {
		return nil, nil, nil, err
	}
	if tree.PageCount == 0 && parser.IsPDF(book.Filename) {
		if n, err := parser.PageCount(data); err == nil {
			tree.PageCount = n
		}
	}
	return book, data, tree, nil
}

func (w *Worker) stepError(log *slog.Logger, job *Job, step string, err error) {
	log.Error(step+" failed", "error", err)
	job.AddError(fmt.Sprintf("%s: %s", step, err))
}

func (w *Worker) condenser() *searchtext.Condenser {
	if w.Condenser != nil {
		return w.Condenser
	}
	return searchtext.New()
}

// pick returns the first non-blank value.
func pick(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
