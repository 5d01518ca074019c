package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dgallion1/bookshelf/internal/config"
	"github.com/dgallion1/bookshelf/internal/cover"
	"github.com/dgallion1/bookshelf/internal/searchindex"
	"github.com/dgallion1/bookshelf/internal/store"
	"github.com/dgallion1/bookshelf/internal/toc"
)

const sampleBook = "CHAPTER 1 Getting Started\n" +
	"Go programs are built from packages and modules that developers share widely.\n" +
	"\f" +
	"Chapter 2 Concurrency\n" +
	"Goroutines and channels make concurrent programming approachable for teams.\n"

type fakeIndexer struct {
	mu   sync.Mutex
	docs []searchindex.Document
	err  error
}

func (f *fakeIndexer) IndexBook(_ context.Context, doc searchindex.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.docs = append(f.docs, doc)
	return nil
}

type fakeCovers struct {
	match *cover.Match
	err   error
	calls int
}

func (f *fakeCovers) Lookup(_ context.Context, title, author string) (*cover.Match, error) {
	f.calls++
	return f.match, f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	store   *store.Store
	worker  *Worker
	indexer *fakeIndexer
	covers  *fakeCovers
	book    *store.Book
}

func newFixture(t *testing.T, filename, content string) *fixture {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(context.Background(), filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	book := &store.Book{
		UserID:      "u1",
		Title:       "go_basics",
		Filename:    filename,
		FilePath:    path,
		ContentHash: ContentHashHex([]byte(content)),
	}
	if err := st.CreateBook(context.Background(), book); err != nil {
		t.Fatalf("create book: %v", err)
	}

	f := &fixture{
		store:   st,
		indexer: &fakeIndexer{},
		covers:  &fakeCovers{match: &cover.Match{CoverURL: "http://covers/1.jpg"}},
		book:    book,
	}
	f.worker = &Worker{
		Store:   st,
		TOC:     &toc.Extractor{Log: testLogger()},
		Indexer: f.indexer,
		Covers:  f.covers,
		Log:     testLogger(),
	}
	return f
}

func TestWorker_IngestText(t *testing.T) {
	f := newFixture(t, "go_basics.txt", sampleBook)
	ctx := context.Background()

	job := NewJob(KindIngest, f.book.ID, "u1", f.book.Filename)
	job.Title = "Go Basics"
	f.worker.Process(ctx, job)

	snap := job.Snapshot()
	if snap.Status != StatusCompleted {
		t.Fatalf("expected completed, got %q (errors: %v)", snap.Status, snap.Progress.Errors)
	}
	if snap.Progress.PageCount != 2 || !snap.Progress.Indexed || !snap.Progress.CoverFound {
		t.Errorf("unexpected progress: %+v", snap.Progress)
	}

	book, err := f.store.GetBook(ctx, f.book.ID)
	if err != nil {
		t.Fatalf("get book: %v", err)
	}
	if book.Title != "Go Basics" {
		t.Errorf("expected uploader title to win, got %q", book.Title)
	}
	if book.PageCount != 2 {
		t.Errorf("expected 2 pages, got %d", book.PageCount)
	}
	if !strings.Contains(book.SearchableText, "goroutines and channels") {
		t.Errorf("expected condensed text to be stored, got %q", book.SearchableText)
	}
	if book.CoverURL != "http://covers/1.jpg" {
		t.Errorf("expected cover to be stored, got %q", book.CoverURL)
	}

	res, err := f.store.GetTOC(ctx, f.book.ID)
	if err != nil {
		t.Fatalf("get toc: %v", err)
	}
	if res.Method != toc.MethodPattern || res.Confidence != toc.PatternConfidence {
		t.Errorf("expected pattern toc, got %s %v", res.Method, res.Confidence)
	}
	flat := toc.Flatten(res.Items)
	if len(flat) != 2 || flat[0].Page != 1 || flat[1].Page != 2 {
		t.Errorf("unexpected toc entries: %+v", flat)
	}

	if len(f.indexer.docs) != 1 || f.indexer.docs[0].SearchableText != book.SearchableText {
		t.Errorf("expected indexed document with searchable text, got %+v", f.indexer.docs)
	}
}

func TestWorker_EnrichmentFailuresArePartial(t *testing.T) {
	f := newFixture(t, "go_basics.txt", sampleBook)
	f.indexer.err = errors.New("engine down")
	f.covers.err = errors.New("lookup timeout")

	job := NewJob(KindIngest, f.book.ID, "u1", f.book.Filename)
	f.worker.Process(context.Background(), job)

	snap := job.Snapshot()
	if snap.Status != StatusPartial {
		t.Fatalf("expected partial, got %q", snap.Status)
	}
	if len(snap.Progress.Errors) != 2 {
		t.Errorf("expected 2 recorded errors, got %v", snap.Progress.Errors)
	}
	// The core steps still ran.
	if snap.Progress.TOCEntries != 2 || snap.Progress.SearchableChars == 0 {
		t.Errorf("expected toc and searchable text despite failures, got %+v", snap.Progress)
	}
}

func TestWorker_MissingBookFails(t *testing.T) {
	f := newFixture(t, "go_basics.txt", sampleBook)
	job := NewJob(KindIngest, "no-such-book", "u1", "x.txt")
	f.worker.Process(context.Background(), job)
	if snap := job.Snapshot(); snap.Status != StatusFailed || len(snap.Progress.Errors) != 1 {
		t.Fatalf("expected failed job with one error, got %+v", snap)
	}
}

func TestWorker_Reindex(t *testing.T) {
	f := newFixture(t, "go_basics.txt", sampleBook)
	ctx := context.Background()

	if err := f.store.UpdateSearchText(ctx, f.book.ID, "stale"); err != nil {
		t.Fatal(err)
	}
	job := NewJob(KindReindex, f.book.ID, "u1", f.book.Filename)
	f.worker.Process(ctx, job)

	if snap := job.Snapshot(); snap.Status != StatusCompleted {
		t.Fatalf("expected completed, got %q", snap.Status)
	}
	book, _ := f.store.GetBook(ctx, f.book.ID)
	if book.SearchableText == "stale" || book.SearchableText == "" {
		t.Errorf("expected searchable text to be replaced, got %q", book.SearchableText)
	}
	if f.covers.calls != 0 {
		t.Error("expected reindex to skip cover lookup")
	}
	if res, _ := f.store.GetTOC(ctx, f.book.ID); res.Count() != 0 {
		t.Error("expected reindex to leave the toc alone")
	}
	if len(f.indexer.docs) != 1 {
		t.Errorf("expected one index call, got %d", len(f.indexer.docs))
	}
}

func TestWorker_RerunTOC(t *testing.T) {
	f := newFixture(t, "go_basics.txt", sampleBook)
	f.worker.Indexer = nil
	f.worker.Covers = nil
	ctx := context.Background()

	job := NewJob(KindRerunTOC, f.book.ID, "u1", f.book.Filename)
	f.worker.Process(ctx, job)

	snap := job.Snapshot()
	if snap.Status != StatusCompleted || snap.Progress.TOCEntries != 2 {
		t.Fatalf("unexpected job: %+v", snap)
	}
	book, _ := f.store.GetBook(ctx, f.book.ID)
	if book.SearchableText != "" {
		t.Error("expected rerun toc to leave searchable text alone")
	}
}

func TestOrchestrator_ProcessesSubmittedJobs(t *testing.T) {
	f := newFixture(t, "go_basics.txt", sampleBook)
	cfg := config.Config{WorkerCount: 2, MaxQueueSize: 4, JobTTL: time.Hour}
	o := NewOrchestrator(cfg, f.worker, testLogger())
	o.Start(context.Background())
	defer o.Stop()

	job := NewJob(KindRerunTOC, f.book.ID, "u1", f.book.Filename)
	if err := o.Submit(job); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if o.GetJob(job.ID) != job {
		t.Fatal("expected job to be tracked")
	}

	deadline := time.Now().Add(5 * time.Second)
	for !job.Snapshot().Status.Done() {
		if time.Now().After(deadline) {
			t.Fatalf("job did not finish, status %q", job.Snapshot().Status)
		}
		time.Sleep(10 * time.Millisecond)
	}
	if s := job.Snapshot().Status; s != StatusCompleted {
		t.Errorf("expected completed, got %q", s)
	}
}

func TestOrchestrator_QueueFull(t *testing.T) {
	cfg := config.Config{WorkerCount: 1, MaxQueueSize: 1, JobTTL: time.Hour}
	o := NewOrchestrator(cfg, &Worker{Log: testLogger()}, testLogger())
	// Not started, so nothing drains the queue.
	if err := o.Submit(NewJob(KindIngest, "b1", "u1", "a.txt")); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	second := NewJob(KindIngest, "b2", "u1", "b.txt")
	if err := o.Submit(second); err == nil {
		t.Fatal("expected queue full error")
	}
	if second.Snapshot().Status != StatusFailed {
		t.Errorf("expected rejected job to be failed, got %q", second.Snapshot().Status)
	}
	if o.QueueDepth() != 1 {
		t.Errorf("expected queue depth 1, got %d", o.QueueDepth())
	}
}

func TestOrchestrator_SubmitAfterStop(t *testing.T) {
	cfg := config.Config{WorkerCount: 1, MaxQueueSize: 4, JobTTL: time.Hour}
	o := NewOrchestrator(cfg, &Worker{Log: testLogger()}, testLogger())
	o.Start(context.Background())
	o.Stop()
	o.Stop()

	job := NewJob(KindIngest, "b1", "u1", "a.txt")
	if err := o.Submit(job); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
	if job.Snapshot().Status != StatusFailed {
		t.Errorf("expected rejected job to be failed, got %q", job.Snapshot().Status)
	}
	if o.GetJob(job.ID) == nil {
		t.Error("expected rejected job to stay pollable")
	}
}
