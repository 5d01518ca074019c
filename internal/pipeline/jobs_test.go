package pipeline

import (
	"testing"
	"time"
)

func TestContentHashHex_Consistency(t *testing.T) {
	data := []byte("hello world")
	h1 := ContentHashHex(data)
	h2 := ContentHashHex(data)
	if h1 != h2 {
		t.Errorf("expected identical hashes, got %q and %q", h1, h2)
	}
	// SHA-256 of "hello world" is well-known.
	want := "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
	if h1 != want {
		t.Errorf("expected hash %q, got %q", want, h1)
	}
}

func TestContentHashHex_EmptyInput(t *testing.T) {
	h := ContentHashHex([]byte{})
	want := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if h != want {
		t.Errorf("expected hash %q, got %q", want, h)
	}
}

func TestNewJob(t *testing.T) {
	a := NewJob(KindIngest, "book-1", "u1", "go.pdf")
	b := NewJob(KindIngest, "book-1", "u1", "go.pdf")
	if a.ID == "" || a.ID == b.ID {
		t.Errorf("expected unique ids, got %q and %q", a.ID, b.ID)
	}
	if a.Status != StatusQueued || a.Kind != KindIngest || a.BookID != "book-1" {
		t.Errorf("unexpected job: %+v", a.Snapshot())
	}
}

func TestJob_StateTransitions(t *testing.T) {
	job := &Job{
		ID:        "test-1",
		Status:    StatusQueued,
		Phase:     "queued",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	transitions := []struct {
		status JobStatus
		phase  string
	}{
		{StatusParsing, "parsing"},
		{StatusCondensing, "condensing"},
		{StatusTOC, "extracting_toc"},
		{StatusCover, "cover_lookup"},
		{StatusIndexing, "indexing"},
		{StatusCompleted, "done"},
	}

	for _, tr := range transitions {
		before := job.UpdatedAt
		// Small sleep to ensure time difference is detectable.
		time.Sleep(time.Millisecond)
		job.SetStatus(tr.status, tr.phase)

		if job.Status != tr.status {
			t.Errorf("expected status %q, got %q", tr.status, job.Status)
		}
		if job.Phase != tr.phase {
			t.Errorf("expected phase %q, got %q", tr.phase, job.Phase)
		}
		if !job.UpdatedAt.After(before) {
			t.Errorf("expected UpdatedAt to advance after SetStatus(%q)", tr.status)
		}
	}
}

func TestJobStatus_Done(t *testing.T) {
	for _, s := range []JobStatus{StatusCompleted, StatusFailed, StatusPartial} {
		if !s.Done() {
			t.Errorf("expected %q to be terminal", s)
		}
	}
	for _, s := range []JobStatus{StatusQueued, StatusParsing, StatusIndexing} {
		if s.Done() {
			t.Errorf("expected %q to be running", s)
		}
	}
}

func TestJob_AddError(t *testing.T) {
	job := &Job{ID: "err-test", UpdatedAt: time.Now()}
	if job.HasErrors() {
		t.Fatal("expected no errors on a new job")
	}
	job.AddError("cover lookup: timeout")
	job.AddError("index: status 500")

	snap := job.Snapshot()
	if len(snap.Progress.Errors) != 2 {
		t.Fatalf("expected 2 errors, got %d", len(snap.Progress.Errors))
	}
	if snap.Progress.Errors[0] != "cover lookup: timeout" {
		t.Errorf("expected first error %q, got %q", "cover lookup: timeout", snap.Progress.Errors[0])
	}
	if !job.HasErrors() {
		t.Error("expected HasErrors after AddError")
	}

	// The snapshot owns its slice.
	snap.Progress.Errors[0] = "changed"
	if job.Snapshot().Progress.Errors[0] != "cover lookup: timeout" {
		t.Error("expected snapshot errors to be a copy")
	}
}

func TestJob_Update(t *testing.T) {
	job := &Job{ID: "update-test", UpdatedAt: time.Now()}
	job.Update(func(p *Progress) { p.PageCount = 12 })
	job.Update(func(p *Progress) {
		p.TOCEntries = 4
		p.TOCMethod = "pattern"
	})

	snap := job.Snapshot()
	if snap.Progress.PageCount != 12 || snap.Progress.TOCEntries != 4 || snap.Progress.TOCMethod != "pattern" {
		t.Errorf("unexpected progress: %+v", snap.Progress)
	}
}

func TestJob_SnapshotErrorsNotNil(t *testing.T) {
	// Snapshot should always return non-nil errors slice.
	job := &Job{ID: "snap-test", UpdatedAt: time.Now()}
	snap := job.Snapshot()
	if snap.Progress.Errors == nil {
		t.Error("expected non-nil errors slice in snapshot")
	}
	if len(snap.Progress.Errors) != 0 {
		t.Errorf("expected empty errors, got %d", len(snap.Progress.Errors))
	}
}

func TestJobStore_PutGet(t *testing.T) {
	store := NewJobStore(time.Hour)
	job := &Job{ID: "store-1", UpdatedAt: time.Now()}
	store.Put(job)

	got := store.Get("store-1")
	if got == nil {
		t.Fatal("expected to get job back")
	}
	if got.ID != "store-1" {
		t.Errorf("expected ID %q, got %q", "store-1", got.ID)
	}
	if store.Get("nonexistent") != nil {
		t.Error("expected nil for missing job")
	}
}

func TestJobStore_TTLCleanup(t *testing.T) {
	store := NewJobStore(time.Minute)
	now := time.Now()

	store.Put(&Job{ID: "old-done", Status: StatusCompleted, UpdatedAt: now.Add(-2 * time.Minute)})
	store.Put(&Job{ID: "old-running", Status: StatusParsing, UpdatedAt: now.Add(-2 * time.Minute)})
	store.Put(&Job{ID: "fresh-done", Status: StatusFailed, UpdatedAt: now})

	if n := store.Cleanup(now); n != 1 {
		t.Errorf("expected 1 job removed, got %d", n)
	}
	if store.Get("old-done") != nil {
		t.Error("expected expired job to be cleaned up")
	}
	if store.Get("old-running") == nil {
		t.Error("expected running job to survive cleanup")
	}
	if store.Get("fresh-done") == nil {
		t.Error("expected fresh job to survive cleanup")
	}
	if store.Len() != 2 {
		t.Errorf("expected 2 jobs left, got %d", store.Len())
	}
}

func TestJobStore_CleanupEmpty(t *testing.T) {
	store := NewJobStore(time.Hour)
	if n := store.Cleanup(time.Now()); n != 0 {
		t.Errorf("expected nothing removed, got %d", n)
	}
}
