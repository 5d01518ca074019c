package cover

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dgallion1/bookshelf/internal/remote"
)

func TestLookup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search.json" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("title"); got != "The Go Programming Language" {
			t.Errorf("unexpected title query %q", got)
		}
		if got := r.URL.Query().Get("author"); got != "Donovan" {
			t.Errorf("unexpected author query %q", got)
		}
		w.Write([]byte(`{"numFound":2,"docs":[{"title":"No Art"},{"title":"The Go Programming Language","author_name":["Alan Donovan"],"cover_i":42}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	m, err := c.Lookup(context.Background(), "The_Go_Programming_Language (2015)", "Donovan")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m == nil {
		t.Fatal("expected a match")
	}
	if m.CoverURL != DefaultCoverURL+"/b/id/42-L.jpg" {
		t.Errorf("unexpected cover url %q", m.CoverURL)
	}
	if m.Author != "Alan Donovan" {
		t.Errorf("unexpected author %q", m.Author)
	}
}

func TestLookup_ISBNFallbackAndNoMatch(t *testing.T) {
	body := `{"docs":[{"title":"X","isbn":["9780134190440"]}]}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	m, err := c.Lookup(context.Background(), "X", "")
	if err != nil || m == nil {
		t.Fatalf("expected isbn match, got %v, %v", m, err)
	}
	if m.CoverURL != DefaultCoverURL+"/b/isbn/9780134190440-L.jpg" {
		t.Errorf("unexpected cover url %q", m.CoverURL)
	}

	body = `{"docs":[]}`
	if m, err := c.Lookup(context.Background(), "X", ""); err != nil || m != nil {
		t.Errorf("expected no match, got %v, %v", m, err)
	}
	if m, err := c.Lookup(context.Background(), "  ", ""); err != nil || m != nil {
		t.Errorf("expected blank title to skip lookup, got %v, %v", m, err)
	}
}

func TestLookup_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	if _, err := NewClient(srv.URL).Lookup(context.Background(), "X", ""); !remote.IsRetryable(err) {
		t.Fatalf("expected retryable error, got %v", err)
	}
}

func TestCleanTitle(t *testing.T) {
	tests := map[string]string{
		"the_go-programming  language": "the go programming language",
		"Clean Code (2nd ed)":          "Clean Code",
		"Dune: Messiah":                "Dune",
		"[scan] Book":                  "[scan] Book",
	}
	for in, want := range tests {
		if got := cleanTitle(in); got != want {
			t.Errorf("cleanTitle(%q) = %q, want %q", in, got, want)
		}
	}
}
