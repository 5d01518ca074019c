package toc

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dgallion1/bookshelf/internal/remote"
)

func fastPolicy() remote.Policy {
	return remote.Policy{Attempts: 3, Unit: time.Millisecond}
}

func TestMLClient_ExtractTOC(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/extract" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Errorf("expected file part: %v", err)
			http.Error(w, "no file", http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(f)
		if hdr.Filename != "book.pdf" || string(data) != "%PDF" {
			t.Errorf("unexpected upload %q (%q)", hdr.Filename, data)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"items": []map[string]any{
				{"title": "Intro", "page": 1, "level": 1},
				{"title": "Setup", "page": 3, "level": 2},
			},
		})
	}))
	defer srv.Close()

	c := NewMLClient(srv.URL+"/", time.Second, 3).WithPolicy(fastPolicy())
	items, err := c.ExtractTOC(context.Background(), "book.pdf", []byte("%PDF"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 2 || items[1].Title != "Setup" || items[1].Level != 2 || items[1].Page != 3 {
		t.Errorf("unexpected items %+v", items)
	}
}

func TestMLClient_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"items":[{"title":"Only","page":1,"level":1}]}`))
	}))
	defer srv.Close()

	c := NewMLClient(srv.URL, time.Second, 3).WithPolicy(fastPolicy())
	items, err := c.ExtractTOC(context.Background(), "b.pdf", []byte("x"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 1 {
		t.Errorf("expected 1 item, got %d", len(items))
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestMLClient_GivesUpAfterAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewMLClient(srv.URL, time.Second, 3).WithPolicy(fastPolicy())
	if _, err := c.ExtractTOC(context.Background(), "b.pdf", []byte("x")); !remote.IsRetryable(err) {
		t.Fatalf("expected retryable error after exhausting attempts, got %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestMLClient_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad pdf", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	c := NewMLClient(srv.URL, time.Second, 3).WithPolicy(fastPolicy())
	if _, err := c.ExtractTOC(context.Background(), "b.pdf", []byte("x")); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Errorf("expected a single attempt, got %d", calls.Load())
	}
}
