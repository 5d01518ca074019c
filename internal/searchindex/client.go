// Package searchindex talks to the external full-text search engine, using a
// Meilisearch-compatible REST surface.
package searchindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dgallion1/bookshelf/internal/remote"
)

const service = "search engine"

// Client communicates with the search engine HTTP API.
type Client struct {
	baseURL    string
	apiKey     string
	index      string
	httpClient *http.Client
	policy     remote.Policy
}

func NewClient(baseURL, apiKey, index string) *Client {
	if index == "" {
		index = "books"
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		index:   index,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		policy: remote.DefaultPolicy(),
	}
}

// WithPolicy replaces the retry policy used for writes.
func (c *Client) WithPolicy(p remote.Policy) *Client {
	c.policy = p
	return c
}

// Document is one book as stored in the index.
type Document struct {
	ID             string `json:"id"`
	UserID         string `json:"user_id"`
	Title          string `json:"title"`
	Author         string `json:"author,omitempty"`
	PageCount      int    `json:"page_count"`
	SearchableText string `json:"searchable_text"`
}

// Hit is one search result.
type Hit struct {
	ID        string   `json:"id"`
	UserID    string   `json:"user_id"`
	Title     string   `json:"title"`
	Author    string   `json:"author,omitempty"`
	Snippets  []string `json:"snippets,omitempty"`
	Formatted struct {
		SearchableText string `json:"searchable_text"`
	} `json:"_formatted"`
}

// SearchRequest is the body for POST /indexes/{index}/search.
type SearchRequest struct {
	Query                 string   `json:"q"`
	Filter                string   `json:"filter,omitempty"`
	Limit                 int      `json:"limit,omitempty"`
	AttributesToRetrieve  []string `json:"attributesToRetrieve,omitempty"`
	AttributesToCrop      []string `json:"attributesToCrop,omitempty"`
	CropLength            int      `json:"cropLength,omitempty"`
	AttributesToHighlight []string `json:"attributesToHighlight,omitempty"`
}

// SearchResponse is the engine's reply.
type SearchResponse struct {
	Hits               []Hit `json:"hits"`
	EstimatedTotalHits int   `json:"estimatedTotalHits"`
	ProcessingTimeMs   int   `json:"processingTimeMs"`
}

// IndexBook adds or replaces a book document.
func (c *Client) IndexBook(ctx context.Context, doc Document) error {
	body, err := json.Marshal([]Document{doc})
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	return remote.Do(ctx, c.policy, func(ctx context.Context) error {
		return c.send(ctx, http.MethodPut, c.indexPath("/documents"), body, nil)
	})
}

// DeleteBook removes a book document. A missing document is not an error.
func (c *Client) DeleteBook(ctx context.Context, id string) error {
	return remote.Do(ctx, c.policy, func(ctx context.Context) error {
		err := c.send(ctx, http.MethodDelete, c.indexPath("/documents/"+url.PathEscape(id)), nil, nil)
		if isNotFound(err) {
			return nil
		}
		return err
	})
}

// Search queries the index, restricted to one user's books when userID is
// set. Searches are not retried.
func (c *Client) Search(ctx context.Context, query, userID string, limit int) (*SearchResponse, error) {
	if limit <= 0 {
		limit = 20
	}
	req := SearchRequest{
		Query:                query,
		Limit:                limit,
		AttributesToRetrieve: []string{"id", "user_id", "title", "author"},
		AttributesToCrop:     []string{"searchable_text"},
		CropLength:           30,
	}
	if userID != "" {
		req.Filter = fmt.Sprintf("user_id = %q", userID)
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal search: %w", err)
	}

	var resp SearchResponse
	if err := c.send(ctx, http.MethodPost, c.indexPath("/search"), body, &resp); err != nil {
		return nil, err
	}
	for i := range resp.Hits {
		if s := resp.Hits[i].Formatted.SearchableText; s != "" {
			resp.Hits[i].Snippets = []string{s}
		}
	}
	return &resp, nil
}

// Health reports whether the engine answers its health endpoint.
func (c *Client) Health(ctx context.Context) error {
	return c.send(ctx, http.MethodGet, "/health", nil, nil)
}

func (c *Client) indexPath(suffix string) string {
	return "/indexes/" + url.PathEscape(c.index) + suffix
}

type statusErr struct {
	status int
	err    error
}

func (e *statusErr) Error() string { return e.err.Error() }
func (e *statusErr) Unwrap() error { return e.err }

func isNotFound(err error) bool {
	se, ok := err.(*statusErr)
	return ok && se.status == http.StatusNotFound
}

func (c *Client) send(ctx context.Context, method, path string, body []byte, out any) error {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &remote.RetryableError{Service: service, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		classified := remote.StatusError(service, resp.StatusCode, respBody)
		if remote.IsRetryable(classified) {
			return classified
		}
		return &statusErr{status: resp.StatusCode, err: fmt.Errorf("%s %s: %w", method, path, classified)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<20)).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Close releases resources.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}
