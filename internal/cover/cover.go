// Package cover looks up cover art for a book on Open Library.
package cover

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dgallion1/bookshelf/internal/remote"
)

const (
	service         = "open library"
	DefaultBaseURL  = "https://openlibrary.org"
	DefaultCoverURL = "https://covers.openlibrary.org"
)

// Client searches Open Library by title and author.
type Client struct {
	baseURL    string
	coverURL   string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		coverURL:   DefaultCoverURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// Match is the best search result for a book.
type Match struct {
	Title    string `json:"title"`
	Author   string `json:"author,omitempty"`
	CoverURL string `json:"cover_url"`
}

type searchResponse struct {
	NumFound int `json:"numFound"`
	Docs     []struct {
		Title      string   `json:"title"`
		AuthorName []string `json:"author_name"`
		CoverID    int      `json:"cover_i"`
		ISBN       []string `json:"isbn"`
	} `json:"docs"`
}

// Lookup returns the first result that has cover art, or nil when none does.
func (c *Client) Lookup(ctx context.Context, title, author string) (*Match, error) {
	title = cleanTitle(title)
	if title == "" {
		return nil, nil
	}
	q := url.Values{}
	q.Set("title", title)
	if author != "" {
		q.Set("author", author)
	}
	q.Set("fields", "title,author_name,cover_i,isbn")
	q.Set("limit", "5")

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search.json?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("cover lookup: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, remote.StatusError(service, resp.StatusCode, body)
	}

	var sr searchResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	for _, d := range sr.Docs {
		var cover string
		switch {
		case d.CoverID > 0:
			cover = fmt.Sprintf("%s/b/id/%d-L.jpg", c.coverURL, d.CoverID)
		case len(d.ISBN) > 0:
			cover = fmt.Sprintf("%s/b/isbn/%s-L.jpg", c.coverURL, url.PathEscape(d.ISBN[0]))
		default:
			continue
		}
		m := &Match{Title: html.UnescapeString(d.Title), CoverURL: cover}
		if len(d.AuthorName) > 0 {
			m.Author = d.AuthorName[0]
		}
		return m, nil
	}
	return nil, nil
}

// cleanTitle drops file-name noise so titles derived from uploads still
// match catalogue entries.
func cleanTitle(title string) string {
	title = strings.NewReplacer("_", " ", "-", " ").Replace(title)
	if i := strings.IndexAny(title, "([:"); i > 0 {
		title = title[:i]
	}
	return strings.Join(strings.Fields(title), " ")
}

// Close releases resources.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}
