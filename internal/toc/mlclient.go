package toc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/dgallion1/bookshelf/internal/remote"
)

const mlService = "toc service"

// MLClient calls the external TOC extraction service.
type MLClient struct {
	baseURL    string
	httpClient *http.Client
	policy     remote.Policy
}

// NewMLClient creates a client with a per-request timeout and the given
// number of attempts, waiting 2^n seconds before retry n.
func NewMLClient(baseURL string, timeout time.Duration, attempts int) *MLClient {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	policy := remote.DefaultPolicy()
	if attempts > 0 {
		policy.Attempts = attempts
	}
	return &MLClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		policy:     policy,
	}
}

// WithPolicy replaces the retry policy.
func (c *MLClient) WithPolicy(p remote.Policy) *MLClient {
	c.policy = p
	return c
}

type mlResponse struct {
	Items []Heading `json:"items"`
	Error string    `json:"error,omitempty"`
}

// ExtractTOC uploads the PDF and returns the service's flat heading list.
func (c *MLClient) ExtractTOC(ctx context.Context, filename string, pdf []byte) ([]Heading, error) {
	var items []Heading
	err := remote.Do(ctx, c.policy, func(ctx context.Context) error {
		var err error
		items, err = c.extractOnce(ctx, filename, pdf)
		return err
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (c *MLClient) extractOnce(ctx context.Context, filename string, pdf []byte) ([]Heading, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(pdf); err != nil {
		return nil, fmt.Errorf("write form file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/extract", &body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &remote.RetryableError{Service: mlService, Message: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, remote.StatusError(mlService, resp.StatusCode, respBody)
	}

	var out mlResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("decode toc response: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("toc service error: %s", out.Error)
	}
	return out.Items, nil
}

// Close releases idle connections.
func (c *MLClient) Close() {
	c.httpClient.CloseIdleConnections()
}
