package api

import (
	"net/http"
	"strconv"
	"strings"
)

const maxSearchResults = 50

type searchResult struct {
	BookID   string   `json:"book_id"`
	Title    string   `json:"title"`
	Author   string   `json:"author,omitempty"`
	Snippets []string `json:"snippets"`
}

// handleSearch queries the search engine when configured, falling back to a
// scan of stored searchable text when asked to or when the engine fails.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		jsonError(w, "q query parameter is required", http.StatusBadRequest)
		return
	}
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		jsonError(w, "user_id query parameter is required", http.StatusBadRequest)
		return
	}
	limit := maxSearchResults
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v < limit {
		limit = v
	}
	local, _ := strconv.ParseBool(r.URL.Query().Get("local"))

	if !local && s.search != nil {
		resp, err := s.search.Search(r.Context(), q, userID, limit)
		if err == nil {
			results := make([]searchResult, 0, len(resp.Hits))
			for _, h := range resp.Hits {
				snippets := h.Snippets
				if snippets == nil {
					snippets = []string{}
				}
				results = append(results, searchResult{BookID: h.ID, Title: h.Title, Author: h.Author, Snippets: snippets})
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"query":   q,
				"source":  "engine",
				"total":   resp.EstimatedTotalHits,
				"results": results,
			})
			return
		}
		s.log.Warn("search engine failed, using local search", "error", err)
	}

	books, err := s.store.ListBooks(r.Context(), userID)
	if err != nil {
		s.storeError(w, "books", err)
		return
	}
	results := []searchResult{}
	for _, b := range books {
		if len(results) >= limit {
			break
		}
		if !s.condenser.ContainsQuery(b.SearchableText, q) {
			continue
		}
		snippets := s.condenser.ExtractSnippets(b.SearchableText, q, s.condenser.MaxSnippets)
		if snippets == nil {
			snippets = []string{}
		}
		results = append(results, searchResult{BookID: b.ID, Title: b.Title, Author: b.Author, Snippets: snippets})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"query":   q,
		"source":  "local",
		"total":   len(results),
		"results": results,
	})
}
