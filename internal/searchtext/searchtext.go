// Package searchtext condenses extracted document text into a bounded,
// keyword-dense representation and answers lightweight local queries
// against it. Nothing here talks to the external search engine.
package searchtext

import (
	"math"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	DefaultMaxLength     = 10000
	DefaultMaxSentences  = 50
	DefaultMaxKeywords   = 200
	DefaultMaxSnippets   = 3
	DefaultSnippetLength = 200

	minSentenceChars = 11
	minSentenceWords = 3
	maxSentenceWords = 50

	// Fraction of words that must be meaningful, and of significant query
	// tokens that must be found for a fuzzy match.
	meaningfulRatio = 0.3
	queryMatchRatio = 0.7
)

var sentenceDelim = regexp.MustCompile(`[.!?]+`)

var defaultStopWords = []string{
	"the", "a", "an", "and", "or", "but", "in", "on", "at", "to", "for", "of",
	"with", "by", "is", "are", "was", "were", "be", "been", "have", "has", "had",
	"do", "does", "did", "will", "would", "could", "should", "this", "that",
	"these", "those", "it", "its",
}

// DefaultStopWords returns a fresh copy of the English stop-word set.
func DefaultStopWords() map[string]struct{} {
	m := make(map[string]struct{}, len(defaultStopWords))
	for _, w := range defaultStopWords {
		m[w] = struct{}{}
	}
	return m
}

// Condenser holds the tunables for condensing and matching. The zero value
// is not usable; construct with New.
type Condenser struct {
	StopWords     map[string]struct{}
	MaxLength     int
	MaxSentences  int
	MaxKeywords   int
	MaxSnippets   int
	SnippetLength int
}

// New returns a Condenser with the default limits and stop words.
func New() *Condenser {
	return &Condenser{
		StopWords:     DefaultStopWords(),
		MaxLength:     DefaultMaxLength,
		MaxSentences:  DefaultMaxSentences,
		MaxKeywords:   DefaultMaxKeywords,
		MaxSnippets:   DefaultMaxSnippets,
		SnippetLength: DefaultSnippetLength,
	}
}

var std = New()

// Condense is shorthand for New().Condense.
func Condense(fullText string) string { return std.Condense(fullText) }

// ContainsQuery is shorthand for New().ContainsQuery.
func ContainsQuery(searchable, query string) bool { return std.ContainsQuery(searchable, query) }

// ExtractSnippets is shorthand for New().ExtractSnippets.
func ExtractSnippets(searchable, query string, maxSnippets int) []string {
	return std.ExtractSnippets(searchable, query, maxSnippets)
}

// Condense produces the searchable form of fullText: the important sentences
// in document order followed by the distinct key words found in them, cut to
// MaxLength characters.
func (c *Condenser) Condense(fullText string) string {
	if fullText == "" {
		return ""
	}
	normalized := strings.ToLower(strings.Join(strings.Fields(fullText), " "))

	var kept []string
	var keywords []string
	seen := make(map[string]struct{})

	for _, sentence := range splitSentences(normalized) {
		words := strings.Fields(sentence)
		if len(words) < minSentenceWords || len(words) > maxSentenceWords {
			continue
		}

		var meaningful []string
		for _, w := range words {
			if utf8.RuneCountInString(w) > 2 && !c.isStopWord(w) {
				meaningful = append(meaningful, w)
			}
		}
		threshold := math.Min(3, float64(len(words))*meaningfulRatio)
		if float64(len(meaningful)) < threshold {
			continue
		}

		kept = append(kept, sentence)
		for _, w := range meaningful {
			if utf8.RuneCountInString(w) <= 3 {
				continue
			}
			if _, ok := seen[w]; ok {
				continue
			}
			seen[w] = struct{}{}
			keywords = append(keywords, w)
		}
	}

	if len(kept) > c.MaxSentences {
		kept = kept[:c.MaxSentences]
	}
	if len(keywords) > c.MaxKeywords {
		keywords = keywords[:c.MaxKeywords]
	}

	out := strings.TrimSpace(strings.Join(kept, " ") + " " + strings.Join(keywords, " "))
	return truncateRunes(out, c.MaxLength)
}

// ContainsQuery reports whether query matches searchable, either as an exact
// case-insensitive phrase or by finding at least 70% of the query's
// significant words (longer than two characters).
func (c *Condenser) ContainsQuery(searchable, query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if searchable == "" || q == "" {
		return false
	}
	text := strings.ToLower(searchable)
	if strings.Contains(text, q) {
		return true
	}

	var tokens []string
	for _, tok := range strings.Fields(q) {
		if utf8.RuneCountInString(tok) > 2 {
			tokens = append(tokens, tok)
		}
	}
	if len(tokens) == 0 {
		return false
	}

	matched := 0
	for _, tok := range tokens {
		if strings.Contains(text, tok) {
			matched++
		}
	}
	return float64(matched) >= math.Ceil(float64(len(tokens))*queryMatchRatio)
}

// ExtractSnippets returns up to maxSnippets sentences of searchable that
// contain the exact query phrase. A document can satisfy ContainsQuery
// through the fuzzy rule and still yield no snippets. maxSnippets 0 yields
// none; a negative value means c.MaxSnippets.
func (c *Condenser) ExtractSnippets(searchable, query string, maxSnippets int) []string {
	if !c.ContainsQuery(searchable, query) {
		return nil
	}
	if maxSnippets < 0 {
		maxSnippets = c.MaxSnippets
	}
	q := strings.ToLower(strings.TrimSpace(query))

	snippets := []string{}
	for _, sentence := range splitSentences(searchable) {
		if len(snippets) >= maxSnippets {
			break
		}
		if !strings.Contains(strings.ToLower(sentence), q) {
			continue
		}
		if utf8.RuneCountInString(sentence) > c.SnippetLength {
			sentence = truncateRunes(sentence, c.SnippetLength) + "..."
		}
		snippets = append(snippets, sentence)
	}
	return snippets
}

func (c *Condenser) isStopWord(w string) bool {
	_, ok := c.StopWords[w]
	return ok
}

// splitSentences splits on runs of sentence punctuation and keeps trimmed
// fragments longer than ten characters.
func splitSentences(text string) []string {
	var out []string
	for _, part := range sentenceDelim.Split(text, -1) {
		part = strings.TrimSpace(part)
		if utf8.RuneCountInString(part) >= minSentenceChars {
			out = append(out, part)
		}
	}
	return out
}

func truncateRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
