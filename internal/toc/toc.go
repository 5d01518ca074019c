// Package toc reconstructs table-of-contents outlines from flat heading
// lists and scores how far each extraction strategy can be trusted.
package toc

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Method identifies which extraction strategy produced a Result.
type Method string

const (
	MethodMLService Method = "ml-service"
	MethodEmbedded  Method = "embedded"
	MethodPattern   Method = "pattern"
)

// Fixed confidences for strategies that are not scored.
const (
	EmbeddedConfidence = 0.75
	PatternConfidence  = 0.30
	FailedConfidence   = 0.0
)

const (
	MinLevel       = 1
	MaxLevel       = 6
	MaxTitleLength = 500
)

// Heading is one flat outline entry.
type Heading struct {
	Title string `json:"title"`
	Page  int    `json:"page"`
	Level int    `json:"level"`
}

// Node is a Heading with its nested children.
type Node struct {
	Heading
	Children []*Node `json:"children"`
}

// Result is a snapshot of one extraction attempt.
type Result struct {
	Items            []*Node   `json:"items"`
	Confidence       float64   `json:"confidence"`
	Method           Method    `json:"method"`
	ExtractedAt      time.Time `json:"extracted_at"`
	ProcessingTimeMs int64     `json:"processing_time_ms"`
}

// Count returns the number of nodes in the forest.
func (r Result) Count() int {
	return len(Flatten(r.Items))
}

// SanitizeHeadings drops headings with empty or overlong titles and clamps
// page and level into range. Output of external strategies goes through
// here before it is trusted.
func SanitizeHeadings(items []Heading) []Heading {
	out := make([]Heading, 0, len(items))
	for _, h := range items {
		h.Title = strings.TrimSpace(h.Title)
		if h.Title == "" || utf8.RuneCountInString(h.Title) >= MaxTitleLength {
			continue
		}
		if h.Page < 1 {
			h.Page = 1
		}
		h.Level = clampLevel(h.Level)
		out = append(out, h)
	}
	return out
}

func clampLevel(level int) int {
	if level < MinLevel {
		return MinLevel
	}
	if level > MaxLevel {
		return MaxLevel
	}
	return level
}
