package toc

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxPatternHeadings caps the output of DetectHeadings.
const MaxPatternHeadings = 50

type headingPattern struct {
	re    *regexp.Regexp
	level int
}

// Checked in order; the first match decides the level.
var headingPatterns = []headingPattern{
	{regexp.MustCompile(`(?i)^chapter\s+(\d+|[ivxlcdm]+)\b`), 1},
	{regexp.MustCompile(`^\d+\.\d+\.\d+\.?\s+\S`), 3},
	{regexp.MustCompile(`^\d+\.\d+\.?\s+\S`), 2},
	{regexp.MustCompile(`^\d+\.\s+\S`), 1},
	{regexp.MustCompile(`(?i)^(introduction|conclusions?|abstract|references|bibliography|appendix)\b`), 1},
	{regexp.MustCompile(`^[A-Z][A-Z0-9 ,:'&\-]{3,79}$`), 1},
}

// DetectHeadings scans raw page text for lines that look like headings.
// pages[i] is the text of page i+1. Titles are deduplicated by exact text
// and at most MaxPatternHeadings are returned.
func DetectHeadings(pages []string) []Heading {
	var out []Heading
	seen := make(map[string]struct{})

	for i, page := range pages {
		for _, line := range strings.Split(page, "\n") {
			line = strings.TrimSpace(line)
			if line == "" || utf8.RuneCountInString(line) >= MaxTitleLength {
				continue
			}
			level := matchLevel(line)
			if level == 0 {
				continue
			}
			if _, dup := seen[line]; dup {
				continue
			}
			seen[line] = struct{}{}
			out = append(out, Heading{Title: line, Page: i + 1, Level: level})
			if len(out) >= MaxPatternHeadings {
				return out
			}
		}
	}
	return out
}

func matchLevel(line string) int {
	for _, p := range headingPatterns {
		if p.re.MatchString(line) {
			return p.level
		}
	}
	return 0
}
