package notes

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	MinNotesLength = 40
	MaxNotesLength = 60000
)

var (
	ErrNotesTooShort = errors.New("generated notes are too short")
	ErrNotesTooLong  = errors.New("generated notes are too long")
)

var codeBlockRe = regexp.MustCompile("(?s)^```(?:markdown|md)?\\s*(.*?)\\s*```$")

func stripCodeBlock(s string) string {
	s = strings.TrimSpace(s)
	if m := codeBlockRe.FindStringSubmatch(s); len(m) > 1 {
		return m[1]
	}
	return s
}

// ValidateNotes unwraps a fenced reply and checks its length.
func ValidateNotes(raw string) (string, error) {
	notes := stripCodeBlock(raw)
	n := utf8.RuneCountInString(notes)
	if n < MinNotesLength {
		return "", ErrNotesTooShort
	}
	if n > MaxNotesLength {
		return "", ErrNotesTooLong
	}
	return notes, nil
}
