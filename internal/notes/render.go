package notes

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"golang.org/x/net/html"
)

var md = goldmark.New(goldmark.WithExtensions(extension.GFM))

// ToHTML renders markdown notes. Raw HTML in the source is omitted.
func ToHTML(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return buf.String(), nil
}

// Preview returns the first n characters of the visible text of rendered
// HTML, whitespace collapsed.
func Preview(rendered string, n int) string {
	doc, err := html.Parse(strings.NewReader(rendered))
	if err != nil {
		return ""
	}
	var parts []string
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			if t := strings.TrimSpace(node.Data); t != "" {
				parts = append(parts, t)
			}
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	text := strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
	if n > 0 && utf8.RuneCountInString(text) > n {
		text = string([]rune(text)[:n]) + "..."
	}
	return text
}
