package doctree

import "strings"

// DocTree is the root of a parsed book.
type DocTree struct {
	Title     string     // Book title (from metadata or filename)
	Author    string     // Author from metadata, may be empty
	PageCount int        // Pages in the source file, including blank ones
	Children  []*DocNode // One node per non-empty page, in page order
}

// DocNode is a page (or other section) of a book.
type DocNode struct {
	Title    string     // Section label, e.g. "Page 3"
	Text     string     // Text content of this node (may be empty for container nodes)
	Page     int        // Source page (0 if N/A)
	Children []*DocNode // Subsections
}

// FullText joins every node's text in reading order, separated by blank lines.
func (t *DocTree) FullText() string {
	var parts []string
	var walk func([]*DocNode)
	walk = func(nodes []*DocNode) {
		for _, n := range nodes {
			if s := strings.TrimSpace(n.Text); s != "" {
				parts = append(parts, s)
			}
			walk(n.Children)
		}
	}
	walk(t.Children)
	return strings.Join(parts, "\n\n")
}

// PageTexts returns the text of every page indexed from page 1, with empty
// strings for pages that produced no text. Nodes without a page number are
// appended after the last page.
func (t *DocTree) PageTexts() []string {
	n := t.PageCount
	for _, c := range t.Children {
		if c.Page > n {
			n = c.Page
		}
	}
	pages := make([]string, n)
	for _, c := range t.Children {
		if c.Page >= 1 {
			if pages[c.Page-1] != "" {
				pages[c.Page-1] += "\n"
			}
			pages[c.Page-1] += c.Text
		} else if c.Text != "" {
			pages = append(pages, c.Text)
		}
	}
	return pages
}
