package parser

import (
	"fmt"
	"io"
	"strings"

	"github.com/dgallion1/bookshelf/internal/doctree"
)

// TextParser handles plain text books. Form feeds separate pages; a file
// without any is a single page.
type TextParser struct{}

func (p *TextParser) Parse(r io.Reader, filename string) (*doctree.DocTree, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	tree := &doctree.DocTree{Title: titleFromFilename(filename)}
	if strings.TrimSpace(string(data)) == "" {
		return tree, nil
	}

	pages := splitPages(string(data))
	tree.PageCount = len(pages)
	for i, page := range pages {
		page = strings.TrimSpace(page)
		if page == "" {
			continue
		}
		tree.Children = append(tree.Children, &doctree.DocNode{
			Title: fmt.Sprintf("Page %d", i+1),
			Text:  page,
			Page:  i + 1,
		})
	}
	return tree, nil
}
