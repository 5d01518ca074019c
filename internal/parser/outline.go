package parser

import (
	"bytes"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/dgallion1/bookshelf/internal/toc"
)

// OutlineReader reads the bookmark tree embedded in a PDF.
type OutlineReader struct{}

// ReadOutline flattens the PDF's bookmarks in document order, using nesting
// depth as the heading level.
func (OutlineReader) ReadOutline(pdf []byte) ([]toc.Heading, error) {
	bms, err := api.Bookmarks(bytes.NewReader(pdf), model.NewDefaultConfiguration())
	if err != nil {
		return nil, fmt.Errorf("read bookmarks: %w", err)
	}

	var out []toc.Heading
	var walk func(items []pdfcpu.Bookmark, depth int)
	walk = func(items []pdfcpu.Bookmark, depth int) {
		for _, bm := range items {
			out = append(out, toc.Heading{Title: bm.Title, Page: bm.PageFrom, Level: depth})
			walk(bm.Kids, depth+1)
		}
	}
	walk(bms, 1)
	return out, nil
}

// PageCount returns the number of pages in a PDF.
func PageCount(pdf []byte) (int, error) {
	n, err := api.PageCount(bytes.NewReader(pdf), model.NewDefaultConfiguration())
	if err != nil {
		return 0, fmt.Errorf("count pages: %w", err)
	}
	return n, nil
}
