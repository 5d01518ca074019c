package notes

import (
	"fmt"
	"io"
	"strings"

	"github.com/fumiama/go-docx"
	"github.com/yuin/goldmark/ast"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// ExportBookmark is a bookmark line in an exported document.
type ExportBookmark struct {
	Page  int
	Label string
}

// ExportInput is everything written to a DOCX export.
type ExportInput struct {
	Title     string
	Author    string
	Notes     string
	Bookmarks []ExportBookmark
}

var headingSizes = map[int]string{1: "36", 2: "30", 3: "26"}

const codeFont = "Courier New"

// WriteDOCX writes notes and bookmarks as a Word document. The notes are
// parsed as markdown: headings become bold runs sized by level, emphasis and
// code spans keep their formatting, and code blocks are written verbatim in a
// monospace font.
func WriteDOCX(w io.Writer, in ExportInput) error {
	doc := docx.New().WithDefaultTheme()

	doc.AddParagraph().AddText(in.Title).Size("40").Bold()
	if in.Author != "" {
		doc.AddParagraph().AddText(in.Author).Italic()
	}

	src := []byte(in.Notes)
	root := md.Parser().Parse(text.NewReader(src))
	ex := &docxWriter{doc: doc, src: src}
	for n := root.FirstChild(); n != nil; n = n.NextSibling() {
		ex.block(n, 0)
	}

	if len(in.Bookmarks) > 0 {
		doc.AddParagraph().AddText("Bookmarks").Size(headingSizes[2]).Bold()
		for _, b := range in.Bookmarks {
			label := b.Label
			if label == "" {
				label = "(no label)"
			}
			doc.AddParagraph().AddText(fmt.Sprintf("Page %d: %s", b.Page, label))
		}
	}

	if _, err := doc.WriteTo(w); err != nil {
		return fmt.Errorf("write docx: %w", err)
	}
	return nil
}

// runStyle is the inline formatting in effect while walking a block.
type runStyle struct {
	bold   bool
	italic bool
	code   bool
	strike bool
	size   string
}

type docxWriter struct {
	doc *docx.Docx
	src []byte
}

// block writes one top-level or nested markdown block. depth is the list
// nesting level.
func (x *docxWriter) block(n ast.Node, depth int) {
	switch node := n.(type) {
	case *ast.Heading:
		size, ok := headingSizes[node.Level]
		if !ok {
			size = "24"
		}
		x.inlines(x.doc.AddParagraph(), node, runStyle{bold: true, size: size})
	case *ast.Paragraph, *ast.TextBlock:
		x.inlines(x.doc.AddParagraph(), node, runStyle{})
	case *ast.List:
		x.list(node, depth)
	case *ast.FencedCodeBlock, *ast.CodeBlock:
		lines := node.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			line := strings.TrimRight(string(seg.Value(x.src)), "\r\n")
			x.doc.AddParagraph().AddText(line).Font(codeFont, codeFont, codeFont, "")
		}
	case *east.Table:
		for row := node.FirstChild(); row != nil; row = row.NextSibling() {
			p := x.doc.AddParagraph()
			style := runStyle{}
			if _, ok := row.(*east.TableHeader); ok {
				style.bold = true
			}
			for cell := row.FirstChild(); cell != nil; cell = cell.NextSibling() {
				if cell != row.FirstChild() {
					p.AddText(" | ")
				}
				x.inlines(p, cell, style)
			}
		}
	case *ast.HTMLBlock, *ast.ThematicBreak:
		// Raw HTML is omitted, as in ToHTML.
	default:
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			x.block(c, depth)
		}
	}
}

func (x *docxWriter) list(l *ast.List, depth int) {
	num := l.Start
	for item := l.FirstChild(); item != nil; item = item.NextSibling() {
		marker := "• "
		if l.IsOrdered() {
			marker = fmt.Sprintf("%d. ", num)
			num++
		}
		first := true
		for c := item.FirstChild(); c != nil; c = c.NextSibling() {
			switch c.(type) {
			case *ast.Paragraph, *ast.TextBlock:
				p := x.doc.AddParagraph()
				prefix := strings.Repeat("    ", depth)
				if first {
					prefix += marker
				} else {
					prefix += "  "
				}
				p.AddText(prefix)
				x.inlines(p, c, runStyle{})
			case *ast.List:
				x.list(c.(*ast.List), depth+1)
			default:
				x.block(c, depth+1)
			}
			first = false
		}
	}
}

// inlines appends runs for the inline children of n to p.
func (x *docxWriter) inlines(p *docx.Paragraph, n ast.Node, style runStyle) {
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch node := c.(type) {
		case *ast.Text:
			s := string(node.Segment.Value(x.src))
			if node.SoftLineBreak() || node.HardLineBreak() {
				s += " "
			}
			x.run(p, s, style)
		case *ast.String:
			x.run(p, string(node.Value), style)
		case *ast.Emphasis:
			inner := style
			if node.Level >= 2 {
				inner.bold = true
			} else {
				inner.italic = true
			}
			x.inlines(p, node, inner)
		case *ast.CodeSpan:
			inner := style
			inner.code = true
			x.inlines(p, node, inner)
		case *ast.Link:
			x.inlines(p, node, style)
			if dest := string(node.Destination); dest != "" && dest != plainText(node, x.src) {
				x.run(p, " ("+dest+")", style)
			}
		case *ast.AutoLink:
			x.run(p, string(node.Label(x.src)), style)
		case *ast.Image:
			x.inlines(p, node, style)
		case *ast.RawHTML:
		case *east.Strikethrough:
			inner := style
			inner.strike = true
			x.inlines(p, node, inner)
		case *east.TaskCheckBox:
			if node.IsChecked {
				x.run(p, "[x] ", style)
			} else {
				x.run(p, "[ ] ", style)
			}
		default:
			x.inlines(p, node, style)
		}
	}
}

func (x *docxWriter) run(p *docx.Paragraph, s string, style runStyle) {
	if s == "" {
		return
	}
	r := p.AddText(s)
	if style.size != "" {
		r.Size(style.size)
	}
	if style.bold {
		r.Bold()
	}
	if style.italic {
		r.Italic()
	}
	if style.code {
		r.Font(codeFont, codeFont, codeFont, "")
	}
	if style.strike {
		r.Strike(true)
	}
}

// plainText returns the concatenated text of n's inline descendants.
func plainText(n ast.Node, src []byte) string {
	var sb strings.Builder
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch node := c.(type) {
		case *ast.Text:
			sb.Write(node.Segment.Value(src))
		case *ast.String:
			sb.Write(node.Value)
		default:
			sb.WriteString(plainText(node, src))
		}
	}
	return sb.String()
}
