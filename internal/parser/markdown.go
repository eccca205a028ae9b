package parser

import (
	"bytes"
	"io"
	"strings"

	"github.com/dgallion1/docaudio/internal/document"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// MarkdownParser handles Markdown files using goldmark. Code blocks are kept
// as text; inline markup is dropped so it is not read aloud.
type MarkdownParser struct{}

func (p *MarkdownParser) Parse(r io.Reader, filename string) (*document.Document, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	root := goldmark.New().Parser().Parse(text.NewReader(src))
	outline := document.NewOutline()

	for n := root.FirstChild(); n != nil; n = n.NextSibling() {
		if h, ok := n.(*ast.Heading); ok {
			outline.Heading(h.Level, blockText(h, src))
			continue
		}
		outline.Paragraph(blockText(n, src))
	}

	return &document.Document{
		Title:    titleFromName(filename),
		Sections: outline.Sections(),
	}, nil
}

// blockText gets the plain text content of a goldmark AST node.
func blockText(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	// Leaf blocks (code, html) carry their content as raw lines; everything
	// else is rebuilt from inline children.
	if n.Type() == ast.TypeBlock && !n.HasChildren() {
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			buf.Write(seg.Value(src))
		}
	}
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch t := c.(type) {
		case *ast.Text:
			buf.Write(t.Segment.Value(src))
			if t.HardLineBreak() || t.SoftLineBreak() {
				buf.WriteByte('\n')
			}
		case *ast.String:
			buf.Write(t.Value)
		default:
			buf.WriteString(blockText(c, src))
			if c.Type() == ast.TypeBlock {
				buf.WriteByte('\n')
			}
		}
	}
	return strings.TrimSpace(buf.String())
}
