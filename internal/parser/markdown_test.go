package parser

import (
	"strings"
	"testing"
)

func TestMarkdownParser_HeadingHierarchy(t *testing.T) {
	input := `# Title

Intro text.

## Section A

Section A content.

### Subsection A1

Subsection A1 content.

## Section B

Section B content.
`
	p := &MarkdownParser{}
	doc, err := p.Parse(strings.NewReader(input), "doc.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if doc.Title != "doc" {
		t.Errorf("expected title %q, got %q", "doc", doc.Title)
	}
	if len(doc.Sections) != 1 {
		t.Fatalf("expected 1 top-level section (h1), got %d", len(doc.Sections))
	}

	h1 := doc.Sections[0]
	if h1.Title != "Title" {
		t.Errorf("expected h1 title %q, got %q", "Title", h1.Title)
	}
	if h1.Text != "Intro text." {
		t.Errorf("expected h1 text %q, got %q", "Intro text.", h1.Text)
	}
	if len(h1.Children) != 2 {
		t.Fatalf("expected 2 h2 children, got %d", len(h1.Children))
	}

	secA := h1.Children[0]
	if secA.Title != "Section A" || secA.Text != "Section A content." {
		t.Errorf("unexpected section A: %q / %q", secA.Title, secA.Text)
	}
	if len(secA.Children) != 1 || secA.Children[0].Title != "Subsection A1" {
		t.Fatalf("expected Subsection A1 under Section A, got %+v", secA.Children)
	}
	if h1.Children[1].Title != "Section B" {
		t.Errorf("expected %q, got %q", "Section B", h1.Children[1].Title)
	}
}

func TestMarkdownParser_InlineMarkupNotDuplicated(t *testing.T) {
	p := &MarkdownParser{}
	doc, err := p.Parse(strings.NewReader("Some *emphasis* and `code` here."), "inline.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := doc.Text(); got != "Some emphasis and code here." {
		t.Errorf("Text() = %q", got)
	}
}

func TestMarkdownParser_NoHeadings(t *testing.T) {
	input := "Just some plain text.\n\nAnother paragraph here."

	p := &MarkdownParser{}
	doc, err := p.Parse(strings.NewReader(input), "plain.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(doc.Sections) != 1 {
		t.Fatalf("expected 1 section for headingless markdown, got %d", len(doc.Sections))
	}
	if got := doc.Sections[0].Text; got != "Just some plain text.\n\nAnother paragraph here." {
		t.Errorf("unexpected text %q", got)
	}
}

func TestMarkdownParser_CodeBlocks(t *testing.T) {
	input := "# API Reference\n\nSome intro.\n\n## Endpoints\n\n```\nGET /api/users\nPOST /api/users\n```\n\nMore text after code.\n"

	p := &MarkdownParser{}
	doc, err := p.Parse(strings.NewReader(input), "api.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(doc.Sections) != 1 || len(doc.Sections[0].Children) != 1 {
		t.Fatalf("unexpected structure: %+v", doc.Sections)
	}
	endpoints := doc.Sections[0].Children[0]
	if !strings.Contains(endpoints.Text, "GET /api/users\nPOST /api/users") {
		t.Errorf("expected code block content in text, got %q", endpoints.Text)
	}
	if !strings.Contains(endpoints.Text, "More text after code.") {
		t.Errorf("expected post-code text, got %q", endpoints.Text)
	}
}

func TestMarkdownParser_TitleStripping(t *testing.T) {
	tests := []struct {
		filename string
		want     string
	}{
		{"readme.md", "readme"},
		{"notes.markdown", "notes"},
	}
	p := &MarkdownParser{}
	for _, tt := range tests {
		doc, err := p.Parse(strings.NewReader("text"), tt.filename)
		if err != nil {
			t.Fatalf("unexpected error for %s: %v", tt.filename, err)
		}
		if doc.Title != tt.want {
			t.Errorf("filename=%q: expected title %q, got %q", tt.filename, tt.want, doc.Title)
		}
	}
}
