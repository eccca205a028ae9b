// Package document holds the text extracted from a source file before it is
// chunked for narration.
package document

import "strings"

// Document is the root of an extracted document.
type Document struct {
	Title    string     // From metadata or the file name
	Sections []*Section // Top-level sections in reading order
}

// Section is a recursive block of narratable text.
type Section struct {
	Title    string     // Heading, empty for untitled body text
	Text     string     // Body text, may be empty for container sections
	Page     int        // Source page (0 if N/A)
	Children []*Section // Subsections
}

// Text flattens the document in reading order. Headings are narrated as their
// own paragraph, and blocks are separated by a blank line.
func (d *Document) Text() string {
	if d == nil {
		return ""
	}
	var parts []string
	var walk func([]*Section)
	walk = func(secs []*Section) {
		for _, s := range secs {
			if t := strings.TrimSpace(s.Title); t != "" {
				parts = append(parts, t)
			}
			if t := strings.TrimSpace(s.Text); t != "" {
				parts = append(parts, t)
			}
			walk(s.Children)
		}
	}
	walk(d.Sections)
	return strings.Join(parts, "\n\n")
}

// Pages reports the highest page number seen, or 0 when the source has none.
func (d *Document) Pages() int {
	if d == nil {
		return 0
	}
	max := 0
	var walk func([]*Section)
	walk = func(secs []*Section) {
		for _, s := range secs {
			if s.Page > max {
				max = s.Page
			}
			walk(s.Children)
		}
	}
	walk(d.Sections)
	return max
}

// Outline assembles a section tree from a flat stream of headings and
// paragraphs, nesting each heading under the nearest shallower one.
type Outline struct {
	root  *Section
	stack []outlineEntry
	body  strings.Builder
}

type outlineEntry struct {
	sec   *Section
	level int
}

func NewOutline() *Outline {
	root := &Section{}
	return &Outline{root: root, stack: []outlineEntry{{sec: root}}}
}

// Heading opens a new section at the given level (1 = top).
func (o *Outline) Heading(level int, title string) {
	o.flush()
	sec := &Section{Title: title}
	for len(o.stack) > 1 && o.stack[len(o.stack)-1].level >= level {
		o.stack = o.stack[:len(o.stack)-1]
	}
	parent := o.stack[len(o.stack)-1].sec
	parent.Children = append(parent.Children, sec)
	o.stack = append(o.stack, outlineEntry{sec: sec, level: level})
}

// Paragraph appends body text to the innermost open section.
func (o *Outline) Paragraph(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if o.body.Len() > 0 {
		o.body.WriteString("\n\n")
	}
	o.body.WriteString(text)
}

func (o *Outline) flush() {
	t := strings.TrimSpace(o.body.String())
	o.body.Reset()
	if t == "" {
		return
	}
	top := o.stack[len(o.stack)-1].sec
	if top.Text != "" {
		top.Text += "\n\n" + t
	} else {
		top.Text = t
	}
}

// Sections closes the outline and returns the top-level sections. Text that
// appeared before the first heading becomes a leading untitled section.
func (o *Outline) Sections() []*Section {
	o.flush()
	var out []*Section
	if o.root.Text != "" {
		out = append(out, &Section{Text: o.root.Text})
	}
	return append(out, o.root.Children...)
}
