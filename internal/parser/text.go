package parser

import (
	"bufio"
	"io"
	"strings"

	"github.com/dgallion1/docaudio/internal/document"
)

// TextParser handles plain text files. Blank lines separate paragraphs.
type TextParser struct{}

func (p *TextParser) Parse(r io.Reader, filename string) (*document.Document, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	doc := &document.Document{Title: titleFromName(filename)}
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			doc.Sections = append(doc.Sections, &document.Section{Text: current.String()})
			current.Reset()
		}
	}

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		if current.Len() > 0 {
			current.WriteByte('\n')
		}
		current.WriteString(line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	flush()

	return doc, nil
}
