// Package chunker splits narration text into overlapping pieces sized for a
// single text-to-speech request.
package chunker

import "strings"

// Chunk is a contiguous slice of the source text.
type Chunk struct {
	Index   int    // Position in the chunk sequence, contiguous from 0
	Content string // Exact substring of the source text
}

// Config controls chunking behavior. Sizes are measured in characters
// (Unicode code points), not bytes or tokens.
type Config struct {
	ChunkSize    int // Target maximum chunk length.
	ChunkOverlap int // Characters repeated at the start of the next chunk.
}

// DefaultConfig returns the reference sizes: 2000 characters with a 10% overlap.
func DefaultConfig() Config {
	return Config{
		ChunkSize:    2000,
		ChunkOverlap: 200,
	}
}

// OverlapFor returns the default overlap for a chunk size.
func OverlapFor(size int) int {
	if size <= 0 {
		return 0
	}
	return size / 10
}

// Split is shorthand for Config{size, overlap}.Split(text).
func Split(text string, size, overlap int) []Chunk {
	return Config{ChunkSize: size, ChunkOverlap: overlap}.Split(text)
}

// Split cuts text into chunks of about ChunkSize characters. Each chunk
// prefers to end just after the last '.' or '\n' inside a search window near
// its end; a newline wins when it falls at or after the period. The window
// includes the rune at ChunkSize, so a chunk can reach ChunkSize+1. With no
// delimiter in the window the chunk is cut hard at ChunkSize. The next chunk
// starts ChunkOverlap characters before the previous end, but always moves
// forward. Chunks that are blank after trimming are dropped and the rest are
// re-indexed.
func (c Config) Split(text string) []Chunk {
	if text == "" {
		return nil
	}
	size := c.ChunkSize
	if size <= 0 {
		size = DefaultConfig().ChunkSize
	}
	overlap := c.ChunkOverlap
	if overlap < 0 {
		overlap = 0
	}

	runes := []rune(text)
	n := len(runes)

	var chunks []Chunk
	emit := func(from, to int) {
		s := string(runes[from:to])
		if strings.TrimSpace(s) == "" {
			return
		}
		chunks = append(chunks, Chunk{Index: len(chunks), Content: s})
	}

	start := 0
	for start < n {
		end := start + size
		if end >= n {
			emit(start, n)
			break
		}

		winStart := start + size - overlap - size/4
		if winStart < start {
			winStart = start
		}
		brk := -1
		if i := lastIndex(runes, '.', winStart, end+1); i >= 0 {
			brk = i + 1
		}
		if i := lastIndex(runes, '\n', winStart, end+1); i >= 0 && i+1 > brk {
			brk = i + 1
		}

		cut := end // end < n here
		if brk > start {
			cut = brk
		}
		emit(start, cut)

		next := cut - overlap
		if next <= start {
			next = cut
		}
		start = next
	}
	return chunks
}

// lastIndex returns the last position of r within runes[from:to], or -1.
func lastIndex(runes []rune, r rune, from, to int) int {
	if to > len(runes) {
		to = len(runes)
	}
	for i := to - 1; i >= from; i-- {
		if runes[i] == r {
			return i
		}
	}
	return -1
}
