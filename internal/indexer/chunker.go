// Package indexer splits knowledge documents into chunks and keeps storage, the
// vector index and the keyword index in step.
package indexer

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/hyperjump/otasuke/internal/models"
)

// Chunker splits text into overlapping character windows that end on whitespace.
// Markdown headings start a new section; chunks never span two sections.
type Chunker struct {
	chunkSize    int
	chunkOverlap int
}

// NewChunker creates a chunker with the given size and overlap, in characters.
func NewChunker(chunkSize, chunkOverlap int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = 0
	}
	return &Chunker{chunkSize: chunkSize, chunkOverlap: chunkOverlap}
}

type section struct {
	heading string
	body    string
}

// Chunk splits text into chunks of doc. Chunk IDs are "<docID>#<index>".
func (c *Chunker) Chunk(docID, title, text string) []*models.KnowledgeChunk {
	var chunks []*models.KnowledgeChunk
	for _, sec := range splitSections(text) {
		for _, piece := range c.split(sec.body) {
			chunks = append(chunks, &models.KnowledgeChunk{
				ID:         fmt.Sprintf("%s#%d", docID, len(chunks)),
				DocumentID: docID,
				Content:    piece,
				Title:      title,
				Section:    sec.heading,
				ChunkIndex: len(chunks),
			})
		}
	}
	return chunks
}

// splitSections cuts text at Markdown ATX headings. The heading line stays at the
// top of its section's body so it is embedded with the text it introduces.
func splitSections(text string) []section {
	var (
		out     []section
		current section
		lines   []string
	)
	flush := func() {
		current.body = strings.TrimSpace(strings.Join(lines, "\n"))
		if current.body != "" {
			out = append(out, current)
		}
		lines = nil
	}
	for _, line := range strings.Split(text, "\n") {
		if heading, ok := parseHeading(line); ok {
			flush()
			current = section{heading: heading}
		}
		lines = append(lines, line)
	}
	flush()
	return out
}

func parseHeading(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	level := 0
	for level < len(trimmed) && trimmed[level] == '#' {
		level++
	}
	if level == 0 || level > 6 || level == len(trimmed) || trimmed[level] != ' ' {
		return "", false
	}
	return strings.TrimSpace(strings.TrimRight(trimmed[level:], "# ")), true
}

// split packs whitespace-separated words into windows of at most chunkSize
// characters. Each window after the first repeats up to chunkOverlap characters of
// trailing words from the previous one. A word longer than chunkSize is cut.
func (c *Chunker) split(text string) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	var (
		out    []string
		window []string
		length int
		fresh  int // words added since the last emitted window
	)
	emit := func() {
		out = append(out, strings.Join(window, " "))
		// Carry trailing words that fit in the overlap into the next window.
		keep, kept := 0, 0
		for i := len(window) - 1; i >= 0; i-- {
			n := utf8.RuneCountInString(window[i]) + 1
			if kept+n > c.chunkOverlap+1 {
				break
			}
			kept += n
			keep++
		}
		window = append([]string(nil), window[len(window)-keep:]...)
		length = 0
		for _, w := range window {
			length += utf8.RuneCountInString(w) + 1
		}
		fresh = 0
	}
	for _, word := range words {
		for utf8.RuneCountInString(word) > c.chunkSize {
			runes := []rune(word)
			if fresh > 0 {
				emit()
			}
			window, length = []string{string(runes[:c.chunkSize])}, c.chunkSize+1
			fresh = 1
			emit()
			window, length = nil, 0
			word = string(runes[c.chunkSize:])
		}
		n := utf8.RuneCountInString(word)
		if length+n > c.chunkSize && fresh > 0 {
			emit()
			// Drop overlap words that would push the new word over the limit.
			for len(window) > 0 && length+n > c.chunkSize {
				length -= utf8.RuneCountInString(window[0]) + 1
				window = window[1:]
			}
		}
		window = append(window, word)
		length += n + 1
		fresh++
	}
	if fresh > 0 {
		out = append(out, strings.Join(window, " "))
	}
	return out
}
