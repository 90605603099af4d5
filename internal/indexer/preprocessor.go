package indexer

import (
	"strings"
	"unicode"
)

// Preprocess normalizes extracted text while keeping its line structure: CRLF
// becomes LF, runs of spaces and tabs collapse to one space, lines are trimmed, and
// consecutive blank lines collapse to one.
func Preprocess(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	blank := true
	for _, line := range lines {
		line = collapseSpaces(line)
		if line == "" {
			if !blank {
				out = append(out, "")
			}
			blank = true
			continue
		}
		out = append(out, line)
		blank = false
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

func collapseSpaces(line string) string {
	var b strings.Builder
	space := false
	for _, r := range strings.TrimSpace(line) {
		if unicode.IsSpace(r) {
			if !space {
				b.WriteByte(' ')
			}
			space = true
			continue
		}
		b.WriteRune(r)
		space = false
	}
	return b.String()
}
