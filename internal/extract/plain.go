package extract

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// extractPlain returns content as a string, replacing invalid UTF-8 sequences.
func extractPlain(content []byte) (string, error) {
	content = bytes.TrimPrefix(content, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(content) {
		return strings.ToValidUTF8(string(content), "\uFFFD"), nil
	}
	return string(content), nil
}

// extractCSV renders each data row as "header: value" lines, rows separated by a
// blank line. The first row is the header.
func extractCSV(content []byte) (string, error) {
	text, _ := extractPlain(content)
	r := csv.NewReader(strings.NewReader(text))
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read csv header: %w", err)
	}
	var rows [][]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("read csv: %w", err)
		}
		rows = append(rows, rec)
	}
	return renderRows(header, rows), nil
}

// renderRows formats table rows as labelled fields. Missing headers fall back to
// the column number.
func renderRows(header []string, rows [][]string) string {
	var b strings.Builder
	for i, row := range rows {
		if i > 0 {
			b.WriteString("\n")
		}
		for j, cell := range row {
			cell = strings.TrimSpace(cell)
			if cell == "" {
				continue
			}
			label := ""
			if j < len(header) {
				label = strings.TrimSpace(header[j])
			}
			if label == "" {
				label = fmt.Sprintf("column %d", j+1)
			}
			fmt.Fprintf(&b, "%s: %s\n", label, cell)
		}
	}
	return strings.TrimSpace(b.String())
}
