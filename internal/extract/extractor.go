// Package extract turns knowledge base files into plain text.
package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Func extracts text from the raw bytes of one file.
type Func func(content []byte) (string, error)

// Extractor dispatches on file extension to a registered Func.
type Extractor struct {
	handlers map[string]Func
}

// NewExtractor returns an Extractor that knows plain text, Markdown, CSV, PDF, DOCX,
// XLSX, RTF and ODT.
func NewExtractor() *Extractor {
	e := &Extractor{handlers: make(map[string]Func)}
	e.Register(extractPlain, ".txt", ".md", ".markdown", "")
	e.Register(extractCSV, ".csv")
	e.Register(extractPDF, ".pdf")
	e.Register(extractDOCX, ".docx")
	e.Register(extractExcel, ".xlsx")
	e.Register(catExtractor(".rtf"), ".rtf")
	e.Register(catExtractor(".odt"), ".odt")
	return e
}

// Register installs fn for the given extensions, replacing any existing handler.
func (e *Extractor) Register(fn Func, exts ...string) {
	for _, ext := range exts {
		e.handlers[normalizeExt(ext)] = fn
	}
}

// Supported reports whether ext has a registered handler.
func (e *Extractor) Supported(ext string) bool {
	_, ok := e.handlers[normalizeExt(ext)]
	return ok
}

// Extensions returns the registered extensions, sorted.
func (e *Extractor) Extensions() []string {
	out := make([]string, 0, len(e.handlers))
	for ext := range e.handlers {
		if ext != "" {
			out = append(out, ext)
		}
	}
	sort.Strings(out)
	return out
}

// Extract reads the file at path and returns its text.
func (e *Extractor) Extract(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return e.ExtractBytes(content, filepath.Ext(path))
}

// ExtractBytes extracts text from content using the handler for ext (with leading dot).
func (e *Extractor) ExtractBytes(content []byte, ext string) (string, error) {
	fn, ok := e.handlers[normalizeExt(ext)]
	if !ok {
		return "", fmt.Errorf("unsupported file type %q", ext)
	}
	text, err := fn(content)
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", ext, err)
	}
	return text, nil
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
