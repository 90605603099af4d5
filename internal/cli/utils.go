// Package cli provides output helpers for the otasuke command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/otasuke/internal/indexer"
	"github.com/hyperjump/otasuke/internal/models"
	"github.com/hyperjump/otasuke/pkg/utils"
)

// OutputFormat selects how command results are written.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseFormat returns the OutputFormat named by s.
func ParseFormat(s string) (OutputFormat, error) {
	switch strings.ToLower(s) {
	case "", "text":
		return OutputText, nil
	case "json":
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q (supported: text, json)", s)
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteSearchResults writes knowledge search hits to w in the given format.
func WriteSearchResults(w io.Writer, response *models.KnowledgeSearchResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, response)
	}
	fmt.Fprintf(w, "\nFound %d %s results in %dms\n\n", len(response.Hits), response.Mode, response.QueryTime)
	for _, hit := range response.Hits {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "Rank: %d | Score: %.4f\n", hit.Rank, hit.Score)
		fmt.Fprintf(w, "Source: %s (%s)\n", hit.Source, hit.ChunkID)
		if hit.Section != "" {
			fmt.Fprintf(w, "Section: %s\n", hit.Section)
		}
		fmt.Fprintf(w, "\n%s\n\n", Truncate(hit.Text, 200))
	}
	return nil
}

// WriteAnswer writes one assistant reply. Text output lists the cited sources
// and marks answers given without knowledge base context.
func WriteAnswer(w io.Writer, rec *models.AnswerRecord, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, rec)
	}
	fmt.Fprintf(w, "Assistant: %s\n", rec.Text)
	if len(rec.Citations) > 0 {
		fmt.Fprintf(w, "  sources: %s\n", strings.Join(rec.Citations, ", "))
	}
	if !rec.Grounded {
		fmt.Fprintln(w, "  (knowledge base unavailable)")
	}
	return nil
}

// WriteHistory writes a session transcript, oldest turn first.
func WriteHistory(w io.Writer, sessionID string, turns []models.Turn, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, map[string]interface{}{"session_id": sessionID, "messages": turns})
	}
	if len(turns) == 0 {
		fmt.Fprintf(w, "No history for session %s\n", sessionID)
		return nil
	}
	for _, t := range turns {
		fmt.Fprintf(w, "[%s] %s: %s\n", t.Timestamp.Format("15:04:05"), t.Role, t.Text)
	}
	return nil
}

// WriteReport writes the outcome of a knowledge base build or update.
func WriteReport(w io.Writer, report indexer.Report, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, report)
	}
	fmt.Fprintf(w, "Files: %d, indexed: %d, unchanged: %d, removed: %d, failed: %d, chunks: %d\n",
		report.Files, report.Indexed, report.Unchanged, report.Removed, report.Failed, report.Chunks)
	for _, e := range report.Errors {
		fmt.Fprintf(w, "  error: %s\n", e)
	}
	return nil
}

// Truncate shortens s to maxLen runes and appends "..." if truncated.
func Truncate(s string, maxLen int) string {
	return utils.Truncate(s, maxLen)
}

// TruncateWords returns up to maxWords from the space-separated string.
func TruncateWords(s string, maxWords int) string {
	words := strings.Fields(s)
	if len(words) <= maxWords {
		return s
	}
	return strings.Join(words[:maxWords], " ") + "..."
}
