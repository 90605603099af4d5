package chat

import (
	"github.com/hyperjump/otasuke/internal/models"
	"github.com/hyperjump/otasuke/internal/prompt"
)

// answerStrategy decides what knowledge goes into the prompt.
type answerStrategy interface {
	grounded() bool
	preamble(persona string) string
	chunks() models.RetrievalResult
}

// groundedStrategy answers from retrieved chunks.
type groundedStrategy struct {
	result models.RetrievalResult
}

func (s groundedStrategy) grounded() bool { return true }
func (s groundedStrategy) preamble(persona string) string { return persona }
func (s groundedStrategy) chunks() models.RetrievalResult { return s.result }

// degradedStrategy answers without knowledge after retrieval failed.
type degradedStrategy struct{}

func (s degradedStrategy) grounded() bool { return false }
func (s degradedStrategy) preamble(persona string) string {
	return persona + "\n\n" + prompt.UngroundedNote
}
func (s degradedStrategy) chunks() models.RetrievalResult { return nil }
