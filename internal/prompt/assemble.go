package prompt

import (
	"fmt"
	"strings"

	"github.com/hyperjump/otasuke/internal/llm"
	"github.com/hyperjump/otasuke/internal/models"
	"github.com/hyperjump/otasuke/pkg/utils"
)

// Input is what Assemble works from. Chunks are most similar first; History is
// oldest first.
type Input struct {
	Preamble string
	Chunks   models.RetrievalResult
	History  []models.Turn
	Message  string
	// Budget is the maximum rendered size in characters. Zero means unlimited.
	Budget int
}

// Prompt is the assembled model input together with what survived truncation.
type Prompt struct {
	System   string
	Messages []llm.Message
	Chunks   models.RetrievalResult
	History  []models.Turn
	Size     int
}

// Citations returns the distinct sources of the included chunks in prompt order.
func (p Prompt) Citations() []string {
	return p.Chunks.Sources()
}

// Assemble renders in and cuts it to the budget. While the prompt is too large the
// lowest-scoring chunk is dropped; once no chunks remain the oldest exchange is
// dropped. History always opens with a user turn, so an assistant turn left at the
// front by the window or by truncation is dropped too. The preamble and the new
// message are always kept, so the result may still exceed the budget when they
// alone do.
func Assemble(in Input) Prompt {
	chunks := append(models.RetrievalResult(nil), in.Chunks...)
	history := dropLeadingAssistant(append([]models.Turn(nil), in.History...))
	for {
		p := render(in.Preamble, chunks, history, in.Message)
		if in.Budget <= 0 || p.Size <= in.Budget {
			return p
		}
		switch {
		case len(chunks) > 0:
			chunks = chunks[:len(chunks)-1]
		case len(history) > 0:
			history = dropLeadingAssistant(history[1:])
		default:
			return p
		}
	}
}

func dropLeadingAssistant(history []models.Turn) []models.Turn {
	for len(history) > 0 && history[0].Role == models.RoleAssistant {
		history = history[1:]
	}
	return history
}

func render(preamble string, chunks models.RetrievalResult, history []models.Turn, message string) Prompt {
	var sys strings.Builder
	sys.WriteString(preamble)
	if len(chunks) > 0 {
		sys.WriteString("\n\nContext from knowledge base:\n")
		for i, sc := range chunks {
			fmt.Fprintf(&sys, "\n[%d] (source: %s)\n%s\n", i+1, sc.Chunk.DocumentID, sc.Chunk.Content)
		}
	}
	p := Prompt{
		System:   sys.String(),
		Messages: make([]llm.Message, 0, len(history)+1),
		Chunks:   chunks,
		History:  history,
	}
	p.Size = utils.RuneLen(p.System)
	for _, t := range history {
		role := llm.RoleUser
		if t.Role == models.RoleAssistant {
			role = llm.RoleAssistant
		}
		p.Messages = append(p.Messages, llm.Message{Role: role, Content: t.Text})
		p.Size += utils.RuneLen(t.Text)
	}
	p.Messages = append(p.Messages, llm.Message{Role: llm.RoleUser, Content: message})
	p.Size += utils.RuneLen(message)
	return p
}
