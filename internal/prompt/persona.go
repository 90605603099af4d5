// Package prompt renders the model input for one answer: persona preamble,
// knowledge context, recent turns and the new message, cut to a size budget.
package prompt

import (
	"strings"
	"text/template"

	"github.com/hyperjump/otasuke/internal/config"
)

var personaTemplate = template.Must(template.New("persona").Parse(
	`You are a helpful and professional customer service representative for {{.CompanyName}}.

Your responsibilities:
- Provide accurate, helpful information based on the context provided
- Be polite, empathetic, and professional at all times
- If you don't know the answer, admit it and offer to escalate to a human agent
- Keep responses concise but comprehensive

Business Hours: {{.BusinessHours}}
Support Email: {{.SupportEmail}}`))

// Persona renders the fixed preamble of every prompt from the business settings.
func Persona(b config.BusinessConfig) string {
	var sb strings.Builder
	// The template has no fallible actions; Execute only fails on writer errors.
	_ = personaTemplate.Execute(&sb, b)
	return sb.String()
}

// UngroundedNote is appended to the persona when the knowledge base could not be consulted.
const UngroundedNote = `The knowledge base is unavailable right now. Answer from the conversation ` +
	`alone, do not invent company policies, and offer to escalate to a human agent when unsure.`
