package prompt

import (
	"fmt"
	"strings"
	"testing"

	"github.com/hyperjump/otasuke/internal/models"
)

func BenchmarkAssemble_overBudget(b *testing.B) {
	var chunks models.RetrievalResult
	for i := 0; i < 8; i++ {
		chunks = append(chunks, chunk(fmt.Sprintf("c%d", i), "faq.txt", 1-float64(i)/10, strings.Repeat("policy ", 150)))
	}
	var history []models.Turn
	for i := 0; i < 10; i++ {
		history = append(history, models.Turn{Role: models.RoleUser, Text: strings.Repeat("question ", 40)})
	}
	in := Input{Preamble: "You are a helpful assistant.", Chunks: chunks, History: history, Message: "What is the return window?", Budget: 4000}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Assemble(in)
	}
}
