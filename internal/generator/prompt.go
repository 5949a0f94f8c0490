package generator

import (
	"fmt"
	"strings"

	"loanquery/internal/domain"
)

// SystemPrompt frames every live request.
const SystemPrompt = "You are a data analyst answering questions about a loan approval dataset. " +
	"Use only the numbered records you are given and say so when they do not contain the answer."

// BuildPrompt numbers the retrieved sentences from 1 and appends the question
// and the grounding instruction.
func BuildPrompt(question string, results []domain.SearchResult) string {
	var b strings.Builder
	b.WriteString("Context:\n")
	for i, r := range results {
		fmt.Fprintf(&b, "%d. %s\n\n", i+1, r.Chunk.Text)
	}
	b.WriteString("\n\nQuestion: ")
	b.WriteString(question)
	b.WriteString("\n\nBased on the context provided above, please answer the question. ")
	b.WriteString("If the information needed to answer the question is not available in the context, please say so. ")
	b.WriteString("Provide a clear, concise answer that is grounded in the data provided.\n\nAnswer:")
	return b.String()
}
