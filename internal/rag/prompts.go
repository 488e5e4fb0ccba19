package rag

import (
	"fmt"
	"strings"
)

// keywordPrompt asks for a short search query distilled from the user's
// free-form report. Search backends reject very long queries, so the output
// is bounded.
func keywordPrompt(query string) string {
	return fmt.Sprintf(`You are a search assistant for a counseling service.
Extract a short web-search keyword phrase (at most 10 words, same language as the input) that captures the core concern below.
Respond with the keyword phrase only, no quotes or explanation.

Concern:
%s`, query)
}

// synthesisPrompt composes the final advice from the ranked chunks. Each
// mode carries its own tone: peer stories stay empathetic, suggestions stay
// structured and actionable.
func synthesisPrompt(mode Mode, query string, chunks []string) string {
	var numbered []string
	for i, c := range chunks {
		numbered = append(numbered, fmt.Sprintf("[%d] %s", i+1, c))
	}
	excerpts := strings.Join(numbered, "\n\n")

	if mode == ModeSimilarCases {
		return fmt.Sprintf(`You are a warm, empathetic counselor. The user shared the concern below, and the excerpts come from accounts of people in similar situations.
Write a gentle response that helps the user feel less alone: reflect their feelings, and weave in what others in similar situations experienced.
Do not lecture, do not give numbered instructions, and never mention "excerpts" or "sources".

User's concern:
%s

Excerpts:
%s`, query, excerpts)
	}

	return fmt.Sprintf(`You are a practical counselor. The user shared the concern below, and the excerpts contain relevant guidance.
Write concrete, actionable advice as a short list of steps the user can realistically try, grounded in the excerpts.
Keep it encouraging but specific. Never mention "excerpts" or "sources".

User's concern:
%s

Excerpts:
%s`, query, excerpts)
}
