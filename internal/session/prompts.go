package session

import (
	"fmt"
	"strings"
)

// initialQuestionsPrompt generates the first turn's yes/no batch. Prior
// insights, when present, steer the questions toward what is already known
// about the user.
func initialQuestionsPrompt(topic string, priorInsights []string, count int) string {
	history := "none"
	if len(priorInsights) > 0 {
		history = strings.Join(priorInsights, "\n---\n")
	}
	return fmt.Sprintf(`You are a counselor opening a new session about "%s".
Write %d short yes/no questions that gently explore how the user feels about this topic.
Questions must be answerable with a simple yes or no, in the same language as the topic.

What we already know about this user from earlier sessions (use it to avoid repeating ground already covered):
%s

Respond ONLY with valid JSON in this exact format:
{"questions": ["question 1", "question 2"]}
Do not include any other text.`, topic, count, history)
}

// followupQuestionsPrompt generates the next turn's batch from the latest
// turn summary.
func followupQuestionsPrompt(topic, insights string, count int) string {
	return fmt.Sprintf(`You are a counselor continuing a session about "%s".
The summary of the previous turn is below. Write %d short yes/no follow-up questions that dig one level deeper into what surfaced.

Previous turn summary:
%s

Respond ONLY with valid JSON in this exact format:
{"questions": ["question 1", "question 2"]}
Do not include any other text.`, topic, count, insights)
}

// summaryPrompt turns one turn's question/answer ledger into a short titled
// insight. Hesitation times hint at ambivalence.
func summaryPrompt(topic string, answers []TurnAnswer) string {
	var lines []string
	for _, a := range answers {
		answer := "no"
		if a.Answer {
			answer = "yes"
		}
		lines = append(lines, fmt.Sprintf("Q: %s -> %s (hesitated %.1fs)", a.QuestionText, answer, a.Hesitation))
	}
	return fmt.Sprintf(`You are a counselor summarizing one round of a session about "%s".
Below are the questions and the user's yes/no swipes. A long hesitation suggests the user was unsure.
Write a short, warm summary of what this reveals about how the user feels, addressed to the user, plus a 3-6 word title.

Answers:
%s

Respond ONLY with valid JSON in this exact format:
{"title": "short title", "insights": "the summary text"}
Do not include any other text.`, topic, strings.Join(lines, "\n"))
}
