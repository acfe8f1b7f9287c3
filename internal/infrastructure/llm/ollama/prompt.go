package ollama

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/admissions-rag/internal/core/domain"
)

const (
	relevanceDocs     = 3
	relevanceSnippet  = 400
	rewriteMaxWords   = 20
	historyTurnsLimit = 6
	historyTurnRunes  = 800
)

func buildRouterPrompt(query string) string {
	return `You classify questions sent to an assistant for Indian colleges and entrance exams.
Pick exactly one category:
COLLEGE - a specific named college: admission process, fees, hostel, placements, scholarships, courses, campus.
EXAM - an entrance exam: dates, pattern, admit card, result, syllabus, registration.
COMPARISON - two or more colleges compared with each other.
PREDICTOR - the user has a rank, score or percentile and asks which colleges they can get. "Admission process" questions are COLLEGE, not PREDICTOR.
TOP_COLLEGES - top, best or popular colleges by location, ranking or course, without a rank of the user.
GENERAL - anything else, such as career guidance.

Return a strict JSON object with keys:
category (string), college_names (array of strings), exam_names (array of strings), location (string), rank_score (string).
Use empty arrays and empty strings for values that are not mentioned. No markdown, no extra keys.

Question:
` + query
}

func buildRelevancePrompt(query string, docs []domain.RetrievedDocument) string {
	if len(docs) > relevanceDocs {
		docs = docs[:relevanceDocs]
	}
	snippets := make([]string, 0, len(docs))
	for _, doc := range docs {
		snippets = append(snippets, truncate(doc.Text, relevanceSnippet))
	}

	return fmt.Sprintf(`You judge whether retrieved snippets help answer a question.

Question: %s

Snippets:
%s

Reply with exactly one word: relevant, partial or irrelevant.
relevant: the snippets answer the question directly.
partial: the snippets are related but incomplete.
irrelevant: the snippets are off-topic or empty.`, query, strings.Join(snippets, "\n---\n"))
}

func buildRewritePrompt(query string, category domain.Category) string {
	return fmt.Sprintf(`Rewrite this search query to retrieve better documents for the %s category about Indian colleges and education.
Expand abbreviations and add useful keywords. Keep it under %d words.

Original query: %s

Return only the rewritten query.`, category, rewriteMaxWords, query)
}

func buildSystemPrompt(pc domain.PromptContext, web []WebResult, externalRequested bool) string {
	var b strings.Builder
	b.WriteString("You are an admissions assistant with expert knowledge of Indian colleges, universities and entrance exams.\n")

	local := strings.TrimSpace(pc.Text)
	switch {
	case local != "":
		b.WriteString("Answer from the context below. Do not invent figures that the context does not contain.\n")
		if externalRequested {
			b.WriteString("The local context may be incomplete. Use the web results to fill gaps and say when you do.\n")
		}
		b.WriteString("\nContext from the admissions database:\n")
		b.WriteString(local)
		b.WriteString("\n")
	default:
		b.WriteString("No local data matched this question. Answer from general knowledge and the web results if any, and say when information may be outdated.\n")
	}

	if len(web) > 0 {
		b.WriteString("\nWeb results:\n")
		for i, result := range web {
			fmt.Fprintf(&b, "[%d] %s\n%s\nSource: %s\n", i+1, result.Title, truncate(result.Content, 1200), result.URL)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// buildConversationPrompt renders the recent turns followed by the question.
func buildConversationPrompt(history []domain.Turn, query string) string {
	if len(history) > historyTurnsLimit {
		history = history[len(history)-historyTurnsLimit:]
	}
	if len(history) == 0 {
		return query
	}

	var b strings.Builder
	b.WriteString("Conversation so far:\n")
	for _, turn := range history {
		role := "User"
		if turn.Role == "assistant" {
			role = "Assistant"
		}
		fmt.Fprintf(&b, "%s: %s\n", role, truncate(strings.TrimSpace(turn.Text), historyTurnRunes))
	}
	b.WriteString("\nCurrent question: ")
	b.WriteString(query)
	return b.String()
}

func truncate(text string, limit int) string {
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	return string([]rune(text)[:limit])
}
