package llm

import (
	"fmt"
	"strings"
)

const bioSystemPrompt = "You are a professional biography writer. You write concise, " +
	"factual-sounding professional profiles in plain prose."

// buildGeminiPrompt returns the single-turn prompt sent to Gemini
func buildGeminiPrompt(req GenerationRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write a professional biography for %s, who works as %s.\n\n",
		strings.TrimSpace(req.SubjectName), withArticle(req.RoleLabel))
	b.WriteString("Requirements:\n")
	b.WriteString("- Write in the third person.\n")
	b.WriteString("- Keep it between 100 and 200 words.\n")
	b.WriteString("- Use a professional tone.\n")
	fmt.Fprintf(&b, "- Emphasize their expertise, experience and engagement as %s.\n", withArticle(req.RoleLabel))
	b.WriteString("- Return only the biography text with no title, markdown, lists or quotation marks.")
	return b.String()
}

// buildOpenAIPrompt returns the user message sent after bioSystemPrompt
func buildOpenAIPrompt(req GenerationRequest) string {
	return fmt.Sprintf(
		"Create a 100-200 word professional biography in the third person for %s, whose role is %s. "+
			"Focus on their expertise, professional experience and engagement in this role. "+
			"Respond with the biography paragraph only, without headings or formatting.",
		strings.TrimSpace(req.SubjectName), strings.TrimSpace(req.RoleLabel))
}

func withArticle(role string) string {
	role = strings.TrimSpace(role)
	if role == "" {
		return role
	}
	switch strings.ToLower(role[:1]) {
	case "a", "e", "i", "o", "u":
		return "an " + role
	default:
		return "a " + role
	}
}
