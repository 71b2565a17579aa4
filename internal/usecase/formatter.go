package usecase

import (
	"strings"

	"slack-ai-bridge/internal/domain"
)

// FormatConversation collapses an ordered thread into a prompt with strictly
// alternating roles. Consecutive turns with the same role are merged with a
// newline. appendText, when non-empty, is attached to a trailing user entry.
// The second return value is the number of bot turns seen.
func FormatConversation(turns []domain.ConversationTurn, appendText string) ([]domain.PromptMessage, int) {
	var (
		messages       []domain.PromptMessage
		assistantTurns int
	)
	for _, turn := range turns {
		role := turn.Role()
		text := turn.Text
		if role == domain.RoleAssistant {
			assistantTurns++
		} else {
			text = stripLeadingMentions(text)
		}

		if n := len(messages); n > 0 && messages[n-1].Role == role {
			messages[n-1].Content += "\n" + text
			continue
		}
		messages = append(messages, domain.PromptMessage{Role: role, Content: text})
	}

	if appendText != "" {
		if n := len(messages); n > 0 && messages[n-1].Role == domain.RoleUser {
			messages[n-1].Content += "\n" + appendText
		} else {
			messages = append(messages, domain.PromptMessage{Role: domain.RoleUser, Content: appendText})
		}
	}
	return messages, assistantTurns
}

// stripLeadingMentions removes "<@U123>" style tags at the start of text.
func stripLeadingMentions(text string) string {
	text = strings.TrimSpace(text)
	for strings.HasPrefix(text, "<@") {
		end := strings.IndexByte(text, '>')
		if end < 0 {
			break
		}
		text = strings.TrimSpace(text[end+1:])
	}
	return text
}
