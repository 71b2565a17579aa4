package domain

import (
	"errors"
	"fmt"
)

// Role is the speaker of a prompt entry sent to the inference endpoint.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// PromptMessage is the provider-agnostic chat message shape used by the
// formatter and the LLM integrations.
type PromptMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ValidatePrompt checks the shape every provider requires before submission:
// non-empty, strictly alternating roles, ending with a user entry.
func ValidatePrompt(messages []PromptMessage) error {
	if len(messages) == 0 {
		return errors.New("prompt is empty")
	}
	for i, m := range messages {
		if m.Role != RoleUser && m.Role != RoleAssistant {
			return fmt.Errorf("prompt entry %d has unknown role %q", i, m.Role)
		}
		if i > 0 && messages[i-1].Role == m.Role {
			return fmt.Errorf("prompt entries %d and %d share role %q", i-1, i, m.Role)
		}
	}
	if last := messages[len(messages)-1]; last.Role != RoleUser {
		return fmt.Errorf("prompt must end with a user entry, got %q", last.Role)
	}
	return nil
}
