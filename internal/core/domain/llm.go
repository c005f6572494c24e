package domain

import "time"

// Role of a conversation turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage is one turn of a conversation context.
type ChatMessage struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// ChatRequest is what the dispatch stage hands to an LLM provider.
type ChatRequest struct {
	Model        string
	SystemPrompt string
	// History holds the prior turns, oldest first, excluding Prompt.
	History     []ChatMessage
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// ChatResponse is the provider's generated reply.
type ChatResponse struct {
	Text             string
	Model            string
	PromptTokens     int
	CompletionTokens int
}
