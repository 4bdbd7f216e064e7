package chat

import (
	"fmt"
	"strings"
)

const (
	ChatRoleUser   = "user"      // Player
	ChatRoleAgent  = "assistant" // NPC
	ChatRoleSystem = "system"    // Persona and context
)

// ChatMessage represents a single chat message sent to the LLM.
type ChatMessage struct {
	Role    string `json:"role"` // "user", "assistant", "system"
	Content string `json:"content"`
}

// ChatResponse is the completion returned by an LLM backend.
type ChatResponse struct {
	Message string `json:"message,omitempty"`
}

// Speaker labels used when a turn is written to long-term memory.
const (
	PlayerLabel = "Player"
	NPCLabel    = "You"
)

// FormatExchange renders one completed turn the way it is remembered.
func FormatExchange(playerText, reply string) string {
	return fmt.Sprintf("%s: %s\n%s: %s", PlayerLabel, playerText, NPCLabel, reply)
}

// IsBlank reports whether a completion carries no usable text.
func (r *ChatResponse) IsBlank() bool {
	return r == nil || strings.TrimSpace(r.Message) == ""
}
