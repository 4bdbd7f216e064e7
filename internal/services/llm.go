package services

import (
	"context"
	"encoding/json"

	"github.com/jwebster45206/npc-engine/pkg/chat"
)

// LLMService defines the interface for interacting with the LLM API
type LLMService interface {
	// Extract forces a call to the setup_npc function for the given
	// description and returns the raw JSON arguments of that call.
	Extract(ctx context.Context, description string) (json.RawMessage, error)

	// Chat generates a free-form completion
	Chat(ctx context.Context, messages []chat.ChatMessage) (*chat.ChatResponse, error)
}

// Extraction function definition shared by every backend.
const (
	ExtractionToolName        = "setup_npc"
	ExtractionToolDescription = "Extract Dungeons and Dragons character information"
)

// ExtractionProperties is the JSON schema of the setup_npc arguments.
func ExtractionProperties() map[string]any {
	return map[string]any{
		"npc_name":    stringProperty("The character's name, if the description gives one"),
		"personality": stringProperty("A short summary of the character's temperament"),
		"situation":   stringProperty("Where the character is and what they are doing"),
		"race":        stringProperty("Fantasy race, e.g. Dwarf, Elf, Human"),
		"npc_class":   stringProperty("Character class, e.g. Fighter, Wizard"),
		"background":  stringProperty("Character background, e.g. Guild Artisan"),
		"level":       map[string]any{"type": "integer", "description": "Character level"},
	}
}

// ExtractionRequired lists the setup_npc arguments that must be present.
var ExtractionRequired = []string{"personality"}

// ExtractionSchema is the full object schema, as sent to OpenAI-compatible APIs.
func ExtractionSchema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": ExtractionProperties(),
		"required":   ExtractionRequired,
	}
}

func stringProperty(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}
