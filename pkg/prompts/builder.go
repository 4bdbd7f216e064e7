package prompts

import (
	"fmt"

	"github.com/jwebster45206/npc-engine/pkg/chat"
)

// Builder constructs chat messages for one NPC reply using a fluent interface.
type Builder struct {
	npcID         string
	name          string
	template      map[string]string
	dialogueStyle []string
	memory        string
	playerText    string
	messages      []chat.ChatMessage
}

// New creates a new prompt builder.
func New() *Builder {
	return &Builder{
		messages: make([]chat.ChatMessage, 0),
	}
}

// WithCharacter sets the NPC's identity, display name and template.
func (b *Builder) WithCharacter(npcID, name string, template map[string]string) *Builder {
	b.npcID = npcID
	b.name = name
	b.template = template
	return b
}

// WithDialogueStyle sets the retrieved dialogue examples.
func (b *Builder) WithDialogueStyle(style []string) *Builder {
	b.dialogueStyle = style
	return b
}

// WithMemory sets the retrieved memory text.
func (b *Builder) WithMemory(memory string) *Builder {
	b.memory = memory
	return b
}

// WithPlayerText sets the player's message.
func (b *Builder) WithPlayerText(text string) *Builder {
	b.playerText = text
	return b
}

// Build returns [system, user] messages for LLM consumption.
func (b *Builder) Build() ([]chat.ChatMessage, error) {
	if b.name == "" {
		return nil, fmt.Errorf("npc name is required")
	}
	if b.template == nil {
		return nil, fmt.Errorf("character template is required")
	}
	if b.playerText == "" {
		return nil, fmt.Errorf("player text is required")
	}

	system := fmt.Sprintf(NPCSystemPrompt,
		b.name,
		CharacterSheet(b.npcID, b.template),
		DialogueStyle(b.dialogueStyle),
		MemoryPrefix+b.memory,
	)

	b.messages = []chat.ChatMessage{
		{Role: chat.ChatRoleSystem, Content: system + "\n" + NPCReplyRules},
		{Role: chat.ChatRoleUser, Content: b.playerText},
	}
	return b.messages, nil
}
