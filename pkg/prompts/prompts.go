package prompts

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jwebster45206/npc-engine/pkg/actor"
)

// NPCSystemPrompt frames a single in-character reply. The verbs fill in name,
// character sheet, dialogue style and memory.
const NPCSystemPrompt = `You are %s.

### Character
%s

### Dialogue Style
Speak the way the following example lines do. Match their vocabulary and rhythm, not their content.
%s

### Past Interactions
%s

Respond in character to the player's message.`

// NPCReplyRules closes the system prompt.
const NPCReplyRules = `Stay in character. Do not acknowledge that you are an AI or a computer program. Keep the reply to a few sentences of speech and action.`

// MemoryPrefix introduces retrieved memories in the system prompt.
const MemoryPrefix = "Previous interactions: "

// Template keys rendered into the stat line rather than listed verbatim.
const (
	fieldHP         = "HP"
	fieldAC         = "AC"
	fieldAttributes = "attributes"
	fieldHash       = "hash"
)

// CharacterSheet renders a character template as prompt text: a d20 stat
// line when HP and AC are usable, followed by the remaining fields as sorted
// "key: value" lines.
func CharacterSheet(id string, template map[string]string) string {
	var lines []string

	statLine := ""
	if sb, err := actor.NewStatBlock(id, template[fieldHP], template[fieldAC], template[fieldAttributes]); err == nil {
		statLine = sb.Summary()
		lines = append(lines, "Stats: "+statLine)
	}

	keys := make([]string, 0, len(template))
	for k, v := range template {
		if strings.TrimSpace(v) == "" || k == fieldHash {
			continue
		}
		if statLine != "" && (k == fieldHP || k == fieldAC || k == fieldAttributes) {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%s: %s", k, template[k]))
	}
	return strings.Join(lines, "\n")
}

// DialogueStyle renders retrieved dialogue examples one per line.
func DialogueStyle(style []string) string {
	var sb strings.Builder
	for i, line := range style {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("- ")
		sb.WriteString(strings.TrimSpace(line))
	}
	return sb.String()
}
