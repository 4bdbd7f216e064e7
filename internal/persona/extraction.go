package persona

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Defaults applied when extraction leaves a field empty.
const (
	DefaultPersonality = "neutral temperament"
	DefaultSituation   = "standing in your usual location"
)

// ErrExtractionDegraded marks an extraction that failed or lacked a
// personality. Setup continues with DefaultPersonality.
var ErrExtractionDegraded = errors.New("extraction degraded")

// Extraction holds the setup_npc arguments.
type Extraction struct {
	NPCName     string `json:"npc_name,omitempty"`
	Personality string `json:"personality"`
	Situation   string `json:"situation,omitempty"`
	Race        string `json:"race,omitempty"`
	NPCClass    string `json:"npc_class,omitempty"`
	Background  string `json:"background,omitempty"`
	Level       *int   `json:"level,omitempty"`
}

// extractionWire tolerates level sent as a number or a numeric string.
type extractionWire struct {
	NPCName     string          `json:"npc_name"`
	Personality string          `json:"personality"`
	Situation   string          `json:"situation"`
	Race        string          `json:"race"`
	NPCClass    string          `json:"npc_class"`
	Background  string          `json:"background"`
	Level       json.RawMessage `json:"level"`
}

// ParseExtraction decodes setup_npc arguments. A missing or blank
// personality yields a usable Extraction with DefaultPersonality together
// with ErrExtractionDegraded. Malformed JSON yields the default Extraction
// and ErrExtractionDegraded.
func ParseExtraction(raw []byte) (Extraction, error) {
	var wire extractionWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return Extraction{Personality: DefaultPersonality}, fmt.Errorf("%w: %v", ErrExtractionDegraded, err)
	}

	ex := Extraction{
		NPCName:     strings.TrimSpace(wire.NPCName),
		Personality: strings.TrimSpace(wire.Personality),
		Situation:   strings.TrimSpace(wire.Situation),
		Race:        strings.TrimSpace(wire.Race),
		NPCClass:    strings.TrimSpace(wire.NPCClass),
		Background:  strings.TrimSpace(wire.Background),
		Level:       parseLevel(wire.Level),
	}

	if ex.Personality == "" {
		ex.Personality = DefaultPersonality
		return ex, fmt.Errorf("%w: personality missing", ErrExtractionDegraded)
	}
	return ex, nil
}

func parseLevel(raw json.RawMessage) *int {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		if n <= 0 {
			return nil
		}
		level := int(n)
		return &level
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if level, err := strconv.Atoi(strings.TrimSpace(s)); err == nil && level > 0 {
			return &level
		}
	}
	return nil
}

// DialogueQuery is the text used to find a matching dialogue style.
func (e Extraction) DialogueQuery() string {
	situation := e.Situation
	if situation == "" {
		situation = DefaultSituation
	}
	return fmt.Sprintf("%s %s", e.Personality, situation)
}
