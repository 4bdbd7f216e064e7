package actor

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jwebster45206/d20"
)

// Stats5e represents the six core D&D 5e ability scores
type Stats5e struct {
	Strength     int `json:"strength"`
	Dexterity    int `json:"dexterity"`
	Constitution int `json:"constitution"`
	Intelligence int `json:"intelligence"`
	Wisdom       int `json:"wisdom"`
	Charisma     int `json:"charisma"`
}

// ToAttributes converts Stats5e to a map for d20.Actor compatibility.
// Zero scores are omitted.
func (s *Stats5e) ToAttributes() map[string]int {
	attrs := map[string]int{
		"strength":     s.Strength,
		"dexterity":    s.Dexterity,
		"constitution": s.Constitution,
		"intelligence": s.Intelligence,
		"wisdom":       s.Wisdom,
		"charisma":     s.Charisma,
	}
	for k, v := range attrs {
		if v == 0 {
			delete(attrs, k)
		}
	}
	return attrs
}

var abilityOrder = []struct {
	key   string
	short string
}{
	{"strength", "STR"},
	{"dexterity", "DEX"},
	{"constitution", "CON"},
	{"intelligence", "INT"},
	{"wisdom", "WIS"},
	{"charisma", "CHA"},
}

// ParseStats reads a flattened ability list such as
// "Strength: 15, Dexterity: 12". Unknown names and unparsable scores are
// skipped.
func ParseStats(s string) Stats5e {
	var stats Stats5e
	for _, part := range strings.Split(s, ",") {
		name, value, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		score, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "strength", "str":
			stats.Strength = score
		case "dexterity", "dex":
			stats.Dexterity = score
		case "constitution", "con":
			stats.Constitution = score
		case "intelligence", "int":
			stats.Intelligence = score
		case "wisdom", "wis":
			stats.Wisdom = score
		case "charisma", "cha":
			stats.Charisma = score
		}
	}
	return stats
}

// Modifier returns the 5e ability modifier for a score.
func Modifier(score int) int {
	diff := score - 10
	if diff < 0 {
		return (diff - 1) / 2
	}
	return diff / 2
}

// StatBlock is the combat-relevant part of an NPC template, backed by a
// d20.Actor.
type StatBlock struct {
	Actor *d20.Actor
}

// NewStatBlock builds a stat block from template fields. HP and AC are
// required; attributes are optional.
func NewStatBlock(id string, hp, ac string, attributes string) (*StatBlock, error) {
	maxHP, err := strconv.Atoi(strings.TrimSpace(hp))
	if err != nil || maxHP <= 0 {
		return nil, fmt.Errorf("invalid HP %q", hp)
	}
	armor, err := strconv.Atoi(strings.TrimSpace(ac))
	if err != nil || armor <= 0 {
		return nil, fmt.Errorf("invalid AC %q", ac)
	}
	stats := ParseStats(attributes)

	actor, err := d20.NewActor(id).
		WithHP(maxHP).
		WithAC(armor).
		WithAttributes(stats.ToAttributes()).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build actor: %w", err)
	}
	return &StatBlock{Actor: actor}, nil
}

// Summary renders the block as a single prompt line, e.g.
// "HP 28, AC 16, STR 16 (+3), DEX 10 (+0)".
func (sb *StatBlock) Summary() string {
	parts := []string{
		fmt.Sprintf("HP %d", sb.Actor.MaxHP()),
		fmt.Sprintf("AC %d", sb.Actor.AC()),
	}
	for _, ab := range abilityOrder {
		score, ok := sb.Actor.Attribute(ab.key)
		if !ok {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s %d (%+d)", ab.short, score, Modifier(score)))
	}
	return strings.Join(parts, ", ")
}
