package vectorstore

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadTemplates(t *testing.T) {
	store := newTestStore(t)
	data := `{
		"A level 3 dwarf fighter with a battleaxe": {
			"hash": "abc123",
			"race": "Dwarf",
			"class": "Fighter",
			"level": 3,
			"HP": 28,
			"AC": 16,
			"skills": ["Athletics", "Intimidation"],
			"attributes": {"Strength": [16], "Dexterity": [10]},
			"weapon": "Battleaxe"
		},
		"A level 1 elf wizard": {
			"race": "Elf",
			"class": "Wizard",
			"level": 1
		}
	}`

	n, err := LoadTemplates(context.Background(), store, strings.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	results, err := store.Query(context.Background(), CollectionTemplates, "dwarf", 1, map[string]string{"race": "Dwarf", "level": "3"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	got := results[0]
	assert.Equal(t, "abc123", got.ID)
	assert.Equal(t, "Athletics, Intimidation", got.Metadata["skills"])
	assert.Equal(t, "Dexterity: 10, Strength: 16", got.Metadata["attributes"])
	assert.Equal(t, "28", got.Metadata["HP"])
}

func TestLoadTemplates_InvalidJSON(t *testing.T) {
	store := newTestStore(t)
	_, err := LoadTemplates(context.Background(), store, strings.NewReader(`[1,2`))
	assert.Error(t, err)
}

func TestLoadDialogue_SkipsNarrator(t *testing.T) {
	store := newTestStore(t)
	data := `[
		{"TURNS": [
			{"NAMES": ["MATT"], "UTTERANCES": ["You enter the tavern."]},
			{"NAMES": ["TRAVIS"], "UTTERANCES": ["I slam my tankard down.", "Another round!"]},
			{"NAMES": "MATT", "UTTERANCES": ["Roll initiative."]},
			{"NAMES": ["MATT", "LAURA"], "UTTERANCES": ["Together now."]}
		]}
	]`

	n, err := LoadDialogue(context.Background(), store, strings.NewReader(data), "c1e001")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	count, err := store.Count(CollectionDialogue)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	results, err := store.Query(context.Background(), CollectionDialogue, "tankard round", 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "I slam my tankard down. Another round!", results[0].Content)
}

func TestFlattenValue(t *testing.T) {
	assert.Equal(t, "", FlattenValue(nil))
	assert.Equal(t, "", FlattenValue([]any{}))
	assert.Equal(t, "Sword", FlattenValue([]any{"Sword"}))
	assert.Equal(t, "Sword, Shield", FlattenValue([]any{"Sword", "Shield"}))
	assert.Equal(t, "12", FlattenValue(float64(12)))
	assert.Equal(t, "Strength: 15", FlattenValue(map[string]any{"Strength": []any{float64(15)}}))
}
