package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// Template metadata keys
const (
	FieldRace       = "race"
	FieldClass      = "class"
	FieldSubclass   = "subclass"
	FieldLevel      = "level"
	FieldBackground = "background"
	FieldHP         = "HP"
	FieldAC         = "AC"
	FieldAttributes = "attributes"
	FieldSkills     = "skills"
	FieldFeats      = "feats"
	FieldAlignment  = "alignment"
	FieldWeapon     = "weapon"
	FieldHash       = "hash"
)

// LoadTemplates reads a JSON object mapping a character summary to its
// template fields and adds one document per entry. Lists are flattened to
// comma-separated strings; objects become "key: value" pairs. Returns the
// number of templates added.
func LoadTemplates(ctx context.Context, store Store, r io.Reader) (int, error) {
	var raw map[string]map[string]any
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return 0, fmt.Errorf("decode templates: %w", err)
	}

	summaries := make([]string, 0, len(raw))
	for summary := range raw {
		summaries = append(summaries, summary)
	}
	sort.Strings(summaries)

	docs := make([]Document, 0, len(raw))
	for i, summary := range summaries {
		meta := make(map[string]string, len(raw[summary]))
		for k, v := range raw[summary] {
			meta[k] = FlattenValue(v)
		}
		id := meta[FieldHash]
		if id == "" {
			id = fmt.Sprintf("template-%d", i)
		}
		docs = append(docs, Document{ID: id, Content: summary, Metadata: meta})
	}

	if err := store.Add(ctx, CollectionTemplates, docs...); err != nil {
		return 0, err
	}
	return len(docs), nil
}

// dialogueChunk is one chunk of a transcript file
type dialogueChunk struct {
	Turns []struct {
		Names      json.RawMessage `json:"NAMES"`
		Utterances []string        `json:"UTTERANCES"`
	} `json:"TURNS"`
}

// NarratorName marks turns spoken only by the game master; they carry no
// character voice and are skipped.
const NarratorName = "MATT"

// LoadDialogue reads a transcript file (a JSON array of chunks with TURNS)
// and adds one document per non-narrator turn. idPrefix keeps ids unique
// across files. Returns the number of turns added.
func LoadDialogue(ctx context.Context, store Store, r io.Reader, idPrefix string) (int, error) {
	var chunks []dialogueChunk
	if err := json.NewDecoder(r).Decode(&chunks); err != nil {
		return 0, fmt.Errorf("decode dialogue: %w", err)
	}

	var docs []Document
	for _, chunk := range chunks {
		for _, turn := range chunk.Turns {
			if narratorOnly(turn.Names) {
				continue
			}
			text := strings.TrimSpace(strings.Join(turn.Utterances, " "))
			if text == "" {
				continue
			}
			docs = append(docs, Document{
				ID:      fmt.Sprintf("%s-%d", idPrefix, len(docs)),
				Content: text,
			})
		}
	}

	if len(docs) == 0 {
		return 0, nil
	}
	if err := store.Add(ctx, CollectionDialogue, docs...); err != nil {
		return 0, err
	}
	return len(docs), nil
}

// narratorOnly accepts NAMES as either a string or a list of strings.
func narratorOnly(names json.RawMessage) bool {
	var single string
	if err := json.Unmarshal(names, &single); err == nil {
		return single == NarratorName
	}
	var list []string
	if err := json.Unmarshal(names, &list); err == nil {
		return len(list) == 1 && list[0] == NarratorName
	}
	return false
}

// FlattenValue renders a decoded JSON value as a metadata string.
func FlattenValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			parts = append(parts, FlattenValue(item))
		}
		return strings.Join(parts, ", ")
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			item := val[k]
			if list, ok := item.([]any); ok && len(list) > 0 {
				item = list[0]
			}
			parts = append(parts, fmt.Sprintf("%s: %s", k, FlattenValue(item)))
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprint(val)
	}
}
