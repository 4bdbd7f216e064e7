// Package vectorstore holds the three semantic collections the NPC engine
// reads and writes, backed by chromem-go.
package vectorstore

import (
	"context"
	"errors"
)

// Collection names
const (
	CollectionDialogue  = "character_dialogue"
	CollectionTemplates = "character_templates"
	CollectionMemories  = "npc_memories"
)

// Collections lists every collection the engine expects to exist.
var Collections = []string{CollectionDialogue, CollectionTemplates, CollectionMemories}

// ErrUnknownCollection is returned for a collection name outside Collections.
var ErrUnknownCollection = errors.New("unknown collection")

// ErrEmptyQuery is returned when the query text is blank.
var ErrEmptyQuery = errors.New("empty query text")

// Document is one stored entry. Metadata values are strings; numeric fields
// are stored in their decimal form.
type Document struct {
	ID       string
	Content  string
	Metadata map[string]string
}

// Result is a Document returned by a query together with its similarity to
// the query text.
type Result struct {
	Document
	Similarity float32
}

// Store is the vector-store contract.
type Store interface {
	// Add inserts documents into a collection.
	Add(ctx context.Context, collection string, docs ...Document) error

	// Query returns up to topK documents nearest to text. Only documents
	// whose metadata matches every where entry exactly are considered. An
	// empty collection or an unmatched filter yields no results and no error.
	Query(ctx context.Context, collection, text string, topK int, where map[string]string) ([]Result, error)

	// Count returns the number of documents in a collection.
	Count(collection string) (int, error)
}
