// Package memory is the per-NPC long-term memory of completed turns.
package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jwebster45206/npc-engine/internal/vectorstore"
)

// FirstEncounter is returned by Retrieve when an NPC has no memories.
const FirstEncounter = "First encounter."

// TimestampLayout orders lexically the same as chronologically.
const TimestampLayout = "20060102_150405.000000"

// Metadata keys on every memory document
const (
	MetaNPCID     = "npc_id"
	MetaTimestamp = "timestamp"
)

// Record is one remembered exchange.
type Record struct {
	NPCID     string
	Timestamp string
	Text      string
}

// Key is the unique document id of the record.
func (r Record) Key() string {
	return fmt.Sprintf("%s_%s", r.NPCID, r.Timestamp)
}

// Store appends and retrieves memories scoped by NPC id.
type Store struct {
	vectors vectorstore.Store
	now     func() time.Time
	logger  *slog.Logger

	mu   sync.Mutex
	last time.Time
}

// NewStore creates a Store over the npc_memories collection of vectors.
func NewStore(vectors vectorstore.Store, logger *slog.Logger) *Store {
	return &Store{
		vectors: vectors,
		now:     time.Now,
		logger:  logger,
	}
}

// WithClock replaces the wall clock, for tests.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// nextTimestamp returns a microsecond timestamp strictly after every one it
// has returned before, even if the clock stalls or steps back.
func (s *Store) nextTimestamp() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.now().UTC().Truncate(time.Microsecond)
	if !t.After(s.last) {
		t = s.last.Add(time.Microsecond)
	}
	s.last = t
	return t.Format(TimestampLayout)
}

// Store appends text to npcID's memory and returns the record key.
func (s *Store) Store(ctx context.Context, npcID, text string) (string, error) {
	if npcID == "" {
		return "", fmt.Errorf("npc id is required")
	}

	rec := Record{
		NPCID:     npcID,
		Timestamp: s.nextTimestamp(),
		Text:      text,
	}
	err := s.vectors.Add(ctx, vectorstore.CollectionMemories, vectorstore.Document{
		ID:      rec.Key(),
		Content: rec.Text,
		Metadata: map[string]string{
			MetaNPCID:     rec.NPCID,
			MetaTimestamp: rec.Timestamp,
		},
	})
	if err != nil {
		return "", fmt.Errorf("store memory for %s: %w", npcID, err)
	}

	s.logger.Debug("Memory stored", "npc_id", npcID, "key", rec.Key())
	return rec.Key(), nil
}

// Retrieve returns the single memory of npcID most similar to query, or
// FirstEncounter when there is none.
func (s *Store) Retrieve(ctx context.Context, npcID, query string) (string, error) {
	if strings.TrimSpace(query) == "" {
		query = npcID
	}

	results, err := s.vectors.Query(ctx, vectorstore.CollectionMemories, query, 1,
		map[string]string{MetaNPCID: npcID})
	if err != nil && !errors.Is(err, vectorstore.ErrEmptyQuery) {
		return "", fmt.Errorf("retrieve memory for %s: %w", npcID, err)
	}

	for _, r := range results {
		if r.Metadata[MetaNPCID] != npcID {
			s.logger.Warn("Discarding memory owned by another NPC",
				"npc_id", npcID,
				"owner", r.Metadata[MetaNPCID],
				"key", r.ID)
			continue
		}
		return r.Content, nil
	}
	return FirstEncounter, nil
}
