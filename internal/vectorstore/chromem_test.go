package vectorstore

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *ChromemStore {
	t.Helper()
	store, err := NewInMemory(HashEmbedding(64), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return store
}

func TestChromemStore_CreatesAllCollections(t *testing.T) {
	store := newTestStore(t)
	for _, name := range Collections {
		n, err := store.Count(name)
		require.NoError(t, err)
		assert.Equal(t, 0, n, name)
	}
}

func TestChromemStore_QueryEmptyCollection(t *testing.T) {
	store := newTestStore(t)
	results, err := store.Query(context.Background(), CollectionMemories, "hello", 1, map[string]string{"npc_id": "x"})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestChromemStore_QueryWithFilter(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Add(ctx, CollectionTemplates,
		Document{ID: "t1", Content: "A stout dwarf fighter who guards the mines", Metadata: map[string]string{"race": "Dwarf", "class": "Fighter", "level": "3"}},
		Document{ID: "t2", Content: "A stout dwarf cleric who tends the shrine", Metadata: map[string]string{"race": "Dwarf", "class": "Cleric", "level": "5"}},
		Document{ID: "t3", Content: "An elven wizard who studies the stars", Metadata: map[string]string{"race": "Elf", "class": "Wizard", "level": "3"}},
	))

	results, err := store.Query(ctx, CollectionTemplates, "dwarf", 1, map[string]string{"race": "Dwarf", "level": "5"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "t2", results[0].ID)
	assert.Equal(t, "Cleric", results[0].Metadata["class"])

	results, err = store.Query(ctx, CollectionTemplates, "dwarf", 1, map[string]string{"race": "Halfling"})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestChromemStore_QueryPrefersSharedWords(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Add(ctx, CollectionDialogue,
		Document{ID: "d1", Content: "grumpy angry shouting at the forge"},
		Document{ID: "d2", Content: "cheerful singing happy tavern songs"},
	))

	results, err := store.Query(ctx, CollectionDialogue, "cheerful happy", 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "d2", results[0].ID)
}

func TestChromemStore_TopKClampedToCount(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Add(ctx, CollectionDialogue, Document{ID: "only", Content: "the only line"}))

	results, err := store.Query(ctx, CollectionDialogue, "line", 5, nil)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestChromemStore_Errors(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Query(ctx, "not_a_collection", "x", 1, nil)
	assert.True(t, errors.Is(err, ErrUnknownCollection))

	_, err = store.Query(ctx, CollectionDialogue, "x", 0, nil)
	assert.Error(t, err)

	_, err = store.Query(ctx, CollectionDialogue, "   ", 1, nil)
	assert.True(t, errors.Is(err, ErrEmptyQuery))

	err = store.Add(ctx, "not_a_collection", Document{ID: "a", Content: "b"})
	assert.True(t, errors.Is(err, ErrUnknownCollection))
}

func TestNewPersistent_Reopens(t *testing.T) {
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	store, err := NewPersistent(dir, HashEmbedding(32), logger)
	require.NoError(t, err)
	require.NoError(t, store.Add(ctx, CollectionMemories, Document{
		ID:       "npc-a_1",
		Content:  "Player: hi\nYou: hello",
		Metadata: map[string]string{"npc_id": "npc-a"},
	}))

	reopened, err := NewPersistent(dir, HashEmbedding(32), logger)
	require.NoError(t, err)
	n, err := reopened.Count(CollectionMemories)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
