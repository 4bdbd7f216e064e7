package vectorstore

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"
)

// ChromemStore implements Store with chromem-go, an embedded vector database.
type ChromemStore struct {
	db          *chromem.DB
	embed       chromem.EmbeddingFunc
	collections map[string]*chromem.Collection
	mu          sync.RWMutex
	logger      *slog.Logger
}

var _ Store = (*ChromemStore)(nil)

// NewInMemory creates a non-persistent store.
func NewInMemory(embed chromem.EmbeddingFunc, logger *slog.Logger) (*ChromemStore, error) {
	return newChromemStore(chromem.NewDB(), embed, logger)
}

// NewPersistent creates a store persisted under path. Existing collections
// are reopened.
func NewPersistent(path string, embed chromem.EmbeddingFunc, logger *slog.Logger) (*ChromemStore, error) {
	db, err := chromem.NewPersistentDB(path, false)
	if err != nil {
		return nil, fmt.Errorf("open vector db %s: %w", path, err)
	}
	return newChromemStore(db, embed, logger)
}

func newChromemStore(db *chromem.DB, embed chromem.EmbeddingFunc, logger *slog.Logger) (*ChromemStore, error) {
	s := &ChromemStore{
		db:          db,
		embed:       embed,
		collections: make(map[string]*chromem.Collection),
		logger:      logger,
	}
	for _, name := range Collections {
		if _, err := s.collection(name); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// collection returns the named collection, creating it on first use.
func (s *ChromemStore) collection(name string) (*chromem.Collection, error) {
	if !slices.Contains(Collections, name) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCollection, name)
	}

	s.mu.RLock()
	col, exists := s.collections[name]
	s.mu.RUnlock()
	if exists {
		return col, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Double-check after acquiring write lock
	if col, exists := s.collections[name]; exists {
		return col, nil
	}

	// cosine is chromem's only distance; metadata mirrors the original layout
	col, err := s.db.GetOrCreateCollection(name, map[string]string{"hnsw:space": "cosine"}, s.embed)
	if err != nil {
		return nil, fmt.Errorf("create collection %s: %w", name, err)
	}
	s.collections[name] = col
	return col, nil
}

func (s *ChromemStore) Add(ctx context.Context, collection string, docs ...Document) error {
	col, err := s.collection(collection)
	if err != nil {
		return err
	}

	for _, doc := range docs {
		err := col.AddDocument(ctx, chromem.Document{
			ID:       doc.ID,
			Metadata: doc.Metadata,
			Content:  doc.Content,
		})
		if err != nil {
			return fmt.Errorf("add document %s to %s: %w", doc.ID, collection, err)
		}
	}

	s.logger.Debug("Documents added", "collection", collection, "count", len(docs))
	return nil
}

func (s *ChromemStore) Query(ctx context.Context, collection, text string, topK int, where map[string]string) ([]Result, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("topK must be positive, got %d", topK)
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyQuery
	}
	col, err := s.collection(collection)
	if err != nil {
		return nil, err
	}

	// chromem-go requires nResults <= collection size
	count := col.Count()
	if count == 0 {
		return nil, nil
	}
	if topK > count {
		topK = count
	}

	if len(where) == 0 {
		where = nil
	}
	res, err := col.Query(ctx, text, topK, where, nil)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}

	results := make([]Result, 0, len(res))
	for _, r := range res {
		results = append(results, Result{
			Document: Document{
				ID:       r.ID,
				Content:  r.Content,
				Metadata: r.Metadata,
			},
			Similarity: r.Similarity,
		})
	}

	s.logger.Debug("Collection queried",
		"collection", collection,
		"top_k", topK,
		"filter", where,
		"results", len(results))
	return results, nil
}

func (s *ChromemStore) Count(collection string) (int, error) {
	col, err := s.collection(collection)
	if err != nil {
		return 0, err
	}
	return col.Count(), nil
}
