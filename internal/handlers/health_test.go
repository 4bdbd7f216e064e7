package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/jwebster45206/npc-engine/internal/services"
	"github.com/jwebster45206/npc-engine/internal/vectorstore"
	"github.com/jwebster45206/npc-engine/pkg/state"
)

type fakeNPC struct {
	snap state.NPCState
}

func (f fakeNPC) Snapshot() state.NPCState { return f.snap }

type fakeInbox struct{ depth int }

func (f fakeInbox) Depth(ctx context.Context, address string) (int, error) { return f.depth, nil }

// brokenStore fails every count.
type brokenStore struct{ vectorstore.Store }

func (brokenStore) Count(collection string) (int, error) {
	return 0, errors.New("index missing")
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelError, // Reduce noise in tests
	}))
}

func newTestVectors(t *testing.T) vectorstore.Store {
	t.Helper()
	vectors, err := vectorstore.NewInMemory(vectorstore.HashEmbedding(32), testLogger())
	if err != nil {
		t.Fatalf("Failed to create vector store: %v", err)
	}
	if err := vectors.Add(context.Background(), vectorstore.CollectionDialogue,
		vectorstore.Document{ID: "d1", Content: "SAM: Hello!"}); err != nil {
		t.Fatalf("Failed to seed dialogue: %v", err)
	}
	return vectors
}

func TestHealthHandler_ServeHTTP(t *testing.T) {
	tests := []struct {
		name           string
		setupCache     func() services.Cache
		setupVectors   func(t *testing.T) vectorstore.Store
		expectedStatus int
		expectedHealth string
		expectedCache  string
		expectedVector string
	}{
		{
			name: "all healthy",
			setupCache: func() services.Cache {
				mockCache := services.NewMockCache()
				mockCache.SetPingSuccess()
				return mockCache
			},
			setupVectors:   newTestVectors,
			expectedStatus: http.StatusOK,
			expectedHealth: "healthy",
			expectedCache:  "healthy",
			expectedVector: "healthy",
		},
		{
			name: "unhealthy cache",
			setupCache: func() services.Cache {
				mockCache := services.NewMockCache()
				mockCache.SetPingError(errors.New("connection failed"))
				return mockCache
			},
			setupVectors:   newTestVectors,
			expectedStatus: http.StatusServiceUnavailable,
			expectedHealth: "degraded",
			expectedCache:  "unhealthy",
			expectedVector: "healthy",
		},
		{
			name: "unhealthy vector store",
			setupCache: func() services.Cache {
				return services.NewMockCache()
			},
			setupVectors: func(t *testing.T) vectorstore.Store {
				return brokenStore{}
			},
			expectedStatus: http.StatusServiceUnavailable,
			expectedHealth: "degraded",
			expectedCache:  "healthy",
			expectedVector: "unhealthy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			npc := fakeNPC{snap: state.NPCState{NPCID: "npc-gerald", Phase: state.PhaseUninitialized}}
			handler := NewHealthHandler(tt.setupCache(), tt.setupVectors(t), npc, fakeInbox{depth: 2}, testLogger())

			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			rr := httptest.NewRecorder()

			handler.ServeHTTP(rr, req)

			if rr.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, rr.Code)
			}
			if rr.Header().Get("Content-Type") != "application/json" {
				t.Errorf("Expected Content-Type application/json, got %s", rr.Header().Get("Content-Type"))
			}

			var response HealthResponse
			if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}

			if response.Status != tt.expectedHealth {
				t.Errorf("Expected status '%s', got '%s'", tt.expectedHealth, response.Status)
			}
			if response.Service != "npc-engine" {
				t.Errorf("Expected service 'npc-engine', got '%s'", response.Service)
			}
			if response.Components["cache"] != tt.expectedCache {
				t.Errorf("Expected cache status '%s', got '%v'", tt.expectedCache, response.Components["cache"])
			}

			vector, ok := response.Components["vector_store"].(map[string]interface{})
			if !ok {
				t.Fatalf("Expected vector_store component to be a map, got %T", response.Components["vector_store"])
			}
			if vector["status"] != tt.expectedVector {
				t.Errorf("Expected vector status '%s', got '%v'", tt.expectedVector, vector["status"])
			}

			if time.Since(response.Timestamp) > time.Second {
				t.Errorf("Health check timestamp seems old: %v", response.Timestamp)
			}
		})
	}
}

func TestHealthHandler_ReportsNPCAndCounts(t *testing.T) {
	npc := fakeNPC{snap: state.NPCState{
		NPCID:         "npc-gerald",
		Phase:         state.PhaseReady,
		PlayerAddress: "player-1",
		Profile:       &state.Profile{Name: "Gerald"},
	}}
	handler := NewHealthHandler(services.NewMockCache(), newTestVectors(t), npc, fakeInbox{depth: 3}, testLogger())

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	var response HealthResponse
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	npcComponent := response.Components["npc"].(map[string]interface{})
	if npcComponent["phase"] != "ready" || npcComponent["name"] != "Gerald" || npcComponent["player"] != "player-1" {
		t.Errorf("Unexpected npc component: %v", npcComponent)
	}
	if npcComponent["inbox_depth"] != float64(3) {
		t.Errorf("Expected inbox depth 3, got %v", npcComponent["inbox_depth"])
	}

	collections := response.Components["vector_store"].(map[string]interface{})["collections"].(map[string]interface{})
	if collections[vectorstore.CollectionDialogue] != float64(1) {
		t.Errorf("Expected 1 dialogue document, got %v", collections[vectorstore.CollectionDialogue])
	}
	if collections[vectorstore.CollectionMemories] != float64(0) {
		t.Errorf("Expected empty memories, got %v", collections[vectorstore.CollectionMemories])
	}
}
