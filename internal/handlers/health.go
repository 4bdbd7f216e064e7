package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/jwebster45206/npc-engine/internal/services"
	"github.com/jwebster45206/npc-engine/internal/vectorstore"
	"github.com/jwebster45206/npc-engine/pkg/state"
)

const serviceName = "npc-engine"

type HealthResponse struct {
	Status     string                 `json:"status"`
	Timestamp  time.Time              `json:"timestamp"`
	Service    string                 `json:"service"`
	Components map[string]interface{} `json:"components"`
}

// NPCStatus reports the NPC served by this process.
type NPCStatus interface {
	Snapshot() state.NPCState
}

// InboxDepth reports how many envelopes wait for an address.
type InboxDepth interface {
	Depth(ctx context.Context, address string) (int, error)
}

type HealthHandler struct {
	cache   services.Cache
	vectors vectorstore.Store
	npc     NPCStatus
	inbox   InboxDepth
	logger  *slog.Logger
}

func NewHealthHandler(cache services.Cache, vectors vectorstore.Store, npc NPCStatus, inbox InboxDepth, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		cache:   cache,
		vectors: vectors,
		npc:     npc,
		inbox:   inbox,
		logger:  logger,
	}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	h.logger.Debug("Health check requested",
		"method", r.Method,
		"path", r.URL.Path,
		"remote_addr", r.RemoteAddr)

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	components := make(map[string]interface{})
	overallStatus := "healthy"

	if err := h.cache.Ping(ctx); err != nil {
		h.logger.Warn("Cache health check failed", "error", err)
		components["cache"] = "unhealthy"
		overallStatus = "degraded"
	} else {
		components["cache"] = "healthy"
	}

	collections := make(map[string]interface{}, len(vectorstore.Collections))
	vectorStatus := "healthy"
	for _, name := range vectorstore.Collections {
		n, err := h.vectors.Count(name)
		if err != nil {
			h.logger.Warn("Vector collection check failed", "collection", name, "error", err)
			vectorStatus = "unhealthy"
			continue
		}
		collections[name] = n
	}
	if vectorStatus != "healthy" {
		overallStatus = "degraded"
	}
	components["vector_store"] = map[string]interface{}{
		"status":      vectorStatus,
		"collections": collections,
	}

	if h.npc != nil {
		snap := h.npc.Snapshot()
		npc := map[string]interface{}{
			"id":    snap.NPCID,
			"phase": snap.Phase,
		}
		if snap.Profile != nil {
			npc["name"] = snap.Profile.Name
		}
		if snap.PlayerAddress != "" {
			npc["player"] = snap.PlayerAddress
		}
		if h.inbox != nil {
			if depth, err := h.inbox.Depth(ctx, snap.NPCID); err == nil {
				npc["inbox_depth"] = depth
			}
		}
		components["npc"] = npc
	}

	response := HealthResponse{
		Status:     overallStatus,
		Timestamp:  time.Now(),
		Service:    serviceName,
		Components: components,
	}

	statusCode := http.StatusOK
	if overallStatus != "healthy" {
		statusCode = http.StatusServiceUnavailable
	}

	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("Error encoding health response",
			"error", err,
			"method", r.Method,
			"path", r.URL.Path)
	}
}
