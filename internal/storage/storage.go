// Package storage persists NPC agent state between messages and restarts.
package storage

import (
	"context"

	"github.com/jwebster45206/npc-engine/pkg/state"
)

// Storage persists NPCState keyed by NPC address.
type Storage interface {
	// Health and lifecycle
	Ping(ctx context.Context) error
	Close() error

	// LoadNPCState returns nil, nil when nothing is stored for npcID.
	LoadNPCState(ctx context.Context, npcID string) (*state.NPCState, error)
	SaveNPCState(ctx context.Context, npcID string, s *state.NPCState) error
	DeleteNPCState(ctx context.Context, npcID string) error
}

func npcStateKey(npcID string) string {
	return "npc-state:" + npcID
}
