package state

import (
	"time"
)

// Phase is the NPC's position in the setup lifecycle.
type Phase string

const (
	PhaseUninitialized Phase = "uninitialized"
	PhaseReady         Phase = "ready"
)

// Template is the structured attribute set of a retrieved character template.
type Template map[string]string

// Clone returns an independent copy.
func (t Template) Clone() Template {
	if t == nil {
		return nil
	}
	out := make(Template, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

// Profile is the persona an NPC speaks as. A new setup replaces it wholesale.
type Profile struct {
	Name          string   `json:"name"`
	Template      Template `json:"template"`
	DialogueStyle []string `json:"dialogue_style"`
}

// Valid reports whether the profile can drive a conversation.
func (p *Profile) Valid() bool {
	return p != nil && p.Template != nil && len(p.DialogueStyle) > 0
}

// NPCState is everything an NPC agent persists between messages.
type NPCState struct {
	NPCID         string    `json:"npc_id"`
	Phase         Phase     `json:"phase"`
	Profile       *Profile  `json:"profile,omitempty"`
	PlayerAddress string    `json:"player_address,omitempty"` // last sender of a successful setup
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// NewNPCState returns an uninitialized state for npcID.
func NewNPCState(npcID string) *NPCState {
	now := time.Now()
	return &NPCState{
		NPCID:     npcID,
		Phase:     PhaseUninitialized,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsReady reports whether the NPC can answer players.
func (s *NPCState) IsReady() bool {
	return s != nil && s.Phase == PhaseReady && s.Profile.Valid()
}

// ApplySetup installs a new profile and player and moves to READY. Any prior
// profile and player are overwritten.
func (s *NPCState) ApplySetup(profile *Profile, playerAddress string) {
	s.Profile = profile
	s.PlayerAddress = playerAddress
	s.Phase = PhaseReady
	s.UpdatedAt = time.Now()
}
