// Package conversation implements the per-NPC state machine: setup turns an
// UNINITIALIZED NPC into a READY one, and READY NPCs answer players.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jwebster45206/npc-engine/internal/persona"
	"github.com/jwebster45206/npc-engine/internal/services/events"
	"github.com/jwebster45206/npc-engine/internal/storage"
	"github.com/jwebster45206/npc-engine/pkg/protocol"
	"github.com/jwebster45206/npc-engine/pkg/state"
)

// Fixed replies
const (
	NotReadyReply       = "I'm not ready to talk yet. Please set me up first."
	SetupCompleteFormat = "%s is ready to talk."
	SetupFailedFormat   = "Setup failed: %v"
)

// ErrPlayerLocked rejects a setup from someone other than the bound player.
var ErrPlayerLocked = errors.New("npc is bound to another player")

// Bootstrapper builds a profile from a setup description.
type Bootstrapper interface {
	Bootstrap(ctx context.Context, description string, hints persona.Hints) (*state.Profile, error)
}

// Generator produces one reply. The reply is always sendable; a non-nil
// error marks it as a fallback.
type Generator interface {
	Generate(ctx context.Context, profile *state.Profile, npcID, playerText string) (string, error)
}

// Sender delivers outbound envelopes.
type Sender interface {
	Send(ctx context.Context, env *protocol.Envelope) error
}

// Dependencies are the collaborators a Controller drives. Events may be nil.
type Dependencies struct {
	Bootstrapper Bootstrapper
	Generator    Generator
	Storage      storage.Storage
	Sender       Sender
	Events       events.Publisher
}

// Controller owns one NPC's conversation state. Handlers are safe to call
// concurrently; setups and turns are serialized. Readers of the state never
// wait on a turn in progress.
type Controller struct {
	npcID      string
	deps       Dependencies
	lockPlayer bool
	logger     *slog.Logger

	turnMu sync.Mutex // held for a whole setup or turn

	mu    sync.RWMutex // guards state only
	state *state.NPCState
}

// NewController creates a controller in the UNINITIALIZED phase. Call
// Restore to pick up persisted state.
func NewController(npcID string, deps Dependencies, lockPlayer bool, logger *slog.Logger) *Controller {
	return &Controller{
		npcID:      npcID,
		deps:       deps,
		lockPlayer: lockPlayer,
		logger:     logger.With("npc_id", npcID),
		state:      state.NewNPCState(npcID),
	}
}

// Restore loads persisted state. A missing record leaves the NPC
// UNINITIALIZED; a record claiming READY without a usable profile is reset.
func (c *Controller) Restore(ctx context.Context) error {
	loaded, err := c.deps.Storage.LoadNPCState(ctx, c.npcID)
	if err != nil {
		return fmt.Errorf("failed to restore NPC state: %w", err)
	}
	if loaded == nil {
		return nil
	}
	if loaded.Phase == state.PhaseReady && !loaded.IsReady() {
		c.logger.Warn("Discarding persisted state without a usable profile")
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	loaded.NPCID = c.npcID
	c.state = loaded
	c.logger.Info("NPC state restored", "phase", loaded.Phase, "player", loaded.PlayerAddress)
	return nil
}

// Snapshot returns a copy of the current state. Profiles are replaced, never
// mutated, so the copy's Profile stays valid.
func (c *Controller) Snapshot() state.NPCState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return *c.state
}

// Phase returns the current phase.
func (c *Controller) Phase() state.Phase {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.Phase
}

// OnSetup builds a new persona from the setup description. On success the
// sender becomes the bound player and the NPC is READY. On failure the
// previous state is kept. The sender is told the outcome either way.
func (c *Controller) OnSetup(ctx context.Context, env *protocol.Envelope, msg *protocol.SetupMessage) error {
	c.turnMu.Lock()
	defer c.turnMu.Unlock()

	log := c.logger.With("envelope_id", env.ID, "sender", env.Sender)
	current := c.Snapshot()

	if c.lockPlayer && current.IsReady() && current.PlayerAddress != env.Sender {
		log.Warn("Setup rejected, NPC is bound to another player", "player", current.PlayerAddress)
		c.setupFailed(ctx, env, ErrPlayerLocked)
		return ErrPlayerLocked
	}

	hints := persona.Hints{
		Race:       msg.Race,
		Class:      msg.Class,
		Level:      msg.Level,
		Background: msg.Background,
	}
	profile, err := c.deps.Bootstrapper.Bootstrap(ctx, msg.Description, hints)
	if err != nil {
		log.Error("NPC setup failed", "error", err, "phase", current.Phase)
		c.setupFailed(ctx, env, err)
		return err
	}

	next := current
	next.ApplySetup(profile, env.Sender)
	if err := c.deps.Storage.SaveNPCState(ctx, c.npcID, &next); err != nil {
		// In-memory state stays authoritative for this process.
		log.Error("Failed to persist NPC state", "error", err)
	}
	c.mu.Lock()
	c.state = &next
	c.mu.Unlock()

	log.Info("NPC setup complete", "name", profile.Name)
	c.reply(ctx, env, protocol.NPCMessage{Text: fmt.Sprintf(SetupCompleteFormat, profile.Name)})
	if c.deps.Events != nil {
		if err := c.deps.Events.PublishSetupCompleted(ctx, c.npcID, env.ID, profile.Name); err != nil {
			log.Error("Failed to publish setup event", "error", err)
		}
	}
	return nil
}

func (c *Controller) setupFailed(ctx context.Context, env *protocol.Envelope, cause error) {
	c.reply(ctx, env, protocol.NPCMessage{Text: fmt.Sprintf(SetupFailedFormat, cause)})
	if c.deps.Events != nil {
		if err := c.deps.Events.PublishSetupFailed(ctx, c.npcID, env.ID, cause.Error()); err != nil {
			c.logger.Error("Failed to publish setup event", "error", err)
		}
	}
}

// OnPlayerMessage answers a plain player message with an NPCMessage.
func (c *Controller) OnPlayerMessage(ctx context.Context, env *protocol.Envelope, msg *protocol.PlayerMessage) error {
	reply := c.turn(ctx, env, msg.Text)
	return c.reply(ctx, env, protocol.NPCMessage{Text: reply})
}

// OnChatMessage acknowledges the message immediately, then answers with a
// ChatMessage.
func (c *Controller) OnChatMessage(ctx context.Context, env *protocol.Envelope, msg *protocol.ChatMessage) error {
	if err := c.reply(ctx, env, protocol.NewAcknowledgement(msg)); err != nil {
		c.logger.Error("Failed to acknowledge chat message", "error", err, "msg_id", msg.MsgID)
	}

	reply := c.turn(ctx, env, msg.PlainText())
	return c.reply(ctx, env, protocol.NewChatMessage(reply))
}

// OnChatAcknowledgement is logged only.
func (c *Controller) OnChatAcknowledgement(ctx context.Context, env *protocol.Envelope, msg *protocol.ChatAcknowledgement) error {
	c.logger.Debug("Chat acknowledged",
		"sender", env.Sender,
		"acknowledged_msg_id", msg.AcknowledgedMsgID,
		"timestamp", msg.Timestamp)
	return nil
}

// turn runs one player turn and returns the text to send back.
func (c *Controller) turn(ctx context.Context, env *protocol.Envelope, text string) string {
	c.turnMu.Lock()
	defer c.turnMu.Unlock()

	log := c.logger.With("envelope_id", env.ID, "sender", env.Sender)
	current := c.Snapshot()

	if !current.IsReady() {
		log.Info("Message received before setup")
		return NotReadyReply
	}

	reply, err := c.deps.Generator.Generate(ctx, current.Profile, c.npcID, text)
	if c.deps.Events != nil {
		var pubErr error
		if err != nil {
			pubErr = c.deps.Events.PublishTurnFailed(ctx, c.npcID, env.ID, err.Error())
		} else {
			pubErr = c.deps.Events.PublishTurnCompleted(ctx, c.npcID, env.ID, text, reply)
		}
		if pubErr != nil {
			log.Error("Failed to publish turn event", "error", pubErr)
		}
	}
	if err != nil {
		log.Warn("Turn answered with fallback reply", "error", err)
	}
	return reply
}

// reply answers the envelope to; the player matches on InReplyTo.
func (c *Controller) reply(ctx context.Context, to *protocol.Envelope, msg protocol.Message) error {
	env, err := protocol.NewReply(to, c.npcID, msg)
	if err != nil {
		return fmt.Errorf("failed to build %s envelope: %w", msg.Tag(), err)
	}
	if err := c.deps.Sender.Send(ctx, env); err != nil {
		c.logger.Error("Failed to send reply", "error", err, "tag", msg.Tag(), "recipient", to.Sender)
		return err
	}
	return nil
}
