package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// EventType represents the type of event being broadcast
type EventType string

const (
	EventTypeSetupCompleted EventType = "setup.completed"
	EventTypeSetupFailed    EventType = "setup.failed"
	EventTypeTurnCompleted  EventType = "turn.completed"
	EventTypeTurnFailed     EventType = "turn.failed"
)

// Event represents a generic event structure
type Event struct {
	Type       EventType              `json:"type"`
	NPCID      string                 `json:"npc_id"`
	EnvelopeID string                 `json:"envelope_id,omitempty"`
	Data       map[string]interface{} `json:"data,omitempty"`
}

// Publisher is what the conversation layer needs from a broadcaster
type Publisher interface {
	PublishSetupCompleted(ctx context.Context, npcID, envelopeID, npcName string) error
	PublishSetupFailed(ctx context.Context, npcID, envelopeID, errorMsg string) error
	PublishTurnCompleted(ctx context.Context, npcID, envelopeID, playerText, reply string) error
	PublishTurnFailed(ctx context.Context, npcID, envelopeID, errorMsg string) error
}

// Channel returns the pub/sub channel for an NPC
func Channel(npcID string) string {
	return fmt.Sprintf("npc-events:%s", npcID)
}

// Broadcaster publishes NPC lifecycle events to Redis Pub/Sub
type Broadcaster struct {
	redisClient *redis.Client
	logger      *slog.Logger
}

var _ Publisher = (*Broadcaster)(nil)

// NewBroadcaster creates a new event broadcaster
func NewBroadcaster(redisClient *redis.Client, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		redisClient: redisClient,
		logger:      logger,
	}
}

// PublishSetupCompleted publishes a setup.completed event
func (b *Broadcaster) PublishSetupCompleted(ctx context.Context, npcID, envelopeID, npcName string) error {
	return b.publish(ctx, Event{
		Type:       EventTypeSetupCompleted,
		NPCID:      npcID,
		EnvelopeID: envelopeID,
		Data: map[string]interface{}{
			"npc_name": npcName,
		},
	})
}

// PublishSetupFailed publishes a setup.failed event
func (b *Broadcaster) PublishSetupFailed(ctx context.Context, npcID, envelopeID, errorMsg string) error {
	return b.publish(ctx, Event{
		Type:       EventTypeSetupFailed,
		NPCID:      npcID,
		EnvelopeID: envelopeID,
		Data: map[string]interface{}{
			"error": errorMsg,
		},
	})
}

// PublishTurnCompleted publishes a turn.completed event
func (b *Broadcaster) PublishTurnCompleted(ctx context.Context, npcID, envelopeID, playerText, reply string) error {
	return b.publish(ctx, Event{
		Type:       EventTypeTurnCompleted,
		NPCID:      npcID,
		EnvelopeID: envelopeID,
		Data: map[string]interface{}{
			"player_text": playerText,
			"reply":       reply,
		},
	})
}

// PublishTurnFailed publishes a turn.failed event
func (b *Broadcaster) PublishTurnFailed(ctx context.Context, npcID, envelopeID, errorMsg string) error {
	return b.publish(ctx, Event{
		Type:       EventTypeTurnFailed,
		NPCID:      npcID,
		EnvelopeID: envelopeID,
		Data: map[string]interface{}{
			"error": errorMsg,
		},
	})
}

// publish publishes an event to the NPC-specific channel
func (b *Broadcaster) publish(ctx context.Context, event Event) error {
	channel := Channel(event.NPCID)

	data, err := json.Marshal(event)
	if err != nil {
		b.logger.Error("Failed to marshal event", "error", err, "event", event)
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := b.redisClient.Publish(ctx, channel, data).Err(); err != nil {
		b.logger.Error("Failed to publish event", "error", err, "channel", channel)
		return fmt.Errorf("failed to publish event: %w", err)
	}

	b.logger.Debug("Event published",
		"channel", channel,
		"event_type", event.Type,
		"envelope_id", event.EnvelopeID,
	)

	return nil
}
