package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jwebster45206/npc-engine/pkg/protocol"
)

// ErrMalformedEnvelope is returned by Receive when an inbox entry cannot be
// parsed. The entry has already been removed from the inbox.
var ErrMalformedEnvelope = errors.New("malformed envelope")

// Mailbox delivers envelopes between agent addresses. Each address owns one
// Redis list; senders append and the owner pops from the head.
type Mailbox struct {
	client *Client
}

func NewMailbox(client *Client) *Mailbox {
	return &Mailbox{
		client: client,
	}
}

func inboxKey(address string) string {
	return fmt.Sprintf("agent-inbox:%s", address)
}

// Send appends env to the recipient's inbox
func (m *Mailbox) Send(ctx context.Context, env *protocol.Envelope) error {
	if env.Recipient == "" {
		return fmt.Errorf("envelope %s has no recipient", env.ID)
	}
	data, err := env.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize envelope: %w", err)
	}

	if err := m.client.rdb.RPush(ctx, inboxKey(env.Recipient), data).Err(); err != nil {
		return fmt.Errorf("failed to enqueue envelope: %w", err)
	}

	m.client.logger.Debug("Envelope sent",
		"envelope_id", env.ID,
		"tag", env.Tag,
		"sender", env.Sender,
		"recipient", env.Recipient)
	return nil
}

// Receive blocks up to timeout for the next envelope addressed to address.
// Returns nil, nil when the wait times out.
func (m *Mailbox) Receive(ctx context.Context, address string, timeout time.Duration) (*protocol.Envelope, error) {
	result, err := m.client.rdb.BLPop(ctx, timeout, inboxKey(address)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to dequeue envelope: %w", err)
	}

	// BLPop returns [key, value]
	if len(result) != 2 {
		return nil, fmt.Errorf("unexpected BLPop result: %v", result)
	}

	env, err := protocol.FromJSON([]byte(result[1]))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	return env, nil
}

// TryReceive pops the next envelope without blocking. Returns nil, nil when
// the inbox is empty.
func (m *Mailbox) TryReceive(ctx context.Context, address string) (*protocol.Envelope, error) {
	result, err := m.client.rdb.LPop(ctx, inboxKey(address)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // Inbox is empty
		}
		return nil, fmt.Errorf("failed to dequeue envelope: %w", err)
	}

	env, err := protocol.FromJSON([]byte(result))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	return env, nil
}

// Depth returns the number of envelopes waiting for address
func (m *Mailbox) Depth(ctx context.Context, address string) (int, error) {
	count, err := m.client.rdb.LLen(ctx, inboxKey(address)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get inbox depth: %w", err)
	}
	return int(count), nil
}

// Clear discards everything waiting for address and returns how many
// envelopes were dropped
func (m *Mailbox) Clear(ctx context.Context, address string) (int, error) {
	key := inboxKey(address)
	pipe := m.client.rdb.TxPipeline()
	llen := pipe.LLen(ctx, key)
	pipe.Del(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to clear inbox: %w", err)
	}
	return int(llen.Val()), nil
}
