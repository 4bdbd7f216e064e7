// Package player is the caller side of an NPC conversation: it sends one
// message, then waits a bounded time for the NPC's reply.
package player

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jwebster45206/npc-engine/internal/services/queue"
	"github.com/jwebster45206/npc-engine/pkg/protocol"
)

// TimeoutReply is returned in place of a reply that did not arrive in time.
const TimeoutReply = "Error: Response timeout"

// DefaultTimeout bounds each wait for a reply.
const DefaultTimeout = 30 * time.Second

// Mailbox is the slice of queue.Mailbox the client needs.
type Mailbox interface {
	Send(ctx context.Context, env *protocol.Envelope) error
	Receive(ctx context.Context, address string, timeout time.Duration) (*protocol.Envelope, error)
	Clear(ctx context.Context, address string) (int, error)
}

var _ Mailbox = (*queue.Mailbox)(nil)

// Client talks to one NPC from one player address. Calls must not overlap.
type Client struct {
	address string
	npc     string
	mailbox Mailbox
	timeout time.Duration
	logger  *slog.Logger
}

// NewClient creates a client sending from address to npc.
func NewClient(address, npc string, mailbox Mailbox, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		address: address,
		npc:     npc,
		mailbox: mailbox,
		timeout: timeout,
		logger:  logger.With("player", address, "npc_id", npc),
	}
}

// Address returns the player's own address.
func (c *Client) Address() string {
	return c.address
}

// NPC returns the address of the NPC this client talks to.
func (c *Client) NPC() string {
	return c.npc
}

// Setup asks the NPC to build a persona and returns its confirmation or
// failure text.
func (c *Client) Setup(ctx context.Context, msg protocol.SetupMessage) (string, error) {
	return c.exchange(ctx, &msg, func(m protocol.Message) (string, bool) {
		if reply, ok := m.(*protocol.NPCMessage); ok {
			return reply.Text, true
		}
		return "", false
	})
}

// Send sends a plain PlayerMessage and returns the NPC's reply text.
func (c *Client) Send(ctx context.Context, text string) (string, error) {
	return c.exchange(ctx, &protocol.PlayerMessage{Text: text}, func(m protocol.Message) (string, bool) {
		if reply, ok := m.(*protocol.NPCMessage); ok {
			return reply.Text, true
		}
		return "", false
	})
}

// SendChat sends a structured ChatMessage and returns the text of the NPC's
// ChatMessage reply. The acknowledgement is consumed along the way.
func (c *Client) SendChat(ctx context.Context, text string) (string, error) {
	msg := protocol.NewChatMessage(text)
	return c.exchange(ctx, msg, func(m protocol.Message) (string, bool) {
		switch reply := m.(type) {
		case *protocol.ChatAcknowledgement:
			if reply.AcknowledgedMsgID == msg.MsgID {
				c.logger.Debug("Chat message acknowledged", "msg_id", msg.MsgID)
			}
		case *protocol.ChatMessage:
			return reply.PlainText(), true
		}
		return "", false
	})
}

// exchange drops stale replies, sends msg, and waits for the first reply to
// it accepted by match. A timeout is not an error: the caller gets
// TimeoutReply. Replies to earlier requests are discarded whenever they
// arrive.
func (c *Client) exchange(ctx context.Context, msg protocol.Message, match func(protocol.Message) (string, bool)) (string, error) {
	if dropped, err := c.mailbox.Clear(ctx, c.address); err != nil {
		return "", fmt.Errorf("failed to clear player inbox: %w", err)
	} else if dropped > 0 {
		c.logger.Info("Discarded late replies", "count", dropped)
	}

	env, err := protocol.NewEnvelope(c.address, c.npc, msg)
	if err != nil {
		return "", err
	}
	if err := c.mailbox.Send(ctx, env); err != nil {
		return "", fmt.Errorf("failed to send %s message: %w", msg.Tag(), err)
	}

	deadline := time.Now().Add(c.timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			c.logger.Warn("Timed out waiting for reply", "envelope_id", env.ID, "timeout", c.timeout)
			return TimeoutReply, nil
		}
		// Redis blocking pops wait at least one second
		wait := remaining
		if wait < time.Second {
			wait = time.Second
		}

		in, err := c.mailbox.Receive(ctx, c.address, wait)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			if errors.Is(err, queue.ErrMalformedEnvelope) {
				c.logger.Warn("Skipping unreadable reply", "error", err)
				continue
			}
			return "", fmt.Errorf("failed to receive reply: %w", err)
		}
		if in == nil {
			continue
		}
		if in.Sender != c.npc {
			c.logger.Debug("Ignoring message from another sender", "sender", in.Sender)
			continue
		}
		if in.InReplyTo != env.ID {
			c.logger.Info("Discarded late reply", "in_reply_to", in.InReplyTo, "tag", in.Tag)
			continue
		}

		decoded, err := in.Decode()
		if err != nil {
			c.logger.Warn("Skipping undecodable reply", "error", err, "tag", in.Tag)
			continue
		}
		if text, ok := match(decoded); ok {
			return text, nil
		}
	}
}
