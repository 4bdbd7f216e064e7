package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrUnknownTag is returned when an envelope carries a tag with no message type.
var ErrUnknownTag = errors.New("unknown message tag")

// Envelope is the unit carried by the transport between two agent addresses.
// InReplyTo holds the ID of the envelope a reply answers.
type Envelope struct {
	ID        string          `json:"id"`
	Sender    string          `json:"sender"`
	Recipient string          `json:"recipient"`
	InReplyTo string          `json:"in_reply_to,omitempty"`
	Tag       Tag             `json:"tag"`
	Payload   json.RawMessage `json:"payload"`
	SentAt    time.Time       `json:"sent_at"`
}

// NewEnvelope wraps a message for delivery from sender to recipient.
func NewEnvelope(sender, recipient string, msg Message) (*Envelope, error) {
	if msg == nil {
		return nil, fmt.Errorf("message cannot be nil")
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", msg.Tag(), err)
	}
	return &Envelope{
		ID:        uuid.New().String(),
		Sender:    sender,
		Recipient: recipient,
		Tag:       msg.Tag(),
		Payload:   payload,
		SentAt:    time.Now().UTC(),
	}, nil
}

// NewReply wraps msg as sender's answer to the envelope to.
func NewReply(to *Envelope, sender string, msg Message) (*Envelope, error) {
	env, err := NewEnvelope(sender, to.Sender, msg)
	if err != nil {
		return nil, err
	}
	env.InReplyTo = to.ID
	return env, nil
}

// Decode returns the typed message held in the payload.
func (e *Envelope) Decode() (Message, error) {
	var msg Message
	switch e.Tag {
	case TagSetup:
		msg = &SetupMessage{}
	case TagPlayer:
		msg = &PlayerMessage{}
	case TagChat:
		msg = &ChatMessage{}
	case TagChatAck:
		msg = &ChatAcknowledgement{}
	case TagNPC:
		msg = &NPCMessage{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTag, e.Tag)
	}
	if err := json.Unmarshal(e.Payload, msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s payload: %w", e.Tag, err)
	}
	return msg, nil
}

// ToJSON converts the envelope to JSON bytes for Redis
func (e *Envelope) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// FromJSON parses an envelope from JSON bytes
func FromJSON(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	if env.Tag == "" {
		return nil, fmt.Errorf("envelope %q has no tag", env.ID)
	}
	return &env, nil
}
