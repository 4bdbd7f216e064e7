package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Tag identifies the message type carried in an envelope
type Tag string

const (
	TagSetup   Tag = "setup"
	TagPlayer  Tag = "player"
	TagChat    Tag = "chat"
	TagChatAck Tag = "chat_ack"
	TagNPC     Tag = "npc"
)

// Message is implemented by every protocol message.
type Message interface {
	Tag() Tag
}

// SetupMessage asks an NPC to build its persona from free text. The optional
// fields are hints used only when extraction leaves them empty.
type SetupMessage struct {
	Description string `json:"description"`
	Race        string `json:"race,omitempty"`
	Class       string `json:"class,omitempty"`
	Level       *int   `json:"level,omitempty"`
	Background  string `json:"background,omitempty"`
}

func (SetupMessage) Tag() Tag { return TagSetup }

// PlayerMessage is a plain player utterance.
type PlayerMessage struct {
	Text string `json:"text"`
}

func (PlayerMessage) Tag() Tag { return TagPlayer }

// NPCMessage is a plain NPC reply.
type NPCMessage struct {
	Text string `json:"text"`
}

func (NPCMessage) Tag() Tag { return TagNPC }

// ChatAcknowledgement confirms receipt of a ChatMessage.
type ChatAcknowledgement struct {
	Timestamp         time.Time `json:"timestamp"`
	AcknowledgedMsgID uuid.UUID `json:"acknowledged_msg_id"`
}

func (ChatAcknowledgement) Tag() Tag { return TagChatAck }

// ChatMessage is the structured chat message with an identity and a list of
// content segments.
type ChatMessage struct {
	MsgID     uuid.UUID `json:"msg_id"`
	Timestamp time.Time `json:"timestamp"`
	Content   []Content `json:"content"`
}

func (ChatMessage) Tag() Tag { return TagChat }

// NewChatMessage builds a ChatMessage holding a single text segment.
func NewChatMessage(text string) *ChatMessage {
	return &ChatMessage{
		MsgID:     uuid.New(),
		Timestamp: time.Now().UTC(),
		Content:   []Content{TextContent{Text: text}},
	}
}

// NewAcknowledgement acknowledges msg.
func NewAcknowledgement(msg *ChatMessage) *ChatAcknowledgement {
	return &ChatAcknowledgement{
		Timestamp:         time.Now().UTC(),
		AcknowledgedMsgID: msg.MsgID,
	}
}

// PlainText concatenates all text segments in order. Other segment kinds
// contribute nothing.
func (m *ChatMessage) PlainText() string {
	var sb strings.Builder
	for _, c := range m.Content {
		switch v := c.(type) {
		case TextContent:
			sb.WriteString(v.Text)
		case UnknownContent:
		}
	}
	return sb.String()
}

// Content is one segment of a ChatMessage. The set of variants is closed.
type Content interface {
	contentType() string
}

const contentTypeText = "text"

// TextContent is a text segment.
type TextContent struct {
	Text string
}

func (TextContent) contentType() string { return contentTypeText }

// UnknownContent keeps a segment of a type this build does not understand so
// it survives re-encoding.
type UnknownContent struct {
	Type string
	Raw  json.RawMessage
}

func (u UnknownContent) contentType() string { return u.Type }

type contentWire struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

func (m ChatMessage) MarshalJSON() ([]byte, error) {
	type Alias ChatMessage
	segments := make([]json.RawMessage, 0, len(m.Content))
	for _, c := range m.Content {
		switch v := c.(type) {
		case TextContent:
			raw, err := json.Marshal(contentWire{Type: contentTypeText, Text: v.Text})
			if err != nil {
				return nil, err
			}
			segments = append(segments, raw)
		case UnknownContent:
			segments = append(segments, v.Raw)
		default:
			return nil, fmt.Errorf("unsupported content type %T", c)
		}
	}
	return json.Marshal(&struct {
		Content []json.RawMessage `json:"content"`
		*Alias
	}{
		Content: segments,
		Alias:   (*Alias)(&m),
	})
}

func (m *ChatMessage) UnmarshalJSON(data []byte) error {
	type Alias ChatMessage
	aux := &struct {
		Content []json.RawMessage `json:"content"`
		*Alias
	}{
		Alias: (*Alias)(m),
	}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}

	m.Content = make([]Content, 0, len(aux.Content))
	for _, raw := range aux.Content {
		var wire contentWire
		if err := json.Unmarshal(raw, &wire); err != nil {
			return fmt.Errorf("invalid content segment: %w", err)
		}
		if wire.Type == contentTypeText {
			m.Content = append(m.Content, TextContent{Text: wire.Text})
			continue
		}
		m.Content = append(m.Content, UnknownContent{Type: wire.Type, Raw: raw})
	}
	return nil
}
