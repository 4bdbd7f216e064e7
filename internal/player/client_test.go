package player

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/npc-engine/internal/services/queue"
	"github.com/jwebster45206/npc-engine/pkg/protocol"
)

const (
	playerAddr = "player-1"
	npcAddr    = "npc-gerald"
)

// fakeMailbox answers every envelope sent to the NPC with respond's output.
type fakeMailbox struct {
	mu      sync.Mutex
	inbox   chan *protocol.Envelope
	stale   int
	sent    []*protocol.Envelope
	respond func(env *protocol.Envelope) []protocol.Message
	sendErr error
}

func newFakeMailbox(respond func(env *protocol.Envelope) []protocol.Message) *fakeMailbox {
	return &fakeMailbox{inbox: make(chan *protocol.Envelope, 16), respond: respond}
}

func (f *fakeMailbox) Send(ctx context.Context, env *protocol.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, env)
	if f.respond == nil {
		return nil
	}
	for _, msg := range f.respond(env) {
		reply, err := protocol.NewReply(env, env.Recipient, msg)
		if err != nil {
			return err
		}
		f.inbox <- reply
	}
	return nil
}

func (f *fakeMailbox) Receive(ctx context.Context, address string, timeout time.Duration) (*protocol.Envelope, error) {
	select {
	case env := <-f.inbox:
		return env, nil
	case <-time.After(timeout):
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeMailbox) Clear(ctx context.Context, address string) (int, error) {
	n := 0
	for {
		select {
		case <-f.inbox:
			n++
		default:
			f.mu.Lock()
			f.stale += n
			f.mu.Unlock()
			return n, nil
		}
	}
}

// sentAt waits until the client has sent n envelopes and returns the nth.
func (f *fakeMailbox) sentAt(t *testing.T, n int) *protocol.Envelope {
	t.Helper()
	var env *protocol.Envelope
	require.Eventually(t, func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		if len(f.sent) < n {
			return false
		}
		env = f.sent[n-1]
		return true
	}, 2*time.Second, 5*time.Millisecond)
	return env
}

func newTestClient(mb Mailbox, timeout time.Duration) *Client {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewClient(playerAddr, npcAddr, mb, timeout, logger)
}

func TestClient_Send(t *testing.T) {
	mb := newFakeMailbox(func(env *protocol.Envelope) []protocol.Message {
		return []protocol.Message{&protocol.NPCMessage{Text: "Hmph."}}
	})
	c := newTestClient(mb, time.Second)

	reply, err := c.Send(context.Background(), "Hello")
	require.NoError(t, err)
	assert.Equal(t, "Hmph.", reply)

	require.Len(t, mb.sent, 1)
	assert.Equal(t, protocol.TagPlayer, mb.sent[0].Tag)
	assert.Equal(t, playerAddr, mb.sent[0].Sender)
	assert.Equal(t, npcAddr, mb.sent[0].Recipient)
}

func TestClient_SendChatSkipsAck(t *testing.T) {
	mb := newFakeMailbox(func(env *protocol.Envelope) []protocol.Message {
		msg, _ := env.Decode()
		chat := msg.(*protocol.ChatMessage)
		return []protocol.Message{
			protocol.NewAcknowledgement(chat),
			protocol.NewChatMessage("Welcome!"),
		}
	})
	c := newTestClient(mb, time.Second)

	reply, err := c.SendChat(context.Background(), "Hello")
	require.NoError(t, err)
	assert.Equal(t, "Welcome!", reply)
}

func TestClient_Setup(t *testing.T) {
	mb := newFakeMailbox(func(env *protocol.Envelope) []protocol.Message {
		return []protocol.Message{&protocol.NPCMessage{Text: "Gerald is ready to talk."}}
	})
	c := newTestClient(mb, time.Second)

	level := 2
	reply, err := c.Setup(context.Background(), protocol.SetupMessage{Description: "A dwarf", Level: &level})
	require.NoError(t, err)
	assert.Equal(t, "Gerald is ready to talk.", reply)

	msg, err := mb.sent[0].Decode()
	require.NoError(t, err)
	assert.Equal(t, 2, *msg.(*protocol.SetupMessage).Level)
}

func TestClient_Timeout(t *testing.T) {
	mb := newFakeMailbox(nil)
	c := newTestClient(mb, 20*time.Millisecond)

	start := time.Now()
	reply, err := c.Send(context.Background(), "Anyone there?")
	require.NoError(t, err)
	assert.Equal(t, TimeoutReply, reply)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestClient_DropsLateReplies(t *testing.T) {
	mb := newFakeMailbox(func(env *protocol.Envelope) []protocol.Message {
		return []protocol.Message{&protocol.NPCMessage{Text: "fresh"}}
	})
	late, err := protocol.NewEnvelope(npcAddr, playerAddr, &protocol.NPCMessage{Text: "late reply to an earlier turn"})
	require.NoError(t, err)
	mb.inbox <- late

	c := newTestClient(mb, time.Second)
	reply, err := c.Send(context.Background(), "Hello")
	require.NoError(t, err)
	assert.Equal(t, "fresh", reply)
	assert.Equal(t, 1, mb.stale)
}

func TestClient_IgnoresOtherSenders(t *testing.T) {
	mb := newFakeMailbox(nil)
	c := newTestClient(mb, time.Second)

	go func() {
		req := mb.sentAt(t, 1)
		other, _ := protocol.NewReply(req, "npc-other", &protocol.NPCMessage{Text: "wrong npc"})
		mine, _ := protocol.NewReply(req, npcAddr, &protocol.NPCMessage{Text: "right npc"})
		mb.inbox <- other
		mb.inbox <- mine
	}()

	reply, err := c.Send(context.Background(), "Hello")
	require.NoError(t, err)
	assert.Equal(t, "right npc", reply)
}

func TestClient_SlowReplyNotDeliveredToNextRequest(t *testing.T) {
	mb := newFakeMailbox(nil)
	c := newTestClient(mb, 50*time.Millisecond)
	ctx := context.Background()

	reply, err := c.Send(ctx, "first")
	require.NoError(t, err)
	assert.Equal(t, TimeoutReply, reply)
	first := mb.sentAt(t, 1)

	// The NPC finishes the first turn while the second is in flight
	c.timeout = time.Second
	go func() {
		second := mb.sentAt(t, 2)
		late, _ := protocol.NewReply(first, npcAddr, &protocol.NPCMessage{Text: "reply to first"})
		fresh, _ := protocol.NewReply(second, npcAddr, &protocol.NPCMessage{Text: "reply to second"})
		mb.inbox <- late
		mb.inbox <- fresh
	}()

	reply, err = c.Send(ctx, "second")
	require.NoError(t, err)
	assert.Equal(t, "reply to second", reply)
}

func TestClient_OnlyLateReplyTimesOut(t *testing.T) {
	mb := newFakeMailbox(nil)
	c := newTestClient(mb, 50*time.Millisecond)
	ctx := context.Background()

	_, err := c.Send(ctx, "first")
	require.NoError(t, err)
	first := mb.sentAt(t, 1)

	go func() {
		mb.sentAt(t, 2)
		late, _ := protocol.NewReply(first, npcAddr, &protocol.NPCMessage{Text: "reply to first"})
		mb.inbox <- late
	}()

	reply, err := c.Send(ctx, "second")
	require.NoError(t, err)
	assert.Equal(t, TimeoutReply, reply)
}

func TestClient_SendError(t *testing.T) {
	mb := newFakeMailbox(nil)
	mb.sendErr = errors.New("redis down")
	c := newTestClient(mb, time.Second)

	_, err := c.Send(context.Background(), "Hello")
	assert.Error(t, err)
}

func TestClient_ContextCancelled(t *testing.T) {
	mb := newFakeMailbox(nil)
	c := newTestClient(mb, time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Send(ctx, "Hello")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_OverRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	qc, err := queue.NewClient("redis://"+mr.Addr(), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = qc.Close() })
	mb := queue.NewMailbox(qc)

	// Minimal NPC: echo every PlayerMessage back
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		for ctx.Err() == nil {
			env, err := mb.Receive(ctx, npcAddr, time.Second)
			if err != nil || env == nil {
				continue
			}
			msg, err := env.Decode()
			if err != nil {
				continue
			}
			reply, _ := protocol.NewReply(env, npcAddr, &protocol.NPCMessage{Text: "echo: " + msg.(*protocol.PlayerMessage).Text})
			_ = mb.Send(ctx, reply)
		}
	}()

	c := NewClient(playerAddr, npcAddr, mb, 5*time.Second, logger)
	reply, err := c.Send(context.Background(), "Hello")
	require.NoError(t, err)
	assert.Equal(t, "echo: Hello", reply)
}
