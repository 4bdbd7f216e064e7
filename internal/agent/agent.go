// Package agent runs one NPC identity: it owns the identity's inbox, pulls
// envelopes one at a time and dispatches them by tag to the conversation
// controller.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jwebster45206/npc-engine/internal/conversation"
	"github.com/jwebster45206/npc-engine/internal/services/queue"
	"github.com/jwebster45206/npc-engine/pkg/protocol"
)

const (
	// receiveTimeout bounds each inbox wait so shutdown is noticed.
	receiveTimeout = 2 * time.Second
	// lockTTL outlasts a slow LLM turn; the lock is refreshed every
	// lockTTL/3 while the agent runs, including during a turn.
	lockTTL = 2 * time.Minute
)

// ErrIdentityInUse means another process already runs this NPC address.
var ErrIdentityInUse = errors.New("npc identity is already running")

// Inbox is the receiving side of the mailbox.
type Inbox interface {
	Receive(ctx context.Context, address string, timeout time.Duration) (*protocol.Envelope, error)
}

var _ Inbox = (*queue.Mailbox)(nil)

type handler func(ctx context.Context, env *protocol.Envelope, msg protocol.Message) error

// Agent processes one NPC address's inbox. Envelopes are handled strictly in
// arrival order, one at a time.
type Agent struct {
	address     string
	instanceID  string
	inbox       Inbox
	controller  *conversation.Controller
	redisClient *redis.Client
	handlers    map[protocol.Tag]handler
	log         *slog.Logger
	lockRefresh time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

var releaseLockScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// refreshLockScript extends our lock, or re-claims it if it expired and
// nobody else took it.
var refreshLockScript = redis.NewScript(`
	local owner = redis.call("get", KEYS[1])
	if owner == ARGV[1] then
		return redis.call("pexpire", KEYS[1], ARGV[2])
	elseif not owner then
		redis.call("set", KEYS[1], ARGV[1], "PX", ARGV[2])
		return 1
	else
		return 0
	end
`)

// New creates an agent for address.
func New(address string, inbox Inbox, controller *conversation.Controller, redisClient *redis.Client, log *slog.Logger) *Agent {
	ctx, cancel := context.WithCancel(context.Background())

	a := &Agent{
		address:     address,
		instanceID:  fmt.Sprintf("agent-%s", uuid.New().String()[:8]),
		inbox:       inbox,
		controller:  controller,
		redisClient: redisClient,
		log:         log.With("npc_id", address),
		lockRefresh: lockTTL / 3,
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
	a.handlers = map[protocol.Tag]handler{
		protocol.TagSetup: func(ctx context.Context, env *protocol.Envelope, msg protocol.Message) error {
			return controller.OnSetup(ctx, env, msg.(*protocol.SetupMessage))
		},
		protocol.TagPlayer: func(ctx context.Context, env *protocol.Envelope, msg protocol.Message) error {
			return controller.OnPlayerMessage(ctx, env, msg.(*protocol.PlayerMessage))
		},
		protocol.TagChat: func(ctx context.Context, env *protocol.Envelope, msg protocol.Message) error {
			return controller.OnChatMessage(ctx, env, msg.(*protocol.ChatMessage))
		},
		protocol.TagChatAck: func(ctx context.Context, env *protocol.Envelope, msg protocol.Message) error {
			return controller.OnChatAcknowledgement(ctx, env, msg.(*protocol.ChatAcknowledgement))
		},
	}
	return a
}

// Address returns the NPC address this agent serves.
func (a *Agent) Address() string {
	return a.address
}

// Start claims the identity, restores state and processes the inbox until
// Stop is called. It returns ErrIdentityInUse when another instance holds
// the identity or takes it over while the agent runs.
func (a *Agent) Start() error {
	defer close(a.done)

	locked, err := a.acquireIdentityLock()
	if err != nil {
		return fmt.Errorf("failed to acquire identity lock: %w", err)
	}
	if !locked {
		return ErrIdentityInUse
	}
	defer a.releaseIdentityLock()

	if err := a.controller.Restore(a.ctx); err != nil {
		return err
	}

	a.log.Info("Agent starting", "instance_id", a.instanceID, "phase", a.controller.Phase())

	lost := make(chan error, 1)
	keeperDone := make(chan struct{})
	go func() {
		defer close(keeperDone)
		a.keepIdentityLock(lost)
	}()
	// The keeper must be gone before the lock is released.
	defer func() {
		a.cancel()
		<-keeperDone
	}()

	for {
		select {
		case <-a.ctx.Done():
			select {
			case err := <-lost:
				a.log.Error("Identity lock lost, stopping", "instance_id", a.instanceID)
				return err
			default:
			}
			a.log.Info("Agent shutting down", "instance_id", a.instanceID)
			return nil
		default:
		}

		if err := a.processNext(); err != nil {
			a.log.Error("Error processing envelope", "error", err)
			// Back off on transport errors
			select {
			case <-a.ctx.Done():
			case <-time.After(time.Second):
			}
		}
	}
}

// Stop asks the loop to exit and waits for the in-flight envelope to finish.
func (a *Agent) Stop() {
	a.once.Do(func() {
		a.log.Info("Agent stop requested", "instance_id", a.instanceID)
		a.cancel()
	})
	<-a.done
}

// processNext waits for one envelope and handles it. Handler failures are
// logged, not returned; only transport failures are.
func (a *Agent) processNext() error {
	env, err := a.inbox.Receive(a.ctx, a.address, receiveTimeout)
	if err != nil {
		if a.ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, queue.ErrMalformedEnvelope) {
			a.log.Warn("Dropped malformed envelope", "error", err)
			return nil
		}
		return fmt.Errorf("failed to receive envelope: %w", err)
	}
	if env == nil {
		return nil
	}

	a.Dispatch(a.ctx, env)
	return nil
}

// Dispatch decodes env and runs its handler.
func (a *Agent) Dispatch(ctx context.Context, env *protocol.Envelope) {
	log := a.log.With("envelope_id", env.ID, "tag", env.Tag, "sender", env.Sender)

	h, ok := a.handlers[env.Tag]
	if !ok {
		log.Warn("No handler for message tag")
		return
	}
	msg, err := env.Decode()
	if err != nil {
		log.Warn("Dropped undecodable envelope", "error", err)
		return
	}

	start := time.Now()
	if err := h(ctx, env, msg); err != nil {
		log.Error("Handler failed", "error", err, "duration_ms", time.Since(start).Milliseconds())
		return
	}
	log.Info("Envelope handled", "duration_ms", time.Since(start).Milliseconds())
}

func (a *Agent) lockKey() string {
	return fmt.Sprintf("npc-lock:%s", a.address)
}

// acquireIdentityLock returns false when another instance owns the address.
func (a *Agent) acquireIdentityLock() (bool, error) {
	return a.redisClient.SetNX(a.ctx, a.lockKey(), a.instanceID, lockTTL).Result()
}

// keepIdentityLock refreshes the lock until the agent stops. Losing the lock
// to another instance cancels the agent and reports on lost.
func (a *Agent) keepIdentityLock(lost chan<- error) {
	ticker := time.NewTicker(a.lockRefresh)
	defer ticker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			err := a.refreshIdentityLock()
			if errors.Is(err, ErrIdentityInUse) {
				lost <- err
				a.cancel()
				return
			}
			if err != nil {
				// Retried on the next tick; the TTL leaves room for a few misses.
				a.log.Warn("Failed to refresh identity lock", "error", err)
			}
		}
	}
}

func (a *Agent) refreshIdentityLock() error {
	n, err := refreshLockScript.Run(a.ctx, a.redisClient, []string{a.lockKey()}, a.instanceID, lockTTL.Milliseconds()).Int()
	if err != nil {
		if a.ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("failed to refresh identity lock: %w", err)
	}
	if n == 0 {
		return ErrIdentityInUse
	}
	return nil
}

// releaseIdentityLock deletes the lock only if this instance still owns it.
func (a *Agent) releaseIdentityLock() {
	// a.ctx is cancelled by now
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := releaseLockScript.Run(ctx, a.redisClient, []string{a.lockKey()}, a.instanceID).Err(); err != nil {
		a.log.Error("Failed to release identity lock", "error", err)
	}
}
