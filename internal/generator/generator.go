// Package generator produces one in-character NPC reply per player message
// and records the exchange in the NPC's memory.
package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jwebster45206/npc-engine/internal/memory"
	"github.com/jwebster45206/npc-engine/internal/services"
	"github.com/jwebster45206/npc-engine/pkg/chat"
	"github.com/jwebster45206/npc-engine/pkg/prompts"
	"github.com/jwebster45206/npc-engine/pkg/state"
	"github.com/jwebster45206/npc-engine/pkg/textfilter"
)

// Fallback replies. Neither is written to memory.
const (
	ApologyReplyFormat = "Sorry, I encountered an error: %v"
	UnsureReply        = "I'm not sure how to respond to that."
)

var (
	// ErrGenerationFailed wraps a provider error. The reply is an apology.
	ErrGenerationFailed = errors.New("generation failed")
	// ErrEmptyCompletion means the provider returned a blank reply.
	ErrEmptyCompletion = errors.New("empty completion")
	// ErrEmptyInput means the player sent nothing to answer.
	ErrEmptyInput = errors.New("empty player message")
)

// Memory is the slice of memory.Store the generator needs.
type Memory interface {
	Store(ctx context.Context, npcID, text string) (string, error)
	Retrieve(ctx context.Context, npcID, query string) (string, error)
}

var _ Memory = (*memory.Store)(nil)

// ResponseGenerator turns a player message into an NPC reply.
type ResponseGenerator struct {
	llm     services.LLMService
	memory  Memory
	timeout time.Duration
	filter  *textfilter.Filter
	logger  *slog.Logger
}

// New creates a ResponseGenerator. A zero timeout leaves the caller's
// deadline in charge.
func New(llm services.LLMService, mem Memory, timeout time.Duration, logger *slog.Logger) *ResponseGenerator {
	return &ResponseGenerator{
		llm:     llm,
		memory:  mem,
		timeout: timeout,
		logger:  logger,
	}
}

// WithFilter sets the filter applied to every reply. Without one, replies
// are only tidied.
func (g *ResponseGenerator) WithFilter(f *textfilter.Filter) *ResponseGenerator {
	g.filter = f
	return g
}

// Generate always returns a reply to send. The error is non-nil when the
// reply is a fallback: ErrGenerationFailed or ErrEmptyCompletion. Only a
// real reply is stored as memory.
func (g *ResponseGenerator) Generate(ctx context.Context, profile *state.Profile, npcID, playerText string) (string, error) {
	log := g.logger.With("npc_id", npcID)

	if strings.TrimSpace(playerText) == "" {
		return UnsureReply, ErrEmptyInput
	}

	memories, err := g.memory.Retrieve(ctx, npcID, playerText)
	if err != nil {
		log.Warn("Memory retrieval failed, treating as first encounter", "error", err)
		memories = memory.FirstEncounter
	}

	messages, err := prompts.New().
		WithCharacter(npcID, profile.Name, profile.Template).
		WithDialogueStyle(profile.DialogueStyle).
		WithMemory(memories).
		WithPlayerText(playerText).
		Build()
	if err != nil {
		log.Error("Failed to build prompt", "error", err)
		return fmt.Sprintf(ApologyReplyFormat, err), fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	callCtx := ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := g.llm.Chat(callCtx, messages)
	if err != nil {
		log.Error("LLM chat failed", "error", err, "duration", time.Since(start))
		return fmt.Sprintf(ApologyReplyFormat, err), fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	var reply string
	if !resp.IsBlank() {
		reply = g.filter.Clean(profile.Name, resp.Message)
	}
	if reply == "" {
		log.Warn("LLM returned an empty reply", "duration", time.Since(start))
		return UnsureReply, ErrEmptyCompletion
	}
	log.Debug("NPC reply generated", "duration", time.Since(start), "reply_len", len(reply))

	if _, err := g.memory.Store(ctx, npcID, chat.FormatExchange(playerText, reply)); err != nil {
		log.Error("Failed to store memory", "error", err)
	}
	return reply, nil
}
