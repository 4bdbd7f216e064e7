// Package persona turns a free-text NPC description into a grounded profile:
// a stat-block template and a dialogue style retrieved from the vector store.
package persona

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/jwebster45206/npc-engine/internal/services"
	"github.com/jwebster45206/npc-engine/internal/vectorstore"
	"github.com/jwebster45206/npc-engine/pkg/state"
)

// FallbackDialogueStyle is used when no dialogue example is retrieved.
const FallbackDialogueStyle = "Speaks plainly and briefly, in a calm and even tone."

// DefaultNPCName is used when neither extraction nor configuration names the NPC.
const DefaultNPCName = "Gerald"

var (
	// ErrTemplateNotFound means no character template matched the filter.
	// The setup is rejected and the previous profile stays in place.
	ErrTemplateNotFound = errors.New("no matching character template found")

	// ErrStyleNotFound means dialogue retrieval returned nothing. Setup
	// continues with FallbackDialogueStyle.
	ErrStyleNotFound = errors.New("no matching dialogue style found")
)

// Hints are optional attributes supplied alongside the description. Values
// extracted from the description take precedence.
type Hints struct {
	Race       string
	Class      string
	Level      *int
	Background string
}

// DefaultExtractionTTL is how long a cached extraction is reused.
const DefaultExtractionTTL = 24 * time.Hour

// Bootstrapper builds a Profile from a free-text description.
type Bootstrapper struct {
	llm         services.LLMService
	vectors     vectorstore.Store
	defaultName string
	timeout     time.Duration
	cache       services.Cache
	cacheTTL    time.Duration
	logger      *slog.Logger
}

// NewBootstrapper creates a Bootstrapper. defaultName names NPCs whose
// description carries no name. timeout bounds each extraction call; zero
// leaves the caller's deadline in charge.
func NewBootstrapper(llm services.LLMService, vectors vectorstore.Store, defaultName string, timeout time.Duration, logger *slog.Logger) *Bootstrapper {
	if defaultName == "" {
		defaultName = DefaultNPCName
	}
	return &Bootstrapper{
		llm:         llm,
		vectors:     vectors,
		defaultName: defaultName,
		timeout:     timeout,
		logger:      logger,
	}
}

// WithCache reuses extraction results for repeated descriptions. A zero ttl
// means DefaultExtractionTTL.
func (b *Bootstrapper) WithCache(cache services.Cache, ttl time.Duration) *Bootstrapper {
	if ttl <= 0 {
		ttl = DefaultExtractionTTL
	}
	b.cache = cache
	b.cacheTTL = ttl
	return b
}

// extractionKey is the cache key for a description, ignoring case and
// spacing differences.
func extractionKey(description string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(description), " "))
	sum := sha256.Sum256([]byte(normalized))
	return "npc-extract:" + hex.EncodeToString(sum[:])
}

// Extract runs the setup_npc extraction. It never fails: a provider error or
// an unusable result degrades to an Extraction with DefaultPersonality.
// Degraded results are not cached.
func (b *Bootstrapper) Extract(ctx context.Context, description string) Extraction {
	key := extractionKey(description)
	if ex, ok := b.cachedExtraction(ctx, key); ok {
		return ex
	}

	raw, err := b.extract(ctx, description)
	if err != nil {
		b.logger.Warn("NPC extraction failed, using defaults", "error", err)
		return Extraction{Personality: DefaultPersonality}
	}

	ex, err := ParseExtraction(raw)
	if err != nil {
		b.logger.Warn("NPC extraction degraded", "error", err)
		return ex
	}

	if b.cache != nil {
		if err := b.cache.Set(ctx, key, string(raw), b.cacheTTL); err != nil {
			b.logger.Warn("Failed to cache extraction", "error", err)
		}
	}
	return ex
}

func (b *Bootstrapper) extract(ctx context.Context, description string) ([]byte, error) {
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}
	return b.llm.Extract(ctx, description)
}

func (b *Bootstrapper) cachedExtraction(ctx context.Context, key string) (Extraction, bool) {
	if b.cache == nil {
		return Extraction{}, false
	}

	cached, err := b.cache.Get(ctx, key)
	if err != nil {
		b.logger.Warn("Extraction cache unavailable", "error", err)
		return Extraction{}, false
	}
	if cached == "" {
		return Extraction{}, false
	}

	ex, err := ParseExtraction([]byte(cached))
	if err != nil {
		b.logger.Warn("Dropping unusable cached extraction", "key", key, "error", err)
		if err := b.cache.Del(ctx, key); err != nil {
			b.logger.Warn("Failed to drop cached extraction", "error", err)
		}
		return Extraction{}, false
	}

	b.logger.Debug("Using cached extraction", "key", key)
	return ex, true
}

// Bootstrap extracts attributes from description, retrieves a matching
// template and dialogue style, and returns the new profile. It returns
// ErrTemplateNotFound when no template matches.
func (b *Bootstrapper) Bootstrap(ctx context.Context, description string, hints Hints) (*state.Profile, error) {
	ex := b.Extract(ctx, description)
	ex = mergeHints(ex, hints)

	template, err := b.FindTemplate(ctx, description, ex)
	if err != nil {
		return nil, err
	}

	style, err := b.FindDialogueStyle(ctx, ex)
	if err != nil {
		if !errors.Is(err, ErrStyleNotFound) {
			b.logger.Warn("Dialogue retrieval failed", "error", err)
		}
		style = []string{FallbackDialogueStyle}
	}

	name := ex.NPCName
	if name == "" {
		name = b.defaultName
	}

	b.logger.Info("NPC profile built",
		"name", name,
		"personality", ex.Personality,
		"race", template[vectorstore.FieldRace],
		"class", template[vectorstore.FieldClass],
		"level", template[vectorstore.FieldLevel])

	return &state.Profile{
		Name:          name,
		Template:      template,
		DialogueStyle: style,
	}, nil
}

// Filter returns the conjunctive metadata filter for template lookup.
// Race, class and background are title-cased to match stored values.
func (b *Bootstrapper) Filter(ex Extraction) map[string]string {
	// Casers hold state and are not safe to share.
	titler := cases.Title(language.English)
	where := make(map[string]string)
	if ex.Race != "" {
		where[vectorstore.FieldRace] = titler.String(ex.Race)
	}
	if ex.NPCClass != "" {
		where[vectorstore.FieldClass] = titler.String(ex.NPCClass)
	}
	if ex.Level != nil {
		where[vectorstore.FieldLevel] = strconv.Itoa(*ex.Level)
	}
	if ex.Background != "" {
		where[vectorstore.FieldBackground] = titler.String(ex.Background)
	}
	return where
}

// FindTemplate returns the metadata of the template nearest to description
// that satisfies every extracted attribute.
func (b *Bootstrapper) FindTemplate(ctx context.Context, description string, ex Extraction) (state.Template, error) {
	query := strings.TrimSpace(description)
	if query == "" {
		query = ex.Personality
	}

	where := b.Filter(ex)
	results, err := b.vectors.Query(ctx, vectorstore.CollectionTemplates, query, 1, where)
	if err != nil {
		return nil, fmt.Errorf("template query failed: %w", err)
	}
	if len(results) == 0 {
		b.logger.Info("No template matched", "filter", where)
		return nil, ErrTemplateNotFound
	}

	return state.Template(results[0].Metadata).Clone(), nil
}

// FindDialogueStyle returns the dialogue example nearest to
// "{personality} {situation}".
func (b *Bootstrapper) FindDialogueStyle(ctx context.Context, ex Extraction) ([]string, error) {
	results, err := b.vectors.Query(ctx, vectorstore.CollectionDialogue, ex.DialogueQuery(), 1, nil)
	if err != nil {
		return nil, fmt.Errorf("dialogue query failed: %w", err)
	}
	if len(results) == 0 {
		return nil, ErrStyleNotFound
	}

	style := make([]string, 0, len(results))
	for _, r := range results {
		style = append(style, r.Content)
	}
	return style, nil
}

func mergeHints(ex Extraction, hints Hints) Extraction {
	if ex.Race == "" {
		ex.Race = strings.TrimSpace(hints.Race)
	}
	if ex.NPCClass == "" {
		ex.NPCClass = strings.TrimSpace(hints.Class)
	}
	if ex.Level == nil && hints.Level != nil && *hints.Level > 0 {
		level := *hints.Level
		ex.Level = &level
	}
	if ex.Background == "" {
		ex.Background = strings.TrimSpace(hints.Background)
	}
	return ex
}
