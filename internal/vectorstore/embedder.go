package vectorstore

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	chromem "github.com/philippgille/chromem-go"
)

// Embedder kinds accepted by NewEmbeddingFunc
const (
	EmbedderHash   = "hash"
	EmbedderOpenAI = "openai"
	EmbedderOllama = "ollama"
)

// DefaultHashDimensions matches all-MiniLM-L6-v2 so persisted stores can be
// swapped to a local model without a shape change.
const DefaultHashDimensions = 384

// EmbeddingOptions selects and configures an embedding backend.
type EmbeddingOptions struct {
	Kind      string
	Model     string
	OpenAIKey string
	OllamaURL string
}

// NewEmbeddingFunc builds the embedding function for opts.Kind.
func NewEmbeddingFunc(opts EmbeddingOptions) (chromem.EmbeddingFunc, error) {
	switch opts.Kind {
	case EmbedderHash, "":
		return HashEmbedding(DefaultHashDimensions), nil
	case EmbedderOpenAI:
		if opts.OpenAIKey == "" {
			return nil, fmt.Errorf("openai embedder requires an API key")
		}
		model := chromem.EmbeddingModelOpenAI3Small
		if opts.Model != "" {
			model = chromem.EmbeddingModelOpenAI(opts.Model)
		}
		return chromem.NewEmbeddingFuncOpenAI(opts.OpenAIKey, model), nil
	case EmbedderOllama:
		model := opts.Model
		if model == "" {
			model = "nomic-embed-text"
		}
		return chromem.NewEmbeddingFuncOllama(model, opts.OllamaURL), nil
	default:
		return nil, fmt.Errorf("unsupported embedder %q", opts.Kind)
	}
}

// HashEmbedding returns a deterministic, offline embedding function. Each
// lower-cased word is hashed into a signed bucket so texts sharing words land
// close together. Texts without words fall back to a hash of the whole
// string.
func HashEmbedding(dimensions int) chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		vec := make([]float32, dimensions)

		words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsNumber(r)
		})
		for _, w := range words {
			h := fnv.New64a()
			_, _ = h.Write([]byte(w))
			sum := h.Sum64()
			idx := int(sum % uint64(dimensions))
			if sum&(1<<63) != 0 {
				vec[idx] -= 1
			} else {
				vec[idx] += 1
			}
		}

		if isZero(vec) {
			fillFromSeed(vec, text)
		}
		return normalize(vec), nil
	}
}

// fillFromSeed fills vec with an LCG sequence seeded by the hash of text.
func fillFromSeed(vec []float32, text string) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum64()
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}
}

func isZero(vec []float32) bool {
	for _, v := range vec {
		if v != 0 {
			return false
		}
	}
	return true
}

// normalize converts embedding to unit vector.
func normalize(vec []float32) []float32 {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}

	norm = float32(math.Sqrt(float64(norm)))
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}
