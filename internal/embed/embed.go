// Package embed maps text to fixed-dimension vectors, trimming oversized
// inputs deterministically before calling the embedding backend.
package embed

import (
	"context"
	"fmt"

	"github.com/pkoukk/tiktoken-go"

	"github.com/linkhive/linkhive/internal/index"
	"github.com/linkhive/linkhive/internal/llm"
)

// DefaultMaxTokens is the input budget applied before an embedding call,
// below every common embedding model's context limit.
const DefaultMaxTokens = 7000

// Embedder binds one embedding channel (a model + dimension) to an LLM
// provider. Input is truncated encode→slice→decode so the provider call
// never fails on oversized input.
type Embedder struct {
	provider  llm.Provider
	enc       *tiktoken.Tiktoken
	dimension int
	maxTokens int
}

// New creates an Embedder for one vector channel.
func New(provider llm.Provider, dimension, maxTokens int) (*Embedder, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: embedding dimension must be positive, got %d", index.ErrInvalidConfiguration, dimension)
	}
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("%w: loading tokenizer: %v", index.ErrInvalidConfiguration, err)
	}
	return &Embedder{provider: provider, enc: enc, dimension: dimension, maxTokens: maxTokens}, nil
}

// Dimension reports the channel's vector size.
func (e *Embedder) Dimension() int { return e.dimension }

// Embed returns the vector for one text. Failures wrap ErrEmbedding; there
// is no fallback, the caller decides whether to retry or abort the document.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	text = e.truncate(text)
	vectors, err := e.provider.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", index.ErrEmbedding, err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("%w: got %d vectors for one input", index.ErrEmbedding, len(vectors))
	}
	if len(vectors[0]) != e.dimension {
		return nil, fmt.Errorf("%w: got %d-dimensional vector, want %d", index.ErrEmbedding, len(vectors[0]), e.dimension)
	}
	return vectors[0], nil
}

// EmbedAll returns one vector per text, in order.
func (e *Embedder) EmbedAll(ctx context.Context, texts []string) ([][]float32, error) {
	trimmed := make([]string, len(texts))
	for i, t := range texts {
		trimmed[i] = e.truncate(t)
	}
	vectors, err := e.provider.Embed(ctx, trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", index.ErrEmbedding, err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d inputs", index.ErrEmbedding, len(vectors), len(texts))
	}
	for i, v := range vectors {
		if len(v) != e.dimension {
			return nil, fmt.Errorf("%w: vector %d is %d-dimensional, want %d", index.ErrEmbedding, i, len(v), e.dimension)
		}
	}
	return vectors, nil
}

func (e *Embedder) truncate(text string) string {
	tokens := e.enc.Encode(text, nil, nil)
	if len(tokens) <= e.maxTokens {
		return text
	}
	return e.enc.Decode(tokens[:e.maxTokens])
}
