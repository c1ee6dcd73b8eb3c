// Package search answers natural-language queries by fusing the two
// vector channels of a repository's collection.
package search

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/linkhive/linkhive/internal/index"
	"github.com/linkhive/linkhive/internal/observability"
)

// Embedder is the single-text embedding contract the engine needs from
// each channel.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Result is one ranked answer candidate.
type Result struct {
	SourceLink string  `json:"source_link"`
	Title      string  `json:"title"`
	Summary    string  `json:"summary"`
	Excerpt    string  `json:"excerpt"`
	Score      float64 `json:"score"`
}

// Engine embeds a query once per vector channel and returns the fused
// ranking. It performs no re-ranking of its own: ordering is exactly what
// fusion produced.
type Engine struct {
	vector  index.VectorIndex
	summary Embedder
	content Embedder
	tracer  *observability.Tracer
}

// New creates a hybrid search engine. The summary and content embedders
// may use different models or dimensions.
func New(vector index.VectorIndex, summary, content Embedder, tracer *observability.Tracer) *Engine {
	return &Engine{vector: vector, summary: summary, content: content, tracer: tracer}
}

// Search embeds query into both vector spaces and runs the fused query.
// Embedding and query failures propagate; there is no partial-result
// fallback.
func (e *Engine) Search(ctx context.Context, query, repo string, limit int) ([]Result, error) {
	ctx, span := e.tracer.Start(ctx, "search.hybrid",
		attribute.String("repo", repo),
		attribute.Int("limit", limit))
	defer span.End()

	summaryVec, err := e.summary.Embed(ctx, query)
	if err != nil {
		return nil, span.Fail(fmt.Errorf("embedding query for summary channel: %w", err))
	}
	contentVec, err := e.content.Embed(ctx, query)
	if err != nil {
		return nil, span.Fail(fmt.Errorf("embedding query for content channel: %w", err))
	}

	hits, err := e.vector.FusedQuery(ctx, repo, summaryVec, contentVec, limit)
	if err != nil {
		return nil, span.Fail(fmt.Errorf("fused query against %s: %w", repo, err))
	}

	results := make([]Result, len(hits))
	for i, hit := range hits {
		results[i] = Result{
			SourceLink: hit.Payload.ParentLink,
			Title:      hit.Payload.ParentTitle,
			Summary:    hit.Payload.ParentSummary,
			Excerpt:    hit.Payload.ParentContent,
			Score:      hit.Score,
		}
	}
	span.SetInt("results", len(results))
	return results, nil
}
