package index

import "context"

// VectorPoint is one chunk-level point: two named vectors plus the
// denormalized unit payload. Chunks of a document share the summary
// vector; each carries its own content vector and a fresh id.
type VectorPoint struct {
	ID      string
	Summary []float32
	Content []float32
	Payload Unit
}

// VectorResult is a scored hit from a fused vector query.
type VectorResult struct {
	ID      string
	Score   float64
	Payload Unit
}

// VectorIndex is the vector store contract. Collections are named by
// repository and created lazily on first write.
type VectorIndex interface {
	// EnsureCollection creates the two-named-vector collection (cosine
	// distance, filterable parent_link payload index) if absent. Safe to
	// call concurrently; "already exists" is success.
	EnsureCollection(ctx context.Context, repo string, summaryDim, contentDim int) error

	// UpsertPoints writes one point per chunk. On failure the caller must
	// not mark the document indexed.
	UpsertPoints(ctx context.Context, repo string, points []VectorPoint) error

	// DeleteByLinks removes every point whose parent_link matches any of
	// links. Absence of matches is not an error.
	DeleteByLinks(ctx context.Context, repo string, links []string) error

	// LinkExists probes the parent_link payload index. A non-existent
	// collection reports false, not an error.
	LinkExists(ctx context.Context, repo, link string) (bool, error)

	// FusedQuery runs one ranked retrieval per vector field, each limited
	// to limit candidates, and returns the top limit results fused by
	// reciprocal rank.
	FusedQuery(ctx context.Context, repo string, summaryVec, contentVec []float32, limit int) ([]VectorResult, error)
}

// KeywordHit is one lexical search match.
type KeywordHit struct {
	Unit  Unit
	Score float64
}

// KeywordIndex is the lexical store contract, one index per repository.
type KeywordIndex interface {
	// EnsureIndex creates the repo's index with its fixed schema if
	// absent. Idempotent.
	EnsureIndex(ctx context.Context, repo string) error

	// AddDocuments upserts denormalized chunk documents keyed by uuid.
	AddDocuments(ctx context.Context, repo string, docs []Unit) error

	// DeleteByLinks removes documents whose parent_link matches any of
	// links, upgrading the filterable-attribute schema first if needed.
	DeleteByLinks(ctx context.Context, repo string, links []string) error

	// Search runs a plain lexical query against the repo's index.
	Search(ctx context.Context, repo, query string, limit int) ([]KeywordHit, error)
}
