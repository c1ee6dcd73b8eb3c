// Package index holds the shared document payload shape and the error
// kinds the indexing pipeline distinguishes at its boundaries.
package index

import "errors"

// Pipeline error kinds. Callers classify failures with errors.Is; each
// stage wraps its underlying error with one of these so the indexing loop
// can log the failing stage without unwinding provider-specific errors.
var (
	// ErrInvalidConfiguration is fatal and surfaces at startup.
	ErrInvalidConfiguration = errors.New("invalid configuration")
	// ErrEmbedding marks a failed embedding-service call.
	ErrEmbedding = errors.New("embedding failure")
	// ErrIndexWrite marks a failed write against either search index.
	ErrIndexWrite = errors.New("index write failure")
	// ErrExtraction marks a failed content extraction.
	ErrExtraction = errors.New("extraction failure")
)

// Unit is the structured output of content extraction for one document.
// It lives for exactly one indexing pass: it is projected into chunk-level
// vector points and per-chunk keyword documents, never persisted as-is.
// The json tags double as the payload field names in both indexes.
type Unit struct {
	UUID           string   `json:"uuid"`
	ParentLink     string   `json:"parent_link"`
	ParentContent  string   `json:"parent_content"`
	ParentSummary  string   `json:"parent_summary"`
	ParentTitle    string   `json:"parent_title"`
	ParentKeywords []string `json:"parent_keywords"`
	ChildLinks     []string `json:"child_links"`
	ChildContents  []string `json:"child_contents"`
}

// ChunkPayload returns a copy of the unit with ParentContent replaced by
// the chunk text and a fresh id, the per-point payload shape. Chunks of
// the same document share every other field.
func (u Unit) ChunkPayload(id, chunkText string) Unit {
	p := u
	p.UUID = id
	p.ParentContent = chunkText
	return p
}
