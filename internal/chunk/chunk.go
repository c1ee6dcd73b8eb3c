// Package chunk splits long text into overlapping token-bounded segments.
package chunk

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"

	"github.com/linkhive/linkhive/internal/index"
)

// encodingName is the tokenizer shared by chunking and embedding truncation.
const encodingName = "cl100k_base"

// Chunk is one token-bounded window of a document's content.
type Chunk struct {
	Text       string
	TokenCount int
}

// Splitter produces deterministic overlapping chunks. Safe for concurrent
// use; holds no per-call state.
type Splitter struct {
	enc       *tiktoken.Tiktoken
	maxTokens int
	overlap   int
}

// NewSplitter validates the window parameters and loads the tokenizer.
// Overlap must be strictly less than maxTokens, otherwise the split loop
// would never advance.
func NewSplitter(maxTokens, overlap int) (*Splitter, error) {
	if maxTokens <= 0 {
		return nil, fmt.Errorf("%w: chunk max_tokens must be positive, got %d", index.ErrInvalidConfiguration, maxTokens)
	}
	if overlap < 0 || overlap >= maxTokens {
		return nil, fmt.Errorf("%w: chunk overlap %d must be in [0, max_tokens=%d)", index.ErrInvalidConfiguration, overlap, maxTokens)
	}
	enc, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, fmt.Errorf("%w: loading %s tokenizer: %v", index.ErrInvalidConfiguration, encodingName, err)
	}
	return &Splitter{enc: enc, maxTokens: maxTokens, overlap: overlap}, nil
}

// Split windows the token stream into chunks of maxTokens, stepping back
// by overlap tokens between consecutive windows. The final window may be
// shorter. Empty input yields no chunks.
func (s *Splitter) Split(text string) []Chunk {
	tokens := s.enc.Encode(text, nil, nil)
	if len(tokens) == 0 {
		return nil
	}

	var chunks []Chunk
	start := 0
	for start < len(tokens) {
		end := start + s.maxTokens
		if end > len(tokens) {
			end = len(tokens)
		}
		window := tokens[start:end]
		chunks = append(chunks, Chunk{
			Text:       s.enc.Decode(window),
			TokenCount: len(window),
		})
		if end >= len(tokens) {
			break
		}
		start = end - s.overlap
	}
	return chunks
}

// MaxTokens reports the configured window size.
func (s *Splitter) MaxTokens() int { return s.maxTokens }

// Overlap reports the configured window overlap.
func (s *Splitter) Overlap() int { return s.overlap }
