// Package extract turns a document URL into an indexable unit.
package extract

import (
	"context"

	"github.com/linkhive/linkhive/internal/index"
)

// Extractor fetches a URL and produces the denormalized unit the indexing
// loop chunks and embeds. Failures are reported wrapped in
// index.ErrExtraction.
type Extractor interface {
	Extract(ctx context.Context, url string) (*index.Unit, error)
}
