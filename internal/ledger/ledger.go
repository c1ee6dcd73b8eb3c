// Package ledger is the relational system of record for known documents.
// It owns document identity and lifecycle; the search indexes are kept
// consistent with it but never consulted for state.
package ledger

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record doesn't exist.
var ErrNotFound = errors.New("document record not found")

// RecordType classifies how a document was discovered.
type RecordType string

// RecordLink marks a document discovered as a reference link in tracked
// source content.
const RecordLink RecordType = "Link"

// Record is one known document. Lifecycle: discovered (neither flag set)
// → indexed (IsIndexed) → deleted (IsDeleted, pending purge while
// IsIndexed still holds) → purged (IsDeleted only). Rows are never
// physically removed by the indexing path.
type Record struct {
	UUID      string
	URL       string
	Repo      string
	Type      RecordType
	IsIndexed bool
	IsDeleted bool
	Attempts  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store is the ledger contract. All operations are point reads/writes; no
// transaction spans the two search indexes.
type Store interface {
	// Upsert records a newly discovered reference. Inserting an already
	// known non-deleted (url, repo) pair is a no-op returning the existing
	// record; the schema enforces at most one non-deleted row per pair.
	Upsert(ctx context.Context, url string, typ RecordType, repo string) (*Record, error)

	// MarkIndexed flips the indexed flag. Set it true only after both
	// indexes acknowledged the document's writes.
	MarkIndexed(ctx context.Context, uuid string, indexed bool) error

	// MarkDeleted flips the soft-delete flag.
	MarkDeleted(ctx context.Context, uuid string, deleted bool) error

	// RecordAttempt increments the failed-attempt counter for a record.
	RecordAttempt(ctx context.Context, uuid string) error

	// FindByURL returns the non-deleted record for (url, repo), or
	// ErrNotFound.
	FindByURL(ctx context.Context, url, repo string) (*Record, error)

	// ListPendingIndex returns records awaiting indexing: not indexed, not
	// deleted, and under the attempt budget (maxAttempts <= 0 disables the
	// budget).
	ListPendingIndex(ctx context.Context, maxAttempts int) ([]Record, error)

	// ListPendingDeletion returns soft-deleted records whose index entries
	// still need purging (deleted and previously indexed).
	ListPendingDeletion(ctx context.Context) ([]Record, error)

	Close() error
}
