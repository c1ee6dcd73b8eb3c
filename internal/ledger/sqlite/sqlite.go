// Package sqlite implements the document ledger on SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/linkhive/linkhive/internal/ledger"
)

const schema = `
CREATE TABLE IF NOT EXISTS document_records (
    uuid       TEXT PRIMARY KEY,
    url        TEXT NOT NULL,
    repo       TEXT NOT NULL,
    type       TEXT NOT NULL DEFAULT 'Link',
    is_indexed INTEGER NOT NULL DEFAULT 0,
    is_deleted INTEGER NOT NULL DEFAULT 0,
    attempts   INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

-- At most one live record per (url, repo). Soft-deleted rows fall out of
-- the index so a re-discovered link gets a fresh record.
CREATE UNIQUE INDEX IF NOT EXISTS idx_document_records_live
    ON document_records(url, repo) WHERE is_deleted = 0;

CREATE INDEX IF NOT EXISTS idx_document_records_pending
    ON document_records(is_indexed, is_deleted);
`

// Store implements ledger.Store on a SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the ledger database at path. Use ":memory:" for
// an ephemeral ledger in tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening ledger database: %w", err)
	}

	// SQLite benefits from a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("applying ledger schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks database reachability, for health probes.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Upsert(ctx context.Context, url string, typ ledger.RecordType, repo string) (*ledger.Record, error) {
	id := uuid.NewString()
	now := time.Now().UTC()
	// The partial unique index rejects a duplicate live (url, repo); the
	// conflict clause turns that into insert-or-no-op.
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO document_records (uuid, url, repo, type, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(url, repo) WHERE is_deleted = 0 DO NOTHING`,
		id, url, repo, string(typ), now, now)
	if err != nil {
		return nil, fmt.Errorf("upserting document record: %w", err)
	}
	return s.FindByURL(ctx, url, repo)
}

func (s *Store) MarkIndexed(ctx context.Context, id string, indexed bool) error {
	return s.setFlag(ctx, id, "is_indexed", indexed)
}

func (s *Store) MarkDeleted(ctx context.Context, id string, deleted bool) error {
	return s.setFlag(ctx, id, "is_deleted", deleted)
}

func (s *Store) setFlag(ctx context.Context, id, column string, value bool) error {
	v := 0
	if value {
		v = 1
	}
	// column is one of two compile-time constants, never user input.
	res, err := s.db.ExecContext(ctx,
		"UPDATE document_records SET "+column+" = ?, updated_at = ? WHERE uuid = ?", v, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("updating %s: %w", column, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: uuid %s", ledger.ErrNotFound, id)
	}
	return nil
}

func (s *Store) RecordAttempt(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE document_records
		SET attempts = attempts + 1, updated_at = ?
		WHERE uuid = ?`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("recording attempt: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: uuid %s", ledger.ErrNotFound, id)
	}
	return nil
}

func (s *Store) FindByURL(ctx context.Context, url, repo string) (*ledger.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT uuid, url, repo, type, is_indexed, is_deleted, attempts, created_at, updated_at
		FROM document_records
		WHERE url = ? AND repo = ? AND is_deleted = 0`, url, repo)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s in %s", ledger.ErrNotFound, url, repo)
	}
	return rec, err
}

func (s *Store) ListPendingIndex(ctx context.Context, maxAttempts int) ([]ledger.Record, error) {
	query := `
		SELECT uuid, url, repo, type, is_indexed, is_deleted, attempts, created_at, updated_at
		FROM document_records
		WHERE is_indexed = 0 AND is_deleted = 0`
	args := []any{}
	if maxAttempts > 0 {
		query += " AND attempts < ?"
		args = append(args, maxAttempts)
	}
	query += " ORDER BY created_at"
	return s.list(ctx, query, args...)
}

func (s *Store) ListPendingDeletion(ctx context.Context) ([]ledger.Record, error) {
	return s.list(ctx, `
		SELECT uuid, url, repo, type, is_indexed, is_deleted, attempts, created_at, updated_at
		FROM document_records
		WHERE is_deleted = 1 AND is_indexed = 1
		ORDER BY created_at`)
}

func (s *Store) list(ctx context.Context, query string, args ...any) ([]ledger.Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing document records: %w", err)
	}
	defer rows.Close()

	var records []ledger.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*ledger.Record, error) {
	var rec ledger.Record
	var typ string
	var indexed, deleted int
	if err := row.Scan(&rec.UUID, &rec.URL, &rec.Repo, &typ, &indexed, &deleted,
		&rec.Attempts, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	rec.Type = ledger.RecordType(typ)
	rec.IsIndexed = indexed != 0
	rec.IsDeleted = deleted != 0
	return &rec, nil
}

var _ ledger.Store = (*Store)(nil)
