// Package indexer runs the background loop that drains the ledger:
// pending documents are extracted, chunked, embedded, and written to both
// search indexes; soft-deleted documents are purged from them.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/linkhive/linkhive/internal/chunk"
	"github.com/linkhive/linkhive/internal/extract"
	"github.com/linkhive/linkhive/internal/index"
	"github.com/linkhive/linkhive/internal/ledger"
	"github.com/linkhive/linkhive/internal/observability"
)

// DefaultPollInterval is how often the loop checks the ledger when the
// configuration does not say otherwise.
const DefaultPollInterval = 5 * time.Second

// Splitter chunks document content. Satisfied by chunk.Splitter.
type Splitter interface {
	Split(text string) []chunk.Chunk
}

// ChannelEmbedder embeds text for one vector field. Satisfied by
// embed.Embedder.
type ChannelEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedAll(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// Loop is the background indexing worker. Construct it with New and drive
// it with Run, or call RunCycle directly for a one-shot pass.
type Loop struct {
	ledger    ledger.Store
	extractor extract.Extractor
	splitter  Splitter
	summary   ChannelEmbedder
	content   ChannelEmbedder
	vector    index.VectorIndex
	keyword   index.KeywordIndex

	metrics *observability.PipelineMetrics
	tracer  *observability.Tracer
	logger  *slog.Logger

	pollInterval time.Duration
	maxAttempts  int
	workers      int
}

// Options tunes the loop; zero values select defaults.
type Options struct {
	PollInterval time.Duration
	// MaxAttempts caps how often a failing document is retried; <= 0
	// retries forever.
	MaxAttempts int
	// Workers bounds per-cycle document parallelism.
	Workers int
	Metrics *observability.PipelineMetrics
	Tracer  *observability.Tracer
	Logger  *slog.Logger
}

// New wires an indexing loop from its collaborators.
func New(store ledger.Store, extractor extract.Extractor, splitter Splitter,
	summary, content ChannelEmbedder, vector index.VectorIndex, keyword index.KeywordIndex,
	opts Options) *Loop {

	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Loop{
		ledger:       store,
		extractor:    extractor,
		splitter:     splitter,
		summary:      summary,
		content:      content,
		vector:       vector,
		keyword:      keyword,
		metrics:      opts.Metrics,
		tracer:       opts.Tracer,
		logger:       logger,
		pollInterval: opts.PollInterval,
		maxAttempts:  opts.MaxAttempts,
		workers:      opts.Workers,
	}
}

// Run polls until ctx is cancelled. Cycle errors are logged, never fatal;
// the ledger keeps failed documents pending so the next cycle retries them.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("indexing loop started",
		"poll_interval", l.pollInterval, "workers", l.workers, "max_attempts", l.maxAttempts)

	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	for {
		if err := l.RunCycle(ctx); err != nil && !errors.Is(err, context.Canceled) {
			l.logger.Error("indexing cycle failed", "error", err)
		}
		select {
		case <-ctx.Done():
			l.logger.Info("indexing loop stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunCycle performs one poll pass: index everything pending, then purge
// everything soft-deleted. Per-document failures are recorded against the
// ledger and skipped.
func (l *Loop) RunCycle(ctx context.Context) error {
	start := time.Now()
	defer func() {
		if l.metrics != nil {
			l.metrics.IndexCycleSeconds.ObserveDuration(start)
		}
	}()

	pending, err := l.ledger.ListPendingIndex(ctx, l.maxAttempts)
	if err != nil {
		return err
	}
	if l.metrics != nil {
		l.metrics.PendingDocuments.Set(float64(len(pending)))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.workers)
	for _, rec := range pending {
		if ctx.Err() != nil {
			break
		}
		rec := rec
		g.Go(func() error {
			if l.metrics != nil {
				l.metrics.ActiveWorkers.Inc()
				defer l.metrics.ActiveWorkers.Dec()
			}
			l.indexOne(gctx, rec)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	deletions, err := l.ledger.ListPendingDeletion(ctx)
	if err != nil {
		return err
	}
	for _, rec := range deletions {
		if ctx.Err() != nil {
			break
		}
		l.purgeOne(ctx, rec)
	}

	return ctx.Err()
}

// indexOne runs the full pipeline for one document in strict order:
// purge stale entries, extract, chunk, embed, write both indexes, then
// mark indexed. Any failure leaves the record pending for the next cycle.
func (l *Loop) indexOne(ctx context.Context, rec ledger.Record) {
	ctx, span := l.tracer.Start(ctx, "indexer.document",
		attribute.String("repo", rec.Repo),
		attribute.String("url", rec.URL),
	)
	defer span.End()

	if err := l.indexDocument(ctx, rec); err != nil {
		span.Fail(err)
		l.recordFailure(ctx, rec, err)
		return
	}

	if err := l.ledger.MarkIndexed(ctx, rec.UUID, true); err != nil {
		span.Fail(err)
		l.recordFailure(ctx, rec, err)
		return
	}

	if l.metrics != nil {
		l.metrics.DocumentsIndexed.Inc()
	}
	l.logger.Info("document indexed", "repo", rec.Repo, "url", rec.URL, "uuid", rec.UUID)
}

func (l *Loop) indexDocument(ctx context.Context, rec ledger.Record) error {
	// Stale entries from an earlier partial attempt would survive an
	// upsert, so both indexes are cleared before writing.
	if err := l.vector.DeleteByLinks(ctx, rec.Repo, []string{rec.URL}); err != nil {
		return err
	}
	if err := l.keyword.DeleteByLinks(ctx, rec.Repo, []string{rec.URL}); err != nil {
		return err
	}

	unit, err := l.extractor.Extract(ctx, rec.URL)
	if err != nil {
		return err
	}
	unit.ParentLink = rec.URL

	chunks := l.splitter.Split(unit.ParentContent)
	if len(chunks) == 0 {
		return fmt.Errorf("%w: %s: no content to chunk", index.ErrExtraction, rec.URL)
	}

	summaryText := unit.ParentSummary
	if summaryText == "" {
		summaryText = unit.ParentTitle
	}
	summaryVec, err := l.summary.Embed(ctx, summaryText)
	if err != nil {
		return err
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	contentVecs, err := l.content.EmbedAll(ctx, texts)
	if err != nil {
		return err
	}

	if err := l.vector.EnsureCollection(ctx, rec.Repo, l.summary.Dimension(), l.content.Dimension()); err != nil {
		return err
	}
	if err := l.keyword.EnsureIndex(ctx, rec.Repo); err != nil {
		return err
	}

	points := make([]index.VectorPoint, len(chunks))
	docs := make([]index.Unit, len(chunks))
	for i, c := range chunks {
		id := uuid.NewString()
		payload := unit.ChunkPayload(id, c.Text)
		points[i] = index.VectorPoint{
			ID:      id,
			Summary: summaryVec,
			Content: contentVecs[i],
			Payload: payload,
		}
		docs[i] = payload
	}

	if err := l.vector.UpsertPoints(ctx, rec.Repo, points); err != nil {
		return err
	}
	if err := l.keyword.AddDocuments(ctx, rec.Repo, docs); err != nil {
		return err
	}

	return nil
}

// purgeOne removes a soft-deleted document from both indexes and clears
// its indexed flag so it leaves the pending-deletion set.
func (l *Loop) purgeOne(ctx context.Context, rec ledger.Record) {
	ctx, span := l.tracer.Start(ctx, "indexer.purge",
		attribute.String("repo", rec.Repo),
		attribute.String("url", rec.URL),
	)
	defer span.End()

	if err := l.vector.DeleteByLinks(ctx, rec.Repo, []string{rec.URL}); err != nil {
		span.Fail(err)
		l.logger.Warn("vector purge failed", "repo", rec.Repo, "url", rec.URL, "error", err)
		return
	}
	if err := l.keyword.DeleteByLinks(ctx, rec.Repo, []string{rec.URL}); err != nil {
		span.Fail(err)
		l.logger.Warn("keyword purge failed", "repo", rec.Repo, "url", rec.URL, "error", err)
		return
	}
	if err := l.ledger.MarkIndexed(ctx, rec.UUID, false); err != nil {
		span.Fail(err)
		l.logger.Warn("purge flag update failed", "repo", rec.Repo, "uuid", rec.UUID, "error", err)
		return
	}

	if l.metrics != nil {
		l.metrics.DocumentsPurged.Inc()
	}
	l.logger.Info("document purged", "repo", rec.Repo, "url", rec.URL, "uuid", rec.UUID)
}

func (l *Loop) recordFailure(ctx context.Context, rec ledger.Record, err error) {
	stage := "index_write"
	switch {
	case errors.Is(err, index.ErrExtraction):
		stage = "extract"
		if l.metrics != nil {
			l.metrics.ExtractFailures.Inc()
		}
	case errors.Is(err, index.ErrEmbedding):
		stage = "embed"
		if l.metrics != nil {
			l.metrics.EmbedFailures.Inc()
		}
	}
	if l.metrics != nil {
		l.metrics.IndexFailures.Inc()
	}

	l.logger.Warn("document indexing failed, will retry",
		"repo", rec.Repo, "url", rec.URL, "uuid", rec.UUID,
		"stage", stage, "attempts", rec.Attempts+1, "error", err)

	if err := l.ledger.RecordAttempt(ctx, rec.UUID); err != nil {
		l.logger.Error("recording attempt failed", "uuid", rec.UUID, "error", err)
	}
}
