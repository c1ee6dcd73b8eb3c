// Package recon turns source-control push events into ledger deltas. It
// never touches the search indexes directly; discovered links are recorded
// for the indexing loop and removed links are soft-deleted for purging.
package recon

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/linkhive/linkhive/internal/index"
	"github.com/linkhive/linkhive/internal/ledger"
	"github.com/linkhive/linkhive/internal/observability"
	"github.com/linkhive/linkhive/internal/scm"
)

// Processor reconciles one push event against the ledger.
type Processor struct {
	scm     scm.Client
	ledger  ledger.Store
	vector  index.VectorIndex
	metrics *observability.PipelineMetrics
	tracer  *observability.Tracer
	logger  *slog.Logger

	baseBranch        string
	searchPaths       []string
	includeExtensions []string
}

// Options configures a Processor.
type Options struct {
	BaseBranch        string
	SearchPaths       []string
	IncludeExtensions []string
	Metrics           *observability.PipelineMetrics
	Tracer            *observability.Tracer
	Logger            *slog.Logger
}

// New creates a reconciliation processor.
func New(client scm.Client, store ledger.Store, vector index.VectorIndex, opts Options) *Processor {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		scm:               client,
		ledger:            store,
		vector:            vector,
		metrics:           opts.Metrics,
		tracer:            opts.Tracer,
		logger:            logger,
		baseBranch:        opts.BaseBranch,
		searchPaths:       opts.SearchPaths,
		includeExtensions: opts.IncludeExtensions,
	}
}

// ProcessPush reconciles a push event. Pushes to branches other than the
// configured base branch are ignored. Per-link failures are logged and
// skipped so one bad link never aborts the rest of the event.
func (p *Processor) ProcessPush(ctx context.Context, ev *PushEvent) error {
	ctx, span := p.tracer.Start(ctx, "recon.push",
		attribute.String("repo", ev.FullRepo()),
		attribute.String("commit", ev.CommitSHA),
	)
	defer span.End()

	if ev.Branch != p.baseBranch {
		p.logger.Debug("ignoring push to non-base branch",
			"repo", ev.FullRepo(), "branch", ev.Branch, "base", p.baseBranch)
		return nil
	}

	changed := p.filterPaths(ev.Changed)
	removed := p.filterPaths(ev.Removed)
	if len(changed) == 0 && len(removed) == 0 {
		return nil
	}

	diff, err := p.scm.FetchDiff(ctx, ev.Owner, ev.Repo, ev.CommitSHA)
	if err != nil {
		return span.Fail(err)
	}
	sections := splitDiffByFile(diff)

	truth := make(map[string]bool)
	diffAdded := make(map[string]bool)
	diffRemoved := make(map[string]bool)

	for _, path := range changed {
		content, err := p.scm.FetchFileAtCommit(ctx, ev.Owner, ev.Repo, path, ev.CommitSHA)
		if err != nil {
			p.logger.Warn("skipping changed file, content fetch failed",
				"repo", ev.FullRepo(), "path", path, "error", err)
			continue
		}
		for _, link := range ExtractLinks(content) {
			truth[link] = true
		}
		collectDiffLinks(sections[path], diffAdded, diffRemoved)
	}
	for _, path := range removed {
		collectDiffLinks(sections[path], diffAdded, diffRemoved)
	}

	for link := range diffRemoved {
		if diffAdded[link] || truth[link] {
			delete(diffRemoved, link)
		}
	}

	repo := ev.FullRepo()
	var addedCount, removedCount int

	for _, link := range sortedSet(truth) {
		known, err := p.isKnown(ctx, link, repo)
		if err != nil {
			p.logger.Warn("skipping link, existence check failed",
				"repo", repo, "link", link, "error", err)
			continue
		}
		if known {
			continue
		}
		if _, err := p.ledger.Upsert(ctx, link, ledger.RecordLink, repo); err != nil {
			p.logger.Warn("skipping link, ledger upsert failed",
				"repo", repo, "link", link, "error", err)
			continue
		}
		addedCount++
		if p.metrics != nil {
			p.metrics.DocumentsDiscovered.Inc()
		}
	}

	for _, link := range sortedSet(diffRemoved) {
		rec, err := p.ledger.FindByURL(ctx, link, repo)
		if errors.Is(err, ledger.ErrNotFound) {
			continue
		}
		if err != nil {
			p.logger.Warn("skipping removed link, lookup failed",
				"repo", repo, "link", link, "error", err)
			continue
		}
		if err := p.ledger.MarkDeleted(ctx, rec.UUID, true); err != nil {
			p.logger.Warn("skipping removed link, soft delete failed",
				"repo", repo, "link", link, "error", err)
			continue
		}
		removedCount++
		if p.metrics != nil {
			p.metrics.DocumentsRetired.Inc()
		}
	}

	span.SetInt("links_added", addedCount)
	span.SetInt("links_removed", removedCount)
	p.logger.Info("push reconciled",
		"repo", repo, "commit", ev.CommitSHA,
		"files", len(changed)+len(removed),
		"links_added", addedCount, "links_removed", removedCount)
	return nil
}

// isKnown checks the ledger first, then probes the vector index so a
// record purged from the ledger by hand is still rediscovered cleanly.
func (p *Processor) isKnown(ctx context.Context, link, repo string) (bool, error) {
	_, err := p.ledger.FindByURL(ctx, link, repo)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, ledger.ErrNotFound) {
		return false, err
	}
	if p.vector == nil {
		return false, nil
	}
	return p.vector.LinkExists(ctx, repo, link)
}

func (p *Processor) filterPaths(paths []string) []string {
	var out []string
	for _, path := range paths {
		if matchesPath(path, p.searchPaths, p.includeExtensions) {
			out = append(out, path)
		}
	}
	return out
}

func collectDiffLinks(section string, added, removed map[string]bool) {
	if section == "" {
		return
	}
	add, rem := ExtractDiffLinks(section)
	for _, link := range add {
		added[link] = true
	}
	for _, link := range rem {
		removed[link] = true
	}
}

// splitDiffByFile breaks a unified commit diff into per-file sections
// keyed by the new-side path (old-side path for deletions).
func splitDiffByFile(diff string) map[string]string {
	sections := make(map[string]string)
	lines := strings.Split(diff, "\n")

	var current string
	var buf []string
	flush := func() {
		if current != "" {
			sections[current] = strings.Join(buf, "\n")
		}
		buf = buf[:0]
	}

	for _, line := range lines {
		if strings.HasPrefix(line, "diff --git ") {
			flush()
			current = diffHeaderPath(line)
			continue
		}
		if current != "" {
			buf = append(buf, line)
		}
	}
	flush()

	return sections
}

func diffHeaderPath(header string) string {
	fields := strings.Fields(header)
	// "diff --git a/path b/path"
	if len(fields) < 4 {
		return ""
	}
	newSide := strings.TrimPrefix(fields[3], "b/")
	if newSide != "/dev/null" {
		return newSide
	}
	return strings.TrimPrefix(fields[2], "a/")
}
