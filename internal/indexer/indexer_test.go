package indexer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/linkhive/linkhive/internal/chunk"
	"github.com/linkhive/linkhive/internal/index"
	"github.com/linkhive/linkhive/internal/ledger"
)

type fakeLedger struct {
	mu      sync.Mutex
	records map[string]*ledger.Record
	nextID  int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{records: make(map[string]*ledger.Record)}
}

func (f *fakeLedger) add(url, repo string) *ledger.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	rec := &ledger.Record{UUID: fmt.Sprintf("uuid-%d", f.nextID), URL: url, Repo: repo, Type: ledger.RecordLink}
	f.records[rec.UUID] = rec
	return rec
}

func (f *fakeLedger) get(uuid string) ledger.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.records[uuid]
}

func (f *fakeLedger) Upsert(_ context.Context, url string, typ ledger.RecordType, repo string) (*ledger.Record, error) {
	return f.add(url, repo), nil
}

func (f *fakeLedger) MarkIndexed(_ context.Context, uuid string, indexed bool) error {
	return f.update(uuid, func(r *ledger.Record) { r.IsIndexed = indexed })
}

func (f *fakeLedger) MarkDeleted(_ context.Context, uuid string, deleted bool) error {
	return f.update(uuid, func(r *ledger.Record) { r.IsDeleted = deleted })
}

func (f *fakeLedger) RecordAttempt(_ context.Context, uuid string) error {
	return f.update(uuid, func(r *ledger.Record) { r.Attempts++ })
}

func (f *fakeLedger) update(uuid string, apply func(*ledger.Record)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[uuid]
	if !ok {
		return ledger.ErrNotFound
	}
	apply(rec)
	return nil
}

func (f *fakeLedger) FindByURL(_ context.Context, url, repo string) (*ledger.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rec := range f.records {
		if rec.URL == url && rec.Repo == repo && !rec.IsDeleted {
			out := *rec
			return &out, nil
		}
	}
	return nil, ledger.ErrNotFound
}

func (f *fakeLedger) ListPendingIndex(_ context.Context, maxAttempts int) ([]ledger.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []ledger.Record
	for _, rec := range f.records {
		if rec.IsIndexed || rec.IsDeleted {
			continue
		}
		if maxAttempts > 0 && rec.Attempts >= maxAttempts {
			continue
		}
		out = append(out, *rec)
	}
	return out, nil
}

func (f *fakeLedger) ListPendingDeletion(_ context.Context) ([]ledger.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []ledger.Record
	for _, rec := range f.records {
		if rec.IsDeleted && rec.IsIndexed {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (f *fakeLedger) Close() error { return nil }

type fakeExtractor struct {
	mu    sync.Mutex
	fail  map[string]error
	calls int
}

func (f *fakeExtractor) Extract(_ context.Context, url string) (*index.Unit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err := f.fail[url]; err != nil {
		return nil, err
	}
	return &index.Unit{
		UUID:          "extracted",
		ParentLink:    url,
		ParentContent: "alpha beta gamma delta epsilon zeta",
		ParentSummary: "a summary of " + url,
		ParentTitle:   "Title of " + url,
	}, nil
}

// wordSplitter yields one chunk per two words, no tokenizer involved.
type wordSplitter struct{}

func (wordSplitter) Split(text string) []chunk.Chunk {
	words := strings.Fields(text)
	var chunks []chunk.Chunk
	for i := 0; i < len(words); i += 2 {
		end := i + 2
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, chunk.Chunk{Text: strings.Join(words[i:end], " "), TokenCount: end - i})
	}
	return chunks
}

type fakeEmbedder struct {
	dim  int
	fail error
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	return f.vec(text), nil
}

func (f *fakeEmbedder) EmbedAll(_ context.Context, texts []string) ([][]float32, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = f.vec(t)
	}
	return out, nil
}

func (f *fakeEmbedder) Dimension() int { return f.dim }

func (f *fakeEmbedder) vec(text string) []float32 {
	v := make([]float32, f.dim)
	for i := range v {
		v[i] = float32(len(text))
	}
	return v
}

type fakeVectorIndex struct {
	mu      sync.Mutex
	points  map[string][]index.VectorPoint
	failUp  error
	ensured int
}

func newFakeVectorIndex() *fakeVectorIndex {
	return &fakeVectorIndex{points: make(map[string][]index.VectorPoint)}
}

func (f *fakeVectorIndex) EnsureCollection(_ context.Context, repo string, _, _ int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensured++
	return nil
}

func (f *fakeVectorIndex) UpsertPoints(_ context.Context, repo string, points []index.VectorPoint) error {
	if f.failUp != nil {
		return f.failUp
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.points[repo] = append(f.points[repo], points...)
	return nil
}

func (f *fakeVectorIndex) DeleteByLinks(_ context.Context, repo string, links []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	linkSet := make(map[string]bool, len(links))
	for _, l := range links {
		linkSet[l] = true
	}
	var kept []index.VectorPoint
	for _, p := range f.points[repo] {
		if !linkSet[p.Payload.ParentLink] {
			kept = append(kept, p)
		}
	}
	f.points[repo] = kept
	return nil
}

func (f *fakeVectorIndex) LinkExists(_ context.Context, repo, link string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.points[repo] {
		if p.Payload.ParentLink == link {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeVectorIndex) FusedQuery(context.Context, string, []float32, []float32, int) ([]index.VectorResult, error) {
	return nil, nil
}

type fakeKeywordIndex struct {
	mu      sync.Mutex
	docs    map[string][]index.Unit
	failAdd error
}

func newFakeKeywordIndex() *fakeKeywordIndex {
	return &fakeKeywordIndex{docs: make(map[string][]index.Unit)}
}

func (f *fakeKeywordIndex) EnsureIndex(_ context.Context, repo string) error { return nil }

func (f *fakeKeywordIndex) AddDocuments(_ context.Context, repo string, docs []index.Unit) error {
	if f.failAdd != nil {
		return f.failAdd
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[repo] = append(f.docs[repo], docs...)
	return nil
}

func (f *fakeKeywordIndex) DeleteByLinks(_ context.Context, repo string, links []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	linkSet := make(map[string]bool, len(links))
	for _, l := range links {
		linkSet[l] = true
	}
	var kept []index.Unit
	for _, d := range f.docs[repo] {
		if !linkSet[d.ParentLink] {
			kept = append(kept, d)
		}
	}
	f.docs[repo] = kept
	return nil
}

func (f *fakeKeywordIndex) Search(context.Context, string, string, int) ([]index.KeywordHit, error) {
	return nil, nil
}

type fixture struct {
	ledger    *fakeLedger
	extractor *fakeExtractor
	vector    *fakeVectorIndex
	keyword   *fakeKeywordIndex
	loop      *Loop
}

func newFixture(opts Options) *fixture {
	f := &fixture{
		ledger:    newFakeLedger(),
		extractor: &fakeExtractor{fail: make(map[string]error)},
		vector:    newFakeVectorIndex(),
		keyword:   newFakeKeywordIndex(),
	}
	f.loop = New(f.ledger, f.extractor, wordSplitter{},
		&fakeEmbedder{dim: 4}, &fakeEmbedder{dim: 8},
		f.vector, f.keyword, opts)
	return f
}

func TestRunCycleIndexesPendingDocument(t *testing.T) {
	f := newFixture(Options{})
	rec := f.ledger.add("https://example.com/a", "octo/notes")

	if err := f.loop.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	got := f.ledger.get(rec.UUID)
	if !got.IsIndexed {
		t.Error("record not marked indexed")
	}

	points := f.vector.points["octo/notes"]
	docs := f.keyword.docs["octo/notes"]
	if len(points) == 0 || len(points) != len(docs) {
		t.Fatalf("points = %d, docs = %d, want equal and > 0", len(points), len(docs))
	}

	// 6 words, 2 per chunk
	if len(points) != 3 {
		t.Errorf("points = %d, want 3 chunks", len(points))
	}

	ids := make(map[string]bool)
	for i, p := range points {
		if p.Payload.ParentLink != "https://example.com/a" {
			t.Errorf("point %d parent_link = %q", i, p.Payload.ParentLink)
		}
		if p.ID != p.Payload.UUID {
			t.Errorf("point %d id %q != payload uuid %q", i, p.ID, p.Payload.UUID)
		}
		if ids[p.ID] {
			t.Errorf("duplicate point id %q", p.ID)
		}
		ids[p.ID] = true
		if len(p.Summary) != 4 || len(p.Content) != 8 {
			t.Errorf("point %d vector dims = %d/%d, want 4/8", i, len(p.Summary), len(p.Content))
		}
		if p.Payload.ParentContent == "" || strings.Contains(p.Payload.ParentContent, "alpha beta gamma") {
			t.Errorf("point %d payload content is not a chunk: %q", i, p.Payload.ParentContent)
		}
	}

	// chunks share the document's summary vector
	for i := 1; i < len(points); i++ {
		if points[i].Summary[0] != points[0].Summary[0] {
			t.Error("chunks do not share the summary vector")
		}
	}
}

func TestRunCyclePurgesDeletedDocument(t *testing.T) {
	f := newFixture(Options{})
	rec := f.ledger.add("https://example.com/a", "octo/notes")

	if err := f.loop.RunCycle(context.Background()); err != nil {
		t.Fatalf("index cycle: %v", err)
	}
	if err := f.ledger.MarkDeleted(context.Background(), rec.UUID, true); err != nil {
		t.Fatal(err)
	}

	if err := f.loop.RunCycle(context.Background()); err != nil {
		t.Fatalf("purge cycle: %v", err)
	}

	if exists, _ := f.vector.LinkExists(context.Background(), "octo/notes", "https://example.com/a"); exists {
		t.Error("vector points survived purge")
	}
	if len(f.keyword.docs["octo/notes"]) != 0 {
		t.Errorf("keyword docs survived purge: %d", len(f.keyword.docs["octo/notes"]))
	}

	got := f.ledger.get(rec.UUID)
	if got.IsIndexed || !got.IsDeleted {
		t.Errorf("record flags after purge = indexed:%v deleted:%v", got.IsIndexed, got.IsDeleted)
	}

	pending, _ := f.ledger.ListPendingDeletion(context.Background())
	if len(pending) != 0 {
		t.Errorf("purged record still pending deletion")
	}
}

func TestRunCycleFailureKeepsRecordPending(t *testing.T) {
	f := newFixture(Options{})
	rec := f.ledger.add("https://example.com/bad", "octo/notes")
	f.extractor.fail["https://example.com/bad"] = fmt.Errorf("%w: fetch failed", index.ErrExtraction)

	if err := f.loop.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	got := f.ledger.get(rec.UUID)
	if got.IsIndexed {
		t.Error("failed document marked indexed")
	}
	if got.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", got.Attempts)
	}

	// extractor recovers, next cycle succeeds
	delete(f.extractor.fail, "https://example.com/bad")
	if err := f.loop.RunCycle(context.Background()); err != nil {
		t.Fatalf("retry cycle: %v", err)
	}
	if got := f.ledger.get(rec.UUID); !got.IsIndexed {
		t.Error("document not indexed after retry")
	}
}

func TestRunCycleAttemptBudget(t *testing.T) {
	f := newFixture(Options{MaxAttempts: 2})
	rec := f.ledger.add("https://example.com/bad", "octo/notes")
	f.extractor.fail["https://example.com/bad"] = fmt.Errorf("%w: permanent", index.ErrExtraction)

	for i := 0; i < 4; i++ {
		if err := f.loop.RunCycle(context.Background()); err != nil {
			t.Fatalf("cycle %d: %v", i, err)
		}
	}

	if got := f.ledger.get(rec.UUID); got.Attempts != 2 {
		t.Errorf("attempts = %d, want capped at 2", got.Attempts)
	}
}

func TestRunCycleClearsStaleEntriesBeforeInsert(t *testing.T) {
	f := newFixture(Options{})
	f.ledger.add("https://example.com/a", "octo/notes")

	// leftovers from an earlier partial attempt
	f.vector.points["octo/notes"] = []index.VectorPoint{
		{ID: "stale", Payload: index.Unit{UUID: "stale", ParentLink: "https://example.com/a"}},
	}
	f.keyword.docs["octo/notes"] = []index.Unit{
		{UUID: "stale", ParentLink: "https://example.com/a"},
	}

	if err := f.loop.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	for _, p := range f.vector.points["octo/notes"] {
		if p.ID == "stale" {
			t.Error("stale vector point survived reindex")
		}
	}
	for _, d := range f.keyword.docs["octo/notes"] {
		if d.UUID == "stale" {
			t.Error("stale keyword doc survived reindex")
		}
	}
	if len(f.vector.points["octo/notes"]) != 3 {
		t.Errorf("points after reindex = %d, want 3", len(f.vector.points["octo/notes"]))
	}
}

func TestRunCyclePartialWriteNotMarkedIndexed(t *testing.T) {
	f := newFixture(Options{})
	rec := f.ledger.add("https://example.com/a", "octo/notes")
	f.keyword.failAdd = errors.New("keyword index down")

	if err := f.loop.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	got := f.ledger.get(rec.UUID)
	if got.IsIndexed {
		t.Error("document marked indexed despite keyword write failure")
	}
	if got.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", got.Attempts)
	}

	f.keyword.failAdd = nil
	if err := f.loop.RunCycle(context.Background()); err != nil {
		t.Fatalf("retry cycle: %v", err)
	}
	got = f.ledger.get(rec.UUID)
	if !got.IsIndexed {
		t.Error("document not indexed after keyword index recovered")
	}
	if len(f.vector.points["octo/notes"]) != 3 {
		t.Errorf("points = %d after retry, want 3 (no stale duplicates)", len(f.vector.points["octo/notes"]))
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	f := newFixture(Options{PollInterval: 10 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- f.loop.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}
