package embed

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/pkoukk/tiktoken-go"

	"github.com/linkhive/linkhive/internal/index"
	"github.com/linkhive/linkhive/internal/llm"
)

// fakeProvider records inputs and returns canned vectors.
type fakeProvider struct {
	dim    int
	err    error
	inputs []string
}

func (f *fakeProvider) Complete(ctx context.Context, prompt *llm.Prompt) (*llm.Response, error) {
	return &llm.Response{}, nil
}

func (f *fakeProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	f.inputs = append(f.inputs, texts...)
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, f.dim)
	}
	return out, nil
}

func (f *fakeProvider) Name() string { return "fake" }

func TestNew_InvalidDimension(t *testing.T) {
	_, err := New(&fakeProvider{}, 0, 100)
	if !errors.Is(err, index.ErrInvalidConfiguration) {
		t.Errorf("dimension 0 should be invalid configuration, got %v", err)
	}
}

func TestEmbed_PassThrough(t *testing.T) {
	p := &fakeProvider{dim: 8}
	e, err := New(p, 8, 100)
	if err != nil {
		t.Fatal(err)
	}
	vec, err := e.Embed(context.Background(), "short input")
	if err != nil {
		t.Fatal(err)
	}
	if len(vec) != 8 {
		t.Errorf("vector dimension = %d, want 8", len(vec))
	}
	if len(p.inputs) != 1 || p.inputs[0] != "short input" {
		t.Errorf("short input should pass through untruncated, got %v", p.inputs)
	}
}

func TestEmbed_TruncatesOversizedInput(t *testing.T) {
	maxTokens := 16
	p := &fakeProvider{dim: 4}
	e, err := New(p, 4, maxTokens)
	if err != nil {
		t.Fatal(err)
	}

	long := strings.Repeat("over budget input text ", 100)
	if _, err := e.Embed(context.Background(), long); err != nil {
		t.Fatal(err)
	}

	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		t.Fatal(err)
	}
	if got := len(enc.Encode(p.inputs[0], nil, nil)); got > maxTokens {
		t.Errorf("provider received %d tokens, budget is %d", got, maxTokens)
	}
	// Deterministic: truncation is encode→slice→decode of the same stream.
	want := enc.Decode(enc.Encode(long, nil, nil)[:maxTokens])
	if p.inputs[0] != want {
		t.Errorf("truncation not deterministic prefix slice")
	}
}

func TestEmbed_FailurePropagatesAsEmbeddingError(t *testing.T) {
	p := &fakeProvider{dim: 4, err: errors.New("boom")}
	e, err := New(p, 4, 100)
	if err != nil {
		t.Fatal(err)
	}
	_, err = e.Embed(context.Background(), "text")
	if !errors.Is(err, index.ErrEmbedding) {
		t.Errorf("provider failure should wrap ErrEmbedding, got %v", err)
	}
}

func TestEmbed_DimensionMismatch(t *testing.T) {
	p := &fakeProvider{dim: 4}
	e, err := New(p, 8, 100)
	if err != nil {
		t.Fatal(err)
	}
	_, err = e.Embed(context.Background(), "text")
	if !errors.Is(err, index.ErrEmbedding) {
		t.Errorf("dimension mismatch should wrap ErrEmbedding, got %v", err)
	}
}

func TestEmbedAll_OrderPreserved(t *testing.T) {
	p := &fakeProvider{dim: 4}
	e, err := New(p, 4, 100)
	if err != nil {
		t.Fatal(err)
	}
	texts := []string{"first", "second", "third"}
	vecs, err := e.EmbedAll(context.Background(), texts)
	if err != nil {
		t.Fatal(err)
	}
	if len(vecs) != 3 {
		t.Fatalf("want 3 vectors, got %d", len(vecs))
	}
	for i, want := range texts {
		if p.inputs[i] != want {
			t.Errorf("input %d = %q, want %q", i, p.inputs[i], want)
		}
	}
}
