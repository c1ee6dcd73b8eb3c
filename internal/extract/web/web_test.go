package web

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/linkhive/linkhive/internal/index"
	"github.com/linkhive/linkhive/internal/llm"
)

const samplePage = `<html>
<head><title>Sample &amp; Page</title><style>body { color: red }</style></head>
<body>
<script>var x = "ignore me";</script>
<h1>Heading</h1>
<p>Body text with a <a href="https://example.com/child">child link</a> and
a <a href="/relative">relative link</a>.</p>
</body>
</html>`

type stubProvider struct {
	response string
	err      error
	prompts  []*llm.Prompt
}

func (s *stubProvider) Complete(_ context.Context, p *llm.Prompt) (*llm.Response, error) {
	s.prompts = append(s.prompts, p)
	if s.err != nil {
		return nil, s.err
	}
	return &llm.Response{Content: s.response}, nil
}

func (s *stubProvider) Embed(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("not implemented")
}

func (s *stubProvider) Name() string { return "stub" }

func TestPageText(t *testing.T) {
	text := pageText(samplePage)
	if strings.Contains(text, "ignore me") {
		t.Error("script content survived stripping")
	}
	if strings.Contains(text, "color: red") {
		t.Error("style content survived stripping")
	}
	if !strings.Contains(text, "Body text with a child link") {
		t.Errorf("body text mangled: %q", text)
	}
}

func TestPageTitle(t *testing.T) {
	if got := pageTitle(samplePage); got != "Sample & Page" {
		t.Errorf("title = %q, want %q", got, "Sample & Page")
	}
	if got := pageTitle("<html><body>no title</body></html>"); got != "" {
		t.Errorf("title = %q, want empty", got)
	}
}

func TestChildLinks(t *testing.T) {
	got := childLinks(samplePage, "https://example.com/self")
	want := []string{"https://example.com/child"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("childLinks = %v, want %v", got, want)
	}
}

func TestExtractJSON(t *testing.T) {
	fenced := "```json\n{\"summary\": \"x\"}\n```"
	if got := extractJSON(fenced); got != `{"summary": "x"}` {
		t.Errorf("extractJSON = %q", got)
	}
}

func TestExtract(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(samplePage))
	}))
	defer srv.Close()

	provider := &stubProvider{
		response: `{"title": "Sample Page", "summary": "A sample.", "keywords": ["sample", "page"]}`,
	}
	e := New(provider, nil)

	unit, err := e.Extract(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	if unit.UUID == "" {
		t.Error("unit has no id")
	}
	if unit.ParentLink != srv.URL {
		t.Errorf("parent link = %q", unit.ParentLink)
	}
	if unit.ParentTitle != "Sample Page" {
		t.Errorf("title = %q", unit.ParentTitle)
	}
	if unit.ParentSummary != "A sample." {
		t.Errorf("summary = %q", unit.ParentSummary)
	}
	if !reflect.DeepEqual(unit.ParentKeywords, []string{"sample", "page"}) {
		t.Errorf("keywords = %v", unit.ParentKeywords)
	}
	if !strings.Contains(unit.ParentContent, "Body text") {
		t.Errorf("content = %q", unit.ParentContent)
	}
	if len(provider.prompts) != 1 {
		t.Fatalf("provider calls = %d, want 1", len(provider.prompts))
	}
}

func TestExtractSummaryFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(samplePage))
	}))
	defer srv.Close()

	e := New(&stubProvider{err: errors.New("model unavailable")}, nil)

	unit, err := e.Extract(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if unit.ParentSummary == "" {
		t.Error("heuristic summary is empty")
	}
	if unit.ParentTitle != "Sample & Page" {
		t.Errorf("title = %q, want page title", unit.ParentTitle)
	}
}

func TestExtractHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	e := New(nil, nil)
	_, err := e.Extract(context.Background(), srv.URL)
	if !errors.Is(err, index.ErrExtraction) {
		t.Errorf("error = %v, want ErrExtraction", err)
	}
}
