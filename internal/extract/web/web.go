// Package web extracts indexable units from live web pages. It fetches
// the page, reduces the markup to plain text, and asks an LLM for the
// title, summary, and keywords the payload carries.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/linkhive/linkhive/internal/index"
	"github.com/linkhive/linkhive/internal/llm"
)

const (
	// maxBodyBytes caps the fetched page size.
	maxBodyBytes = 4 << 20
	// summaryInputLimit caps how much page text is sent to the LLM.
	summaryInputLimit = 12000
)

var (
	titleTag    = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	scriptBlock = regexp.MustCompile(`(?is)<(script|style|noscript)[^>]*>.*?</(script|style|noscript)>`)
	anyTag      = regexp.MustCompile(`(?s)<[^>]*>`)
	hrefAttr    = regexp.MustCompile(`(?i)href="(https?://[^"]+)"`)
	whitespace  = regexp.MustCompile(`\s+`)
)

// Extractor fetches and summarizes web documents.
type Extractor struct {
	http     *http.Client
	provider llm.Provider
	logger   *slog.Logger
}

// New creates a web extractor. A nil provider disables LLM summarization;
// the heuristic fallback still produces a usable unit.
func New(provider llm.Provider, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		http:     &http.Client{Timeout: 30 * time.Second},
		provider: provider,
		logger:   logger,
	}
}

// Extract fetches url and builds its indexable unit. Failures wrap
// index.ErrExtraction.
func (e *Extractor) Extract(ctx context.Context, url string) (*index.Unit, error) {
	page, err := e.fetch(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", index.ErrExtraction, url, err)
	}

	title := pageTitle(page)
	text := pageText(page)
	if text == "" {
		return nil, fmt.Errorf("%w: %s: page has no textual content", index.ErrExtraction, url)
	}

	unit := &index.Unit{
		UUID:          uuid.NewString(),
		ParentLink:    url,
		ParentContent: text,
		ParentTitle:   title,
		ChildLinks:    childLinks(page, url),
	}

	summary, err := e.summarize(ctx, title, text)
	if err != nil {
		e.logger.Warn("summarization failed, using heuristic summary", "url", url, "error", err)
		summary = heuristicSummary(title, text)
	}
	unit.ParentSummary = summary.Summary
	unit.ParentKeywords = summary.Keywords
	if summary.Title != "" {
		unit.ParentTitle = summary.Title
	}
	if unit.ParentTitle == "" {
		unit.ParentTitle = url
	}

	return unit, nil
}

func (e *Extractor) fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "linkhive/1.0")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain")

	resp, err := e.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

type pageSummary struct {
	Title    string   `json:"title"`
	Summary  string   `json:"summary"`
	Keywords []string `json:"keywords"`
}

const summarySystemPrompt = `You summarize web documents for a search index.
Respond with a single JSON object: {"title": string, "summary": string, "keywords": [string]}.
The summary is 2-4 sentences covering what the document is about. Keywords are 3-8 short topical terms. No markdown, no extra text.`

func (e *Extractor) summarize(ctx context.Context, title, text string) (*pageSummary, error) {
	if e.provider == nil {
		return nil, fmt.Errorf("no LLM provider configured")
	}

	input := text
	if len(input) > summaryInputLimit {
		input = input[:summaryInputLimit]
	}

	resp, err := e.provider.Complete(ctx, &llm.Prompt{
		SystemPrompt: summarySystemPrompt,
		Messages: []llm.Message{{
			Role:    llm.RoleUser,
			Content: fmt.Sprintf("Title: %s\n\n%s", title, input),
		}},
	})
	if err != nil {
		return nil, err
	}

	var summary pageSummary
	if err := json.Unmarshal([]byte(extractJSON(resp.Content)), &summary); err != nil {
		return nil, fmt.Errorf("decode summary response: %w", err)
	}
	if summary.Summary == "" {
		return nil, fmt.Errorf("summary response missing summary field")
	}
	return &summary, nil
}

// extractJSON strips fencing and surrounding prose some models wrap
// around the JSON object.
func extractJSON(content string) string {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start >= 0 && end > start {
		return content[start : end+1]
	}
	return content
}

func heuristicSummary(title, text string) *pageSummary {
	summary := text
	if len(summary) > 500 {
		summary = summary[:500]
	}
	return &pageSummary{Title: title, Summary: summary}
}

func pageTitle(page string) string {
	m := titleTag.FindStringSubmatch(page)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(m[1]))
}

func pageText(page string) string {
	text := scriptBlock.ReplaceAllString(page, " ")
	text = anyTag.ReplaceAllString(text, " ")
	text = html.UnescapeString(text)
	return strings.TrimSpace(whitespace.ReplaceAllString(text, " "))
}

func childLinks(page, self string) []string {
	var links []string
	seen := map[string]bool{self: true}
	for _, m := range hrefAttr.FindAllStringSubmatch(page, -1) {
		link := m[1]
		if !seen[link] {
			seen[link] = true
			links = append(links, link)
		}
	}
	return links
}
