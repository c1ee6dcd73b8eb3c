package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/linkhive/linkhive/internal/index"
	"github.com/linkhive/linkhive/internal/observability"
	"github.com/linkhive/linkhive/internal/recon"
	"github.com/linkhive/linkhive/internal/search"
)

// maxWebhookBody bounds the accepted webhook payload size.
const maxWebhookBody = 5 << 20

// Searcher is the hybrid search contract the server exposes.
// Satisfied by search.Engine.
type Searcher interface {
	Search(ctx context.Context, query, repo string, limit int) ([]search.Result, error)
}

// PushProcessor reconciles a parsed push event. Satisfied by
// recon.Processor.
type PushProcessor interface {
	ProcessPush(ctx context.Context, ev *recon.PushEvent) error
}

// Server is the HTTP front of the indexing service.
type Server struct {
	addr     string
	searcher Searcher
	keyword  index.KeywordIndex
	recon    PushProcessor
	health   *Health
	metrics  *observability.PipelineMetrics
	logger   *slog.Logger

	httpServer *http.Server
}

// New assembles the server. Health starts not-ready; Run flips it once
// the listener is up.
func New(addr string, searcher Searcher, keyword index.KeywordIndex, processor PushProcessor,
	health *Health, metrics *observability.PipelineMetrics, logger *slog.Logger) *Server {

	if logger == nil {
		logger = slog.Default()
	}
	if health == nil {
		health = NewHealth("")
	}
	return &Server{
		addr:     addr,
		searcher: searcher,
		keyword:  keyword,
		recon:    processor,
		health:   health,
		metrics:  metrics,
		logger:   logger,
	}
}

// Health exposes the health aggregate for check registration.
func (s *Server) Health() *Health {
	return s.health
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.health.mount(mux)
	mux.HandleFunc("POST /webhooks/github", s.handleWebhook)
	mux.HandleFunc("GET /search", s.handleSearch)
	mux.HandleFunc("GET /search/keyword", s.handleKeywordSearch)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	return mux
}

// Run serves until ctx is cancelled, then drains connections.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.addr)
		errCh <- s.httpServer.ListenAndServe()
	}()
	s.health.SetReady(true)

	select {
	case <-ctx.Done():
		s.health.SetReady(false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Shutdown drains the server outside of Run's lifecycle.
func (s *Server) Shutdown(ctx context.Context) error {
	s.health.SetReady(false)
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	event := r.Header.Get("X-GitHub-Event")
	switch event {
	case "ping":
		writeJSON(w, http.StatusOK, map[string]string{"status": "pong"})
		return
	case "push":
	default:
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "ignored", "event": event})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "reading body: " + err.Error()})
		return
	}

	ev, err := recon.ParsePushEvent(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	if err := s.recon.ProcessPush(r.Context(), ev); err != nil {
		s.logger.Error("push reconciliation failed",
			"repo", ev.FullRepo(), "commit", ev.CommitSHA, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "processed", "commit": ev.CommitSHA})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query, repo, limit, ok := s.searchParams(w, r)
	if !ok {
		return
	}

	start := time.Now()
	results, err := s.searcher.Search(r.Context(), query, repo, limit)
	if s.metrics != nil {
		s.metrics.FusedQueries.Inc()
		s.metrics.SearchLatencySecs.ObserveDuration(start)
	}
	if err != nil {
		if s.metrics != nil {
			s.metrics.SearchErrors.Inc()
		}
		s.logger.Error("search failed", "repo", repo, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) handleKeywordSearch(w http.ResponseWriter, r *http.Request) {
	query, repo, limit, ok := s.searchParams(w, r)
	if !ok {
		return
	}

	hits, err := s.keyword.Search(r.Context(), repo, query, limit)
	if s.metrics != nil {
		s.metrics.KeywordQueries.Inc()
	}
	if err != nil {
		if s.metrics != nil {
			s.metrics.SearchErrors.Inc()
		}
		s.logger.Error("keyword search failed", "repo", repo, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	type keywordResult struct {
		SourceLink string  `json:"source_link"`
		Title      string  `json:"title"`
		Summary    string  `json:"summary"`
		Excerpt    string  `json:"excerpt"`
		Score      float64 `json:"score"`
	}
	results := make([]keywordResult, len(hits))
	for i, hit := range hits {
		results[i] = keywordResult{
			SourceLink: hit.Unit.ParentLink,
			Title:      hit.Unit.ParentTitle,
			Summary:    hit.Unit.ParentSummary,
			Excerpt:    hit.Unit.ParentContent,
			Score:      hit.Score,
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) searchParams(w http.ResponseWriter, r *http.Request) (query, repo string, limit int, ok bool) {
	query = r.URL.Query().Get("q")
	repo = r.URL.Query().Get("repo")
	if query == "" || repo == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "q and repo query parameters are required"})
		return "", "", 0, false
	}

	limit = 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 100 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be an integer in [1, 100]"})
			return "", "", 0, false
		}
		limit = parsed
	}
	return query, repo, limit, true
}
