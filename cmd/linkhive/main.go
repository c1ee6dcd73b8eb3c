package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/linkhive/linkhive/internal/chunk"
	"github.com/linkhive/linkhive/internal/config"
	"github.com/linkhive/linkhive/internal/embed"
	"github.com/linkhive/linkhive/internal/extract/web"
	"github.com/linkhive/linkhive/internal/index/meili"
	"github.com/linkhive/linkhive/internal/index/qdrant"
	"github.com/linkhive/linkhive/internal/indexer"
	"github.com/linkhive/linkhive/internal/ledger/sqlite"
	"github.com/linkhive/linkhive/internal/llm"
	"github.com/linkhive/linkhive/internal/llm/openai"
	"github.com/linkhive/linkhive/internal/observability"
	"github.com/linkhive/linkhive/internal/recon"
	scmgithub "github.com/linkhive/linkhive/internal/scm/github"
	"github.com/linkhive/linkhive/internal/search"
	"github.com/linkhive/linkhive/internal/server"
)

const version = "0.1.0"

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "linkhive",
		Short: "Incremental indexing and hybrid retrieval for tracked reference links",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "configs/linkhive.yaml", "Config file path")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook receiver, search API, and background indexing loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}

	var indexRepeat bool
	indexCmd := &cobra.Command{
		Use:   "index",
		Short: "Drain pending ledger work once, or keep polling with --follow",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(configPath, indexRepeat)
		},
	}
	indexCmd.Flags().BoolVar(&indexRepeat, "follow", false, "Keep polling instead of exiting after one pass")

	var (
		searchRepo  string
		searchLimit int
		searchJSON  bool
	)
	searchCmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run a hybrid search against an indexed repository",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(configPath, strings.Join(args, " "), searchRepo, searchLimit, searchJSON)
		},
	}
	searchCmd.Flags().StringVar(&searchRepo, "repo", "", "Repository namespace (owner/name)")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 10, "Maximum results")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "Output results as JSON")
	_ = searchCmd.MarkFlagRequired("repo")

	providersCmd := &cobra.Command{
		Use:   "providers",
		Short: "List available LLM providers",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("Available LLM providers:")
			fmt.Println()
			for name, url := range llm.KnownProviders {
				fmt.Printf("  %-10s %s\n", name, url)
			}
			fmt.Println("  custom     (set base_url to any OpenAI-compatible endpoint)")
			fmt.Println()
			fmt.Println("Configure in linkhive.yaml or via environment:")
			fmt.Println("  LINKHIVE_LLM_PROVIDER=openai")
			fmt.Println("  LINKHIVE_LLM_API_KEY=sk-...")
			fmt.Println("  LINKHIVE_LLM_MODEL=gpt-4o-mini")
		},
	}

	rootCmd.AddCommand(serveCmd, indexCmd, searchCmd, providersCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// pipeline bundles every wired component. Adapters are constructed once
// here and passed by reference; nothing holds client singletons.
type pipeline struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *observability.PipelineMetrics
	tracing *observability.TracerProvider

	store   *sqlite.Store
	vector  *qdrant.Adapter
	keyword *meili.Adapter

	splitter       *chunk.Splitter
	summaryEmbed   *embed.Embedder
	contentEmbed   *embed.Embedder
	extractor      *web.Extractor
	recon          *recon.Processor
	loop           *indexer.Loop
	engine         *search.Engine
	llmProviderTag string
}

func buildPipeline(ctx context.Context, configPath string) (*pipeline, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	tracing, err := observability.InitTracing(ctx, &observability.TracingConfig{
		ServiceName:    "linkhive",
		ServiceVersion: version,
		Environment:    cfg.Tracing.Environment,
		OTLPEndpoint:   cfg.Tracing.OTLPEndpoint,
		SampleRate:     cfg.Tracing.SampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing tracing: %w", err)
	}
	tracer := tracing.Tracer()
	metrics := observability.NewPipelineMetrics()

	store, err := sqlite.Open(cfg.Ledger.Path)
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}

	vector, err := qdrant.New(cfg.Vector.Host, cfg.Vector.Port)
	if err != nil {
		return nil, fmt.Errorf("connecting vector index: %w", err)
	}
	keyword := meili.New(cfg.Keyword.Host, cfg.Keyword.APIKey)

	factory := llm.NewFactory()
	factory.Register("openai", func(c llm.ProviderConfig) (llm.Provider, error) {
		return openai.New(c.APIKey, c.Model, c.BaseURL, c.EmbedModel, c.EmbedDim), nil
	})
	for _, preset := range []string{"ollama", "custom"} {
		preset := preset
		factory.Register(preset, func(c llm.ProviderConfig) (llm.Provider, error) {
			base := c.BaseURL
			if base == "" {
				base = llm.KnownProviders[preset]
			}
			return openai.New(c.APIKey, c.Model, base, c.EmbedModel, c.EmbedDim), nil
		})
	}

	newProvider := func(embedModel string, embedDim int) (llm.Provider, error) {
		return factory.Create(llm.ProviderConfig{
			Provider:   cfg.LLM.Provider,
			APIKey:     cfg.LLM.APIKey,
			Model:      cfg.LLM.Model,
			BaseURL:    cfg.LLM.BaseURL,
			EmbedModel: embedModel,
			EmbedDim:   embedDim,
			Timeout:    60 * time.Second,
			MaxRetries: 3,
		})
	}

	summaryModel, summaryDim := cfg.Embedding.Resolve(cfg.Embedding.Summary)
	contentModel, contentDim := cfg.Embedding.Resolve(cfg.Embedding.Content)

	summaryProvider, err := newProvider(summaryModel, summaryDim)
	if err != nil {
		return nil, fmt.Errorf("creating summary-channel provider: %w", err)
	}
	contentProvider, err := newProvider(contentModel, contentDim)
	if err != nil {
		return nil, fmt.Errorf("creating content-channel provider: %w", err)
	}

	summaryEmbed, err := embed.New(summaryProvider, summaryDim, cfg.Embedding.MaxTokens)
	if err != nil {
		return nil, err
	}
	contentEmbed, err := embed.New(contentProvider, contentDim, cfg.Embedding.MaxTokens)
	if err != nil {
		return nil, err
	}

	splitter, err := chunk.NewSplitter(cfg.Chunking.MaxTokens, cfg.Chunking.Overlap)
	if err != nil {
		return nil, err
	}

	extractor := web.New(summaryProvider, logger)
	scmClient := scmgithub.New(ctx, cfg.GitHub.Token)

	processor := recon.New(scmClient, store, vector, recon.Options{
		BaseBranch:        cfg.Watch.BaseBranch,
		SearchPaths:       cfg.Watch.SearchPaths,
		IncludeExtensions: cfg.Watch.IncludeExtensions,
		Metrics:           metrics,
		Tracer:            tracer,
		Logger:            logger,
	})

	loop := indexer.New(store, extractor, splitter, summaryEmbed, contentEmbed, vector, keyword,
		indexer.Options{
			PollInterval: cfg.Indexer.PollInterval,
			MaxAttempts:  cfg.Indexer.MaxAttempts,
			Workers:      cfg.Indexer.Workers,
			Metrics:      metrics,
			Tracer:       tracer,
			Logger:       logger,
		})

	engine := search.New(vector, summaryEmbed, contentEmbed, tracer)

	return &pipeline{
		cfg:            cfg,
		logger:         logger,
		metrics:        metrics,
		tracing:        tracing,
		store:          store,
		vector:         vector,
		keyword:        keyword,
		splitter:       splitter,
		summaryEmbed:   summaryEmbed,
		contentEmbed:   contentEmbed,
		extractor:      extractor,
		recon:          processor,
		loop:           loop,
		engine:         engine,
		llmProviderTag: cfg.LLM.Provider,
	}, nil
}

func (p *pipeline) close(ctx context.Context) {
	if err := p.store.Close(); err != nil {
		p.logger.Warn("closing ledger failed", "error", err)
	}
	if err := p.tracing.Shutdown(ctx); err != nil {
		p.logger.Warn("tracing shutdown failed", "error", err)
	}
}

func runServe(configPath string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p, err := buildPipeline(ctx, configPath)
	if err != nil {
		return err
	}

	health := server.NewHealth(version)
	health.RegisterCheck("ledger", server.PingHealthChecker("ledger", p.store.Ping))
	health.RegisterCheck("llm", server.LLMHealthChecker(p.llmProviderTag, nil))

	srv := server.New(p.cfg.Server.Addr, p.engine, p.keyword, p.recon, health, p.metrics, p.logger)

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		p.loop.Run(ctx)
	}()

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- srv.Run(ctx)
	}()

	shutdown := server.NewShutdownHandler(30*time.Second, p.logger)
	shutdown.RegisterHook("http-server", 10, func(sctx context.Context) error {
		cancel()
		return srv.Shutdown(sctx)
	})
	shutdown.RegisterHook("indexing-loop", 20, func(sctx context.Context) error {
		select {
		case <-loopDone:
			return nil
		case <-sctx.Done():
			return sctx.Err()
		}
	})
	shutdown.RegisterHook("storage", 90, func(sctx context.Context) error {
		p.close(sctx)
		return nil
	})
	shutdown.Start()

	select {
	case err := <-serverDone:
		shutdown.Shutdown()
		shutdown.Wait()
		return err
	case <-shutdown.Done():
		return nil
	}
}

func runIndex(configPath string, follow bool) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p, err := buildPipeline(ctx, configPath)
	if err != nil {
		return err
	}
	defer p.close(context.Background())

	if follow {
		return p.loop.Run(ctx)
	}
	return p.loop.RunCycle(ctx)
}

func runSearch(configPath, query, repo string, limit int, asJSON bool) error {
	ctx := context.Background()

	p, err := buildPipeline(ctx, configPath)
	if err != nil {
		return err
	}
	defer p.close(ctx)

	results, err := p.engine.Search(ctx, query, repo, limit)
	if err != nil {
		return err
	}

	if asJSON {
		data, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	if len(results) == 0 {
		fmt.Println("No results.")
		return nil
	}
	for i, r := range results {
		fmt.Printf("%2d. %s (%.4f)\n", i+1, r.Title, r.Score)
		fmt.Printf("    %s\n", r.SourceLink)
		if r.Summary != "" {
			fmt.Printf("    %s\n", r.Summary)
		}
		fmt.Println()
	}
	return nil
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
