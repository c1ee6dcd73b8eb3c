package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	LLM       LLMConfig       `mapstructure:"llm"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Chunking  ChunkingConfig  `mapstructure:"chunking"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	Vector    VectorConfig    `mapstructure:"vector"`
	Keyword   KeywordConfig   `mapstructure:"keyword"`
	GitHub    GitHubConfig    `mapstructure:"github"`
	Watch     WatchConfig     `mapstructure:"watch"`
	Indexer   IndexerConfig   `mapstructure:"indexer"`
	Server    ServerConfig    `mapstructure:"server"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Log       LogConfig       `mapstructure:"log"`
}

type LLMConfig struct {
	Provider string `mapstructure:"provider"`
	Model    string `mapstructure:"model"`
	APIKey   string `mapstructure:"api_key"`
	BaseURL  string `mapstructure:"base_url"`
}

// EmbeddingConfig describes the two embedding channels. Summary and
// content vectors may use different models or dimensions; unset channel
// fields inherit the defaults.
type EmbeddingConfig struct {
	Model     string        `mapstructure:"model"`
	Dimension int           `mapstructure:"dimension"`
	MaxTokens int           `mapstructure:"max_tokens"`
	Summary   ChannelConfig `mapstructure:"summary"`
	Content   ChannelConfig `mapstructure:"content"`
}

// ChannelConfig overrides the embedding defaults for one vector field.
type ChannelConfig struct {
	Model     string `mapstructure:"model"`
	Dimension int    `mapstructure:"dimension"`
}

// Resolve applies channel overrides on top of the embedding defaults.
func (c EmbeddingConfig) Resolve(ch ChannelConfig) (model string, dimension int) {
	model, dimension = c.Model, c.Dimension
	if ch.Model != "" {
		model = ch.Model
	}
	if ch.Dimension != 0 {
		dimension = ch.Dimension
	}
	return model, dimension
}

type ChunkingConfig struct {
	MaxTokens int `mapstructure:"max_tokens"`
	Overlap   int `mapstructure:"overlap"`
}

type LedgerConfig struct {
	Path string `mapstructure:"path"`
}

type VectorConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type KeywordConfig struct {
	Host   string `mapstructure:"host"`
	APIKey string `mapstructure:"api_key"`
}

type GitHubConfig struct {
	Token string `mapstructure:"token"`
}

// WatchConfig selects which pushed files are scanned for references.
type WatchConfig struct {
	BaseBranch        string   `mapstructure:"base_branch"`
	SearchPaths       []string `mapstructure:"search_paths"`
	IncludeExtensions []string `mapstructure:"include_extensions"`
}

type IndexerConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
	Workers      int           `mapstructure:"workers"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

type TracingConfig struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	SampleRate   float64 `mapstructure:"sample_rate"`
	Environment  string  `mapstructure:"environment"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Validate checks configuration for issues and returns warnings.
// Hard failures (a non-terminating chunk window) are left to the component
// constructors, which reject them as invalid configuration.
func (c *Config) Validate() []string {
	var warnings []string

	if c.LLM.Provider != "" && c.LLM.Provider != "none" && c.LLM.APIKey == "" {
		warnings = append(warnings, fmt.Sprintf("LLM provider '%s' is configured but api_key is empty", c.LLM.Provider))
	}
	if c.Chunking.MaxTokens > 0 && c.Chunking.Overlap >= c.Chunking.MaxTokens {
		warnings = append(warnings, fmt.Sprintf("chunking overlap %d >= max_tokens %d will be rejected at startup", c.Chunking.Overlap, c.Chunking.MaxTokens))
	}
	if c.GitHub.Token == "" {
		warnings = append(warnings, "github token is empty; push reconciliation cannot fetch diffs")
	}
	if c.Watch.BaseBranch == "" {
		warnings = append(warnings, "watch base_branch is empty; every push event will be ignored")
	}
	if c.Indexer.MaxAttempts < 0 {
		warnings = append(warnings, fmt.Sprintf("indexer max_attempts %d is negative", c.Indexer.MaxAttempts))
	}

	return warnings
}

// Load reads configuration from file and environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("LINKHIVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.dimension", 1536)
	v.SetDefault("embedding.max_tokens", 7000)
	v.SetDefault("chunking.max_tokens", 1000)
	v.SetDefault("chunking.overlap", 100)
	v.SetDefault("ledger.path", "linkhive.db")
	v.SetDefault("vector.host", "localhost")
	v.SetDefault("vector.port", 6334)
	v.SetDefault("keyword.host", "http://localhost:7700")
	v.SetDefault("indexer.poll_interval", 5*time.Second)
	v.SetDefault("indexer.max_attempts", 5)
	v.SetDefault("indexer.workers", 4)
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("tracing.sample_rate", 1.0)
	v.SetDefault("log.level", "info")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if warnings := cfg.Validate(); len(warnings) > 0 {
		for _, warning := range warnings {
			fmt.Fprintf(os.Stderr, "Warning: %s\n", warning)
		}
	}

	return &cfg, nil
}
