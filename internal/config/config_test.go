package config

import (
	"strings"
	"testing"
)

func TestValidate_Empty(t *testing.T) {
	cfg := &Config{Watch: WatchConfig{BaseBranch: "main"}, GitHub: GitHubConfig{Token: "x"}}
	warnings := cfg.Validate()
	if len(warnings) != 0 {
		t.Errorf("minimal config should have no warnings, got %v", warnings)
	}
}

func TestValidate_MissingAPIKey(t *testing.T) {
	cfg := &Config{
		LLM:    LLMConfig{Provider: "openai"},
		Watch:  WatchConfig{BaseBranch: "main"},
		GitHub: GitHubConfig{Token: "x"},
	}
	warnings := cfg.Validate()
	found := false
	for _, w := range warnings {
		if strings.Contains(w, "api_key") {
			found = true
			break
		}
	}
	if !found {
		t.Error("expected warning about missing api_key")
	}
}

func TestValidate_ChunkOverlap(t *testing.T) {
	tests := []struct {
		name      string
		maxTokens int
		overlap   int
		want      bool // true = should warn
	}{
		{"valid", 1000, 100, false},
		{"zero_window_unset", 0, 0, false},
		{"equal", 100, 100, true},
		{"exceeds", 100, 200, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Chunking: ChunkingConfig{MaxTokens: tt.maxTokens, Overlap: tt.overlap},
				Watch:    WatchConfig{BaseBranch: "main"},
				GitHub:   GitHubConfig{Token: "x"},
			}
			hasWarn := false
			for _, w := range cfg.Validate() {
				if strings.Contains(w, "overlap") {
					hasWarn = true
				}
			}
			if hasWarn != tt.want {
				t.Errorf("max=%d overlap=%d: hasWarn=%v, want=%v", tt.maxTokens, tt.overlap, hasWarn, tt.want)
			}
		})
	}
}

func TestValidate_EmptyBaseBranch(t *testing.T) {
	cfg := &Config{GitHub: GitHubConfig{Token: "x"}}
	found := false
	for _, w := range cfg.Validate() {
		if strings.Contains(w, "base_branch") {
			found = true
		}
	}
	if !found {
		t.Error("expected warning about empty base_branch")
	}
}

func TestEmbeddingResolve(t *testing.T) {
	cfg := EmbeddingConfig{
		Model:     "text-embedding-3-small",
		Dimension: 1536,
		Summary:   ChannelConfig{Dimension: 768},
		Content:   ChannelConfig{Model: "text-embedding-3-large"},
	}

	model, dim := cfg.Resolve(cfg.Summary)
	if model != "text-embedding-3-small" || dim != 768 {
		t.Errorf("summary channel = (%s, %d), want (text-embedding-3-small, 768)", model, dim)
	}

	model, dim = cfg.Resolve(cfg.Content)
	if model != "text-embedding-3-large" || dim != 1536 {
		t.Errorf("content channel = (%s, %d), want (text-embedding-3-large, 1536)", model, dim)
	}

	model, dim = cfg.Resolve(ChannelConfig{})
	if model != "text-embedding-3-small" || dim != 1536 {
		t.Errorf("empty override = (%s, %d), want defaults", model, dim)
	}
}
