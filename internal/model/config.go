package model

import "time"

// Config is the full runtime configuration.
// Hierarchy: CLI flags > ~/.newsvet/config.yaml > defaults. Credentials
// come from the environment only (OPENAI_API_KEY, ANTHROPIC_API_KEY,
// OLLAMA_BASE_URL); they are never read from or written to config files.
type Config struct {
	Registry    RegistryConfig    `yaml:"registry" json:"registry"`
	Match       MatchConfig       `yaml:"match" json:"match"`
	LLM         LLMConfig         `yaml:"llm" json:"llm"`
	Embedding   EmbeddingConfig   `yaml:"embedding" json:"embedding"`
	Index       IndexConfig       `yaml:"index" json:"index"`
	Chat        ChatConfig        `yaml:"chat" json:"chat"`
	Ingest      IngestConfig      `yaml:"ingest" json:"ingest"`
	Concurrency ConcurrencyConfig `yaml:"concurrency" json:"concurrency"`
	Cache       CacheConfig       `yaml:"cache" json:"cache"`
	Output      OutputConfig      `yaml:"output" json:"output"`
}

// RegistryConfig locates the authoritative entity listing
type RegistryConfig struct {
	Path string `yaml:"path" json:"path"` // Line-delimited JSON, one entry per line
}

// MatchConfig holds the decision thresholds for the match engine.
// Similarity >= High accepts; below Low discards; the band between is
// ambiguous and conservatively discarded.
type MatchConfig struct {
	HighThreshold float64 `yaml:"high_threshold" json:"high_threshold"`
	LowThreshold  float64 `yaml:"low_threshold" json:"low_threshold"`
}

// LLMConfig configures the reasoning engine provider
type LLMConfig struct {
	Provider  string `yaml:"provider" json:"provider"` // openai, anthropic, ollama
	Model     string `yaml:"model" json:"model"`
	APIKey    string `yaml:"-" json:"-"` // Environment only, never written to config files
	BaseURL   string `yaml:"base_url,omitempty" json:"base_url,omitempty"`
	Timeout   int    `yaml:"timeout" json:"timeout"` // Seconds, per call
	MaxTokens int    `yaml:"max_tokens" json:"max_tokens"`

	// Proxy settings for the provider HTTP clients
	HTTPProxy  string `yaml:"http_proxy,omitempty" json:"http_proxy,omitempty"`
	HTTPSProxy string `yaml:"https_proxy,omitempty" json:"https_proxy,omitempty"`
	NoProxy    string `yaml:"no_proxy,omitempty" json:"no_proxy,omitempty"`
}

// EmbeddingConfig configures the embedding provider for the index
type EmbeddingConfig struct {
	Provider string `yaml:"provider" json:"provider"` // openai or ollama
	Model    string `yaml:"model" json:"model"`
	APIKey   string `yaml:"-" json:"-"`
	BaseURL  string `yaml:"base_url,omitempty" json:"base_url,omitempty"`
	Timeout  int    `yaml:"timeout" json:"timeout"`
}

// IndexConfig locates the semantic index database
type IndexConfig struct {
	Path string `yaml:"path" json:"path"` // SQLite file; also holds the decision audit log
}

// ChatConfig bounds the conversational context window
type ChatConfig struct {
	WindowTurns  int `yaml:"window_turns" json:"window_turns"`   // Last N turns included in the prompt
	RetrievalTop int `yaml:"retrieval_top" json:"retrieval_top"` // Top-K grounding chunks per turn
}

// IngestConfig filters incoming scraped records
type IngestConfig struct {
	MinContentLen int `yaml:"min_content_len" json:"min_content_len"` // Shorter items are ignored
}

// ConcurrencyConfig bounds parallel work and external call rates
type ConcurrencyConfig struct {
	VerifyWorkers     int     `yaml:"verify_workers" json:"verify_workers"`
	MaxRetries        int     `yaml:"max_retries" json:"max_retries"` // Per-chunk reasoning retries
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second"`
	Burst             int     `yaml:"burst" json:"burst"`
}

// CacheConfig controls the embedding cache
type CacheConfig struct {
	Enabled bool          `yaml:"enabled" json:"enabled"`
	Dir     string        `yaml:"dir,omitempty" json:"dir,omitempty"` // Disk tier; empty = memory only
	TTL     time.Duration `yaml:"ttl" json:"ttl"`
}

// OutputConfig controls run artifacts
type OutputConfig struct {
	Verbose    bool   `yaml:"verbose" json:"verbose"`
	ReportPath string `yaml:"report_path,omitempty" json:"report_path,omitempty"` // Markdown digest
	JSONPath   string `yaml:"json_path,omitempty" json:"json_path,omitempty"`     // Machine-readable run report
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Registry: RegistryConfig{
			Path: "bursa_companies.jsonl",
		},
		Match: MatchConfig{
			HighThreshold: 0.85,
			LowThreshold:  0.55,
		},
		LLM: LLMConfig{
			Provider:  "openai",
			Timeout:   30,
			MaxTokens: 1000,
		},
		Embedding: EmbeddingConfig{
			Provider: "openai",
			Timeout:  30,
		},
		Index: IndexConfig{
			Path: "newsvet.db",
		},
		Chat: ChatConfig{
			WindowTurns:  8,
			RetrievalTop: 5,
		},
		Ingest: IngestConfig{
			MinContentLen: 50,
		},
		Concurrency: ConcurrencyConfig{
			VerifyWorkers:     4,
			MaxRetries:        3,
			RequestsPerSecond: 2,
			Burst:             4,
		},
		Cache: CacheConfig{
			Enabled: true,
			TTL:     24 * time.Hour,
		},
		Output: OutputConfig{
			JSONPath: "run.json",
		},
	}
}
