package common

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// ErrInvalidConfig marks validation failures so main can exit with the
// config-error code instead of the generic fatal code.
var ErrInvalidConfig = errors.New("config validation failed")

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Storage     StorageConfig   `toml:"storage"`
	Logging     LoggingConfig   `toml:"logging"`
	Auth        AuthConfig      `toml:"auth"`
	Claude      ClaudeConfig    `toml:"claude"`
	Gemini      GeminiConfig    `toml:"gemini"`
	LLM         LLMConfig       `toml:"llm"`
	Embedding   EmbeddingConfig `toml:"embedding"`
	Dedup       DedupConfig     `toml:"dedup"`
	Query       QueryConfig     `toml:"query"`
	Ingest      IngestConfig    `toml:"ingest"`
	Aliases     AliasConfig     `toml:"aliases"`
	Fetch       FetchConfig     `toml:"fetch"`
	Reconcile   ReconcileConfig `toml:"reconcile"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	Badger    BadgerConfig    `toml:"badger"`
	Documents DocumentsConfig `toml:"documents"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

// DocumentsConfig configures the canonical file store
type DocumentsConfig struct {
	Dir string `toml:"dir"` // Root of documents/{group}/{date}/{id}.json partitions
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs (default: "15:04:05.000")
}

// AuthConfig configures bearer token verification and issuance
type AuthConfig struct {
	JWTSecret string `toml:"jwt_secret"` // HS256 signing secret (env: FINWIRE_AUTH_JWT_SECRET)
	TokenTTL  string `toml:"token_ttl"`  // Default issuance TTL as duration string (default: "720h")
}

// ClaudeConfig contains Anthropic Claude API configuration for extraction
type ClaudeConfig struct {
	APIKey      string  `toml:"api_key"` // Anthropic API key (env: ANTHROPIC_API_KEY)
	Model       string  `toml:"model"`   // Model for extraction (default: "claude-sonnet-4-20250514")
	Timeout     string  `toml:"timeout"` // Operation timeout as duration string (default: "60s")
	Temperature float32 `toml:"temperature"`
	MaxTokens   int     `toml:"max_tokens"`
}

// GeminiConfig contains Google Gemini API configuration for embeddings
type GeminiConfig struct {
	APIKey         string `toml:"api_key"`         // Google API key (env: GOOGLE_API_KEY)
	EmbedModel     string `toml:"embed_model"`     // Embedding model (default: "gemini-embedding-001")
	EmbedDimension int    `toml:"embed_dimension"` // Output dimension (default: 768)
	Timeout        string `toml:"timeout"`         // Operation timeout as duration string (default: "60s")
	RateLimit      string `toml:"rate_limit"`      // Minimum interval between provider calls (default: "200ms")
}

// LLMConfig contains provider-independent gateway settings
type LLMConfig struct {
	MaxRetries  int    `toml:"max_retries"`  // Bounded retries on transient provider failures (default: 3)
	Timeout     string `toml:"timeout"`      // Total per-request budget (default: "60s")
	MaxInflight int    `toml:"max_inflight"` // Concurrent provider calls (default: 5)
}

// EmbeddingConfig controls document chunking
type EmbeddingConfig struct {
	ChunkSize    int `toml:"chunk_size"`    // Sliding window size in characters (default: 1000)
	ChunkOverlap int `toml:"chunk_overlap"` // Window overlap in characters (default: 200)
	MinChunk     int `toml:"min_chunk"`     // Minimum chunk length (default: 100)
}

// DedupConfig controls the three duplicate-detection tiers
type DedupConfig struct {
	HashWindowHours        int     `toml:"hash_window_hours"`        // 0 = unbounded
	FingerprintWindowHours int     `toml:"fingerprint_window_hours"` // default: 24
	SemanticWindowHours    int     `toml:"semantic_window_hours"`    // default: 48
	SemanticThreshold      float64 `toml:"semantic_threshold"`       // cosine similarity cutoff (default: 0.85)
	Mode                   string  `toml:"mode"`                     // "flag" (default) or "skip"
}

// QueryConfig tunes the hybrid scorer
type QueryConfig struct {
	WeightGraph               float64 `toml:"weight_graph"`                // default: 0.35
	WeightSemantic            float64 `toml:"weight_semantic"`             // default: 0.35
	WeightImpact              float64 `toml:"weight_impact"`               // default: 0.15
	WeightRecency             float64 `toml:"weight_recency"`              // default: 0.15
	VectorActivationThreshold float64 `toml:"vector_activation_threshold"` // λ midpoint of the continuous vector gate (default: 0.5)
	RecencyHalfLifeMinDefense int     `toml:"recency_half_life_min_defense"` // minutes at λ=0 (default: 60)
	RecencyHalfLifeMinOffense int     `toml:"recency_half_life_min_offense"` // minutes at λ=1 (default: 180)
	DefaultK                  int     `toml:"default_k"`                     // default: 10
	DefaultWindowHours        int     `toml:"default_window_hours"`          // default: 48
}

// IngestConfig tunes pipeline behavior
type IngestConfig struct {
	StrictTickerValidation bool `toml:"strict_ticker_validation"` // unresolved tickers drop, never create phantom nodes (default: true)
	RegexTickerFallback    bool `toml:"regex_ticker_fallback"`    // scan raw text for universe tickers the model missed
	Workers                int  `toml:"workers"`                  // bound on concurrent pipeline runs (default: 4)
}

// AliasConfig configures alias seed loading
type AliasConfig struct {
	SeedDir   string `toml:"seed_dir"`   // Directory containing alias seed files (TOML)
	CacheSize int    `toml:"cache_size"` // LRU entries (default: 100000)
}

// FetchConfig tunes the article URL fetcher behind ingest_url
type FetchConfig struct {
	Timeout      string `toml:"timeout"`        // Per-fetch budget as duration string (default: "30s")
	MaxBodyBytes int64  `toml:"max_body_bytes"` // Response size cap (default: 5 MiB)
	UserAgent    string `toml:"user_agent"`
}

// ReconcileConfig schedules the canonical/index consistency sweep
type ReconcileConfig struct {
	Enabled  bool   `toml:"enabled"`
	Schedule string `toml:"schedule"`   // cron format (default: "0 */6 * * *")
	Lookback string `toml:"lookback"`   // how far back to sweep (default: "168h")
}

// LoadFromFiles loads configuration with layered precedence:
// defaults -> file1 -> file2 -> ... -> environment variables.
// Later files override earlier ones.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := DefaultConfig()

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies FINWIRE_* environment variables over the loaded
// configuration. Only keys that commonly differ per deployment are exposed.
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("FINWIRE_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			config.Server.Port = port
		}
	}
	if v := os.Getenv("FINWIRE_SERVER_HOST"); v != "" {
		config.Server.Host = v
	}
	if v := os.Getenv("FINWIRE_STORAGE_PATH"); v != "" {
		config.Storage.Badger.Path = v
	}
	if v := os.Getenv("FINWIRE_DOCUMENTS_DIR"); v != "" {
		config.Storage.Documents.Dir = v
	}
	if v := os.Getenv("FINWIRE_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
	if v := os.Getenv("FINWIRE_AUTH_JWT_SECRET"); v != "" {
		config.Auth.JWTSecret = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" && config.Claude.APIKey == "" {
		config.Claude.APIKey = v
	}
	if v := os.Getenv("GOOGLE_API_KEY"); v != "" && config.Gemini.APIKey == "" {
		config.Gemini.APIKey = v
	}
	if v := os.Getenv("FINWIRE_DEDUP_MODE"); v != "" {
		config.Dedup.Mode = v
	}
	if v := os.Getenv("FINWIRE_INGEST_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Ingest.Workers = n
		}
	}
}

// ApplyFlagOverrides applies command-line flag values (highest priority)
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port != 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// Validate checks configuration invariants. A failure here exits the
// process with code 2.
func (c *Config) Validate() error {
	var problems []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}
	if c.Storage.Badger.Path == "" {
		problems = append(problems, "storage.badger.path is required")
	}
	if c.Storage.Documents.Dir == "" {
		problems = append(problems, "storage.documents.dir is required")
	}
	if c.Dedup.Mode != "flag" && c.Dedup.Mode != "skip" {
		problems = append(problems, fmt.Sprintf("dedup.mode %q must be flag or skip", c.Dedup.Mode))
	}
	if c.Dedup.SemanticThreshold <= 0 || c.Dedup.SemanticThreshold > 1 {
		problems = append(problems, "dedup.semantic_threshold must be in (0,1]")
	}
	if c.Embedding.ChunkOverlap >= c.Embedding.ChunkSize {
		problems = append(problems, "embedding.chunk_overlap must be smaller than embedding.chunk_size")
	}
	if c.Embedding.MinChunk <= 0 {
		problems = append(problems, "embedding.min_chunk must be positive")
	}
	wsum := c.Query.WeightGraph + c.Query.WeightSemantic + c.Query.WeightImpact + c.Query.WeightRecency
	if wsum <= 0 {
		problems = append(problems, "query weights must not all be zero")
	}
	if c.Query.VectorActivationThreshold < 0 || c.Query.VectorActivationThreshold > 1 {
		problems = append(problems, "query.vector_activation_threshold must be in [0,1]")
	}
	if c.LLM.MaxInflight <= 0 {
		problems = append(problems, "llm.max_inflight must be positive")
	}
	if c.Ingest.Workers <= 0 {
		problems = append(problems, "ingest.workers must be positive")
	}
	for _, d := range []struct {
		key, value string
	}{
		{"claude.timeout", c.Claude.Timeout},
		{"gemini.timeout", c.Gemini.Timeout},
		{"gemini.rate_limit", c.Gemini.RateLimit},
		{"llm.timeout", c.LLM.Timeout},
		{"auth.token_ttl", c.Auth.TokenTTL},
		{"reconcile.lookback", c.Reconcile.Lookback},
	} {
		if _, err := time.ParseDuration(d.value); err != nil {
			problems = append(problems, fmt.Sprintf("%s: invalid duration %q", d.key, d.value))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// MustDuration parses a duration string already checked by Validate.
func MustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		panic(fmt.Sprintf("duration %q escaped config validation: %v", value, err))
	}
	return d
}
