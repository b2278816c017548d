package common

// DefaultConfig returns the built-in configuration. Every value here can be
// overridden by config files, environment variables, or CLI flags.
func DefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8385,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data/badger",
			},
			Documents: DocumentsConfig{
				Dir: "./data/documents",
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout"},
			TimeFormat: "15:04:05.000",
		},
		Auth: AuthConfig{
			TokenTTL: "720h",
		},
		Claude: ClaudeConfig{
			Model:       "claude-sonnet-4-20250514",
			Timeout:     "60s",
			Temperature: 0.1,
			MaxTokens:   4096,
		},
		Gemini: GeminiConfig{
			EmbedModel:     "gemini-embedding-001",
			EmbedDimension: 768,
			Timeout:        "60s",
			RateLimit:      "200ms",
		},
		LLM: LLMConfig{
			MaxRetries:  3,
			Timeout:     "60s",
			MaxInflight: 5,
		},
		Embedding: EmbeddingConfig{
			ChunkSize:    1000,
			ChunkOverlap: 200,
			MinChunk:     100,
		},
		Dedup: DedupConfig{
			HashWindowHours:        0, // unbounded
			FingerprintWindowHours: 24,
			SemanticWindowHours:    48,
			SemanticThreshold:      0.85,
			Mode:                   "flag",
		},
		Query: QueryConfig{
			WeightGraph:               0.35,
			WeightSemantic:            0.35,
			WeightImpact:              0.15,
			WeightRecency:             0.15,
			VectorActivationThreshold: 0.5,
			RecencyHalfLifeMinDefense: 60,
			RecencyHalfLifeMinOffense: 180,
			DefaultK:                  10,
			DefaultWindowHours:        48,
		},
		Ingest: IngestConfig{
			StrictTickerValidation: true,
			RegexTickerFallback:    true,
			Workers:                4,
		},
		Aliases: AliasConfig{
			SeedDir:   "./seeds/aliases",
			CacheSize: 100000,
		},
		Fetch: FetchConfig{
			Timeout:      "30s",
			MaxBodyBytes: 5 << 20,
			UserAgent:    "finwire/" + Version,
		},
		Reconcile: ReconcileConfig{
			Enabled:  false,
			Schedule: "0 */6 * * *",
			Lookback: "168h",
		},
	}
}
