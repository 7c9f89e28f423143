// Package config defines the explicit configuration surface for the system.
// All tunables live in the Config struct and are passed by value into each
// component's constructor; there is no process-wide mutable state.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// Retrieval method names selectable via Retrieval.Method.
const (
	MethodSimilarity = "similarity"
	MethodMMR        = "mmr"
	MethodThreshold  = "similarity_score_threshold"
)

type EmbeddingConfig struct {
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	Dimension int    `yaml:"dimension"`
}

type LLMConfig struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	Temperature float32 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

type SplitConfig struct {
	// Strategy is "structure" (legal-structure aware, falls back to generic)
	// or "generic".
	Strategy     string `yaml:"strategy"`
	ChunkSize    int    `yaml:"chunk_size"`
	ChunkOverlap int    `yaml:"chunk_overlap"`
	MinChunkLen  int    `yaml:"min_chunk_len"`
}

type RetrievalConfig struct {
	Method       string  `yaml:"method"`
	TopK         int     `yaml:"top_k"`
	MMRDiversity float64 `yaml:"mmr_diversity"`
	// CandidateMultiplier controls how many candidates MMR fetches (k * n).
	CandidateMultiplier int     `yaml:"candidate_multiplier"`
	ScoreThreshold      float64 `yaml:"score_threshold"`
	// ThresholdFetchMultiplier controls the threshold strategy's fetch (k * n).
	ThresholdFetchMultiplier int `yaml:"threshold_fetch_multiplier"`
}

type IndexConfig struct {
	// BatchSize bounds incremental and append batches.
	BatchSize int `yaml:"batch_size"`
	// CreateThreshold: above this many chunks a fresh build is batched too.
	CreateThreshold int `yaml:"create_threshold"`
}

type RetryConfig struct {
	MaxRetries int           `yaml:"max_retries"`
	BaseDelay  time.Duration `yaml:"base_delay"`
}

type Config struct {
	OllamaHost    string `yaml:"ollama_host"`
	OpenAIAPIKey  string `yaml:"openai_api_key"`
	OpenAIBaseURL string `yaml:"openai_base_url"`

	PostgresDSN  string `yaml:"postgres_dsn"`
	Neo4jURI     string `yaml:"neo4j_uri"`
	Neo4jUser    string `yaml:"neo4j_user"`
	Neo4jPass    string `yaml:"neo4j_pass"`
	GraphEnabled bool   `yaml:"graph_enabled"`

	DataDir  string `yaml:"data_dir"`
	HTTPAddr string `yaml:"http_addr"`

	Embeddings EmbeddingConfig `yaml:"embeddings"`
	LLM        LLMConfig       `yaml:"llm"`
	Split      SplitConfig     `yaml:"split"`
	Retrieval  RetrievalConfig `yaml:"retrieval"`
	Index      IndexConfig     `yaml:"index"`
	Retry      RetryConfig     `yaml:"retry"`

	// StreamMinLen is the minimum rune length of a streamed answer unit.
	StreamMinLen int `yaml:"stream_min_len"`
}

// Default returns the configuration tuned for the civil-code corpus.
func Default() Config {
	return Config{
		OllamaHost:  "http://localhost:11434",
		PostgresDSN: "postgres://localhost:5432/civil-law-rag?sslmode=disable",
		Neo4jURI:    "neo4j://localhost:7687",
		Neo4jUser:   "neo4j",
		Neo4jPass:   "password",
		DataDir:     "./data",
		HTTPAddr:    "127.0.0.1:8001",
		Embeddings: EmbeddingConfig{
			Provider: ProviderOllama,
			Model:    "nomic-embed-text:latest",
		},
		LLM: LLMConfig{
			Provider:    ProviderOllama,
			Model:       "qwen2.5:1.5b",
			Temperature: 0.1,
			MaxTokens:   2000,
		},
		Split: SplitConfig{
			Strategy:     "structure",
			ChunkSize:    800,
			ChunkOverlap: 150,
			MinChunkLen:  100,
		},
		Retrieval: RetrievalConfig{
			Method:                   MethodSimilarity,
			TopK:                     5,
			MMRDiversity:             0.3,
			CandidateMultiplier:      3,
			ScoreThreshold:           0.7,
			ThresholdFetchMultiplier: 2,
		},
		Index: IndexConfig{
			BatchSize:       50,
			CreateThreshold: 100,
		},
		Retry: RetryConfig{
			MaxRetries: 3,
			BaseDelay:  2 * time.Second,
		},
		StreamMinLen: 20,
	}
}

// Load reads the YAML config at path (a missing file means defaults), then
// applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.OllamaHost = getEnv("OLLAMA_HOST", cfg.OllamaHost)
	cfg.OpenAIAPIKey = getEnv("OPENAI_API_KEY", cfg.OpenAIAPIKey)
	cfg.OpenAIBaseURL = getEnv("OPENAI_BASE_URL", cfg.OpenAIBaseURL)
	cfg.PostgresDSN = getEnv("POSTGRES_DSN", cfg.PostgresDSN)
	cfg.Neo4jURI = getEnv("NEO4J_URI", cfg.Neo4jURI)
	cfg.Neo4jUser = getEnv("NEO4J_USERNAME", cfg.Neo4jUser)
	cfg.Neo4jPass = getEnv("NEO4J_PASSWORD", cfg.Neo4jPass)
	cfg.DataDir = getEnv("DATA_DIR", cfg.DataDir)
	cfg.HTTPAddr = getEnv("HTTP_ADDR", cfg.HTTPAddr)
	cfg.Embeddings.Provider = getEnv("EMBED_PROVIDER", cfg.Embeddings.Provider)
	cfg.Embeddings.Model = getEnv("EMBED_MODEL", cfg.Embeddings.Model)
	cfg.Embeddings.Dimension = getEnvInt("EMBED_DIMENSION", cfg.Embeddings.Dimension)
	cfg.LLM.Provider = getEnv("LLM_PROVIDER", cfg.LLM.Provider)
	cfg.LLM.Model = getEnv("LLM_MODEL", cfg.LLM.Model)
	cfg.Retrieval.Method = getEnv("RETRIEVAL_METHOD", cfg.Retrieval.Method)

	if v, ok := os.LookupEnv("GRAPH_ENABLED"); ok {
		cfg.GraphEnabled = v == "1" || v == "true"
	}
}

func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.Split.ChunkSize <= 0 {
		cfg.Split.ChunkSize = def.Split.ChunkSize
	}
	if cfg.Split.ChunkOverlap < 0 || cfg.Split.ChunkOverlap >= cfg.Split.ChunkSize {
		cfg.Split.ChunkOverlap = cfg.Split.ChunkSize / 5
	}
	if cfg.Split.MinChunkLen <= 0 {
		cfg.Split.MinChunkLen = def.Split.MinChunkLen
	}
	if cfg.Retrieval.TopK <= 0 {
		cfg.Retrieval.TopK = def.Retrieval.TopK
	}
	if cfg.Retrieval.CandidateMultiplier <= 0 {
		cfg.Retrieval.CandidateMultiplier = def.Retrieval.CandidateMultiplier
	}
	if cfg.Retrieval.ThresholdFetchMultiplier <= 0 {
		cfg.Retrieval.ThresholdFetchMultiplier = def.Retrieval.ThresholdFetchMultiplier
	}
	if cfg.Index.BatchSize <= 0 {
		cfg.Index.BatchSize = def.Index.BatchSize
	}
	if cfg.Index.CreateThreshold <= 0 {
		cfg.Index.CreateThreshold = def.Index.CreateThreshold
	}
	if cfg.Retry.MaxRetries <= 0 {
		cfg.Retry.MaxRetries = def.Retry.MaxRetries
	}
	if cfg.Retry.BaseDelay <= 0 {
		cfg.Retry.BaseDelay = def.Retry.BaseDelay
	}
	if cfg.StreamMinLen <= 0 {
		cfg.StreamMinLen = def.StreamMinLen
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}
