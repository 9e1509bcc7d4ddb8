package core

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Defaults applied by DefaultConfig and by the file loaders for keys the
// file does not set.
const (
	DefaultDuplicateThreshold = 0.9
	DefaultHistoryLimit       = 10
	DefaultSearchLimit        = 100
	DefaultGetAllLimit        = 100
	DefaultEmbeddingModel     = "text-embedding-3-small"
	DefaultEmbeddingDims      = 1536
	DefaultCollectionName     = "memories"
)

// Config contains the complete configuration for a memnet client.
//
// Example:
//
//	config := core.DefaultConfig()
//	config.LLM = core.LLMConfig{Provider: "openai", APIKey: "sk-..."}
//	config.Embedder.APIKey = "sk-..."
//	config.VectorStore = core.VectorStoreConfig{
//	    Provider: "sqlite",
//	    Path:     "./memories.db",
//	}
//	client, err := core.NewClient(config)
type Config struct {
	// LLM contains LLM provider configuration.
	LLM LLMConfig `json:"llm" yaml:"llm"`

	// Embedder contains embedding provider configuration.
	Embedder EmbedderConfig `json:"embedder" yaml:"embedder"`

	// VectorStore contains vector store configuration.
	VectorStore VectorStoreConfig `json:"vector_store" yaml:"vector_store"`

	// Intelligence controls consolidation and reranking.
	Intelligence IntelligenceConfig `json:"intelligence" yaml:"intelligence"`

	// Graph enables the knowledge-graph extension (optional).
	Graph *GraphConfig `json:"graph,omitempty" yaml:"graph,omitempty"`

	// Logger receives client diagnostics. Defaults to a "memnet" prefixed
	// logger whose level follows MEMNET_LOG_LEVEL.
	Logger *log.Logger `json:"-" yaml:"-"`
}

// LLMConfig contains configuration for the LLM provider.
//
// Supported providers: openai, qwen, anthropic, deepseek, ollama
type LLMConfig struct {
	// Provider is the LLM provider name.
	Provider string `json:"provider" yaml:"provider"`

	// APIKey is the API key for the LLM provider. Required for every
	// provider except ollama.
	APIKey string `json:"api_key" yaml:"api_key"`

	// Model is the model name to use (e.g., "gpt-4o-mini", "qwen-plus").
	Model string `json:"model" yaml:"model"`

	// BaseURL is the base URL for the API (optional, uses provider default if empty).
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
}

// EmbedderConfig contains configuration for the embedding provider.
//
// Supported providers: openai, qwen, ollama
type EmbedderConfig struct {
	// Provider is the embedding provider name.
	Provider string `json:"provider" yaml:"provider"`

	// APIKey is the API key for the embedding provider. Required for openai
	// and qwen.
	APIKey string `json:"api_key" yaml:"api_key"`

	// Model is the embedding model name.
	Model string `json:"model" yaml:"model"`

	// BaseURL is the base URL for the API (optional, uses provider default if empty).
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`

	// Dimensions is the dimension of the embedding vectors. Every stored
	// embedding must have this length.
	Dimensions int `json:"dimensions" yaml:"dimensions"`

	// CacheSize, when positive, caches up to this many embeddings in
	// memory and collapses concurrent requests for the same text.
	CacheSize int64 `json:"cache_size,omitempty" yaml:"cache_size,omitempty"`
}

// VectorStoreConfig contains configuration for the vector store.
//
// Supported providers: memory, sqlite, postgres, oceanbase, chromem
type VectorStoreConfig struct {
	// Provider is the vector store provider name.
	Provider string `json:"provider" yaml:"provider"`

	// CollectionName is the table or collection holding memories.
	CollectionName string `json:"collection_name" yaml:"collection_name"`

	// Path is the SQLite database file.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`

	// DSN, when set, is used as-is for postgres and oceanbase instead of
	// the individual connection fields.
	DSN string `json:"dsn,omitempty" yaml:"dsn,omitempty"`

	Host     string `json:"host,omitempty" yaml:"host,omitempty"`
	Port     int    `json:"port,omitempty" yaml:"port,omitempty"`
	User     string `json:"user,omitempty" yaml:"user,omitempty"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
	DBName   string `json:"db_name,omitempty" yaml:"db_name,omitempty"`
	SSLMode  string `json:"ssl_mode,omitempty" yaml:"ssl_mode,omitempty"`

	// Index, when set, is created at startup on backends that support
	// approximate vector indexes.
	Index *IndexConfig `json:"index,omitempty" yaml:"index,omitempty"`
}

// IndexConfig describes an approximate vector index.
type IndexConfig struct {
	// Name of the index. Defaults to "<collection>_embedding_idx".
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Type is "HNSW" or "IVF_FLAT".
	Type string `json:"type" yaml:"type"`

	// HNSW parameters.
	M              int `json:"m,omitempty" yaml:"m,omitempty"`
	EfConstruction int `json:"ef_construction,omitempty" yaml:"ef_construction,omitempty"`

	// IVF parameters.
	Lists int `json:"lists,omitempty" yaml:"lists,omitempty"`
}

// IntelligenceConfig controls consolidation and reranking.
type IntelligenceConfig struct {
	// DuplicateThreshold is the similarity a stored memory must strictly
	// exceed for a new fact to be merged into it. Range [-1, 1].
	DuplicateThreshold float64 `json:"duplicate_threshold" yaml:"duplicate_threshold"`

	// EnableReranking reorders search results with the LLM.
	EnableReranking bool `json:"enable_reranking" yaml:"enable_reranking"`

	// HistoryLimit is how many conversation turns callers should keep. The
	// client only exposes it.
	HistoryLimit int `json:"history_limit" yaml:"history_limit"`

	// FactExtractionPrompt replaces the built-in extraction prompt.
	FactExtractionPrompt string `json:"fact_extraction_prompt,omitempty" yaml:"fact_extraction_prompt,omitempty"`
}

// GraphConfig enables entity and relation extraction on Add.
type GraphConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
}

// DefaultConfig returns a configuration with every default filled in and no
// providers chosen.
func DefaultConfig() *Config {
	return &Config{
		Embedder: EmbedderConfig{
			Model:      DefaultEmbeddingModel,
			Dimensions: DefaultEmbeddingDims,
		},
		VectorStore: VectorStoreConfig{
			CollectionName: DefaultCollectionName,
		},
		Intelligence: IntelligenceConfig{
			DuplicateThreshold: DefaultDuplicateThreshold,
			HistoryLimit:       DefaultHistoryLimit,
		},
	}
}

// LoadConfigFromEnv loads configuration from environment variables.
//
// The function:
//  1. Searches for .env or .env.example files (up to 5 directory levels up)
//  2. Loads environment variables from the found file
//  3. Parses environment variables into a Config struct
//
// Supported environment variables:
//   - DATABASE_PROVIDER (memory, sqlite, postgres, oceanbase, chromem)
//   - SQLITE_PATH, SQLITE_COLLECTION
//   - POSTGRES_DSN, POSTGRES_HOST, POSTGRES_PORT, POSTGRES_USER, POSTGRES_PASSWORD,
//     POSTGRES_DATABASE, POSTGRES_COLLECTION, POSTGRES_SSLMODE
//   - OCEANBASE_DSN, OCEANBASE_HOST, OCEANBASE_PORT, OCEANBASE_USER, OCEANBASE_PASSWORD,
//     OCEANBASE_DATABASE, OCEANBASE_COLLECTION
//   - CHROMEM_COLLECTION
//   - LLM_PROVIDER, LLM_API_KEY, LLM_MODEL, LLM_BASE_URL
//   - EMBEDDING_PROVIDER, EMBEDDING_API_KEY, EMBEDDING_MODEL, EMBEDDING_DIMS,
//     EMBEDDING_BASE_URL, EMBEDDING_CACHE_SIZE
//   - DUPLICATE_THRESHOLD, ENABLE_RERANKING, HISTORY_LIMIT, ENABLE_GRAPH
//
// Malformed numbers and booleans are reported as ErrInvalidConfig.
func LoadConfigFromEnv() (*Config, error) {
	envPath, found := FindEnvFile()
	if found {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	env := &envReader{}
	config := DefaultConfig()

	provider := getEnvOrDefault("DATABASE_PROVIDER", "sqlite")
	store := &config.VectorStore
	store.Provider = provider
	switch provider {
	case "sqlite":
		store.Path = getEnvOrDefault("SQLITE_PATH", "./memnet.db")
		store.CollectionName = getEnvOrDefault("SQLITE_COLLECTION", DefaultCollectionName)
	case "postgres":
		store.DSN = os.Getenv("POSTGRES_DSN")
		store.Host = getEnvOrDefault("POSTGRES_HOST", "localhost")
		store.Port = env.int("POSTGRES_PORT", 5432)
		store.User = getEnvOrDefault("POSTGRES_USER", "postgres")
		store.Password = os.Getenv("POSTGRES_PASSWORD")
		store.DBName = getEnvOrDefault("POSTGRES_DATABASE", "memnet")
		store.CollectionName = getEnvOrDefault("POSTGRES_COLLECTION", DefaultCollectionName)
		store.SSLMode = getEnvOrDefault("POSTGRES_SSLMODE", "disable")
	case "oceanbase":
		store.DSN = os.Getenv("OCEANBASE_DSN")
		store.Host = getEnvOrDefault("OCEANBASE_HOST", "127.0.0.1")
		store.Port = env.int("OCEANBASE_PORT", 2881)
		store.User = getEnvOrDefault("OCEANBASE_USER", "root@sys")
		store.Password = os.Getenv("OCEANBASE_PASSWORD")
		store.DBName = getEnvOrDefault("OCEANBASE_DATABASE", "memnet")
		store.CollectionName = getEnvOrDefault("OCEANBASE_COLLECTION", DefaultCollectionName)
	case "chromem":
		store.CollectionName = getEnvOrDefault("CHROMEM_COLLECTION", DefaultCollectionName)
	}

	llmProvider := getEnvOrDefault("LLM_PROVIDER", "openai")
	config.LLM = LLMConfig{
		Provider: llmProvider,
		APIKey:   os.Getenv("LLM_API_KEY"),
		Model:    getEnvOrDefault("LLM_MODEL", defaultLLMModel(llmProvider)),
		BaseURL:  os.Getenv("LLM_BASE_URL"),
	}

	embedderProvider := getEnvOrDefault("EMBEDDING_PROVIDER", "openai")
	model, dims := defaultEmbedding(embedderProvider)
	config.Embedder = EmbedderConfig{
		Provider:   embedderProvider,
		APIKey:     os.Getenv("EMBEDDING_API_KEY"),
		Model:      getEnvOrDefault("EMBEDDING_MODEL", model),
		BaseURL:    os.Getenv("EMBEDDING_BASE_URL"),
		Dimensions: env.int("EMBEDDING_DIMS", dims),
		CacheSize:  int64(env.int("EMBEDDING_CACHE_SIZE", 0)),
	}

	config.Intelligence.DuplicateThreshold = env.float("DUPLICATE_THRESHOLD", DefaultDuplicateThreshold)
	config.Intelligence.EnableReranking = env.bool("ENABLE_RERANKING", false)
	config.Intelligence.HistoryLimit = env.int("HISTORY_LIMIT", DefaultHistoryLimit)

	if env.bool("ENABLE_GRAPH", false) {
		config.Graph = &GraphConfig{Enabled: true}
	}

	if env.err != nil {
		return nil, NewMemoryError("LoadConfigFromEnv", env.err)
	}
	return config, nil
}

func defaultLLMModel(provider string) string {
	switch provider {
	case "deepseek":
		return "deepseek-chat"
	case "qwen":
		return "qwen-plus"
	case "ollama":
		return "llama3.1"
	case "anthropic":
		return "claude-3-5-haiku-latest"
	default:
		return "gpt-4o-mini"
	}
}

func defaultEmbedding(provider string) (string, int) {
	switch provider {
	case "qwen":
		return "text-embedding-v4", 1536
	case "ollama":
		return "nomic-embed-text", 768
	default:
		return DefaultEmbeddingModel, DefaultEmbeddingDims
	}
}

// LoadConfigFromEnvFile loads configuration from a specific .env file.
func LoadConfigFromEnvFile(envPath string) (*Config, error) {
	if err := godotenv.Load(envPath); err != nil {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}
	return LoadConfigFromEnv()
}

// LoadConfigFromJSON loads configuration from a JSON file. Keys absent from
// the file keep their DefaultConfig values.
func LoadConfigFromJSON(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewMemoryError("LoadConfigFromJSON", err)
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, NewMemoryError("LoadConfigFromJSON", fmt.Errorf("%w: %v", ErrInvalidConfig, err))
	}
	return config, nil
}

// LoadConfigFromYAML loads configuration from a YAML file. Keys absent from
// the file keep their DefaultConfig values.
func LoadConfigFromYAML(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewMemoryError("LoadConfigFromYAML", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, NewMemoryError("LoadConfigFromYAML", fmt.Errorf("%w: %v", ErrInvalidConfig, err))
	}
	return config, nil
}

// Validate checks the configuration before any provider is built.
//
// It rejects unknown providers, missing API keys for hosted providers, a
// non-positive embedding dimension, a duplicate threshold outside [-1, 1]
// and a negative history limit. Every failure wraps ErrInvalidConfig.
func (c *Config) Validate() error {
	if err := c.validateProviders(); err != nil {
		return NewMemoryError("Validate", err)
	}
	if err := c.Intelligence.validate(); err != nil {
		return NewMemoryError("Validate", err)
	}
	return nil
}

func (c *Config) validateProviders() error {
	switch c.LLM.Provider {
	case "openai", "qwen", "deepseek", "anthropic":
		if c.LLM.APIKey == "" {
			return fmt.Errorf("%w: llm provider %q requires an API key", ErrInvalidConfig, c.LLM.Provider)
		}
	case "ollama":
	case "":
		return fmt.Errorf("%w: llm provider is required", ErrInvalidConfig)
	default:
		return fmt.Errorf("%w: unknown llm provider %q", ErrInvalidConfig, c.LLM.Provider)
	}

	switch c.Embedder.Provider {
	case "openai", "qwen":
		if c.Embedder.APIKey == "" {
			return fmt.Errorf("%w: embedding provider %q requires an API key", ErrInvalidConfig, c.Embedder.Provider)
		}
	case "ollama":
	case "":
		return fmt.Errorf("%w: embedding provider is required", ErrInvalidConfig)
	default:
		return fmt.Errorf("%w: unknown embedding provider %q", ErrInvalidConfig, c.Embedder.Provider)
	}
	if c.Embedder.Dimensions <= 0 {
		return fmt.Errorf("%w: embedding dimensions must be positive, got %d", ErrInvalidConfig, c.Embedder.Dimensions)
	}

	switch c.VectorStore.Provider {
	case "memory", "sqlite", "postgres", "oceanbase", "chromem":
	case "":
		return fmt.Errorf("%w: vector store provider is required", ErrInvalidConfig)
	default:
		return fmt.Errorf("%w: unknown vector store provider %q", ErrInvalidConfig, c.VectorStore.Provider)
	}
	if idx := c.VectorStore.Index; idx != nil {
		switch strings.ToUpper(idx.Type) {
		case "HNSW", "IVF_FLAT":
		default:
			return fmt.Errorf("%w: unknown index type %q", ErrInvalidConfig, idx.Type)
		}
	}
	return nil
}

func (ic IntelligenceConfig) validate() error {
	if ic.DuplicateThreshold < -1 || ic.DuplicateThreshold > 1 {
		return fmt.Errorf("%w: duplicate threshold %v outside [-1, 1]", ErrInvalidConfig, ic.DuplicateThreshold)
	}
	if ic.HistoryLimit < 0 {
		return fmt.Errorf("%w: negative history limit %d", ErrInvalidConfig, ic.HistoryLimit)
	}
	return nil
}

// getEnvOrDefault gets an environment variable or returns the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// envReader parses typed environment variables and keeps the first error.
type envReader struct {
	err error
}

func (r *envReader) int(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		r.fail(key, raw)
		return def
	}
	return v
}

func (r *envReader) float(key string, def float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		r.fail(key, raw)
		return def
	}
	return v
}

func (r *envReader) bool(key string, def bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		r.fail(key, raw)
		return def
	}
	return v
}

func (r *envReader) fail(key, raw string) {
	if r.err == nil {
		r.err = fmt.Errorf("%w: %s=%q", ErrInvalidConfig, key, raw)
	}
}

// FindEnvFile searches for .env or .env.example files.
//
// The search:
//  1. Checks the current directory
//  2. Searches up to 5 directory levels up
//  3. Returns the first .env or .env.example file found
func FindEnvFile() (string, bool) {
	if _, err := os.Stat(".env"); err == nil {
		return ".env", true
	}
	if _, err := os.Stat(".env.example"); err == nil {
		return ".env.example", true
	}

	dir, _ := os.Getwd()
	for i := 0; i < 5; i++ {
		envPath := filepath.Join(dir, ".env")
		envExamplePath := filepath.Join(dir, ".env.example")

		if _, err := os.Stat(envPath); err == nil {
			return envPath, true
		}
		if _, err := os.Stat(envExamplePath); err == nil {
			return envExamplePath, true
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", false
}
