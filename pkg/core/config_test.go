package core_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	memnet "github.com/memnet/memnet-go/pkg/core"
)

var configEnvKeys = []string{
	"DATABASE_PROVIDER", "SQLITE_PATH", "SQLITE_COLLECTION",
	"POSTGRES_DSN", "POSTGRES_HOST", "POSTGRES_PORT", "POSTGRES_USER", "POSTGRES_PASSWORD",
	"POSTGRES_DATABASE", "POSTGRES_COLLECTION", "POSTGRES_SSLMODE",
	"OCEANBASE_DSN", "OCEANBASE_HOST", "OCEANBASE_PORT", "OCEANBASE_USER", "OCEANBASE_PASSWORD",
	"OCEANBASE_DATABASE", "OCEANBASE_COLLECTION", "CHROMEM_COLLECTION",
	"LLM_PROVIDER", "LLM_API_KEY", "LLM_MODEL", "LLM_BASE_URL",
	"EMBEDDING_PROVIDER", "EMBEDDING_API_KEY", "EMBEDDING_MODEL", "EMBEDDING_DIMS",
	"EMBEDDING_BASE_URL", "EMBEDDING_CACHE_SIZE",
	"DUPLICATE_THRESHOLD", "ENABLE_RERANKING", "HISTORY_LIMIT", "ENABLE_GRAPH",
}

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, k := range configEnvKeys {
		t.Setenv(k, "")
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		check   func(*testing.T, *memnet.Config)
	}{
		{
			name: "defaults",
			envVars: map[string]string{
				"LLM_API_KEY":       "test-key",
				"EMBEDDING_API_KEY": "test-key",
			},
			check: func(t *testing.T, cfg *memnet.Config) {
				assert.Equal(t, "sqlite", cfg.VectorStore.Provider)
				assert.Equal(t, "./memnet.db", cfg.VectorStore.Path)
				assert.Equal(t, "memories", cfg.VectorStore.CollectionName)
				assert.Equal(t, "openai", cfg.LLM.Provider)
				assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
				assert.Equal(t, "text-embedding-3-small", cfg.Embedder.Model)
				assert.Equal(t, 1536, cfg.Embedder.Dimensions)
				assert.Equal(t, 0.9, cfg.Intelligence.DuplicateThreshold)
				assert.False(t, cfg.Intelligence.EnableReranking)
				assert.Equal(t, 10, cfg.Intelligence.HistoryLimit)
				assert.Nil(t, cfg.Graph)
				assert.NoError(t, cfg.Validate())
			},
		},
		{
			name: "postgres with qwen",
			envVars: map[string]string{
				"DATABASE_PROVIDER":   "postgres",
				"POSTGRES_HOST":       "db",
				"POSTGRES_PORT":       "6543",
				"POSTGRES_COLLECTION": "facts",
				"LLM_PROVIDER":        "qwen",
				"LLM_API_KEY":         "test-key",
				"EMBEDDING_PROVIDER":  "qwen",
				"EMBEDDING_API_KEY":   "test-key",
				"EMBEDDING_DIMS":      "1024",
			},
			check: func(t *testing.T, cfg *memnet.Config) {
				assert.Equal(t, "db", cfg.VectorStore.Host)
				assert.Equal(t, 6543, cfg.VectorStore.Port)
				assert.Equal(t, "facts", cfg.VectorStore.CollectionName)
				assert.Equal(t, "disable", cfg.VectorStore.SSLMode)
				assert.Equal(t, "qwen-plus", cfg.LLM.Model)
				assert.Equal(t, "text-embedding-v4", cfg.Embedder.Model)
				assert.Equal(t, 1024, cfg.Embedder.Dimensions)
			},
		},
		{
			name: "intelligence settings",
			envVars: map[string]string{
				"LLM_PROVIDER":        "ollama",
				"EMBEDDING_PROVIDER":  "ollama",
				"DUPLICATE_THRESHOLD": "0.85",
				"ENABLE_RERANKING":    "true",
				"HISTORY_LIMIT":       "4",
				"ENABLE_GRAPH":        "1",
			},
			check: func(t *testing.T, cfg *memnet.Config) {
				assert.Equal(t, 0.85, cfg.Intelligence.DuplicateThreshold)
				assert.True(t, cfg.Intelligence.EnableReranking)
				assert.Equal(t, 4, cfg.Intelligence.HistoryLimit)
				require.NotNil(t, cfg.Graph)
				assert.True(t, cfg.Graph.Enabled)
				assert.Equal(t, "nomic-embed-text", cfg.Embedder.Model)
				assert.Equal(t, 768, cfg.Embedder.Dimensions)
				assert.NoError(t, cfg.Validate())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearConfigEnv(t)
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg, err := memnet.LoadConfigFromEnv()
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestLoadConfigFromEnv_Malformed(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("DUPLICATE_THRESHOLD", "high")

	_, err := memnet.LoadConfigFromEnv()
	assert.ErrorIs(t, err, memnet.ErrInvalidConfig)
}

func TestLoadConfigFromFiles(t *testing.T) {
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{
		"llm": {"provider": "openai", "api_key": "k"},
		"embedder": {"provider": "openai", "api_key": "k"},
		"vector_store": {"provider": "memory"},
		"intelligence": {"enable_reranking": true}
	}`), 0o600))

	yamlPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`
llm:
  provider: anthropic
  api_key: k
embedder:
  provider: ollama
  dimensions: 768
vector_store:
  provider: sqlite
  path: /tmp/memnet.db
  index:
    type: hnsw
intelligence:
  duplicate_threshold: 0.8
graph:
  enabled: true
`), 0o600))

	jsonCfg, err := memnet.LoadConfigFromJSON(jsonPath)
	require.NoError(t, err)
	assert.True(t, jsonCfg.Intelligence.EnableReranking)
	assert.Equal(t, 0.9, jsonCfg.Intelligence.DuplicateThreshold, "absent keys keep defaults")
	assert.Equal(t, 10, jsonCfg.Intelligence.HistoryLimit)
	assert.Equal(t, 1536, jsonCfg.Embedder.Dimensions)
	assert.NoError(t, jsonCfg.Validate())

	yamlCfg, err := memnet.LoadConfigFromYAML(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, "anthropic", yamlCfg.LLM.Provider)
	assert.Equal(t, 768, yamlCfg.Embedder.Dimensions)
	assert.Equal(t, "/tmp/memnet.db", yamlCfg.VectorStore.Path)
	require.NotNil(t, yamlCfg.VectorStore.Index)
	assert.Equal(t, "hnsw", yamlCfg.VectorStore.Index.Type)
	assert.Equal(t, 0.8, yamlCfg.Intelligence.DuplicateThreshold)
	assert.Equal(t, "memories", yamlCfg.VectorStore.CollectionName)
	require.NotNil(t, yamlCfg.Graph)
	assert.True(t, yamlCfg.Graph.Enabled)
	assert.NoError(t, yamlCfg.Validate())

	_, err = memnet.LoadConfigFromJSON(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	badPath := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(badPath, []byte("{"), 0o600))
	_, err = memnet.LoadConfigFromJSON(badPath)
	assert.ErrorIs(t, err, memnet.ErrInvalidConfig)
}

func TestConfigValidate(t *testing.T) {
	valid := func() *memnet.Config {
		cfg := memnet.DefaultConfig()
		cfg.LLM = memnet.LLMConfig{Provider: "openai", APIKey: "k"}
		cfg.Embedder.Provider = "openai"
		cfg.Embedder.APIKey = "k"
		cfg.VectorStore.Provider = "memory"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*memnet.Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(*memnet.Config) {}},
		{name: "missing llm provider", mutate: func(c *memnet.Config) { c.LLM.Provider = "" }, wantErr: true},
		{name: "unknown llm provider", mutate: func(c *memnet.Config) { c.LLM.Provider = "gemini" }, wantErr: true},
		{name: "missing llm key", mutate: func(c *memnet.Config) { c.LLM.APIKey = "" }, wantErr: true},
		{name: "ollama needs no key", mutate: func(c *memnet.Config) { c.LLM = memnet.LLMConfig{Provider: "ollama"} }},
		{name: "missing embedding key", mutate: func(c *memnet.Config) { c.Embedder.APIKey = "" }, wantErr: true},
		{name: "zero dimensions", mutate: func(c *memnet.Config) { c.Embedder.Dimensions = 0 }, wantErr: true},
		{name: "unknown store", mutate: func(c *memnet.Config) { c.VectorStore.Provider = "redis" }, wantErr: true},
		{name: "threshold too high", mutate: func(c *memnet.Config) { c.Intelligence.DuplicateThreshold = 1.01 }, wantErr: true},
		{name: "negative threshold allowed", mutate: func(c *memnet.Config) { c.Intelligence.DuplicateThreshold = -0.5 }},
		{name: "negative history", mutate: func(c *memnet.Config) { c.Intelligence.HistoryLimit = -1 }, wantErr: true},
		{name: "unknown index", mutate: func(c *memnet.Config) { c.VectorStore.Index = &memnet.IndexConfig{Type: "flat"} }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, memnet.ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewClient_FailsFast(t *testing.T) {
	_, err := memnet.NewClient(nil)
	assert.ErrorIs(t, err, memnet.ErrInvalidConfig)

	cfg := memnet.DefaultConfig()
	cfg.LLM = memnet.LLMConfig{Provider: "openai"}
	cfg.Embedder.Provider = "openai"
	cfg.VectorStore.Provider = "memory"
	_, err = memnet.NewClient(cfg)
	assert.ErrorIs(t, err, memnet.ErrInvalidConfig)
}

func TestNewClient_StoreUnreachable(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	cfg := memnet.DefaultConfig()
	cfg.LLM = memnet.LLMConfig{Provider: "ollama"}
	cfg.Embedder.Provider = "ollama"
	cfg.VectorStore.Provider = "sqlite"
	cfg.VectorStore.Path = filepath.Join(blocker, "memnet.db")

	_, err := memnet.NewClient(cfg)
	assert.ErrorIs(t, err, memnet.ErrConnectionFailed)
	assert.NotErrorIs(t, err, memnet.ErrInvalidConfig)
}

func TestNewClient_MemoryStore(t *testing.T) {
	cfg := memnet.DefaultConfig()
	cfg.LLM = memnet.LLMConfig{Provider: "openai", APIKey: "k"}
	cfg.Embedder.Provider = "openai"
	cfg.Embedder.APIKey = "k"
	cfg.Embedder.CacheSize = 128
	cfg.VectorStore.Provider = "memory"
	cfg.Graph = &memnet.GraphConfig{Enabled: true}

	client, err := memnet.NewClient(cfg)
	require.NoError(t, err)
	assert.Equal(t, 10, client.HistoryLimit())
	assert.NoError(t, client.Close())
}

func TestNewClient_IndexUnsupported(t *testing.T) {
	cfg := memnet.DefaultConfig()
	cfg.LLM = memnet.LLMConfig{Provider: "ollama"}
	cfg.Embedder.Provider = "ollama"
	cfg.VectorStore.Provider = "memory"
	cfg.VectorStore.Index = &memnet.IndexConfig{Type: "HNSW"}

	_, err := memnet.NewClient(cfg)
	assert.ErrorIs(t, err, memnet.ErrInvalidConfig)
}
