package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/charmbracelet/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/memnet/memnet-go/pkg/embedder"
	ollamaEmbedder "github.com/memnet/memnet-go/pkg/embedder/ollama"
	openaiEmbedder "github.com/memnet/memnet-go/pkg/embedder/openai"
	qwenEmbedder "github.com/memnet/memnet-go/pkg/embedder/qwen"
	"github.com/memnet/memnet-go/pkg/graph"
	"github.com/memnet/memnet-go/pkg/intelligence"
	"github.com/memnet/memnet-go/pkg/llm"
	anthropicLLM "github.com/memnet/memnet-go/pkg/llm/anthropic"
	deepseekLLM "github.com/memnet/memnet-go/pkg/llm/deepseek"
	ollamaLLM "github.com/memnet/memnet-go/pkg/llm/ollama"
	openaiLLM "github.com/memnet/memnet-go/pkg/llm/openai"
	qwenLLM "github.com/memnet/memnet-go/pkg/llm/qwen"
	"github.com/memnet/memnet-go/pkg/storage"
	chromemStore "github.com/memnet/memnet-go/pkg/storage/chromem"
	"github.com/memnet/memnet-go/pkg/storage/inmemory"
	"github.com/memnet/memnet-go/pkg/storage/oceanbase"
	postgresStore "github.com/memnet/memnet-go/pkg/storage/postgres"
	sqliteStore "github.com/memnet/memnet-go/pkg/storage/sqlite"
)

// Client is the main memnet client.
//
// It extracts facts from conversations, consolidates them against what is
// already stored for the same owner and serves similarity search over the
// result. The client is safe for concurrent use. Concurrent Add calls are not
// ordered with respect to each other: two calls for the same owner may both
// decide to insert the same fact.
//
// Example usage:
//
//	config, _ := core.LoadConfigFromEnv()
//	client, _ := core.NewClient(config)
//	defer client.Close()
//
//	result, _ := client.Add(ctx, []core.Message{
//	    {Role: "user", Content: "I like coffee"},
//	}, core.WithUserID("user_001"))
type Client struct {
	config *Config

	storage   storage.VectorStore
	embedder  embedder.Provider
	generator intelligence.Generator
	graph     graph.Store

	// llm is closed with the client when set.
	llm llm.Provider

	snowflakeNode *snowflake.Node
	logger        *log.Logger
	telemetry     *telemetry

	// mu is held for reading by every operation and for writing by Close.
	mu     sync.RWMutex
	closed bool
}

// Dependencies are the collaborators of a client built with
// NewClientWithDependencies. Store, Embedder and Generator are required.
type Dependencies struct {
	Store     storage.VectorStore
	Embedder  embedder.Provider
	Generator intelligence.Generator

	// Graph enables the knowledge-graph extension when set.
	Graph graph.Store

	// LLM is closed together with the client when set.
	LLM llm.Provider

	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

// NewClient creates a new memnet client from configuration.
//
// The configuration is validated before any provider is built, so missing
// API keys and unknown providers fail here rather than on the first request.
//
// Example:
//
//	config := core.DefaultConfig()
//	config.LLM = core.LLMConfig{Provider: "openai", APIKey: "sk-..."}
//	config.Embedder.Provider = "openai"
//	config.Embedder.APIKey = "sk-..."
//	config.VectorStore.Provider = "memory"
//	client, err := core.NewClient(config)
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, NewMemoryError("NewClient", fmt.Errorf("%w: nil config", ErrInvalidConfig))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := newLogger(cfg)

	var built []interface{ Close() error }
	cleanup := func() {
		for _, c := range built {
			_ = c.Close()
		}
	}

	store, err := initStorage(cfg.VectorStore, cfg.Embedder.Dimensions, logger)
	if err != nil {
		if !errors.Is(err, ErrInvalidConfig) {
			err = fmt.Errorf("%w: %w", ErrConnectionFailed, err)
		}
		return nil, NewMemoryError("NewClient", err)
	}
	built = append(built, store)

	if err := createIndex(context.Background(), store, cfg.VectorStore); err != nil {
		cleanup()
		return nil, NewMemoryError("NewClient", err)
	}

	llmProvider, err := initLLM(cfg.LLM)
	if err != nil {
		cleanup()
		return nil, NewMemoryError("NewClient", err)
	}
	built = append(built, llmProvider)

	embedderProvider, err := initEmbedder(cfg.Embedder)
	if err != nil {
		cleanup()
		return nil, NewMemoryError("NewClient", err)
	}
	built = append(built, embedderProvider)

	genOpts := []intelligence.GeneratorOption{intelligence.WithLogger(logger.WithPrefix("memnet.intelligence"))}
	if cfg.Intelligence.FactExtractionPrompt != "" {
		genOpts = append(genOpts, intelligence.WithFactExtractionPrompt(cfg.Intelligence.FactExtractionPrompt))
	}

	deps := Dependencies{
		Store:     store,
		Embedder:  embedderProvider,
		Generator: intelligence.NewLLMGenerator(llmProvider, genOpts...),
		LLM:       llmProvider,
	}
	if cfg.Graph != nil && cfg.Graph.Enabled {
		deps.Graph = graph.NewMemoryStore()
	}

	client, err := newClient(cfg, deps, logger)
	if err != nil {
		cleanup()
		return nil, err
	}
	return client, nil
}

// NewClientWithDependencies creates a client around already constructed
// collaborators. Only cfg.Intelligence and cfg.Logger are used; a nil cfg
// means DefaultConfig. The client takes ownership of the dependencies and
// closes them in Close.
func NewClientWithDependencies(cfg *Config, deps Dependencies) (*Client, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if deps.Store == nil || deps.Embedder == nil || deps.Generator == nil {
		return nil, NewMemoryError("NewClient", fmt.Errorf("%w: store, embedder and generator are required", ErrInvalidConfig))
	}
	if err := cfg.Intelligence.validate(); err != nil {
		return nil, NewMemoryError("NewClient", err)
	}
	return newClient(cfg, deps, newLogger(cfg))
}

func newClient(cfg *Config, deps Dependencies, logger *log.Logger) (*Client, error) {
	node, err := snowflake.NewNode(1)
	if err != nil {
		return nil, NewMemoryError("NewClient", err)
	}
	tel, err := newTelemetry(deps.TracerProvider, deps.MeterProvider)
	if err != nil {
		return nil, NewMemoryError("NewClient", err)
	}
	return &Client{
		config:        cfg,
		storage:       deps.Store,
		embedder:      deps.Embedder,
		generator:     deps.Generator,
		graph:         deps.Graph,
		llm:           deps.LLM,
		snowflakeNode: node,
		logger:        logger,
		telemetry:     tel,
	}, nil
}

func newLogger(cfg *Config) *log.Logger {
	if cfg.Logger != nil {
		return cfg.Logger
	}
	level := log.InfoLevel
	if raw := os.Getenv("MEMNET_LOG_LEVEL"); raw != "" {
		if parsed, err := log.ParseLevel(raw); err == nil {
			level = parsed
		}
	}
	return log.NewWithOptions(os.Stderr, log.Options{
		Prefix:          "memnet",
		Level:           level,
		ReportTimestamp: true,
	})
}

// acquire takes the read lock for an operation. The returned func releases
// it.
func (c *Client) acquire(op string) (func(), error) {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return nil, NewMemoryError(op, ErrClosed)
	}
	return c.mu.RUnlock, nil
}

// Config returns the configuration the client was built with.
func (c *Client) Config() *Config {
	return c.config
}

// HistoryLimit is the configured number of conversation turns callers
// should keep when building messages for Add.
func (c *Client) HistoryLimit() int {
	return c.config.Intelligence.HistoryLimit
}

// Add extracts facts from messages and consolidates them into the store.
//
// Each fact is embedded and compared with the closest memories of the same
// owner. A fact whose best match scores above the duplicate threshold is
// merged into that memory; any other fact becomes a new memory. All new
// memories are written in one Insert and all merged ones in one Update.
// Facts from the same call are never compared with each other.
//
// Example:
//
//	result, err := client.Add(ctx, []core.Message{
//	    {Role: "user", Content: "I just moved to Paris"},
//	}, core.WithUserID("user_001"))
func (c *Client) Add(ctx context.Context, messages []Message, opts ...AddOption) (result *AddResult, err error) {
	release, err := c.acquire("Add")
	if err != nil {
		return nil, err
	}
	defer release()

	addOpts := applyAddOptions(opts)
	ctx, span := c.telemetry.start(ctx, "memnet.add", scopeAttributes("memnet.", addOpts.Scope.Fields())...)
	defer func() { end(span, err) }()

	conversation := intelligence.FormatConversation(messages)
	if conversation == "" {
		return nil, NewMemoryError("Add", fmt.Errorf("%w: no message content", ErrInvalidInput))
	}

	if !addOpts.Infer {
		result, err = c.addRaw(ctx, messages, addOpts)
	} else {
		var facts []string
		facts, err = c.generator.ExtractFacts(ctx, conversation)
		if err != nil {
			return nil, stageError("Add", StageExtract, fmt.Errorf("%w: %w", ErrLLMOperation, err))
		}
		c.logger.Debug("extracted facts", "count", len(facts))
		result, err = c.consolidate(ctx, facts, addOpts)
	}
	if err != nil {
		return nil, err
	}

	if c.graph != nil {
		c.addToGraph(ctx, conversation, addOpts.Scope)
	}

	added, updated := result.Counts()
	c.telemetry.recordAdd(ctx, added, updated)
	span.SetAttributes(attribute.Int("memnet.added", added), attribute.Int("memnet.updated", updated))
	c.logger.Info("memories added", "added", added, "updated", updated)
	return result, nil
}

// AddText is Add for a single user message.
func (c *Client) AddText(ctx context.Context, content string, opts ...AddOption) (*AddResult, error) {
	return c.Add(ctx, []Message{{Role: llm.RoleUser, Content: content}}, opts...)
}

func (c *Client) addToGraph(ctx context.Context, conversation string, scope storage.Scope) {
	relations, err := c.generator.ExtractEntities(ctx, conversation)
	if err != nil {
		c.logger.Warn("entity extraction failed", "err", err)
		return
	}
	if len(relations) == 0 {
		return
	}
	for i := range relations {
		relations[i].Scope = scope
	}
	if err := c.graph.AddRelations(ctx, relations); err != nil {
		c.logger.Warn("storing relations failed", "err", err)
	}
}

// Search returns the memories most similar to query, best first.
//
// When reranking is enabled the LLM may reorder or drop results. If the
// rerank call fails in any way the similarity order is returned instead.
//
// Example:
//
//	results, err := client.Search(ctx, "drinks",
//	    core.WithUserIDForSearch("user_001"),
//	    core.WithLimit(5),
//	)
func (c *Client) Search(ctx context.Context, query string, opts ...SearchOption) (results []*SearchResult, err error) {
	release, err := c.acquire("Search")
	if err != nil {
		return nil, err
	}
	defer release()

	started := time.Now()
	searchOpts := applySearchOptions(opts)
	if strings.TrimSpace(query) == "" {
		return nil, NewMemoryError("Search", fmt.Errorf("%w: empty query", ErrInvalidInput))
	}
	if searchOpts.Limit <= 0 {
		return nil, NewMemoryError("Search", fmt.Errorf("%w: limit must be positive", ErrInvalidInput))
	}

	ctx, span := c.telemetry.start(ctx, "memnet.search", scopeAttributes("memnet.", searchOpts.Scope.Fields())...)
	defer func() { end(span, err) }()

	queryEmbedding, err := c.embed(ctx, query)
	if err != nil {
		return nil, stageError("Search", StageEmbed, err)
	}

	results, err = c.storage.Search(ctx, queryEmbedding, searchOpts.Scope, searchOpts.Limit)
	if err != nil {
		return nil, stageError("Search", StageSearch, err)
	}

	if searchOpts.hasMinScore {
		kept := results[:0]
		for _, r := range results {
			if r.Score >= searchOpts.MinScore {
				kept = append(kept, r)
			}
		}
		results = kept
	}

	rerank := c.config.Intelligence.EnableReranking
	if searchOpts.Rerank != nil {
		rerank = *searchOpts.Rerank
	}
	reranked := false
	if rerank && len(results) > 0 {
		ranked, rerankErr := c.generator.Rerank(ctx, query, results)
		switch {
		case rerankErr == nil:
			results = ranked
			reranked = true
		case ctx.Err() != nil:
			return nil, stageError("Search", StageRerank, ctx.Err())
		default:
			c.logger.Debug("rerank failed, keeping similarity order", "err", rerankErr)
			c.telemetry.rerankFallbacks.Add(ctx, 1)
		}
	}

	c.telemetry.recordSearch(ctx, started, reranked)
	span.SetAttributes(attribute.Int("memnet.results", len(results)))
	return results, nil
}

// Get returns the memory with the given ID, or nil if there is none.
func (c *Client) Get(ctx context.Context, id int64) (*Memory, error) {
	release, err := c.acquire("Get")
	if err != nil {
		return nil, err
	}
	defer release()

	memory, err := c.storage.Get(ctx, id)
	if err != nil {
		return nil, stageError("Get", StageGet, err)
	}
	return memory, nil
}

// GetAll lists memories within the owner scope given by opts. Without a
// scope every memory is eligible.
func (c *Client) GetAll(ctx context.Context, opts ...GetAllOption) ([]*Memory, error) {
	release, err := c.acquire("GetAll")
	if err != nil {
		return nil, err
	}
	defer release()

	getAllOpts := applyGetAllOptions(opts)
	if getAllOpts.Limit <= 0 {
		return nil, NewMemoryError("GetAll", fmt.Errorf("%w: limit must be positive", ErrInvalidInput))
	}

	memories, err := c.storage.List(ctx, getAllOpts.Scope, getAllOpts.Limit)
	if err != nil {
		return nil, stageError("GetAll", StageList, err)
	}
	return memories, nil
}

// Update replaces the content of a memory and re-embeds it. It returns
// false, with no error, when the memory does not exist.
func (c *Client) Update(ctx context.Context, id int64, content string) (bool, error) {
	release, err := c.acquire("Update")
	if err != nil {
		return false, err
	}
	defer release()

	content = strings.TrimSpace(content)
	if content == "" {
		return false, NewMemoryError("Update", fmt.Errorf("%w: empty content", ErrInvalidInput))
	}

	existing, err := c.storage.Get(ctx, id)
	if err != nil {
		return false, stageError("Update", StageGet, err)
	}
	if existing == nil {
		return false, nil
	}

	embedding, err := c.embed(ctx, content)
	if err != nil {
		return false, stageError("Update", StageEmbed, err)
	}

	updated := existing.Clone()
	now := time.Now().UTC()
	updated.Content = content
	updated.Embedding = embedding
	updated.Hash = storage.ContentHash(content)
	updated.UpdatedAt = &now

	if err := c.storage.Update(ctx, []*storage.Memory{updated}); err != nil {
		return false, stageError("Update", StageUpdate, err)
	}
	return true, nil
}

// Delete removes a memory. Deleting a missing ID is not an error.
func (c *Client) Delete(ctx context.Context, id int64) error {
	release, err := c.acquire("Delete")
	if err != nil {
		return err
	}
	defer release()

	if err := c.storage.Delete(ctx, id); err != nil {
		return stageError("Delete", StageDelete, err)
	}
	return nil
}

// DeleteAll removes every memory of an owner. An empty scope is rejected
// so a missing option can never wipe the whole store.
//
// Example:
//
//	err := client.DeleteAll(ctx, core.WithUserIDForDeleteAll("user_001"))
func (c *Client) DeleteAll(ctx context.Context, opts ...DeleteAllOption) error {
	release, err := c.acquire("DeleteAll")
	if err != nil {
		return err
	}
	defer release()

	deleteAllOpts := applyDeleteAllOptions(opts)
	if deleteAllOpts.Scope.IsEmpty() {
		return NewMemoryError("DeleteAll", fmt.Errorf("%w: %w", ErrInvalidInput, storage.ErrEmptyScope))
	}

	if err := c.storage.DeleteByOwner(ctx, deleteAllOpts.Scope); err != nil {
		return stageError("DeleteAll", StageDelete, err)
	}
	if c.graph != nil {
		if err := c.graph.DeleteByOwner(ctx, deleteAllOpts.Scope); err != nil {
			return stageError("DeleteAll", StageGraph, err)
		}
	}
	return nil
}

// SearchGraph returns the relations touching entities whose name contains
// query, within the owner scope given by opts. It fails with
// ErrInvalidConfig when the graph extension is disabled.
func (c *Client) SearchGraph(ctx context.Context, query string, opts ...SearchOption) ([]graph.Relation, error) {
	release, err := c.acquire("SearchGraph")
	if err != nil {
		return nil, err
	}
	defer release()

	if c.graph == nil {
		return nil, NewMemoryError("SearchGraph", fmt.Errorf("%w: graph extension is disabled", ErrInvalidConfig))
	}
	searchOpts := applySearchOptions(opts)

	entities, err := c.graph.SearchEntities(ctx, searchOpts.Scope, query)
	if err != nil {
		return nil, stageError("SearchGraph", StageGraph, err)
	}

	type edge struct{ source, target, relation string }
	seen := make(map[edge]bool)
	var relations []graph.Relation
	for _, entity := range entities {
		rels, err := c.graph.GetRelations(ctx, searchOpts.Scope, entity.Name)
		if err != nil {
			return nil, stageError("SearchGraph", StageGraph, err)
		}
		for _, r := range rels {
			key := edge{strings.ToLower(r.Source.Name), strings.ToLower(r.Target.Name), r.RelationType}
			if seen[key] {
				continue
			}
			seen[key] = true
			relations = append(relations, r)
			if len(relations) >= searchOpts.Limit {
				return relations, nil
			}
		}
	}
	return relations, nil
}

// Close releases the store and providers. Operations in flight finish
// first; later calls fail with ErrClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	var errs []error
	if err := c.storage.Close(); err != nil {
		errs = append(errs, err)
	}
	if c.llm != nil {
		if err := c.llm.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := c.embedder.Close(); err != nil {
		errs = append(errs, err)
	}
	return NewMemoryError("Close", errors.Join(errs...))
}

// embed embeds text and checks the vector against the configured
// dimension.
func (c *Client) embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := c.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	want := c.config.Embedder.Dimensions
	if want <= 0 {
		want = c.embedder.Dimensions()
	}
	if err := embedder.CheckDimensions(vec, want); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	return vec, nil
}

func initStorage(cfg VectorStoreConfig, dims int, logger *log.Logger) (storage.VectorStore, error) {
	collection := cfg.CollectionName
	if collection == "" {
		collection = DefaultCollectionName
	}

	switch cfg.Provider {
	case "memory":
		return inmemory.New(&inmemory.Config{Dimensions: dims}), nil
	case "sqlite":
		return sqliteStore.NewClient(&sqliteStore.Config{
			DBPath:             cfg.Path,
			CollectionName:     collection,
			EmbeddingModelDims: dims,
		})
	case "postgres":
		return postgresStore.NewClient(&postgresStore.Config{
			DSN:                cfg.DSN,
			Host:               cfg.Host,
			Port:               cfg.Port,
			User:               cfg.User,
			Password:           cfg.Password,
			DBName:             cfg.DBName,
			CollectionName:     collection,
			EmbeddingModelDims: dims,
			SSLMode:            cfg.SSLMode,
		})
	case "oceanbase":
		return oceanbase.NewClient(&oceanbase.Config{
			DSN:                cfg.DSN,
			Host:               cfg.Host,
			Port:               cfg.Port,
			User:               cfg.User,
			Password:           cfg.Password,
			DBName:             cfg.DBName,
			CollectionName:     collection,
			EmbeddingModelDims: dims,
		})
	case "chromem":
		return chromemStore.NewStore(&chromemStore.Config{
			CollectionName:     collection,
			EmbeddingModelDims: dims,
			Logger:             logger.WithPrefix("memnet.chromem"),
		})
	default:
		return nil, fmt.Errorf("%w: unknown vector store provider %q", ErrInvalidConfig, cfg.Provider)
	}
}

func createIndex(ctx context.Context, store storage.VectorStore, cfg VectorStoreConfig) error {
	if cfg.Index == nil {
		return nil
	}
	indexer, ok := store.(storage.Indexer)
	if !ok {
		return fmt.Errorf("%w: vector store %q does not support indexes", ErrInvalidConfig, cfg.Provider)
	}

	idx := &storage.IndexConfig{
		IndexName: cfg.Index.Name,
		IndexType: storage.VectorIndexType(strings.ToUpper(cfg.Index.Type)),
	}
	if cfg.Index.M > 0 && cfg.Index.EfConstruction > 0 {
		idx.HNSWParams = &storage.HNSWParams{M: cfg.Index.M, EfConstruction: cfg.Index.EfConstruction}
	}
	if cfg.Index.Lists > 0 {
		idx.IVFParams = &storage.IVFParams{Lists: cfg.Index.Lists}
	}
	if err := indexer.CreateIndex(ctx, idx); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageOperation, err)
	}
	return nil
}

func initLLM(cfg LLMConfig) (llm.Provider, error) {
	switch cfg.Provider {
	case "openai":
		return openaiLLM.NewClient(&openaiLLM.Config{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
		})
	case "qwen":
		return qwenLLM.NewClient(&qwenLLM.Config{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
		})
	case "deepseek":
		return deepseekLLM.NewClient(&deepseekLLM.Config{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
		})
	case "ollama":
		return ollamaLLM.NewClient(&ollamaLLM.Config{
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
		})
	case "anthropic":
		return anthropicLLM.NewClient(&anthropicLLM.Config{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
		})
	default:
		return nil, fmt.Errorf("%w: unknown llm provider %q", ErrInvalidConfig, cfg.Provider)
	}
}

func initEmbedder(cfg EmbedderConfig) (embedder.Provider, error) {
	var (
		provider embedder.Provider
		err      error
	)
	switch cfg.Provider {
	case "openai":
		provider, err = openaiEmbedder.NewClient(&openaiEmbedder.Config{
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			BaseURL:    cfg.BaseURL,
			Dimensions: cfg.Dimensions,
		})
	case "qwen":
		provider, err = qwenEmbedder.NewClient(&qwenEmbedder.Config{
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			BaseURL:    cfg.BaseURL,
			Dimensions: cfg.Dimensions,
		})
	case "ollama":
		provider, err = ollamaEmbedder.NewClient(&ollamaEmbedder.Config{
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
		})
	default:
		return nil, fmt.Errorf("%w: unknown embedding provider %q", ErrInvalidConfig, cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	if cfg.CacheSize > 0 {
		cached, err := embedder.NewCached(provider, cfg.CacheSize)
		if err != nil {
			_ = provider.Close()
			return nil, err
		}
		return cached, nil
	}
	return provider, nil
}
