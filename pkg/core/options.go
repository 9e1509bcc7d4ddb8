package core

import "github.com/memnet/memnet-go/pkg/storage"

// AddOption is a function type for configuring Add operations.
type AddOption func(*AddOptions)

// AddOptions contains options for adding memories.
type AddOptions struct {
	// Scope is the owner the new memories belong to. Absent fields leave the
	// memory unscoped on that dimension.
	Scope storage.Scope

	// Metadata is copied onto every memory created by this call.
	Metadata map[string]interface{}

	// Infer runs fact extraction and consolidation. When false, every
	// non-empty message is stored verbatim as a new memory. Default: true.
	Infer bool
}

// WithUserID sets the user ID for the memories being added.
func WithUserID(userID string) AddOption {
	return func(opts *AddOptions) {
		opts.Scope.UserID = storage.Some(userID)
	}
}

// WithAgentID sets the agent ID for the memories being added.
func WithAgentID(agentID string) AddOption {
	return func(opts *AddOptions) {
		opts.Scope.AgentID = storage.Some(agentID)
	}
}

// WithRunID sets the run (session) ID for the memories being added.
func WithRunID(runID string) AddOption {
	return func(opts *AddOptions) {
		opts.Scope.RunID = storage.Some(runID)
	}
}

// WithMetadata attaches metadata to every memory created by the call.
//
// Example:
//
//	client.Add(ctx, messages,
//	    core.WithUserID("user_001"),
//	    core.WithMetadata(map[string]interface{}{"source": "chat"}),
//	)
func WithMetadata(metadata map[string]interface{}) AddOption {
	return func(opts *AddOptions) {
		opts.Metadata = metadata
	}
}

// WithInfer toggles fact extraction and consolidation.
func WithInfer(infer bool) AddOption {
	return func(opts *AddOptions) {
		opts.Infer = infer
	}
}

// SearchOption is a function type for configuring Search operations.
type SearchOption func(*SearchOptions)

// SearchOptions contains options for searching memories.
type SearchOptions struct {
	Scope storage.Scope

	// Limit is the maximum number of results. Default: 100.
	Limit int

	// MinScore drops results scoring below it, before reranking.
	MinScore float64

	hasMinScore bool

	// Rerank overrides IntelligenceConfig.EnableReranking for one call.
	Rerank *bool
}

// WithUserIDForSearch restricts the search to one user.
func WithUserIDForSearch(userID string) SearchOption {
	return func(opts *SearchOptions) {
		opts.Scope.UserID = storage.Some(userID)
	}
}

// WithAgentIDForSearch restricts the search to one agent.
func WithAgentIDForSearch(agentID string) SearchOption {
	return func(opts *SearchOptions) {
		opts.Scope.AgentID = storage.Some(agentID)
	}
}

// WithRunIDForSearch restricts the search to one run.
func WithRunIDForSearch(runID string) SearchOption {
	return func(opts *SearchOptions) {
		opts.Scope.RunID = storage.Some(runID)
	}
}

// WithLimit sets the maximum number of search results.
func WithLimit(limit int) SearchOption {
	return func(opts *SearchOptions) {
		opts.Limit = limit
	}
}

// WithMinScore drops results whose similarity is below score.
func WithMinScore(score float64) SearchOption {
	return func(opts *SearchOptions) {
		opts.MinScore = score
		opts.hasMinScore = true
	}
}

// WithRerank enables or disables reranking for this search only.
func WithRerank(enable bool) SearchOption {
	return func(opts *SearchOptions) {
		opts.Rerank = &enable
	}
}

// GetAllOption is a function type for configuring GetAll operations.
type GetAllOption func(*GetAllOptions)

// GetAllOptions contains options for listing memories.
type GetAllOptions struct {
	Scope storage.Scope

	// Limit is the maximum number of memories returned. Default: 100.
	Limit int
}

// WithUserIDForGetAll lists one user's memories.
func WithUserIDForGetAll(userID string) GetAllOption {
	return func(opts *GetAllOptions) {
		opts.Scope.UserID = storage.Some(userID)
	}
}

// WithAgentIDForGetAll lists one agent's memories.
func WithAgentIDForGetAll(agentID string) GetAllOption {
	return func(opts *GetAllOptions) {
		opts.Scope.AgentID = storage.Some(agentID)
	}
}

// WithRunIDForGetAll lists one run's memories.
func WithRunIDForGetAll(runID string) GetAllOption {
	return func(opts *GetAllOptions) {
		opts.Scope.RunID = storage.Some(runID)
	}
}

// WithLimitForGetAll sets the maximum number of memories returned.
func WithLimitForGetAll(limit int) GetAllOption {
	return func(opts *GetAllOptions) {
		opts.Limit = limit
	}
}

// DeleteAllOption is a function type for configuring DeleteAll operations.
type DeleteAllOption func(*DeleteAllOptions)

// DeleteAllOptions selects the owner whose memories are removed. At least
// one field must be set.
type DeleteAllOptions struct {
	Scope storage.Scope
}

func WithUserIDForDeleteAll(userID string) DeleteAllOption {
	return func(opts *DeleteAllOptions) {
		opts.Scope.UserID = storage.Some(userID)
	}
}

func WithAgentIDForDeleteAll(agentID string) DeleteAllOption {
	return func(opts *DeleteAllOptions) {
		opts.Scope.AgentID = storage.Some(agentID)
	}
}

func WithRunIDForDeleteAll(runID string) DeleteAllOption {
	return func(opts *DeleteAllOptions) {
		opts.Scope.RunID = storage.Some(runID)
	}
}

func applyAddOptions(opts []AddOption) *AddOptions {
	options := &AddOptions{
		Infer: true,
	}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

func applySearchOptions(opts []SearchOption) *SearchOptions {
	options := &SearchOptions{
		Limit: DefaultSearchLimit,
	}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

func applyGetAllOptions(opts []GetAllOption) *GetAllOptions {
	options := &GetAllOptions{
		Limit: DefaultGetAllLimit,
	}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

func applyDeleteAllOptions(opts []DeleteAllOption) *DeleteAllOptions {
	options := &DeleteAllOptions{}
	for _, opt := range opts {
		opt(options)
	}
	return options
}
