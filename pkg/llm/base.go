// Package llm provides the chat completion capability used by the memory
// pipeline, along with message types and generation options.
package llm

import "context"

// Provider defines the interface for LLM providers.
//
// All LLM implementations (OpenAI, DeepSeek, Qwen, Ollama, Anthropic)
// implement this interface. Providers never retry; a failed call returns the
// transport error to the caller.
type Provider interface {
	// Generate generates text from a single user prompt.
	Generate(ctx context.Context, prompt string, opts ...GenerateOption) (string, error)

	// GenerateWithMessages generates text from a conversation history.
	GenerateWithMessages(ctx context.Context, messages []Message, opts ...GenerateOption) (string, error)

	// Close closes the provider and releases resources.
	Close() error
}

// Roles understood by every provider.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a single message in a conversation.
type Message struct {
	// Role is the message role: "system", "user", or "assistant".
	Role string `json:"role" yaml:"role"`

	// Content is the message content text.
	Content string `json:"content" yaml:"content"`
}

// GenerateOptions contains options for text generation.
type GenerateOptions struct {
	// Temperature controls randomness (0.0-2.0). Higher = more random.
	Temperature float64

	// MaxTokens limits the maximum number of tokens in the response.
	MaxTokens int

	// TopP controls nucleus sampling (0.0-1.0).
	TopP float64

	// Stop contains stop sequences that will end generation.
	Stop []string

	// JSONMode asks the provider to return a single JSON object, where the
	// provider supports it. Callers must still parse defensively.
	JSONMode bool
}

// GenerateOption is a function type for configuring generation options.
type GenerateOption func(*GenerateOptions)

// WithTemperature sets the temperature for text generation.
//
// Example:
//
//	text, _ := provider.Generate(ctx, "Hello", llm.WithTemperature(0.1))
func WithTemperature(temp float64) GenerateOption {
	return func(opts *GenerateOptions) {
		opts.Temperature = temp
	}
}

// WithMaxTokens sets the maximum number of tokens in the response.
func WithMaxTokens(max int) GenerateOption {
	return func(opts *GenerateOptions) {
		opts.MaxTokens = max
	}
}

// WithTopP sets the top-p (nucleus sampling) parameter.
func WithTopP(topP float64) GenerateOption {
	return func(opts *GenerateOptions) {
		opts.TopP = topP
	}
}

// WithStop sets stop sequences.
func WithStop(stop ...string) GenerateOption {
	return func(opts *GenerateOptions) {
		opts.Stop = stop
	}
}

// WithJSONMode requests a JSON object response.
func WithJSONMode() GenerateOption {
	return func(opts *GenerateOptions) {
		opts.JSONMode = true
	}
}

// Defaults applied before any GenerateOption.
const (
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 2000
	DefaultTopP        = 1.0
)

// ApplyGenerateOptions applies opts on top of the package defaults.
func ApplyGenerateOptions(opts []GenerateOption) *GenerateOptions {
	options := &GenerateOptions{
		Temperature: DefaultTemperature,
		MaxTokens:   DefaultMaxTokens,
		TopP:        DefaultTopP,
	}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// SplitSystem separates leading system messages from the rest of the
// conversation for providers that take the system prompt out of band.
func SplitSystem(messages []Message) (system string, rest []Message) {
	for _, m := range messages {
		if m.Role == RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
			continue
		}
		rest = append(rest, m)
	}
	return system, rest
}
