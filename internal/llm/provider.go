package llm

import (
	"context"
	"errors"
)

var (
	// ErrNotConfigured is returned when no provider is configured
	ErrNotConfigured = errors.New("no LLM provider configured")

	// ErrStreamUnsupported is returned by providers without incremental output
	ErrStreamUnsupported = errors.New("provider does not support streaming")

	// ErrSearchUnsupported is returned by providers that cannot search a corpus
	ErrSearchUnsupported = errors.New("provider does not support corpus search")

	// ErrEmptyResponse is returned when the service answered with no text
	ErrEmptyResponse = errors.New("empty response from provider")
)

// Provider is a completion service
type Provider interface {
	Completer

	// Name returns the provider name
	Name() string

	// IsAvailable checks if the provider is properly configured and accessible
	IsAvailable(ctx context.Context) bool
}

// Completer issues single-shot completions
type Completer interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Streamer issues completions that arrive as incremental events
type Streamer interface {
	Stream(ctx context.Context, req Request) (EventStream, error)
}

// Searcher answers a query grounded in passages retrieved from a corpus
type Searcher interface {
	Search(ctx context.Context, req SearchRequest) (*Response, error)
}

// Request is one completion call
type Request struct {
	// System is an optional system instruction
	System string

	// Prompt is the user input
	Prompt string

	// Model overrides the configured model
	Model string

	// MaxTokens limits the response length (0 uses the configured limit)
	MaxTokens int

	// Temperature overrides the configured temperature when non-zero
	Temperature float32
}

// SearchRequest is one search-augmented completion over a corpus
type SearchRequest struct {
	// CorpusID identifies the document index to retrieve from
	CorpusID string

	// Query is the full worker input
	Query string

	// Model overrides the configured model
	Model string
}

// Response is a completed answer
type Response struct {
	// Text is the generated output
	Text string

	// Model is the model that generated the response
	Model string

	// TokensUsed tracks token consumption
	TokensUsed int
}

// Config holds LLM provider configuration
type Config struct {
	// Provider name: "openai", "anthropic", "ollama", ""
	Provider string `yaml:"provider" mapstructure:"provider"`

	// Model name (provider-specific)
	Model string `yaml:"model" mapstructure:"model"`

	// APIKey for OpenAI/Anthropic
	APIKey string `yaml:"api_key,omitempty" mapstructure:"api_key"`

	// BaseURL for custom endpoints (e.g., Ollama)
	BaseURL string `yaml:"base_url,omitempty" mapstructure:"base_url"`

	// Timeout for API requests
	Timeout int `yaml:"timeout" mapstructure:"timeout"` // seconds

	// MaxTokens for response generation
	MaxTokens int `yaml:"max_tokens" mapstructure:"max_tokens"`

	// Temperature for generation
	Temperature float32 `yaml:"temperature" mapstructure:"temperature"`

	// RequestsPerSecond caps calls to the provider (0 disables limiting)
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int     `yaml:"burst" mapstructure:"burst"`

	// Proxy settings
	HTTPProxy  string `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy string `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
	NoProxy    string `yaml:"no_proxy,omitempty" mapstructure:"no_proxy"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Provider:          "openai",
		Model:             "gpt-4o-mini",
		Timeout:           120,
		MaxTokens:         4000,
		Temperature:       0.2,
		RequestsPerSecond: 2,
		Burst:             4,
	}
}

// Streaming returns p as a Streamer when it, or the provider it wraps,
// supports incremental output
func Streaming(p Provider) (Streamer, bool) {
	if !supports[Streamer](p) {
		return nil, false
	}
	s, ok := p.(Streamer)
	return s, ok
}

// Searching returns p as a Searcher when it, or the provider it wraps,
// can search a corpus
func Searching(p Provider) (Searcher, bool) {
	if !supports[Searcher](p) {
		return nil, false
	}
	s, ok := p.(Searcher)
	return s, ok
}

// supports walks wrapper providers down to the innermost one
func supports[T any](p Provider) bool {
	for p != nil {
		if w, ok := p.(interface{ Unwrap() Provider }); ok {
			p = w.Unwrap()
			continue
		}
		_, ok := p.(T)
		return ok
	}
	return false
}
