package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/ppiankov/casefile/internal/util"
)

// OpenAIProvider implements Provider, Streamer and Searcher for OpenAI.
// Completions go through the Chat Completions API; corpus search goes
// through the Responses API with a file_search tool.
type OpenAIProvider struct {
	client    *openai.Client
	responses *ResponsesClient
	config    Config
	logger    *zap.Logger
}

// NewOpenAIClient builds a go-openai client from the configuration
func NewOpenAIClient(config Config) (*openai.Client, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	clientConfig.HTTPClient = &http.Client{
		Transport: &http.Transport{
			Proxy: util.NewProxyFunc(config.HTTPProxy, config.HTTPSProxy, config.NoProxy),
		},
	}

	return openai.NewClientWithConfig(clientConfig), nil
}

// NewOpenAIProvider creates a new OpenAI provider
func NewOpenAIProvider(config Config, logger *zap.Logger) (*OpenAIProvider, error) {
	client, err := NewOpenAIClient(config)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &OpenAIProvider{
		client:    client,
		responses: NewResponsesClient(config),
		config:    config,
		logger:    logger.Named("openai"),
	}, nil
}

// Name returns the provider name
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// IsAvailable checks if the provider is properly configured
func (p *OpenAIProvider) IsAvailable(ctx context.Context) bool {
	// Simple check: try to list models (lightweight API call)
	_, err := p.client.ListModels(ctx)
	if err != nil {
		p.logger.Warn("OpenAI API check failed", zap.Error(err))
		return false
	}
	return true
}

// Complete generates a response using the Chat Completions API
func (p *OpenAIProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	ctxWithTimeout, cancel := context.WithTimeout(ctx, p.timeout())
	defer cancel()

	chatReq := p.chatRequest(req)
	resp, err := p.client.CreateChatCompletion(ctxWithTimeout, chatReq)
	if err != nil {
		return nil, fmt.Errorf("OpenAI API error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from OpenAI: %w", ErrEmptyResponse)
	}

	return &Response{
		Text:       strings.TrimSpace(resp.Choices[0].Message.Content),
		Model:      resp.Model,
		TokensUsed: resp.Usage.TotalTokens,
	}, nil
}

// Stream opens a streaming chat completion. The caller's context bounds
// the whole stream.
func (p *OpenAIProvider) Stream(ctx context.Context, req Request) (EventStream, error) {
	stream, err := p.client.CreateChatCompletionStream(ctx, p.chatRequest(req))
	if err != nil {
		return nil, fmt.Errorf("OpenAI stream error: %w", err)
	}
	return &chatStream{stream: stream}, nil
}

// Search answers a query over a vector store
func (p *OpenAIProvider) Search(ctx context.Context, req SearchRequest) (*Response, error) {
	if req.Model == "" {
		req.Model = p.model("")
	}
	return p.responses.Search(ctx, req)
}

func (p *OpenAIProvider) chatRequest(req Request) openai.ChatCompletionRequest {
	var messages []openai.ChatCompletionMessage
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	return openai.ChatCompletionRequest{
		Model:       p.model(req.Model),
		Messages:    messages,
		MaxTokens:   maxTokens(req.MaxTokens, p.config.MaxTokens),
		Temperature: temperature(req.Temperature, p.config.Temperature),
	}
}

func (p *OpenAIProvider) model(override string) string {
	if override != "" {
		return override
	}
	if p.config.Model != "" {
		return p.config.Model
	}
	return openai.GPT4oMini
}

func (p *OpenAIProvider) timeout() time.Duration {
	timeout := time.Duration(p.config.Timeout) * time.Second
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	return timeout
}

// chatStream adapts a go-openai stream to EventStream
type chatStream struct {
	stream *openai.ChatCompletionStream
	done   bool
}

func (s *chatStream) Recv() (StreamEvent, error) {
	if s.done {
		return nil, io.EOF
	}

	resp, err := s.stream.Recv()
	if errors.Is(err, io.EOF) {
		s.done = true
		return DoneEvent{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("OpenAI stream error: %w", err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Delta.Content == "" {
		return UnknownEvent{Type: resp.Object}, nil
	}
	return DeltaEvent{Text: resp.Choices[0].Delta.Content}, nil
}

func (s *chatStream) Close() error {
	s.stream.Close()
	return nil
}

func maxTokens(requested, configured int) int {
	if requested > 0 {
		return requested
	}
	if configured > 0 {
		return configured
	}
	return 4000
}

func temperature(requested, configured float32) float32 {
	if requested != 0 {
		return requested
	}
	return configured
}
