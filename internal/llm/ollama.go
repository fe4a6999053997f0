package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/casefile/internal/util"
)

// OllamaProvider implements Provider and Streamer for Ollama local models
type OllamaProvider struct {
	baseURL    string
	httpClient *http.Client
	config     Config
	logger     *zap.Logger
}

// Ollama API structures
type ollamaRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	Stream  bool          `json:"stream"`
	System  string        `json:"system,omitempty"`
	Options ollamaOptions `json:"options,omitempty"`
}

type ollamaOptions struct {
	Temperature float32 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"` // Max tokens
}

type ollamaResponse struct {
	Model     string `json:"model"`
	CreatedAt string `json:"created_at"`
	Response  string `json:"response"`
	Done      bool   `json:"done"`
	Error     string `json:"error,omitempty"`

	// Token counts (only present when done=true)
	PromptEvalCount int `json:"prompt_eval_count,omitempty"`
	EvalCount       int `json:"eval_count,omitempty"`
}

type ollamaError struct {
	Error string `json:"error"`
}

// NewOllamaProvider creates a new Ollama provider
func NewOllamaProvider(config Config, logger *zap.Logger) (*OllamaProvider, error) {
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}

	timeout := time.Duration(config.Timeout) * time.Second
	if timeout == 0 {
		timeout = 60 * time.Second // Ollama can be slower for local models
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &OllamaProvider{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy: util.NewProxyFunc(config.HTTPProxy, config.HTTPSProxy, config.NoProxy),
			},
		},
		config: config,
		logger: logger.Named("ollama"),
	}, nil
}

// Name returns the provider name
func (p *OllamaProvider) Name() string {
	return "ollama"
}

// IsAvailable checks if the provider is properly configured
func (p *OllamaProvider) IsAvailable(ctx context.Context) bool {
	// Check if Ollama is running by trying to list models
	url := fmt.Sprintf("%s/api/tags", p.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		p.logger.Warn("Ollama availability check failed", zap.Error(err))
		return false
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.logger.Warn("Ollama availability check failed", zap.String("base_url", p.baseURL), zap.Error(err))
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		p.logger.Warn("Ollama availability check failed", zap.Int("status", resp.StatusCode))
		return false
	}

	return true
}

// Complete generates a response with a local model
func (p *OllamaProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	apiReq, err := p.request(req, false)
	if err != nil {
		return nil, err
	}

	httpResp, err := p.send(ctx, p.httpClient, apiReq)
	if err != nil {
		return nil, fmt.Errorf("ollama API error: %w", err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var resp ollamaResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	text := strings.TrimSpace(resp.Response)
	if text == "" {
		return nil, fmt.Errorf("ollama: %w", ErrEmptyResponse)
	}

	// Estimate tokens (Ollama provides counts but they may be 0 for some models)
	tokensUsed := resp.PromptEvalCount + resp.EvalCount
	if tokensUsed == 0 {
		tokensUsed = (len(req.Prompt) + len(text)) / 4
	}

	return &Response{
		Text:       text,
		Model:      resp.Model,
		TokensUsed: tokensUsed,
	}, nil
}

// Stream generates a response as newline-delimited JSON chunks
func (p *OllamaProvider) Stream(ctx context.Context, req Request) (EventStream, error) {
	apiReq, err := p.request(req, true)
	if err != nil {
		return nil, err
	}

	streamClient := *p.httpClient
	streamClient.Timeout = 0

	httpResp, err := p.send(ctx, &streamClient, apiReq)
	if err != nil {
		return nil, fmt.Errorf("ollama stream error: %w", err)
	}

	scanner := bufio.NewScanner(httpResp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &ollamaStream{body: httpResp.Body, scanner: scanner}, nil
}

func (p *OllamaProvider) request(req Request, stream bool) (ollamaRequest, error) {
	model := req.Model
	if model == "" {
		model = p.config.Model
	}
	if model == "" {
		return ollamaRequest{}, fmt.Errorf("ollama model must be specified (e.g., llama3.1:8b, mistral)")
	}

	return ollamaRequest{
		Model:  model,
		Prompt: req.Prompt,
		Stream: stream,
		System: req.System,
		Options: ollamaOptions{
			Temperature: temperature(req.Temperature, p.config.Temperature),
			NumPredict:  maxTokens(req.MaxTokens, p.config.MaxTokens),
		},
	}, nil
}

// send makes an HTTP request to the Ollama API. The caller closes the body
// of a successful response.
func (p *OllamaProvider) send(ctx context.Context, client *http.Client, apiReq ollamaRequest) (*http.Response, error) {
	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/api/generate", p.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		defer func() { _ = httpResp.Body.Close() }()
		respBody, _ := io.ReadAll(httpResp.Body)
		var apiErr ollamaError
		if err := json.Unmarshal(respBody, &apiErr); err == nil && apiErr.Error != "" {
			return nil, fmt.Errorf("API error (%d): %s", httpResp.StatusCode, apiErr.Error)
		}
		return nil, fmt.Errorf("API error (%d): %s", httpResp.StatusCode, string(respBody))
	}

	return httpResp, nil
}

// ollamaStream decodes one JSON object per line
type ollamaStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	ending  bool
	done    bool
}

func (s *ollamaStream) Recv() (StreamEvent, error) {
	if s.done {
		return nil, io.EOF
	}
	if s.ending {
		s.done = true
		return DoneEvent{}, nil
	}

	for s.scanner.Scan() {
		line := bytes.TrimSpace(s.scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var chunk ollamaResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			return UnknownEvent{}, nil
		}
		if chunk.Error != "" {
			s.done = true
			return nil, fmt.Errorf("ollama stream error: %s", chunk.Error)
		}
		if chunk.Done {
			// the final chunk can still carry text
			if chunk.Response != "" {
				s.ending = true
				return DeltaEvent{Text: chunk.Response}, nil
			}
			s.done = true
			return DoneEvent{}, nil
		}
		return DeltaEvent{Text: chunk.Response}, nil
	}

	if err := s.scanner.Err(); err != nil {
		return nil, fmt.Errorf("read ollama stream: %w", err)
	}
	s.done = true
	return nil, io.EOF
}

func (s *ollamaStream) Close() error {
	return s.body.Close()
}
