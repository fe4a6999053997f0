package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ppiankov/casefile/internal/util"
)

// ResponsesClient talks to the OpenAI Responses API, which binds a
// file_search tool to a vector store so answers are grounded in
// retrieved passages
type ResponsesClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	config     Config
}

// Responses API structures
type responsesRequest struct {
	Model           string          `json:"model"`
	Input           string          `json:"input"`
	Instructions    string          `json:"instructions,omitempty"`
	Tools           []responsesTool `json:"tools,omitempty"`
	MaxOutputTokens int             `json:"max_output_tokens,omitempty"`
	Stream          bool            `json:"stream,omitempty"`
}

type responsesTool struct {
	Type           string   `json:"type"`
	VectorStoreIDs []string `json:"vector_store_ids,omitempty"`
}

type responsesResponse struct {
	ID     string `json:"id"`
	Model  string `json:"model"`
	Status string `json:"status"`
	Output []struct {
		Type    string `json:"type"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"output"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

type responsesError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// NewResponsesClient creates a client for the Responses API
func NewResponsesClient(config Config) *ResponsesClient {
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	timeout := time.Duration(config.Timeout) * time.Second
	if timeout == 0 {
		timeout = 120 * time.Second
	}

	return &ResponsesClient{
		apiKey:  config.APIKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy: util.NewProxyFunc(config.HTTPProxy, config.HTTPSProxy, config.NoProxy),
			},
		},
		config: config,
	}
}

// Complete generates a response without tools
func (c *ResponsesClient) Complete(ctx context.Context, req Request) (*Response, error) {
	return c.create(ctx, responsesRequest{
		Model:           c.model(req.Model),
		Input:           req.Prompt,
		Instructions:    req.System,
		MaxOutputTokens: maxTokens(req.MaxTokens, c.config.MaxTokens),
	})
}

// Search answers a query with file_search bound to the corpus
func (c *ResponsesClient) Search(ctx context.Context, req SearchRequest) (*Response, error) {
	if req.CorpusID == "" {
		return nil, fmt.Errorf("search requires a corpus id")
	}
	return c.create(ctx, responsesRequest{
		Model: c.model(req.Model),
		Input: req.Query,
		Tools: []responsesTool{{
			Type:           "file_search",
			VectorStoreIDs: []string{req.CorpusID},
		}},
	})
}

// Stream opens a streaming response. Events arrive as server-sent events
// and are decoded with DecodeEvent.
func (c *ResponsesClient) Stream(ctx context.Context, req Request) (EventStream, error) {
	apiReq := responsesRequest{
		Model:           c.model(req.Model),
		Input:           req.Prompt,
		Instructions:    req.System,
		MaxOutputTokens: maxTokens(req.MaxTokens, c.config.MaxTokens),
		Stream:          true,
	}

	// The client timeout would cut long streams; the caller's context
	// bounds them instead.
	streamClient := *c.httpClient
	streamClient.Timeout = 0

	httpResp, err := c.do(ctx, &streamClient, apiReq)
	if err != nil {
		return nil, err
	}
	return newSSEStream(httpResp.Body), nil
}

func (c *ResponsesClient) create(ctx context.Context, apiReq responsesRequest) (*Response, error) {
	httpResp, err := c.do(ctx, c.httpClient, apiReq)
	if err != nil {
		return nil, err
	}
	defer func() { _ = httpResp.Body.Close() }()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var resp responsesResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	text := outputText(resp)
	if text == "" {
		return nil, fmt.Errorf("responses API returned status %q: %w", resp.Status, ErrEmptyResponse)
	}

	return &Response{
		Text:       text,
		Model:      resp.Model,
		TokensUsed: resp.Usage.TotalTokens,
	}, nil
}

// do sends the request and checks the status. The caller closes the body.
func (c *ResponsesClient) do(ctx context.Context, client *http.Client, apiReq responsesRequest) (*http.Response, error) {
	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/responses", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	if apiReq.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	httpResp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		defer func() { _ = httpResp.Body.Close() }()
		respBody, _ := io.ReadAll(httpResp.Body)
		var apiErr responsesError
		if err := json.Unmarshal(respBody, &apiErr); err == nil && apiErr.Error.Message != "" {
			return nil, fmt.Errorf("API error (%d): %s - %s", httpResp.StatusCode, apiErr.Error.Type, apiErr.Error.Message)
		}
		return nil, fmt.Errorf("API error (%d): %s", httpResp.StatusCode, string(respBody))
	}

	return httpResp, nil
}

func (c *ResponsesClient) model(override string) string {
	if override != "" {
		return override
	}
	if c.config.Model != "" {
		return c.config.Model
	}
	return "gpt-4o-mini"
}

// outputText concatenates every output_text part of every message item
func outputText(resp responsesResponse) string {
	var b strings.Builder
	for _, item := range resp.Output {
		if item.Type != "message" {
			continue
		}
		for _, part := range item.Content {
			if part.Type == "output_text" {
				b.WriteString(part.Text)
			}
		}
	}
	return strings.TrimSpace(b.String())
}
