// Package llm provides the narrow completion interface the extraction
// and sync pipelines call into: summarization, bucket partitioning,
// and the structured-output sync diff. Grounded in the teacher's
// pkg/agent.LLMClient interface shape, collapsed from its streaming
// chunk protocol to a single synchronous call — this domain never
// needs partial-token streaming, only a finished JSON or text answer.
//
// Transport is plain net/http + encoding/json against an
// Anthropic-Messages-shaped endpoint (github.com/runbook.GitHubClient's
// request/response idiom), not gRPC: the teacher's own pkg/llm.Client
// depends on generated protobuf stubs (a "proto" package) that isn't
// buildable without running protoc/buf, which this task forbids. See
// DESIGN.md for the full rationale.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/civicsync/civicsync/pkg/config"
)

// Message is one turn in a completion request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is a single synchronous completion call. When
// ResponseSchema is set, the caller expects Response.Text to be a JSON
// document satisfying it — enforcement is the caller's job (the
// pipeline unmarshals and validates). HTTPClient does not send the
// schema to the provider.
type CompletionRequest struct {
	SystemPrompt   string
	Messages       []Message
	ResponseSchema json.RawMessage
	MaxTokens      int
}

// CompletionResponse is the provider's reply.
type CompletionResponse struct {
	Text       string
	StopReason string
}

// Client is the pipeline-facing completion interface. Production code
// depends on this, not on *HTTPClient directly, so tests can supply a
// fake.
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
}

// HTTPClient calls an Anthropic-Messages-shaped HTTP endpoint.
type HTTPClient struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
	model      string
	logger     *slog.Logger
}

// NewHTTPClient builds a Client from the configured LLM endpoint.
func NewHTTPClient(cfg config.LLMConfig) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPClient{
		httpClient: &http.Client{Timeout: timeout},
		endpoint:   cfg.Endpoint,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		logger:     slog.Default(),
	}
}

type messagesRequestBody struct {
	Model     string    `json:"model"`
	System    string    `json:"system,omitempty"`
	Messages  []Message `json:"messages"`
	MaxTokens int       `json:"max_tokens"`
}

type messagesResponseBody struct {
	StopReason string `json:"stop_reason"`
	Content    []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

func (c *HTTPClient) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	body, err := json.Marshal(messagesRequestBody{
		Model:     c.model,
		System:    req.SystemPrompt,
		Messages:  req.Messages,
		MaxTokens: maxTokens,
	})
	if err != nil {
		return CompletionResponse{}, fmt.Errorf("marshal completion request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return CompletionResponse{}, fmt.Errorf("create completion request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return CompletionResponse{}, fmt.Errorf("call completion endpoint: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return CompletionResponse{}, fmt.Errorf("read completion response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return CompletionResponse{}, fmt.Errorf("completion endpoint returned HTTP %d: %s", resp.StatusCode, respBody)
	}

	var parsed messagesResponseBody
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return CompletionResponse{}, fmt.Errorf("unmarshal completion response: %w", err)
	}

	var text string
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	c.logger.Debug("llm completion", "stop_reason", parsed.StopReason, "response_bytes", len(text))
	return CompletionResponse{Text: text, StopReason: parsed.StopReason}, nil
}
