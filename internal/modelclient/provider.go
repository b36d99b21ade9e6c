// Package modelclient implements the model boundary (spec §6): a single
// `complete(system, user, model, temperature, max_tokens) -> {content}`
// contract, wrapped by the model breaker and retry loop the same way the
// store wraps SQL calls. It collapses the teacher's nine per-vendor
// provider packages (openai, anthropic, deepseek, qwen, glm, grok,
// doubao, minimax, kimi, ...) into the one shape SPEC_FULL.md actually
// exercises: an OpenAI-compatible HTTP completion call plus the resilient
// wrapper around it.
package modelclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/agentmail-core/agentmail/internal/tlsutil"
	"go.uber.org/zap"
)

// Request is the model boundary's input shape.
type Request struct {
	SystemPrompt string
	UserPrompt   string
	Model        string
	Temperature  float64
	MaxTokens    int
}

// Response is the model boundary's output shape: `{content}`, plus
// whatever token usage the provider reported (zero if it didn't).
type Response struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
}

// Provider is the unified adapter interface every model backend
// implements, mirroring the teacher's `llm.Provider.Completion` method
// narrowed to the single operation this bus needs.
type Provider interface {
	Complete(ctx context.Context, req Request) (Response, error)
	Name() string
}

// openAICompatRequest is the wire shape the chat/completions endpoint
// expects, trimmed to the fields this bus populates.
type openAICompatRequest struct {
	Model       string                `json:"model"`
	Messages    []openAICompatMessage `json:"messages"`
	Temperature float64               `json:"temperature,omitempty"`
	MaxTokens   int                   `json:"max_tokens,omitempty"`
}

type openAICompatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAICompatResponse struct {
	Choices []struct {
		Message openAICompatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// HTTPConfig configures an OpenAI-compatible HTTP Provider.
type HTTPConfig struct {
	ProviderName string
	BaseURL      string
	EndpointPath string
	APIKey       string
	DefaultModel string
	Timeout      time.Duration
}

// HTTPProvider calls an OpenAI-compatible chat/completions endpoint,
// grounded on `llm/providers/openaicompat.Provider.Completion`'s
// marshal/POST/decode shape — stdlib `net/http` + `encoding/json`, no
// SDK, matching that package's own choice for every vendor it wraps.
type HTTPProvider struct {
	cfg    HTTPConfig
	client *http.Client
	logger *zap.Logger
}

// NewHTTPProvider builds an HTTPProvider; a zero Timeout defaults to 60s.
// The client's transport is tlsutil's hardened default (TLS 1.2+, AEAD
// cipher suites only) since BaseURL is almost always an external vendor
// endpoint reached over the open internet.
func NewHTTPProvider(cfg HTTPConfig, logger *zap.Logger) *HTTPProvider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	client := &http.Client{Timeout: timeout, Transport: tlsutil.SecureTransport()}
	return &HTTPProvider{cfg: cfg, client: client, logger: logger.With(zap.String("provider", cfg.ProviderName))}
}

func (p *HTTPProvider) Name() string { return p.cfg.ProviderName }

// Complete sends one non-streaming chat completion request and returns
// its first choice's message content.
func (p *HTTPProvider) Complete(ctx context.Context, req Request) (Response, error) {
	model := req.Model
	if model == "" {
		model = p.cfg.DefaultModel
	}

	body := openAICompatRequest{
		Model:       model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Messages: []openAICompatMessage{
			{Role: "system", Content: req.SystemPrompt},
			{Role: "user", Content: req.UserPrompt},
		},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return Response{}, fmt.Errorf("modelclient: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+p.cfg.EndpointPath, bytes.NewReader(payload))
	if err != nil {
		return Response{}, fmt.Errorf("modelclient: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return Response{}, &Error{Code: CodeUpstreamUnavailable, Message: err.Error(), Retryable: true, Provider: p.Name()}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Response{}, mapHTTPError(resp.StatusCode, string(msg), p.Name())
	}

	var oaResp openAICompatResponse
	if err := json.NewDecoder(resp.Body).Decode(&oaResp); err != nil {
		return Response{}, &Error{Code: CodeUpstreamUnavailable, Message: err.Error(), Retryable: true, Provider: p.Name()}
	}
	if len(oaResp.Choices) == 0 {
		return Response{}, &Error{Code: CodeUpstreamUnavailable, Message: "no choices in response", Retryable: false, Provider: p.Name()}
	}
	return Response{
		Content:          oaResp.Choices[0].Message.Content,
		PromptTokens:     oaResp.Usage.PromptTokens,
		CompletionTokens: oaResp.Usage.CompletionTokens,
	}, nil
}
