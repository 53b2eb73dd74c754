package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

const (
	defaultAnthropicURL   = "https://api.anthropic.com"
	defaultAnthropicModel = "claude-3-5-haiku-latest"
	anthropicVersion      = "2023-06-01"
)

// AnthropicProvider talks to the Messages API.
type AnthropicProvider struct {
	baseURL    string
	header     http.Header
	httpClient *http.Client
	config     Config
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	Temperature float64            `json:"temperature,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Model      string `json:"model"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// NewAnthropicProvider creates a new Anthropic provider
func NewAnthropicProvider(config Config) (*AnthropicProvider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required")
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = defaultAnthropicURL
	}

	header := make(http.Header)
	header.Set("x-api-key", config.APIKey)
	header.Set("anthropic-version", anthropicVersion)

	return &AnthropicProvider{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		header:     header,
		httpClient: config.httpClient(),
		config:     config,
	}, nil
}

// Name returns the provider name
func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

// IsAvailable sends a one-token message to verify the key.
func (p *AnthropicProvider) IsAvailable(ctx context.Context) bool {
	_, err := p.complete(ctx, completion{
		Model:     resolveModel(SummarizeRequest{}, p.config, defaultAnthropicModel),
		Prompt:    "ping",
		MaxTokens: 1,
	})
	if err != nil {
		slog.Warn("anthropic availability check failed", "error", err)
		return false
	}
	return true
}

// Summarize writes the report narrative.
func (p *AnthropicProvider) Summarize(ctx context.Context, req SummarizeRequest) (*SummarizeResponse, error) {
	return summarize(ctx, p, "Anthropic", p.config, req, defaultAnthropicModel)
}

func (p *AnthropicProvider) complete(ctx context.Context, c completion) (*completionResult, error) {
	apiReq := anthropicRequest{
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		System:      c.System,
		Messages:    []anthropicMessage{{Role: "user", Content: c.Prompt}},
		Temperature: 0.3,
	}

	var resp anthropicResponse
	if err := postJSON(ctx, p.httpClient, p.baseURL+"/v1/messages", p.header, apiReq, &resp, anthropicMessageOf); err != nil {
		return nil, err
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return &completionResult{
		Text:   text.String(),
		Model:  resp.Model,
		Tokens: resp.Usage.InputTokens + resp.Usage.OutputTokens,
	}, nil
}

// anthropicMessageOf renders {"error":{"type":..,"message":..}} bodies.
func anthropicMessageOf(body []byte) string {
	var apiErr struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &apiErr) != nil || apiErr.Error.Message == "" {
		return ""
	}
	return apiErr.Error.Type + " - " + apiErr.Error.Message
}
