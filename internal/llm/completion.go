package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// completion is one system + user exchange with a model.
type completion struct {
	Model     string
	System    string
	Prompt    string
	MaxTokens int
}

type completionResult struct {
	Text   string
	Model  string // as reported by the server, may be empty
	Tokens int    // 0 when the server does not count
}

// completer is the transport half of a provider.
type completer interface {
	complete(ctx context.Context, c completion) (*completionResult, error)
}

// summarize sends the report prompt through c and checks what comes back.
// label prefixes transport errors.
func summarize(ctx context.Context, c completer, label string, cfg Config, req SummarizeRequest, fallbackModel string) (*SummarizeResponse, error) {
	model := resolveModel(req, cfg, fallbackModel)
	if model == "" {
		return nil, fmt.Errorf("%s model must be specified", label)
	}
	prompt := resolvePrompt(req)

	res, err := c.complete(ctx, completion{
		Model:     model,
		System:    systemPrompt,
		Prompt:    prompt,
		MaxTokens: resolveMaxTokens(req, cfg),
	})
	if err != nil {
		return nil, fmt.Errorf("%s API error: %w", label, err)
	}

	summary := strings.TrimSpace(res.Text)
	if summary == "" {
		return nil, fmt.Errorf("no content in %s response", label)
	}
	cited, err := checkCitations(summary, req.AllowedImageIDs, cfg.Strict)
	if err != nil {
		return nil, err
	}

	if res.Model != "" {
		model = res.Model
	}
	tokens := res.Tokens
	if tokens == 0 {
		// Roughly 4 characters per token.
		tokens = (len(prompt) + len(summary)) / 4
	}

	return &SummarizeResponse{
		Summary:       summary,
		CitedImageIDs: cited,
		Model:         model,
		TokensUsed:    tokens,
	}, nil
}

// maxResponseBytes bounds a provider response body.
const maxResponseBytes = 1 << 20

// postJSON posts in as JSON and decodes a 200 answer into out. For other
// statuses apiMessage extracts the server's message from the body when it can.
func postJSON(ctx context.Context, client *http.Client, url string, header http.Header, in, out any, apiMessage func([]byte) string) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := ""
		if apiMessage != nil {
			msg = apiMessage(respBody)
		}
		if msg == "" {
			msg = strings.TrimSpace(string(respBody))
		}
		return fmt.Errorf("API error (%d): %s", resp.StatusCode, msg)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}
