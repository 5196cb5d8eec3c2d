// internal/genai/client.go
package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"jobhunter-workers/internal/common/config"
	"jobhunter-workers/internal/common/errors"
	"jobhunter-workers/internal/common/logger"
)

// Client wraps the text-generation API used for message drafting. The
// API is a plain chat-completions endpoint; the pipeline treats it as a
// black box that turns a prompt into a draft.
type Client struct {
	cfg        config.GenAIConfig
	httpClient *http.Client
	log        logger.Logger
}

func NewClient(cfg config.GenAIConfig, log logger.Logger) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

type completionRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionResponse struct {
	Choices []struct {
		Message message `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Complete sends a system+user prompt pair and returns the model's text.
// Server-side failures come back as TRANSIENT so the caller's retry
// policy applies; empty completions are GENERATION_FAILED.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	payload := completionRequest{
		Model: c.cfg.Model,
		Messages: []message{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", errors.NewFatalError("failed to encode completion request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", errors.NewFatalError("failed to build completion request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", errors.NewTransientError("genai completion", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", errors.NewTransientError("genai completion read", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return "", errors.NewTransientError("genai completion",
			fmt.Errorf("status %d: %s", resp.StatusCode, truncate(raw, 200)))
	}
	if resp.StatusCode != http.StatusOK {
		return "", errors.NewGenerationFailedError("genai",
			fmt.Errorf("status %d: %s", resp.StatusCode, truncate(raw, 200)))
	}

	var parsed completionResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", errors.NewGenerationFailedError("genai", err)
	}
	if parsed.Error != nil {
		return "", errors.NewGenerationFailedError("genai", fmt.Errorf("%s", parsed.Error.Message))
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return "", errors.NewGenerationFailedError("genai", fmt.Errorf("empty completion"))
	}

	return parsed.Choices[0].Message.Content, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
