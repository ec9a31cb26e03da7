// Package llm is a minimal client for an OpenAI-compatible chat-completions
// endpoint.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	logx "digestbot/pkg/logx"
)

// Message is one chat turn, in API wire shape.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Config struct {
	APIURL string
	Token  string

	// HTTPTimeout bounds a single HTTP exchange. <=0 means 60s;
	// completions are slow.
	HTTPTimeout time.Duration
}

type Client struct {
	baseURL string
	token   string
	httpc   *http.Client
	log     logx.Logger
}

func New(cfg Config, log logx.Logger) *Client {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.APIURL, "/"),
		token:   cfg.Token,
		httpc:   &http.Client{Timeout: timeout},
		log:     log.With(logx.String("comp", "llm")),
	}
}

// ChatCompletion sends the rendered messages and returns the first choice's
// content.
func (c *Client) ChatCompletion(ctx context.Context, model string, messages []Message, maxTokens int) (string, error) {
	payload := map[string]any{
		"model":      model,
		"messages":   messages,
		"max_tokens": maxTokens,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal chat payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	started := time.Now()
	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("call chat endpoint: %w", err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("llm API error %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(b, &parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New("llm returned no choices")
	}

	c.log.Debug("chat completion done",
		logx.String("model", model),
		logx.Duration("took", time.Since(started)),
	)
	return parsed.Choices[0].Message.Content, nil
}
