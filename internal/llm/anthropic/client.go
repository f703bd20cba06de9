// Package anthropic implements llm.Client on top of the Anthropic Messages API.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/worktab/worktab-api/internal/llm"
)

const (
	// DefaultBaseURL is the public Anthropic API endpoint.
	DefaultBaseURL = "https://api.anthropic.com"
	// DefaultModel is the model used when none is configured.
	DefaultModel = "claude-3-haiku-20240307"
	// DefaultVersion is the anthropic-version header value.
	DefaultVersion = "2023-06-01"
	// DefaultMaxTokens is the output ceiling when none is configured.
	DefaultMaxTokens = 1024

	maxErrorBodySize = 64 << 10
)

// Config holds client configuration.
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	Version    string
	MaxTokens  int
	MaxRetries int
	Timeout    time.Duration
}

// Client calls POST /v1/messages.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
	newBackOff func() backoff.BackOff
}

var _ llm.Client = (*Client)(nil)

// New creates a client. Zero-valued config fields fall back to defaults.
func New(cfg Config, httpClient *http.Client, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Version == "" {
		cfg.Version = DefaultVersion
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:        cfg,
		httpClient: httpClient,
		logger:     logger,
		newBackOff: func() backoff.BackOff { return backoff.NewExponentialBackOff() },
	}
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.cfg.Model
}

// Complete sends one completion request. Transient failures (429, 5xx,
// transport errors) are retried up to MaxRetries times with jittered
// exponential backoff; everything else fails on the first attempt.
func (c *Client) Complete(ctx context.Context, req llm.Request) (*llm.Reply, error) {
	maxTokens := c.cfg.MaxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}

	body, err := json.Marshal(messagesRequest{
		Model:     c.cfg.Model,
		MaxTokens: maxTokens,
		System:    req.System,
		Messages:  req.Messages,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal messages request: %w", err)
	}

	var reply *llm.Reply
	attempt := 0
	operation := func() error {
		attempt++
		r, err := c.send(ctx, body)
		if err == nil {
			reply = r
			return nil
		}
		if se, ok := llm.AsStatusError(err); ok && !se.Retryable() {
			return backoff.Permanent(err)
		}
		if errors.Is(err, llm.ErrInvalidResponse) || ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		if attempt <= c.cfg.MaxRetries {
			c.logger.Warn("Anthropic request failed, retrying", "attempt", attempt, "error", err)
		}
		return err
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(c.newBackOff(), uint64(c.cfg.MaxRetries)),
		ctx,
	)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}
	return reply, nil
}

func (c *Client) send(ctx context.Context, body []byte) (*llm.Reply, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("x-api-key", c.cfg.APIKey)
	httpReq.Header.Set("anthropic-version", c.cfg.Version)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call anthropic: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Debug("failed to close response body", "error", closeErr)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		c.logger.Error("Anthropic API error", "status", resp.StatusCode, "body", string(errBody))
		return nil, &llm.StatusError{StatusCode: resp.StatusCode, Body: string(errBody)}
	}

	var data messagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("%w: decode body: %v", llm.ErrInvalidResponse, err)
	}
	if len(data.Content) == 0 || data.Content[0].Text == "" {
		return nil, llm.ErrInvalidResponse
	}

	reply := &llm.Reply{
		Text:  data.Content[0].Text,
		Model: data.Model,
	}
	if data.Usage != nil {
		reply.Usage = *data.Usage
	}
	return reply, nil
}
