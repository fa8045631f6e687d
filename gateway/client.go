package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// maxResponseSize limits the completion response body to prevent memory
// exhaustion from a misbehaving upstream.
const maxResponseSize = 10 * 1024 * 1024 // 10MB

// DefaultBaseURL is the OpenRouter API root.
const DefaultBaseURL = "https://openrouter.ai/api/v1"

// DefaultTimeout applies when a Request carries no per-call timeout.
const DefaultTimeout = 120 * time.Second

// Config holds gateway connection settings.
type Config struct {
	// BaseURL is the API root (default: DefaultBaseURL).
	BaseURL string

	// APIKey is the default credential. Per-request keys take precedence.
	APIKey string

	// Referer and AppTitle are sent as the OpenRouter attribution headers
	// (HTTP-Referer / X-Title) when non-empty.
	Referer  string
	AppTitle string

	// CatalogTTL bounds the age of the cached model catalog.
	// Zero means DefaultCatalogTTL.
	CatalogTTL time.Duration
}

// Client is the OpenRouter gateway. It issues exactly one upstream request
// per Complete call; retry and fallback strategy is owned by callers.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
	catalog    *catalog
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(client *Client) {
		client.logger = logger
	}
}

// New creates an OpenRouter gateway client.
func New(cfg Config, opts ...Option) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")

	c := &Client{
		cfg: cfg,
		httpClient: &http.Client{
			// Per-call deadlines come from the request context; this is a
			// hard upper bound against leaked connections.
			Timeout: 5 * time.Minute,
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.catalog = newCatalog(c, cfg.CatalogTTL)
	return c
}

// completionPayload is the wire form of a chat-completions request.
type completionPayload struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

// completionResult is the subset of the chat-completions response we read.
type completionResult struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content   string `json:"content"`
			Reasoning string `json:"reasoning"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage TokenUsage `json:"usage"`
}

// Complete sends one chat-completion request. The call gets its own timeout
// (req.Timeout or DefaultTimeout) layered on top of ctx, so one slow model
// cannot hold a whole council stage hostage.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	if req.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("at least one message is required")
	}
	key := req.APIKey
	if key == "" {
		key = c.cfg.APIKey
	}
	if key == "" {
		return nil, fmt.Errorf("no API key configured")
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	requestID := uuid.New().String()
	started := time.Now()

	body, err := json.Marshal(completionPayload{
		Model:       req.Model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+key)
	if c.cfg.Referer != "" {
		httpReq.Header.Set("HTTP-Referer", c.cfg.Referer)
	}
	if c.cfg.AppTitle != "" {
		httpReq.Header.Set("X-Title", c.cfg.AppTitle)
	}

	c.logger.Debug("Sending completion request",
		"request_id", requestID,
		"model", req.Model,
		"messages", len(req.Messages))

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		observeCall(req.Model, "network_error", time.Since(started))
		return nil, &networkError{err: fmt.Errorf("HTTP request failed: %w", err)}
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		observeCall(req.Model, "network_error", time.Since(started))
		return nil, &networkError{err: fmt.Errorf("read response body: %w", err)}
	}

	if httpResp.StatusCode != http.StatusOK {
		observeCall(req.Model, fmt.Sprintf("http_%d", httpResp.StatusCode), time.Since(started))
		return nil, newUpstreamError(httpResp.StatusCode, respBody)
	}

	var result completionResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		observeCall(req.Model, "malformed", time.Since(started))
		return nil, fmt.Errorf("parse completion response: %w", err)
	}
	if len(result.Choices) == 0 {
		observeCall(req.Model, "malformed", time.Since(started))
		return nil, fmt.Errorf("completion response has no choices")
	}

	observeCall(req.Model, "ok", time.Since(started))

	model := result.Model
	if model == "" {
		model = req.Model
	}
	choice := result.Choices[0]
	return &Response{
		RequestID:    requestID,
		Model:        model,
		Content:      choice.Message.Content,
		Reasoning:    choice.Message.Reasoning,
		Usage:        result.Usage,
		FinishReason: choice.FinishReason,
	}, nil
}

// FreeModels returns the catalog entries with zero pricing, serving a cached
// copy while it is fresh. See catalog.go for the cache contract.
func (c *Client) FreeModels(ctx context.Context) ([]ModelDescriptor, error) {
	return c.catalog.freeModels(ctx)
}
