// Package openai is the alternate inference provider for any
// OpenAI-compatible chat completions endpoint.
package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	openai "github.com/sashabaranov/go-openai"

	"slack-ai-bridge/internal/domain"
	"slack-ai-bridge/internal/integrations/paramstore"
	"slack-ai-bridge/internal/logger"
)

const (
	defaultBaseURL     = "https://api.openai.com/v1"
	defaultModel       = "gpt-4o-mini"
	defaultMaxTokens   = 2048
	defaultMaxAttempts = 8
)

// Client sends prompts to an OpenAI-compatible endpoint. The API key is read
// from Parameter Store on first use and reused for the process lifetime.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	getter      paramstore.Getter
	tokenParam  string
	model       string
	maxTokens   int
	maxAttempts uint
	newBackOff  func() backoff.BackOff

	keyOnce sync.Once
	api     *openai.Client
	keyErr  error
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSpace(baseURL)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithModel(model string) Option {
	return func(c *Client) {
		if model = strings.TrimSpace(model); model != "" {
			c.model = model
		}
	}
}

func WithMaxTokens(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxTokens = n
		}
	}
}

// WithBackOff replaces the retry schedule. Tests pass a zero backoff.
func WithBackOff(f func() backoff.BackOff) Option {
	return func(c *Client) {
		if f != nil {
			c.newBackOff = f
		}
	}
}

func WithMaxAttempts(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxAttempts = uint(n)
		}
	}
}

// NewClient creates a Client whose key lives in the SSM parameter tokenParam,
// stored either as plain text or as {"token": "..."}.
func NewClient(ps paramstore.Getter, tokenParam string, opts ...Option) (*Client, error) {
	if ps == nil {
		return nil, errors.New("openai: paramstore getter must not be nil")
	}
	tokenParam = strings.TrimSpace(tokenParam)
	if tokenParam == "" {
		return nil, errors.New("openai: token parameter must not be empty")
	}
	c := &Client{
		baseURL:     defaultBaseURL,
		httpClient:  &http.Client{Timeout: 60 * time.Second},
		getter:      ps,
		tokenParam:  tokenParam,
		model:       defaultModel,
		maxTokens:   defaultMaxTokens,
		maxAttempts: defaultMaxAttempts,
		newBackOff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// apiClient builds the SDK client once the key is known.
func (c *Client) apiClient(ctx context.Context) (*openai.Client, error) {
	c.keyOnce.Do(func() {
		key, err := paramstore.GetToken(ctx, c.getter, c.tokenParam)
		if err != nil {
			c.keyErr = fmt.Errorf("openai: resolve api key: %w", err)
			return
		}
		cfg := openai.DefaultConfig(key)
		cfg.BaseURL = normalizeBaseURL(c.baseURL)
		if c.httpClient != nil {
			cfg.HTTPClient = c.httpClient
		}
		c.api = openai.NewClientWithConfig(cfg)
	})
	return c.api, c.keyErr
}

func normalizeBaseURL(baseURL string) string {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return defaultBaseURL
	}
	if strings.HasSuffix(base, "/v1") {
		return base
	}
	return base + "/v1"
}

// Reply submits the prompt, retrying 429, 5xx and transport failures with
// exponential backoff. Every failure is a *domain.Error.
func (c *Client) Reply(ctx context.Context, messages []domain.PromptMessage) (string, error) {
	log := logger.FromContext(ctx)
	if err := domain.ValidatePrompt(messages); err != nil {
		log.Error("prompt rejected before request", slog.Any("error", err), slog.Any("prompt", messages))
		return "", invalidPrompt("local_validation", err, messages)
	}

	api, err := c.apiClient(ctx)
	if err != nil {
		return "", domain.NewError(domain.ErrInferenceUnavailable, "api_key", err)
	}

	req := openai.ChatCompletionRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages:  make([]openai.ChatCompletionMessage, 0, len(messages)),
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content})
	}

	op := func() (openai.ChatCompletionResponse, error) {
		resp, err := api.CreateChatCompletion(ctx, req)
		if err != nil && !retryable(ctx, err) {
			return resp, backoff.Permanent(err)
		}
		return resp, err
	}
	resp, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(c.newBackOff()),
		backoff.WithMaxTries(c.maxAttempts),
		backoff.WithNotify(func(err error, wait time.Duration) {
			log.Warn("chat completion failed, retrying", slog.Any("error", err), slog.Duration("wait", wait))
		}),
	)
	if err != nil {
		return "", classify(ctx, err, messages)
	}

	if len(resp.Choices) == 0 {
		return "", domain.NewError(domain.ErrBadResponse, "no_choices", nil)
	}
	text := resp.Choices[0].Message.Content
	if strings.TrimSpace(text) == "" {
		return "", domain.NewError(domain.ErrBadResponse, "empty_content", nil)
	}
	return text, nil
}

func statusCode(err error) (int, bool) {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return apiErr.HTTPStatusCode, true
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return reqErr.HTTPStatusCode, true
	}
	return 0, false
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	status, ok := statusCode(err)
	if !ok {
		return true
	}
	return status == http.StatusTooManyRequests || status >= 500
}

func classify(ctx context.Context, err error, messages []domain.PromptMessage) error {
	log := logger.FromContext(ctx)
	status, _ := statusCode(err)
	switch {
	case status == http.StatusTooManyRequests:
		log.Warn("chat completion rate limited after retries", slog.Any("error", err))
		return domain.NewError(domain.ErrRateLimitExceeded, "openai_rate_limited", err)
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		log.Error("chat completion rejected prompt", slog.Any("error", err), slog.Any("prompt", messages))
		return invalidPrompt("openai_validation", err, messages)
	}
	log.Error("chat completion failed", slog.Int("status", status), slog.Any("error", err))
	return domain.NewError(domain.ErrInferenceUnavailable, "openai_error", err)
}

func invalidPrompt(reason string, err error, messages []domain.PromptMessage) error {
	e := domain.NewError(domain.ErrInvalidPrompt, reason, err)
	e.Prompt = append([]domain.PromptMessage(nil), messages...)
	return e
}
