// Package bedrock calls Anthropic models through the Bedrock runtime
// InvokeModel API.
package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"

	"slack-ai-bridge/internal/domain"
	"slack-ai-bridge/internal/logger"
)

const (
	DefaultModelID          = "global.anthropic.claude-opus-4-5-20251101-v1:0"
	DefaultAnthropicVersion = "bedrock-2023-05-31"
	DefaultMaxTokens        = 2048
	DefaultMaxAttempts      = 8
)

// runtimeAPI is the subset of *bedrockruntime.Client used here.
type runtimeAPI interface {
	InvokeModel(ctx context.Context, in *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

type invokeRequest struct {
	AnthropicVersion string                 `json:"anthropic_version"`
	MaxTokens        int                    `json:"max_tokens"`
	Messages         []domain.PromptMessage `json:"messages"`
}

// invokeResponse uses a pointer slice so a missing "content" key is
// distinguishable from an empty one.
type invokeResponse struct {
	Content    *[]contentBlock `json:"content"`
	StopReason string          `json:"stop_reason"`
}

type contentBlock struct {
	Type string  `json:"type"`
	Text *string `json:"text"`
}

// Client sends prompts to one Bedrock model.
type Client struct {
	api              runtimeAPI
	modelID          string
	anthropicVersion string
	maxTokens        int
}

type Option func(*Client)

func WithAnthropicVersion(v string) Option {
	return func(c *Client) {
		if v = strings.TrimSpace(v); v != "" {
			c.anthropicVersion = v
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

func New(api runtimeAPI, modelID string, opts ...Option) (*Client, error) {
	if api == nil {
		return nil, errors.New("bedrock: runtime api must not be nil")
	}
	modelID = strings.TrimSpace(modelID)
	if modelID == "" {
		modelID = DefaultModelID
	}
	c := &Client{
		api:              api,
		modelID:          modelID,
		anthropicVersion: DefaultAnthropicVersion,
		maxTokens:        DefaultMaxTokens,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// NewRetryer returns the adaptive-mode retryer the runtime client should be
// built with. Throttling is retried with client-side rate limiting.
func NewRetryer(maxAttempts int) func() aws.Retryer {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return func() aws.Retryer {
		return retry.NewAdaptiveMode(func(o *retry.AdaptiveModeOptions) {
			o.StandardOptions = append(o.StandardOptions, func(so *retry.StandardOptions) {
				so.MaxAttempts = maxAttempts
			})
		})
	}
}

// Reply submits the prompt and returns the first text block of the answer.
// Every failure is a *domain.Error.
func (c *Client) Reply(ctx context.Context, messages []domain.PromptMessage) (string, error) {
	log := logger.FromContext(ctx)
	if err := domain.ValidatePrompt(messages); err != nil {
		log.Error("prompt rejected before invoke", slog.Any("error", err), slog.Any("prompt", messages))
		return "", invalidPrompt("local_validation", err, messages)
	}

	body, err := json.Marshal(invokeRequest{
		AnthropicVersion: c.anthropicVersion,
		MaxTokens:        c.maxTokens,
		Messages:         messages,
	})
	if err != nil {
		return "", domain.NewError(domain.ErrInvalidPrompt, "marshal_request", err)
	}

	log.Debug("invoking model", slog.String("model_id", c.modelID), slog.Int("messages", len(messages)))
	out, err := c.api.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(c.modelID),
		Body:        body,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	if err != nil {
		return "", c.classify(ctx, err, messages)
	}
	if out == nil {
		return "", domain.NewError(domain.ErrBadResponse, "nil_output", nil)
	}
	return extractText(out.Body)
}

func (c *Client) classify(ctx context.Context, err error, messages []domain.PromptMessage) error {
	log := logger.FromContext(ctx)

	var (
		throttled  *types.ThrottlingException
		quota      *types.ServiceQuotaExceededException
		validation *types.ValidationException
	)
	switch {
	case errors.As(err, &throttled), errors.As(err, &quota):
		log.Warn("bedrock throttled after retries", slog.Any("error", err))
		return domain.NewError(domain.ErrRateLimitExceeded, "bedrock_throttled", err)
	case errors.As(err, &validation):
		log.Error("bedrock rejected prompt", slog.Any("error", err), slog.Any("prompt", messages))
		return invalidPrompt("bedrock_validation", err, messages)
	}

	reason := "bedrock_invoke"
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		reason = "bedrock_" + apiErr.ErrorCode()
	}
	log.Error("bedrock invoke failed", slog.String("reason", reason), slog.Any("error", err))
	return domain.NewError(domain.ErrInferenceUnavailable, reason, err)
}

func extractText(body []byte) (string, error) {
	var resp invokeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", domain.NewError(domain.ErrBadResponse, "decode_body", err)
	}
	if resp.Content == nil || len(*resp.Content) == 0 {
		return "", domain.NewError(domain.ErrBadResponse, "content_missing", nil)
	}
	for _, block := range *resp.Content {
		if block.Type != "text" || block.Text == nil {
			continue
		}
		if strings.TrimSpace(*block.Text) == "" {
			return "", domain.NewError(domain.ErrBadResponse, "empty_text", nil)
		}
		return *block.Text, nil
	}
	return "", domain.NewError(domain.ErrBadResponse, "no_text_block", nil)
}

func invalidPrompt(reason string, err error, messages []domain.PromptMessage) error {
	e := domain.NewError(domain.ErrInvalidPrompt, reason, err)
	e.Prompt = append([]domain.PromptMessage(nil), messages...)
	return e
}

var _ runtimeAPI = (*bedrockruntime.Client)(nil)
