// Package handler turns Slack Events API requests into mention jobs.
package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"
	"github.com/slack-go/slack"

	"slack-ai-bridge/internal/domain"
	"slack-ai-bridge/internal/integrations/slackapi"
	"slack-ai-bridge/internal/logger"
	"slack-ai-bridge/internal/usecase"
)

const correlationHeader = "X-Correlation-Id"

type MentionUseCase interface {
	Handle(ctx context.Context, ev domain.MentionEvent) (usecase.Outcome, error)
}

// BotIdentity resolves the bot's own user id when the envelope carries no
// authorizations.
type BotIdentity interface {
	BotUserID(ctx context.Context) (string, error)
}

type Handler struct {
	uc            MentionUseCase
	bot           BotIdentity
	signingSecret string
}

type Option func(*Handler)

// WithSigningSecret enables X-Slack-Signature verification.
func WithSigningSecret(secret string) Option {
	return func(h *Handler) { h.signingSecret = secret }
}

func WithBotIdentity(b BotIdentity) Option {
	return func(h *Handler) { h.bot = b }
}

func NewHandler(uc MentionUseCase, opts ...Option) (*Handler, error) {
	if uc == nil {
		return nil, errors.New("handler: use case must not be nil")
	}
	h := &Handler{uc: uc}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

type envelope struct {
	Type           string          `json:"type"`
	Challenge      string          `json:"challenge"`
	EventID        string          `json:"event_id"`
	Event          json.RawMessage `json:"event"`
	Authorizations []authorization `json:"authorizations"`
}

type authorization struct {
	UserID string `json:"user_id"`
	IsBot  bool   `json:"is_bot"`
}

type mentionEvent struct {
	Type     string      `json:"type"`
	User     string      `json:"user"`
	BotID    string      `json:"bot_id"`
	Text     string      `json:"text"`
	Channel  string      `json:"channel"`
	TS       string      `json:"ts"`
	ThreadTS string      `json:"thread_ts"`
	Files    []eventFile `json:"files"`
}

type eventFile struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Mimetype string `json:"mimetype"`
	Filetype string `json:"filetype"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	headers := canonicalHeaders(req.Headers)
	correlationID := headers.Get(correlationHeader)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	ctx = logger.With(ctx, slog.String("correlation_id", correlationID))
	log := logger.FromContext(ctx)

	body := req.Body
	if req.IsBase64Encoded {
		raw, err := base64.StdEncoding.DecodeString(body)
		if err != nil {
			return errorJSON(http.StatusBadRequest, "Bad Request", correlationID), nil
		}
		body = string(raw)
	}

	if h.signingSecret != "" {
		if err := verify(headers, body, h.signingSecret); err != nil {
			log.Warn("slack signature rejected", slog.Any("error", err))
			return errorJSON(http.StatusUnauthorized, "Unauthorized", correlationID), nil
		}
	}

	var env envelope
	if err := json.Unmarshal([]byte(body), &env); err != nil {
		log.Warn("malformed request body", slog.Any("error", err))
		return errorJSON(http.StatusBadRequest, "Bad Request", correlationID), nil
	}

	switch env.Type {
	case "url_verification":
		return events.APIGatewayProxyResponse{
			StatusCode: http.StatusOK,
			Headers:    map[string]string{"Content-Type": "text/plain", correlationHeader: correlationID},
			Body:       env.Challenge,
		}, nil
	case "event_callback":
	default:
		return okJSON("OK", correlationID), nil
	}

	var inner mentionEvent
	if err := json.Unmarshal(env.Event, &inner); err != nil {
		log.Warn("malformed inner event", slog.Any("error", err))
		return errorJSON(http.StatusBadRequest, "Bad Request", correlationID), nil
	}
	if inner.Type != "app_mention" || inner.BotID != "" {
		return okJSON("OK", correlationID), nil
	}
	if env.EventID == "" || inner.Channel == "" || inner.TS == "" {
		log.Warn("app_mention missing identifiers", slog.String("event_id", env.EventID))
		return errorJSON(http.StatusBadRequest, "Bad Request", correlationID), nil
	}
	if retry := headers.Get("X-Slack-Retry-Num"); retry != "" {
		log.Info("slack redelivery", slog.String("retry_num", retry), slog.String("reason", headers.Get("X-Slack-Retry-Reason")))
	}

	outcome, err := h.uc.Handle(ctx, h.toMention(ctx, env, inner))
	if err != nil {
		return errorJSON(http.StatusInternalServerError, "Internal Server Error", correlationID), nil
	}
	if outcome == usecase.OutcomeDuplicate {
		return okJSON("Duplicate event ignored", correlationID), nil
	}
	return okJSON("OK", correlationID), nil
}

func (h *Handler) toMention(ctx context.Context, env envelope, inner mentionEvent) domain.MentionEvent {
	thread := inner.ThreadTS
	if thread == "" {
		thread = inner.TS
	}
	files := make([]domain.FileRef, 0, len(inner.Files))
	for _, f := range inner.Files {
		files = append(files, domain.FileRef{ID: f.ID, Name: f.Name, Mimetype: f.Mimetype, Filetype: f.Filetype})
	}
	return domain.MentionEvent{
		EventID:   env.EventID,
		UserID:    inner.User,
		ChannelID: inner.Channel,
		ThreadID:  thread,
		MessageTS: inner.TS,
		Text:      slackapi.StripBotMention(inner.Text, h.botUserID(ctx, env)),
		Files:     files,
	}
}

// botUserID prefers the bot authorization in the envelope and falls back to
// auth.test. An empty result strips only leading mention tags.
func (h *Handler) botUserID(ctx context.Context, env envelope) string {
	for _, a := range env.Authorizations {
		if a.IsBot && a.UserID != "" {
			return a.UserID
		}
	}
	if h.bot == nil {
		return ""
	}
	id, err := h.bot.BotUserID(ctx)
	if err != nil {
		logger.FromContext(ctx).Warn("bot user id unavailable", slog.Any("error", err))
		return ""
	}
	return id
}

func verify(headers http.Header, body, secret string) error {
	sv, err := slack.NewSecretsVerifier(headers, secret)
	if err != nil {
		return err
	}
	if _, err := sv.Write([]byte(body)); err != nil {
		return err
	}
	return sv.Ensure()
}

func canonicalHeaders(in map[string]string) http.Header {
	out := make(http.Header, len(in))
	for k, v := range in {
		out.Set(k, v)
	}
	return out
}

func okJSON(message, correlationID string) events.APIGatewayProxyResponse {
	return jsonResponse(http.StatusOK, messageResponse{Message: message}, correlationID)
}

func errorJSON(status int, message, correlationID string) events.APIGatewayProxyResponse {
	return jsonResponse(status, errorResponse{Error: message}, correlationID)
}

func jsonResponse(status int, v any, correlationID string) events.APIGatewayProxyResponse {
	b, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		b = []byte(`{"error":"Internal Server Error"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":    "application/json",
			correlationHeader: correlationID,
		},
		Body: strings.TrimSpace(string(b)),
	}
}
