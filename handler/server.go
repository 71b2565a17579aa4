package handler

import (
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"slack-ai-bridge/internal/logger"
)

const maxRequestBytes = 1 << 20

// NewServer exposes the handler over plain HTTP for local runs. POST
// /slack/events receives Slack deliveries; GET /healthz reports liveness.
func NewServer(h *Handler, log *slog.Logger) *echo.Echo {
	if log == nil {
		log = slog.Default()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus: true,
		LogURI:    true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Info("request",
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
			)
			return nil
		},
	}))
	e.Use(middleware.BodyLimit("1M"))

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, messageResponse{Message: "OK"})
	})
	e.POST("/slack/events", func(c echo.Context) error {
		req, err := toProxyRequest(c.Request())
		if err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "Bad Request"})
		}
		ctx := logger.WithContext(c.Request().Context(), log)
		resp, err := h.Handle(ctx, req)
		if err != nil {
			return err
		}
		for k, v := range resp.Headers {
			c.Response().Header().Set(k, v)
		}
		return c.Blob(resp.StatusCode, resp.Headers["Content-Type"], []byte(resp.Body))
	})
	return e
}

func toProxyRequest(r *http.Request) (events.APIGatewayProxyRequest, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		return events.APIGatewayProxyRequest{}, err
	}
	headers := make(map[string]string, len(r.Header))
	for k, v := range r.Header {
		headers[k] = strings.Join(v, ",")
	}
	return events.APIGatewayProxyRequest{
		HTTPMethod: r.Method,
		Path:       r.URL.Path,
		Headers:    headers,
		Body:       string(body),
	}, nil
}
