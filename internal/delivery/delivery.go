package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/time/rate"

	"slack-ai-bridge/internal/domain"
	"slack-ai-bridge/internal/logger"
)

// Poster sends one message into a thread.
type Poster interface {
	PostMessage(ctx context.Context, channelID, threadTS, text string) error
}

// Deliverer converts a model reply to mrkdwn, chunks it and posts the chunks
// in order. Posting is paced by a token bucket.
type Deliverer struct {
	poster  Poster
	limiter *rate.Limiter
	limit   int
}

type Option func(*Deliverer)

// WithChunkLimit overrides DefaultChunkLimit.
func WithChunkLimit(n int) Option {
	return func(d *Deliverer) {
		if n > 0 {
			d.limit = n
		}
	}
}

// WithLimiter replaces the default pacing limiter. A nil limiter disables pacing.
func WithLimiter(l *rate.Limiter) Option {
	return func(d *Deliverer) { d.limiter = l }
}

func New(poster Poster, opts ...Option) (*Deliverer, error) {
	if poster == nil {
		return nil, errors.New("delivery: poster must not be nil")
	}
	d := &Deliverer{
		poster:  poster,
		limiter: rate.NewLimiter(rate.Limit(1), 3),
		limit:   DefaultChunkLimit,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Deliver posts text into the thread. The first failing chunk aborts the rest.
func (d *Deliverer) Deliver(ctx context.Context, channelID, threadTS, text string) error {
	chunks := Split(ToMrkdwn(text), d.limit)
	log := logger.FromContext(ctx)
	for i, chunk := range chunks {
		if d.limiter != nil {
			if err := d.limiter.Wait(ctx); err != nil {
				return domain.NewError(domain.ErrDeliveryFailed, "rate_wait", err)
			}
		}
		if err := d.poster.PostMessage(ctx, channelID, threadTS, chunk); err != nil {
			log.Error("post chunk failed",
				slog.Int("chunk", i+1),
				slog.Int("chunks", len(chunks)),
				slog.Any("error", err),
			)
			return domain.NewError(domain.ErrDeliveryFailed, fmt.Sprintf("post_chunk_%d", i+1), err)
		}
	}
	log.Debug("reply delivered", slog.Int("chunks", len(chunks)))
	return nil
}
