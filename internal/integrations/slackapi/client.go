// Package slackapi adapts the Slack Web API to the bridge: thread history,
// attached file text, bot identity and threaded replies.
package slackapi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"slices"
	"strings"
	"sync"

	"github.com/cenkalti/backoff/v5"
	"github.com/slack-go/slack"

	"slack-ai-bridge/internal/domain"
)

const (
	historyPageSize     = 200
	defaultMaxFileBytes = 1 << 20
	postMaxAttempts     = 3
)

// textFiletypes are Slack filetypes read as text regardless of mimetype.
var textFiletypes = []string{
	"text", "python", "javascript", "java", "c", "cpp", "css", "html",
	"xml", "json", "yaml", "markdown", "plain_text",
}

var leadingMentionRe = regexp.MustCompile(`^(\s*<@[^>]+>)+\s*`)

// webAPI is the subset of *slack.Client used here.
type webAPI interface {
	AuthTestContext(ctx context.Context) (*slack.AuthTestResponse, error)
	GetConversationRepliesContext(ctx context.Context, params *slack.GetConversationRepliesParameters) ([]slack.Message, bool, string, error)
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	GetFileInfoContext(ctx context.Context, fileID string, count, page int) (*slack.File, []slack.Comment, *slack.Paging, error)
	GetFileContext(ctx context.Context, downloadURL string, writer io.Writer) error
}

type Client struct {
	api          webAPI
	maxFileBytes int

	mu        sync.Mutex
	botUserID string
}

type Option func(*Client)

// WithMaxFileBytes caps how much of an attached file is kept.
func WithMaxFileBytes(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxFileBytes = n
		}
	}
}

func New(api webAPI, opts ...Option) (*Client, error) {
	if api == nil {
		return nil, errors.New("slackapi: api must not be nil")
	}
	c := &Client{api: api, maxFileBytes: defaultMaxFileBytes}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

var _ webAPI = (*slack.Client)(nil)

// BotUserID returns the bot's own user id via auth.test. Only a successful
// lookup is cached.
func (c *Client) BotUserID(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.botUserID != "" {
		return c.botUserID, nil
	}
	resp, err := c.api.AuthTestContext(ctx)
	if err != nil {
		return "", fmt.Errorf("slackapi: auth.test: %w", err)
	}
	if resp == nil || strings.TrimSpace(resp.UserID) == "" {
		return "", errors.New("slackapi: auth.test returned no user id")
	}
	c.botUserID = strings.TrimSpace(resp.UserID)
	return c.botUserID, nil
}

// History returns every message of the thread rooted at threadTS in
// chronological order. Messages posted by a bot are tagged OriginBot.
func (c *Client) History(ctx context.Context, channelID, threadTS string) ([]domain.ConversationTurn, error) {
	var (
		turns  []domain.ConversationTurn
		cursor string
	)
	for {
		msgs, hasMore, next, err := c.api.GetConversationRepliesContext(ctx, &slack.GetConversationRepliesParameters{
			ChannelID: channelID,
			Timestamp: threadTS,
			Cursor:    cursor,
			Limit:     historyPageSize,
		})
		if err != nil {
			return nil, fmt.Errorf("slackapi: conversations.replies: %w", err)
		}
		for _, m := range msgs {
			turns = append(turns, toTurn(m))
		}
		if !hasMore || next == "" {
			break
		}
		cursor = next
	}
	return turns, nil
}

func toTurn(m slack.Message) domain.ConversationTurn {
	origin := domain.OriginHuman
	if m.BotID != "" || m.SubType == slack.MsgSubTypeBotMessage {
		origin = domain.OriginBot
	}
	turn := domain.ConversationTurn{
		Origin:    origin,
		Text:      m.Text,
		Timestamp: m.Timestamp,
	}
	for _, f := range m.Files {
		turn.Files = append(turn.Files, domain.FileRef{
			ID:       f.ID,
			Name:     f.Name,
			Mimetype: f.Mimetype,
			Filetype: f.Filetype,
		})
	}
	return turn
}

// PostMessage sends text into the thread. Rate-limit responses are retried
// after the delay Slack asks for.
func (c *Client) PostMessage(ctx context.Context, channelID, threadTS, text string) error {
	op := func() (struct{}, error) {
		_, _, err := c.api.PostMessageContext(ctx, channelID,
			slack.MsgOptionText(text, false),
			slack.MsgOptionTS(threadTS),
		)
		if err == nil {
			return struct{}{}, nil
		}
		var rl *slack.RateLimitedError
		if errors.As(err, &rl) {
			return struct{}{}, backoff.RetryAfter(int(rl.RetryAfter.Seconds()))
		}
		return struct{}{}, backoff.Permanent(err)
	}
	if _, err := backoff.Retry(ctx, op, backoff.WithMaxTries(postMaxAttempts)); err != nil {
		return fmt.Errorf("slackapi: chat.postMessage: %w", err)
	}
	return nil
}

// IsTextFile reports whether an attachment should be read as text.
func IsTextFile(f domain.FileRef) bool {
	return strings.HasPrefix(f.Mimetype, "text/") || slices.Contains(textFiletypes, f.Filetype)
}

// ReadFile downloads the attachment and returns its text. Non-text files
// return ok=false without contacting Slack.
func (c *Client) ReadFile(ctx context.Context, f domain.FileRef) (text string, ok bool, err error) {
	if !IsTextFile(f) {
		return "", false, nil
	}
	info, _, _, err := c.api.GetFileInfoContext(ctx, f.ID, 0, 0)
	if err != nil {
		return "", false, fmt.Errorf("slackapi: files.info %s: %w", f.ID, err)
	}
	url := info.URLPrivateDownload
	if url == "" {
		url = info.URLPrivate
	}
	if url == "" {
		return "", false, fmt.Errorf("slackapi: file %s has no private url", f.ID)
	}

	buf := &cappedBuffer{max: c.maxFileBytes}
	if err := c.api.GetFileContext(ctx, url, buf); err != nil {
		return "", false, fmt.Errorf("slackapi: download %s: %w", f.ID, err)
	}
	return buf.String(), true, nil
}

// cappedBuffer keeps the first max bytes and discards the rest.
type cappedBuffer struct {
	bytes.Buffer
	max int
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	if room := b.max - b.Len(); room > 0 {
		if len(p) > room {
			b.Buffer.Write(p[:room])
		} else {
			b.Buffer.Write(p)
		}
	}
	return len(p), nil
}

// StripBotMention removes every <@botUserID> tag from text. Without a bot id
// only leading mention tags are removed.
func StripBotMention(text, botUserID string) string {
	if botUserID == "" {
		return strings.TrimSpace(leadingMentionRe.ReplaceAllString(text, ""))
	}
	re := regexp.MustCompile(`<@` + regexp.QuoteMeta(botUserID) + `(\|[^>]*)?>`)
	return strings.TrimSpace(re.ReplaceAllString(text, ""))
}
