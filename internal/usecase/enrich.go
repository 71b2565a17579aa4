package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"golang.org/x/sync/errgroup"

	"slack-ai-bridge/internal/domain"
	"slack-ai-bridge/internal/logger"
)

const (
	defaultMaxPageChars    = 8000
	defaultFileConcurrency = 4
	pageCharsHeadroom      = 100
)

// slackURLRe matches Slack-formatted links: <https://x> or <https://x|label>.
var slackURLRe = regexp.MustCompile(`<(https?://[^|>]+)(?:\|[^>]+)?>`)

// extractURL returns the first linked URL in text and the full <...> token.
func extractURL(text string) (url, token string, ok bool) {
	m := slackURLRe.FindStringSubmatch(text)
	if m == nil {
		return "", "", false
	}
	return m[1], m[0], true
}

type enricher struct {
	files           AttachmentReader
	pages           PageFetcher
	maxPageChars    int
	fileConcurrency int
}

// attachments reads every text attachment concurrently and renders them as
// one block in the original order. Unreadable files are logged and skipped.
func (e *enricher) attachments(ctx context.Context, files []domain.FileRef) string {
	if e.files == nil || len(files) == 0 {
		return ""
	}
	log := logger.FromContext(ctx)
	contents := make([]string, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.fileConcurrency)
	for i, f := range files {
		g.Go(func() error {
			text, ok, err := e.files.ReadFile(gctx, f)
			if err != nil {
				log.Warn("attachment unreadable",
					slog.String("kind", string(domain.ErrEnrichmentFailed)),
					slog.String("file_id", f.ID),
					slog.Any("error", err))
				return nil
			}
			if ok && text != "" {
				contents[i] = fmt.Sprintf("File name: %s\nContent:\n%s", f.Name, text)
			}
			return nil
		})
	}
	_ = g.Wait()

	var parts []string
	for _, c := range contents {
		if c != "" {
			parts = append(parts, c)
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return "\n\nAttached file contents:\n" + strings.Join(parts, "\n---\n")
}

// page fetches the first linked URL in text. A message that is nothing but
// the link asks the model for a summary when summarize is set. Fetch
// failures become a system notice rather than an error.
func (e *enricher) page(ctx context.Context, text string, summarize bool) string {
	if e.pages == nil {
		return ""
	}
	url, token, ok := extractURL(text)
	if !ok {
		return ""
	}
	page, err := e.pages.Fetch(ctx, url)
	if err != nil {
		logger.FromContext(ctx).Warn("url content unavailable",
			slog.String("kind", string(domain.ErrEnrichmentFailed)),
			slog.String("url", url),
			slog.Any("error", err))
		return fmt.Sprintf("\n\n[System message] Tried to fetch the URL content but failed.\nURL: %s\nError: %s\n", url, err)
	}
	body := truncateRunes(page.Body, e.maxPageChars-len([]rune(page.Title))-pageCharsHeadroom)

	if summarize && strings.TrimSpace(text) == token {
		return "\n\nThe content of the web page at the URL above is shown below. Please summarize it concisely, " +
			"and begin the summary with the line \"Here is a summary of the web page:\".\n\n" +
			fmt.Sprintf("Title: %s\nBody: %s\n", page.Title, body)
	}
	return fmt.Sprintf("\n\nURL content:\n\nTitle: %s\nBody: %s", page.Title, body)
}

func truncateRunes(s string, n int) string {
	if n < 0 {
		n = 0
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
