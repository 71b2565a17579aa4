// Package webpage fetches a URL and extracts its readable text.
package webpage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"slack-ai-bridge/internal/domain"
)

const (
	defaultMaxBodyBytes = 2 << 20
	defaultUserAgent    = "slack-ai-bridge/1.0"
	noTitle             = "No title found"
	noBody              = "No body content found"
)

type Fetcher struct {
	httpClient   *http.Client
	maxBodyBytes int64
	userAgent    string
}

type Option func(*Fetcher)

func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) {
		if c != nil {
			f.httpClient = c
		}
	}
}

func WithMaxBodyBytes(n int64) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxBodyBytes = n
		}
	}
}

func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		maxBodyBytes: defaultMaxBodyBytes,
		userAgent:    defaultUserAgent,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch GETs url and returns the page title and whitespace-collapsed body
// text. Script and style content is dropped.
func (f *Fetcher) Fetch(ctx context.Context, url string) (domain.PageContent, error) {
	url = strings.Trim(strings.TrimSpace(url), "<>")
	if url == "" {
		return domain.PageContent{}, errors.New("webpage: url is required")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return domain.PageContent{}, fmt.Errorf("webpage: create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.5")

	res, err := f.httpClient.Do(req)
	if err != nil {
		return domain.PageContent{}, fmt.Errorf("webpage: get %s: %w", url, err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return domain.PageContent{}, fmt.Errorf("webpage: unexpected status %d from %s", res.StatusCode, url)
	}
	doc, err := html.Parse(io.LimitReader(res.Body, f.maxBodyBytes))
	if err != nil {
		return domain.PageContent{}, fmt.Errorf("webpage: parse %s: %w", url, err)
	}
	return Extract(doc), nil
}

// Extract pulls the title and visible body text out of a parsed document.
func Extract(doc *html.Node) domain.PageContent {
	page := domain.PageContent{Title: noTitle, Body: noBody}
	var title, body *html.Node
	for n := range doc.Descendants() {
		if n.Type != html.ElementNode {
			continue
		}
		switch n.DataAtom {
		case atom.Title:
			if title == nil {
				title = n
			}
		case atom.Body:
			if body == nil {
				body = n
			}
		}
	}
	if title != nil {
		if t := collapse(textOf(title)); t != "" {
			page.Title = t
		}
	}
	if body != nil {
		page.Body = collapse(textOf(body))
	}
	return page
}

func textOf(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Noscript, atom.Template:
				return
			}
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
