package texts

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/go-shiori/go-readability"
)

// maxBodySize caps fetched HTML to protect against oversized pages.
const maxBodySize = 10 * 1024 * 1024

// URLSource fetches article pages and extracts their readable body.
// Each URL is served once; the pool is exhausted afterwards.
type URLSource struct {
	URLs   []string
	Client *http.Client
	// UserAgent mimics a browser; some news sites block default Go clients.
	UserAgent string

	next int
}

// NewURLSource creates a source over the given article URLs.
func NewURLSource(urls []string) *URLSource {
	return &URLSource{
		URLs:      urls,
		Client:    &http.Client{Timeout: 30 * time.Second},
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	}
}

// Next fetches the next unread URL and extracts the article text.
func (u *URLSource) Next(ctx context.Context) (Selection, error) {
	if u.next >= len(u.URLs) {
		return Selection{}, fmt.Errorf("url pool exhausted: %w", ErrNoSourceAvailable)
	}
	target := u.URLs[u.next]
	u.next++

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Selection{}, fmt.Errorf("build request for %s: %w", target, err)
	}
	req.Header.Set("User-Agent", u.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "de-DE,de;q=0.9,en;q=0.8")

	client := u.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return Selection{}, fmt.Errorf("fetch %s: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Selection{}, fmt.Errorf("fetch %s: status %d", target, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return Selection{}, fmt.Errorf("read %s: %w", target, err)
	}

	parsed, _ := url.Parse(target)
	article, err := readability.FromReader(bytes.NewReader(body), parsed)
	if err != nil {
		return Selection{}, fmt.Errorf("extract article from %s: %w", target, err)
	}
	return Selection{Title: article.Title, Content: article.TextContent}, nil
}
