// Package fetch retrieves remote resources referenced by imported posts.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/starford/hearth/internal/apperr"
)

// Fetcher retrieves the body of a remote URL. Implementations classify
// failures: a missing resource wraps apperr.ErrNotFound, a retryable failure
// wraps apperr.ErrTransient.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Client is the default HTTP fetcher. An optional session cookie is attached
// to every request so logged-in-only resources resolve.
type Client struct {
	http   *http.Client
	cookie string
}

var _ Fetcher = (*Client)(nil)

// NewClient creates a fetcher. cookie may be empty.
func NewClient(cookie string) *Client {
	return &Client{
		http:   &http.Client{Timeout: 30 * time.Second},
		cookie: cookie,
	}
}

func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch: build request for %s: %w", url, err)
	}
	if c.cookie != "" {
		req.Header.Set("Cookie", c.cookie)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("fetch: %s: %v: %w", url, err, apperr.ErrTransient)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return nil, fmt.Errorf("fetch: %s: status %d: %w", url, resp.StatusCode, apperr.ErrNotFound)
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("fetch: %s: status %d: %w", url, resp.StatusCode, apperr.ErrTransient)
	default:
		return nil, fmt.Errorf("fetch: %s: unexpected status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fetch: read %s: %w", url, apperr.ErrTransient)
	}
	return body, nil
}
