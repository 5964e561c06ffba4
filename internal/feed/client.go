package feed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"pnlboard/internal/domain"
	"pnlboard/internal/profit"
	"pnlboard/internal/util"
)

// StatusError reports a non-2xx fetch response.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetching %s: status %d", e.URL, e.Code)
}

var _ Fetcher = (*Client)(nil)

// Client fetches NDJSON sources over HTTP.
type Client struct {
	baseURL    string
	paths      Paths
	httpClient *http.Client
	attempts   int
	baseDelay  time.Duration
	log        *slog.Logger
}

// NewClient creates a Client resolving paths against baseURL. Server errors
// and transport failures are retried up to attempts times.
func NewClient(baseURL string, paths Paths, timeout time.Duration, attempts int, log *slog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		paths:      paths,
		httpClient: &http.Client{Timeout: timeout},
		attempts:   attempts,
		baseDelay:  200 * time.Millisecond,
		log:        log,
	}
}

// Fetch downloads and parses the NDJSON document for src.
func (c *Client) Fetch(ctx context.Context, src domain.Source) ([]domain.ProfitRecord, error) {
	path, err := c.paths.lookup(src)
	if err != nil {
		return nil, err
	}
	url := c.baseURL + "/" + strings.TrimLeft(path, "/")

	var recs []domain.ProfitRecord
	err = util.Retry(ctx, c.attempts, c.baseDelay, func(ctx context.Context) error {
		var fetchErr error
		recs, fetchErr = c.fetchOnce(ctx, url)
		if fetchErr != nil {
			c.log.Warn("feed fetch failed", "source", src, "url", url, "error", fetchErr)
		}
		return fetchErr
	})
	if err != nil {
		return nil, err
	}
	return recs, nil
}

func (c *Client) fetchOnce(ctx context.Context, url string) ([]domain.ProfitRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, util.Permanent(err)
	}
	req.Header.Set("Accept", "application/x-ndjson, application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		statusErr := &StatusError{URL: url, Code: resp.StatusCode}
		if resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, util.Permanent(statusErr)
		}
		return nil, statusErr
	}

	recs, stats, err := profit.Load(resp.Body)
	if err != nil {
		return nil, err
	}
	if stats.Skipped > 0 {
		c.log.Debug("skipped malformed lines", "url", url, "skipped", stats.Skipped, "kept", stats.Kept)
	}
	return recs, nil
}
