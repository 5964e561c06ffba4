// Package pnlboard is a Go client for the pnl-server HTTP API.
package pnlboard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client provides a Go SDK for interacting with the pnl-server API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new pnl-server API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status    int
	Message   string
	RequestID string
}

func (e *APIError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("pnl-server: %d %s (request %s)", e.Status, e.Message, e.RequestID)
	}
	return fmt.Sprintf("pnl-server: %d %s", e.Status, e.Message)
}

// ProfitQuery selects a profit view. Empty fields use the server defaults.
type ProfitQuery struct {
	Source   string // "open" or "close"
	Mode     string // "timeline" or "hourOfDay"
	TZ       string // display offset, e.g. "+8"
	From, To string // YYYY-MM-DD
	Remember bool
}

func (q ProfitQuery) values() url.Values {
	v := url.Values{}
	set := func(k, val string) {
		if val != "" {
			v.Set(k, val)
		}
	}
	set("source", q.Source)
	set("mode", q.Mode)
	set("tz", q.TZ)
	set("from", q.From)
	set("to", q.To)
	if q.Remember {
		v.Set("remember", "1")
	}
	return v
}

// Bucket is one labelled profit sum.
type Bucket struct {
	Label  string  `json:"label"`
	Profit float64 `json:"profit"`
}

// Totals summarises a selection.
type Totals struct {
	Gain float64 `json:"gain"`
	Loss float64 `json:"loss"`
	Net  float64 `json:"net"`
}

// Profit is an aggregated profit view.
type Profit struct {
	Source        string     `json:"source"`
	Mode          string     `json:"mode"`
	SourceOffset  string     `json:"sourceOffset"`
	DisplayOffset string     `json:"displayOffset"`
	From          string     `json:"from"`
	To            string     `json:"to"`
	Series        []Bucket   `json:"series"`
	Totals        Totals     `json:"totals"`
	Selected      int        `json:"selected"`
	Dropped       int        `json:"dropped"`
	Records       int        `json:"records"`
	LoadedAt      *time.Time `json:"loadedAt"`
	Warning       string     `json:"warning"`
}

// SourceStatus is the load state of one source.
type SourceStatus struct {
	Source   string     `json:"source"`
	Loaded   bool       `json:"loaded"`
	Loading  bool       `json:"loading"`
	Records  int        `json:"records"`
	LoadedAt *time.Time `json:"loadedAt"`
	Error    string     `json:"error"`
}

// Health is the server health report.
type Health struct {
	Status  string         `json:"status"`
	Sources []SourceStatus `json:"sources"`
}

// Range is a remembered date window.
type Range struct {
	From    string    `json:"from"`
	To      string    `json:"to"`
	SavedAt time.Time `json:"saved_at"`
}

// Profit fetches an aggregated profit view.
func (c *Client) Profit(ctx context.Context, q ProfitQuery) (*Profit, error) {
	var out Profit
	if err := c.do(ctx, http.MethodGet, "/api/v1/profit?"+q.values().Encode(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health retrieves the server health report.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var out Health
	if err := c.do(ctx, http.MethodGet, "/api/v1/health", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Reload asks the server to reload one source, or all when source is "".
func (c *Client) Reload(ctx context.Context, source string) error {
	path := "/api/v1/profit/reload"
	if source != "" {
		path += "?source=" + url.QueryEscape(source)
	}
	return c.do(ctx, http.MethodPost, path, nil, nil)
}

// Ranges lists remembered ranges, most recent first.
func (c *Client) Ranges(ctx context.Context) ([]Range, error) {
	var out struct {
		Ranges []Range `json:"ranges"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/ranges", nil, &out); err != nil {
		return nil, err
	}
	return out.Ranges, nil
}

// SaveRange remembers a date window.
func (c *Client) SaveRange(ctx context.Context, from, to string) error {
	return c.do(ctx, http.MethodPost, "/api/v1/ranges", map[string]string{"from": from, "to": to}, nil)
}

// DeleteRange forgets a date window.
func (c *Client) DeleteRange(ctx context.Context, from, to string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/ranges/"+url.PathEscape(from)+"/"+url.PathEscape(to), nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode, RequestID: resp.Header.Get("X-Request-ID")}
		var e struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&e) == nil && e.Error != "" {
			apiErr.Message = e.Error
		} else {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s %s: %w", method, path, err)
	}
	return nil
}
