// Package httpapi serves the profit dashboard REST API: aggregated series,
// source health, exports, trade summaries, and remembered date ranges.
package httpapi

import (
	"time"

	"pnlboard/internal/domain"
	"pnlboard/internal/profit"
)

// ProfitResponse is the body of GET /api/v1/profit.
type ProfitResponse struct {
	Source        domain.Source   `json:"source"`
	Mode          domain.Mode     `json:"mode"`
	SourceOffset  string          `json:"sourceOffset"`
	DisplayOffset string          `json:"displayOffset"`
	From          string          `json:"from,omitempty"`
	To            string          `json:"to,omitempty"`
	Range         *profit.Range   `json:"range,omitempty"`
	Series        []domain.Bucket `json:"series"`
	Totals        domain.Totals   `json:"totals"`
	Selected      int             `json:"selected"`
	Dropped       int             `json:"dropped"`
	Records       int             `json:"records"`
	LoadedAt      *time.Time      `json:"loadedAt,omitempty"`
	Warning       string          `json:"warning,omitempty"`
}

// SourceStatus describes one source in the health report.
type SourceStatus struct {
	Source   domain.Source `json:"source"`
	Loaded   bool          `json:"loaded"`
	Loading  bool          `json:"loading"`
	Records  int           `json:"records"`
	LoadedAt *time.Time    `json:"loadedAt,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// HealthResponse is the body of GET /api/v1/health.
type HealthResponse struct {
	Status  string         `json:"status"`
	Sources []SourceStatus `json:"sources"`
}

// ConfigResponse is the body of GET /api/v1/config.
type ConfigResponse struct {
	Symbol         string   `json:"symbol"`
	SourceOffset   string   `json:"sourceOffset"`
	DisplayOffsets []string `json:"displayOffsets"`
	DefaultDisplay string   `json:"defaultDisplay"`
	DefaultFrom    string   `json:"defaultFrom"`
	DefaultTo      string   `json:"defaultTo"`
	Sources        []string `json:"sources"`
}

// ReloadResponse is the body of POST /api/v1/profit/reload.
type ReloadResponse struct {
	OK      bool           `json:"ok"`
	Sources []SourceStatus `json:"sources"`
}

// RangeRequest is the body of POST /api/v1/ranges.
type RangeRequest struct {
	From string `json:"from" validate:"required,datetime=2006-01-02"`
	To   string `json:"to" validate:"required,datetime=2006-01-02"`
}

// RangesResponse lists remembered ranges, most recent first.
type RangesResponse struct {
	Ranges []domain.RangeEntry `json:"ranges"`
}

// ErrorResponse is returned for every non-2xx status.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}
