// Package domain defines the core value types shared across pnlboard: hourly
// profit records, aggregation buckets, trades, accounts, and saved ranges.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// ---------------------------------------------------------------------------
// Profit records
// ---------------------------------------------------------------------------

// ProfitRecord is one NDJSON line: the summed profit of a source-local
// calendar date and hour.
type ProfitRecord struct {
	Date   string  `json:"date"`
	Hour   int     `json:"hour"`
	Profit float64 `json:"profit"`
}

// NormalizedRecord is a ProfitRecord pinned to an absolute instant.
type NormalizedRecord struct {
	ProfitRecord
	Instant time.Time
}

// ---------------------------------------------------------------------------
// Aggregation
// ---------------------------------------------------------------------------

// Mode selects how records are bucketed.
type Mode string

const (
	ModeTimeline  Mode = "timeline"
	ModeHourOfDay Mode = "hourOfDay"
)

// ParseMode maps a query value onto a Mode. An empty string selects the
// timeline.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "timeline":
		return ModeTimeline, nil
	case "hourofday", "hour_of_day", "hour-of-day", "hod":
		return ModeHourOfDay, nil
	}
	return "", fmt.Errorf("unknown mode %q", s)
}

// Bucket is one labelled point of an aggregated series.
type Bucket struct {
	Label  string  `json:"label"`
	Profit float64 `json:"profit"`
}

// Totals summarises a record set. Loss is a magnitude; Net = Gain - Loss.
type Totals struct {
	Gain float64 `json:"gain"`
	Loss float64 `json:"loss"`
	Net  float64 `json:"net"`
}

// ---------------------------------------------------------------------------
// Sources
// ---------------------------------------------------------------------------

// Source names a data feed. The open feed buckets trades by open time, the
// close feed by close time.
type Source string

const (
	SourceOpen  Source = "open"
	SourceClose Source = "close"
)

// Sources lists every known source in display order.
var Sources = []Source{SourceOpen, SourceClose}

// ParseSource maps a query value onto a Source. Empty selects SourceOpen.
func ParseSource(s string) (Source, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "open":
		return SourceOpen, nil
	case "close":
		return SourceClose, nil
	}
	return "", fmt.Errorf("unknown source %q", s)
}

// ---------------------------------------------------------------------------
// Trades and accounts
// ---------------------------------------------------------------------------

// Direction is the side of a trade.
type Direction string

const (
	DirectionBuy  Direction = "buy"
	DirectionSell Direction = "sell"
)

// Trade is a single executed order. Times are naive server wall clock; an
// open position carries the zero close time (1970-01-01 00:00:00).
type Trade struct {
	Ticket     int64
	Login      int64
	Symbol     string
	Cmd        int
	Volume     int64 // hundredths of a lot
	OpenTime   time.Time
	OpenPrice  float64
	CloseTime  time.Time
	ClosePrice float64
	Swaps      float64
	Profit     float64
}

// Direction maps the trade command onto buy (0) or sell.
func (t Trade) Direction() Direction {
	if t.Cmd == 0 {
		return DirectionBuy
	}
	return DirectionSell
}

// Holding reports whether the trade is still open.
func (t Trade) Holding() bool {
	return t.CloseTime.Equal(ZeroCloseTime)
}

// ZeroCloseTime marks a position that has not been closed.
var ZeroCloseTime = time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)

// Account is a trading login with its group and display name.
type Account struct {
	Login int64
	Group string
	Name  string
}

// ---------------------------------------------------------------------------
// Trade summary
// ---------------------------------------------------------------------------

// SummaryGroup buckets trades by position state relative to the query day.
type SummaryGroup string

const (
	GroupHolding         SummaryGroup = "holding"
	GroupClosedToday     SummaryGroup = "closed_today"
	GroupClosedYesterday SummaryGroup = "closed_yesterday"
)

// Settlement distinguishes positions that accrued swap from those that did not.
type Settlement string

const (
	SettlementIntraday  Settlement = "intraday"
	SettlementOvernight Settlement = "overnight"
)

// SummaryRow is one aggregated line of the trade summary.
type SummaryRow struct {
	Group       SummaryGroup `json:"group"`
	Settlement  Settlement   `json:"settlement"`
	Direction   Direction    `json:"direction"`
	TotalVolume float64      `json:"total_volume"`
	TotalProfit float64      `json:"total_profit"`
}

// ---------------------------------------------------------------------------
// Range history
// ---------------------------------------------------------------------------

// RangeEntry is a remembered date window.
type RangeEntry struct {
	From    string    `json:"from"`
	To      string    `json:"to"`
	SavedAt time.Time `json:"saved_at"`
}
