// Package store defines storage interfaces for trades, accounts, order
// snapshots, and remembered date ranges, with SQLite and Parquet backends.
package store

import (
	"context"
	"errors"
	"time"

	"pnlboard/internal/domain"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// TimeLayout is the naive wall-clock format trades are stored in.
const TimeLayout = "2006-01-02 15:04:05"

// TradeQuery selects trades of one symbol whose open (SourceOpen) or close
// (SourceClose) time lies in [Start, End].
type TradeQuery struct {
	Symbol string
	By     domain.Source
	Start  time.Time
	End    time.Time
}

// TradeStore persists and queries executed trades.
type TradeStore interface {
	// InsertTrades upserts trades by ticket.
	InsertTrades(ctx context.Context, trades []domain.Trade) error

	// QueryTrades returns non-test trades matching q, ordered by ticket.
	QueryTrades(ctx context.Context, q TradeQuery) ([]domain.Trade, error)
}

// AccountStore persists trading accounts.
type AccountStore interface {
	// UpsertAccounts inserts or replaces accounts by login.
	UpsertAccounts(ctx context.Context, accounts []domain.Account) error
}

// SummaryQuery scopes the trade summary to one symbol and day. Bounds are
// naive wall-clock midnights.
type SummaryQuery struct {
	Symbol         string
	YesterdayStart time.Time
	TodayStart     time.Time
	TomorrowStart  time.Time
}

// SummaryStore aggregates trades for the daily summary.
type SummaryStore interface {
	// SummaryRows groups holding, closed-today and closed-yesterday trades
	// by settlement and direction.
	SummaryRows(ctx context.Context, q SummaryQuery) ([]domain.SummaryRow, error)
}

// RangeStore remembers recently used date windows.
type RangeStore interface {
	// SaveRange records a window, moving it to the front if already known.
	SaveRange(ctx context.Context, from, to string) error

	// ListRanges returns remembered windows, most recent first.
	ListRanges(ctx context.Context) ([]domain.RangeEntry, error)

	// DeleteRange forgets one window. It returns ErrNotFound if unknown.
	DeleteRange(ctx context.Context, from, to string) error

	// ClearRanges forgets every window.
	ClearRanges(ctx context.Context) error
}
