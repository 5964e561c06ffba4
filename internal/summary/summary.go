// Package summary reports a symbol's positions for one trading day: still
// holding, closed today and closed yesterday, split by settlement and side.
package summary

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"pnlboard/internal/domain"
	"pnlboard/internal/store"
	"pnlboard/internal/tz"
)

// Request is the body of a summary query.
type Request struct {
	Date   string `json:"date" validate:"required,datetime=2006-01-02"`
	Symbol string `json:"symbol" validate:"required,alphanum,max=32"`
}

// Response wraps the summary rows.
type Response struct {
	OK     bool                `json:"ok"`
	Date   string              `json:"date"`
	Symbol string              `json:"symbol"`
	Items  []domain.SummaryRow `json:"items"`
	Totals map[string]float64  `json:"totals"`
}

// Service computes trade summaries.
type Service struct {
	store store.SummaryStore
	log   *slog.Logger
}

// New creates a Service.
func New(s store.SummaryStore, log *slog.Logger) *Service {
	return &Service{store: s, log: log}
}

var groupOrder = map[domain.SummaryGroup]int{
	domain.GroupHolding:         0,
	domain.GroupClosedToday:     1,
	domain.GroupClosedYesterday: 2,
}

// Query summarises symbol on day. Rows come back holding first, then closed
// today, then closed yesterday.
func (s *Service) Query(ctx context.Context, symbol string, day tz.Date) (Response, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	rows, err := s.store.SummaryRows(ctx, store.SummaryQuery{
		Symbol:         symbol,
		YesterdayStart: day.AddDays(-1).Midnight(),
		TodayStart:     day.Midnight(),
		TomorrowStart:  day.AddDays(1).Midnight(),
	})
	if err != nil {
		return Response{}, err
	}
	if rows == nil {
		rows = []domain.SummaryRow{}
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return groupOrder[rows[i].Group] < groupOrder[rows[j].Group]
	})

	totals := make(map[string]float64, len(groupOrder))
	for _, r := range rows {
		totals[string(r.Group)] += r.TotalProfit
	}

	s.log.Debug("trade summary", "symbol", symbol, "date", day.String(), "rows", len(rows))
	return Response{OK: true, Date: day.String(), Symbol: symbol, Items: rows, Totals: totals}, nil
}
