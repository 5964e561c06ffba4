// Package export snapshots trades to Parquet and rolls them up into the
// hourly NDJSON fixtures the profit feed reads.
package export

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"pnlboard/internal/domain"
	"pnlboard/internal/feed"
	"pnlboard/internal/store"
)

// ErrBadRequest wraps request validation failures.
var ErrBadRequest = errors.New("bad export request")

// Request selects the trades to export. Start and End accept
// "YYYY-MM-DD HH:MM:SS" or a bare "YYYY-MM-DD" (start of day for Start, end
// of day for End).
type Request struct {
	Symbol string        `json:"symbol" validate:"required,alphanum,max=32"`
	Start  string        `json:"start" validate:"required"`
	End    string        `json:"end" validate:"required"`
	By     domain.Source `json:"by" validate:"omitempty,oneof=open close"`
}

// Result describes a finished export.
type Result struct {
	OK       bool   `json:"ok"`
	JSON     string `json:"json"`
	Parquet  string `json:"parquet"`
	Rows     int    `json:"rows"`
	Trades   int    `json:"trades"`
	Source   string `json:"source"`
	Duration string `json:"duration"`
}

// Exporter runs trade exports.
type Exporter struct {
	trades    store.TradeStore
	orders    *store.ParquetStore
	publicDir string
	log       *slog.Logger

	// Exports sharing a source share the snapshot file; one runs at a time.
	locks map[domain.Source]*sync.Mutex
}

// New creates an Exporter writing NDJSON into publicDir.
func New(trades store.TradeStore, orders *store.ParquetStore, publicDir string, log *slog.Logger) *Exporter {
	locks := make(map[domain.Source]*sync.Mutex, len(domain.Sources))
	for _, src := range domain.Sources {
		locks[src] = &sync.Mutex{}
	}
	return &Exporter{trades: trades, orders: orders, publicDir: publicDir, log: log, locks: locks}
}

// Run queries trades, snapshots them to Parquet, reads the snapshot back and
// writes one NDJSON line per (date, hour) with the summed profit.
func (e *Exporter) Run(ctx context.Context, req Request) (Result, error) {
	start := time.Now()
	by := req.By
	if by == "" {
		by = domain.SourceOpen
	}
	from, to, err := parseBounds(req.Start, req.End)
	if err != nil {
		return Result{}, err
	}

	mu, ok := e.locks[by]
	if !ok {
		return Result{}, fmt.Errorf("%w: unknown source %q", ErrBadRequest, by)
	}
	mu.Lock()
	defer mu.Unlock()

	trades, err := e.trades.QueryTrades(ctx, store.TradeQuery{Symbol: req.Symbol, By: by, Start: from, End: to})
	if err != nil {
		return Result{}, err
	}

	parquetPath, err := e.orders.WriteOrders(ctx, by, trades)
	if err != nil {
		return Result{}, err
	}
	snapshot, err := e.orders.ReadOrders(ctx, by)
	if err != nil {
		return Result{}, err
	}

	records := HourlyProfit(snapshot, by)
	jsonPath := filepath.Join(e.publicDir, feed.FixtureName(req.Symbol, by))
	if err := WriteNDJSON(jsonPath, records); err != nil {
		return Result{}, err
	}

	res := Result{
		OK:       true,
		JSON:     jsonPath,
		Parquet:  parquetPath,
		Rows:     len(records),
		Trades:   len(trades),
		Source:   string(by),
		Duration: time.Since(start).Round(time.Millisecond).String(),
	}
	e.log.Info("export finished",
		"symbol", req.Symbol, "by", by, "trades", res.Trades, "rows", res.Rows, "json", jsonPath)
	return res, nil
}

func parseBounds(startStr, endStr string) (time.Time, time.Time, error) {
	from, err := parseBound(startStr, false)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: start: %v", ErrBadRequest, err)
	}
	to, err := parseBound(endStr, true)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: end: %v", ErrBadRequest, err)
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: end before start", ErrBadRequest)
	}
	return from, to, nil
}

func parseBound(s string, endOfDay bool) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(store.TimeLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q is not a date or datetime", s)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Second)
	}
	return t, nil
}

// HourlyProfit sums profit per (date, hour) of the open or close time,
// ordered by date then hour.
func HourlyProfit(trades []domain.Trade, by domain.Source) []domain.ProfitRecord {
	type key struct {
		date string
		hour int
	}
	sums := make(map[key]float64)
	for _, t := range trades {
		ts := t.OpenTime
		if by == domain.SourceClose {
			ts = t.CloseTime
		}
		sums[key{ts.Format("2006-01-02"), ts.Hour()}] += t.Profit
	}

	out := make([]domain.ProfitRecord, 0, len(sums))
	for k, v := range sums {
		out = append(out, domain.ProfitRecord{Date: k.date, Hour: k.hour, Profit: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].Hour < out[j].Hour
	})
	return out
}

// WriteNDJSON atomically replaces path with one JSON object per line.
func WriteNDJSON(path string, records []domain.ProfitRecord) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	enc := json.NewEncoder(w)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			tmp.Close()
			return fmt.Errorf("encoding %s: %w", path, err)
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
