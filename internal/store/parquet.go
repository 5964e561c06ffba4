package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/parquet-go/parquet-go"

	"pnlboard/internal/domain"
)

// ParquetStore keeps order snapshots as Parquet files on disk.
type ParquetStore struct {
	DataDir string
}

// NewParquetStore creates a new ParquetStore rooted at the given data directory.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir}
}

// ---------------------------------------------------------------------------
// Parquet record types (on-disk schema)
// ---------------------------------------------------------------------------

// OrderRecord is the Parquet schema for an exported trade. Times are naive
// wall clock encoded as Unix ms.
type OrderRecord struct {
	Ticket     int64   `parquet:"ticket"`
	Login      int64   `parquet:"login"`
	Symbol     string  `parquet:"symbol"`
	Cmd        int32   `parquet:"cmd"`
	Volume     int64   `parquet:"volume"`
	OpenTime   int64   `parquet:"open_time,timestamp(millisecond)"`
	OpenPrice  float64 `parquet:"open_price"`
	CloseTime  int64   `parquet:"close_time,timestamp(millisecond)"`
	ClosePrice float64 `parquet:"close_price"`
	Swaps      float64 `parquet:"swaps"`
	Profit     float64 `parquet:"profit"`
}

// ---------------------------------------------------------------------------
// Orders
// ---------------------------------------------------------------------------

// OrdersPath returns the snapshot file for a source:
//
//	<DataDir>/orders.parquet        (open time)
//	<DataDir>/orders_close.parquet  (close time)
func (s *ParquetStore) OrdersPath(by domain.Source) string {
	name := "orders.parquet"
	if by == domain.SourceClose {
		name = "orders_close.parquet"
	}
	return filepath.Join(s.DataDir, name)
}

// WriteOrders replaces the snapshot for by with trades, sorted by ticket.
func (s *ParquetStore) WriteOrders(_ context.Context, by domain.Source, trades []domain.Trade) (string, error) {
	records := make([]OrderRecord, 0, len(trades))
	for _, t := range trades {
		records = append(records, OrderRecord{
			Ticket:     t.Ticket,
			Login:      t.Login,
			Symbol:     t.Symbol,
			Cmd:        int32(t.Cmd),
			Volume:     t.Volume,
			OpenTime:   t.OpenTime.UnixMilli(),
			OpenPrice:  t.OpenPrice,
			CloseTime:  t.CloseTime.UnixMilli(),
			ClosePrice: t.ClosePrice,
			Swaps:      t.Swaps,
			Profit:     t.Profit,
		})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Ticket < records[j].Ticket })

	path := s.OrdersPath(by)
	if err := writeParquetFile(path, records); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	return path, nil
}

// ReadOrders reads the snapshot for by.
func (s *ParquetStore) ReadOrders(_ context.Context, by domain.Source) ([]domain.Trade, error) {
	path := s.OrdersPath(by)
	records, err := readParquetFile[OrderRecord](path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	trades := make([]domain.Trade, 0, len(records))
	for _, r := range records {
		trades = append(trades, domain.Trade{
			Ticket:     r.Ticket,
			Login:      r.Login,
			Symbol:     r.Symbol,
			Cmd:        int(r.Cmd),
			Volume:     r.Volume,
			OpenTime:   time.UnixMilli(r.OpenTime).UTC(),
			OpenPrice:  r.OpenPrice,
			CloseTime:  time.UnixMilli(r.CloseTime).UTC(),
			ClosePrice: r.ClosePrice,
			Swaps:      r.Swaps,
			Profit:     r.Profit,
		})
	}
	return trades, nil
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := parquet.Write(tmp, records); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func readParquetFile[T any](path string) ([]T, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
