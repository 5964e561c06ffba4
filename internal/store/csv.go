package store

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"pnlboard/internal/domain"
)

// ReadTradesCSV parses a trade export with a header row. Recognised columns
// (case-insensitive): ticket, login, symbol, cmd, volume, open_time,
// open_price, close_time, close_price, swaps, profit. An empty close_time
// marks an open position.
func ReadTradesCSV(r io.Reader) ([]domain.Trade, error) {
	rows, cols, err := readCSV(r, "ticket", "login", "symbol", "cmd", "volume", "open_time", "profit")
	if err != nil {
		return nil, err
	}

	trades := make([]domain.Trade, 0, len(rows))
	for i, row := range rows {
		p := rowParser{row: row, cols: cols}
		t := domain.Trade{
			Ticket:     p.integer("ticket"),
			Login:      p.integer("login"),
			Symbol:     p.str("symbol"),
			Cmd:        int(p.integer("cmd")),
			Volume:     p.integer("volume"),
			OpenTime:   p.timestamp("open_time"),
			OpenPrice:  p.number("open_price"),
			CloseTime:  p.timestamp("close_time"),
			ClosePrice: p.number("close_price"),
			Swaps:      p.number("swaps"),
			Profit:     p.number("profit"),
		}
		if p.err != nil {
			return nil, fmt.Errorf("line %d: %w", i+2, p.err)
		}
		if t.CloseTime.IsZero() {
			t.CloseTime = domain.ZeroCloseTime
		}
		trades = append(trades, t)
	}
	return trades, nil
}

// ReadAccountsCSV parses an account export with columns login, group, name.
func ReadAccountsCSV(r io.Reader) ([]domain.Account, error) {
	rows, cols, err := readCSV(r, "login")
	if err != nil {
		return nil, err
	}

	accounts := make([]domain.Account, 0, len(rows))
	for i, row := range rows {
		p := rowParser{row: row, cols: cols}
		a := domain.Account{Login: p.integer("login"), Group: p.str("group"), Name: p.str("name")}
		if p.err != nil {
			return nil, fmt.Errorf("line %d: %w", i+2, p.err)
		}
		accounts = append(accounts, a)
	}
	return accounts, nil
}

func readCSV(r io.Reader, required ...string) ([][]string, map[string]int, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, errors.New("empty csv")
		}
		return nil, nil, err
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, name := range required {
		if _, ok := cols[name]; !ok {
			return nil, nil, fmt.Errorf("missing column %q", name)
		}
	}
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	return rows, cols, nil
}

// rowParser reads typed cells and keeps the first error.
type rowParser struct {
	row  []string
	cols map[string]int
	err  error
}

func (p *rowParser) str(name string) string {
	i, ok := p.cols[name]
	if !ok || i >= len(p.row) {
		return ""
	}
	return strings.TrimSpace(p.row[i])
}

func (p *rowParser) integer(name string) int64 {
	s := p.str(name)
	if s == "" || p.err != nil {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		p.err = fmt.Errorf("%s: %w", name, err)
	}
	return n
}

func (p *rowParser) number(name string) float64 {
	s := p.str(name)
	if s == "" || p.err != nil {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		p.err = fmt.Errorf("%s: %w", name, err)
	}
	return f
}

func (p *rowParser) timestamp(name string) time.Time {
	s := p.str(name)
	if s == "" || p.err != nil {
		return time.Time{}
	}
	t, err := time.Parse(TimeLayout, s)
	if err != nil {
		p.err = fmt.Errorf("%s: %w", name, err)
	}
	return t
}
