package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"pnlboard/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface checks.
var _ TradeStore = (*SQLiteStore)(nil)
var _ AccountStore = (*SQLiteStore)(nil)
var _ SummaryStore = (*SQLiteStore)(nil)
var _ RangeStore = (*SQLiteStore)(nil)

// SQLiteStore implements the trade, account, summary and range stores
// backed by a SQLite database.
type SQLiteStore struct {
	db         *sql.DB
	rangeLimit int
	now        func() time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS trades (
	ticket      INTEGER PRIMARY KEY,
	login       INTEGER NOT NULL,
	symbol      TEXT    NOT NULL,
	cmd         INTEGER NOT NULL,
	volume      INTEGER NOT NULL,
	open_time   TEXT    NOT NULL,
	open_price  REAL    NOT NULL DEFAULT 0,
	close_time  TEXT    NOT NULL,
	close_price REAL    NOT NULL DEFAULT 0,
	swaps       REAL    NOT NULL DEFAULT 0,
	profit      REAL    NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_trades_symbol_open  ON trades(symbol, open_time);
CREATE INDEX IF NOT EXISTS idx_trades_symbol_close ON trades(symbol, close_time);

CREATE TABLE IF NOT EXISTS accounts (
	login INTEGER PRIMARY KEY,
	grp   TEXT NOT NULL DEFAULT '',
	name  TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS range_history (
	from_date TEXT    NOT NULL,
	to_date   TEXT    NOT NULL,
	saved_at  INTEGER NOT NULL,
	PRIMARY KEY (from_date, to_date)
);
`

// Test accounts are any login whose group or name mentions "test" and whose
// group belongs to the KCM family.
const excludeTestLogins = `login NOT IN (
	SELECT login FROM accounts
	WHERE (grp LIKE '%test%' OR name LIKE '%test%')
	  AND (grp LIKE 'KCM%' OR grp LIKE 'testKCM%'))`

// The summary additionally drops every account whose name mentions "test".
const excludeSummaryLogins = `NOT EXISTS (
	SELECT 1 FROM accounts a
	WHERE a.login = t.login
	  AND (a.name LIKE '%test%'
	       OR ((a.grp LIKE '%test%' OR a.name LIKE '%test%')
	           AND (a.grp LIKE 'KCM%' OR a.grp LIKE 'testKCM%'))))`

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, creates the
// schema, and keeps at most rangeLimit remembered ranges.
func NewSQLiteStore(dbPath string, rangeLimit int) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	if rangeLimit <= 0 {
		rangeLimit = 10
	}
	return &SQLiteStore{db: db, rangeLimit: rangeLimit, now: time.Now}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ---------------------------------------------------------------------------
// TradeStore implementation
// ---------------------------------------------------------------------------

// InsertTrades upserts trades by ticket in a single transaction.
func (s *SQLiteStore) InsertTrades(ctx context.Context, trades []domain.Trade) error {
	if len(trades) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO trades
			(ticket, login, symbol, cmd, volume, open_time, open_price, close_time, close_price, swaps, profit)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, t := range trades {
		if _, err := stmt.ExecContext(ctx,
			t.Ticket, t.Login, t.Symbol, t.Cmd, t.Volume,
			formatTime(t.OpenTime), t.OpenPrice,
			formatTime(t.CloseTime), t.ClosePrice,
			t.Swaps, t.Profit,
		); err != nil {
			return fmt.Errorf("inserting ticket %d: %w", t.Ticket, err)
		}
	}
	return tx.Commit()
}

// QueryTrades returns trades of q.Symbol by open or close time, excluding
// test accounts. Open-time queries skip positions that are still open.
func (s *SQLiteStore) QueryTrades(ctx context.Context, q TradeQuery) ([]domain.Trade, error) {
	var where string
	switch q.By {
	case domain.SourceClose:
		where = `symbol = ? AND close_time BETWEEN ? AND ?`
	default:
		where = `symbol = ? AND open_time BETWEEN ? AND ? AND close_time != '1970-01-01 00:00:00'`
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT ticket, login, symbol, cmd, volume, open_time, open_price, close_time, close_price, swaps, profit
		FROM trades
		WHERE `+where+` AND `+excludeTestLogins+`
		ORDER BY ticket`,
		q.Symbol, formatTime(q.Start), formatTime(q.End),
	)
	if err != nil {
		return nil, fmt.Errorf("querying trades: %w", err)
	}
	defer rows.Close()

	var out []domain.Trade
	for rows.Next() {
		var (
			t                  domain.Trade
			openTime, closeStr string
		)
		if err := rows.Scan(&t.Ticket, &t.Login, &t.Symbol, &t.Cmd, &t.Volume,
			&openTime, &t.OpenPrice, &closeStr, &t.ClosePrice, &t.Swaps, &t.Profit); err != nil {
			return nil, err
		}
		if t.OpenTime, err = parseTime(openTime); err != nil {
			return nil, err
		}
		if t.CloseTime, err = parseTime(closeStr); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ---------------------------------------------------------------------------
// AccountStore implementation
// ---------------------------------------------------------------------------

// UpsertAccounts inserts or replaces accounts by login.
func (s *SQLiteStore) UpsertAccounts(ctx context.Context, accounts []domain.Account) error {
	if len(accounts) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, a := range accounts {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO accounts (login, grp, name) VALUES (?, ?, ?)`,
			a.Login, a.Group, a.Name,
		); err != nil {
			return fmt.Errorf("upserting login %d: %w", a.Login, err)
		}
	}
	return tx.Commit()
}

// ---------------------------------------------------------------------------
// SummaryStore implementation
// ---------------------------------------------------------------------------

// SummaryRows aggregates volume (in lots) and profit per group, settlement
// and direction.
func (s *SQLiteStore) SummaryRows(ctx context.Context, q SummaryQuery) ([]domain.SummaryRow, error) {
	zero := formatTime(domain.ZeroCloseTime)
	yday, today, tomorrow := formatTime(q.YesterdayStart), formatTime(q.TodayStart), formatTime(q.TomorrowStart)

	rows, err := s.db.QueryContext(ctx, `
		SELECT grp, settlement, direction, SUM(volume) / 100.0, SUM(profit)
		FROM (
			SELECT
				CASE
					WHEN close_time = ? THEN 'holding'
					WHEN close_time >= ? AND close_time < ? THEN 'closed_today'
					ELSE 'closed_yesterday'
				END AS grp,
				CASE WHEN swaps = 0 THEN 'intraday' ELSE 'overnight' END AS settlement,
				CASE WHEN cmd = 0 THEN 'buy' ELSE 'sell' END AS direction,
				volume, profit
			FROM trades t
			WHERE t.symbol = ?
			  AND (close_time = ? OR (close_time >= ? AND close_time < ?))
			  AND `+excludeSummaryLogins+`
		)
		GROUP BY grp, settlement, direction
		ORDER BY grp, settlement, direction`,
		zero, today, tomorrow,
		q.Symbol, zero, yday, tomorrow,
	)
	if err != nil {
		return nil, fmt.Errorf("querying summary: %w", err)
	}
	defer rows.Close()

	var out []domain.SummaryRow
	for rows.Next() {
		var r domain.SummaryRow
		if err := rows.Scan(&r.Group, &r.Settlement, &r.Direction, &r.TotalVolume, &r.TotalProfit); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ---------------------------------------------------------------------------
// RangeStore implementation
// ---------------------------------------------------------------------------

// SaveRange records a window and trims history to the configured limit.
func (s *SQLiteStore) SaveRange(ctx context.Context, from, to string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO range_history (from_date, to_date, saved_at) VALUES (?, ?, ?)
		ON CONFLICT (from_date, to_date) DO UPDATE SET saved_at = excluded.saved_at`,
		from, to, s.now().UnixNano(),
	); err != nil {
		return fmt.Errorf("saving range: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM range_history WHERE rowid NOT IN (
			SELECT rowid FROM range_history ORDER BY saved_at DESC LIMIT ?)`,
		s.rangeLimit,
	); err != nil {
		return fmt.Errorf("trimming ranges: %w", err)
	}
	return tx.Commit()
}

// ListRanges returns remembered windows, most recent first.
func (s *SQLiteStore) ListRanges(ctx context.Context) ([]domain.RangeEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT from_date, to_date, saved_at FROM range_history ORDER BY saved_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.RangeEntry{}
	for rows.Next() {
		var (
			e  domain.RangeEntry
			ns int64
		)
		if err := rows.Scan(&e.From, &e.To, &ns); err != nil {
			return nil, err
		}
		e.SavedAt = time.Unix(0, ns).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteRange forgets one window.
func (s *SQLiteStore) DeleteRange(ctx context.Context, from, to string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM range_history WHERE from_date = ? AND to_date = ?`, from, to)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ClearRanges forgets every window.
func (s *SQLiteStore) ClearRanges(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM range_history`)
	return err
}

// ---------------------------------------------------------------------------
// Time helpers
// ---------------------------------------------------------------------------

func formatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(TimeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing stored time %q: %w", s, err)
	}
	return t, nil
}
