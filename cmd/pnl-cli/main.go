package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"pnlboard/internal/config"
	"pnlboard/internal/dashboard"
	"pnlboard/internal/domain"
	"pnlboard/internal/export"
	"pnlboard/internal/profit"
	"pnlboard/internal/store"
	"pnlboard/internal/summary"
	"pnlboard/internal/tz"
	"pnlboard/internal/util"
	"pnlboard/pkg/pnlboard"
)

const version = "0.1.0"

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: pnl-cli <command> [options]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  version    Print the CLI version\n")
		fmt.Fprintf(os.Stderr, "  profit     Aggregate a local NDJSON file\n")
		fmt.Fprintf(os.Stderr, "  remote     Query a running pnl-server\n")
		fmt.Fprintf(os.Stderr, "  status     Show pnl-server source status\n")
		fmt.Fprintf(os.Stderr, "  import     Load trades and accounts from CSV into SQLite\n")
		fmt.Fprintf(os.Stderr, "  export     Write the hourly NDJSON fixture from stored trades\n")
		fmt.Fprintf(os.Stderr, "  summary    Print the trade summary for one day\n")
		fmt.Fprintf(os.Stderr, "\nRun 'pnl-cli <command> -h' for command options.\n")
	}

	if len(os.Args) < 2 {
		flag.Usage()
		os.Exit(1)
	}

	_ = godotenv.Load()
	ctx := context.Background()
	args := os.Args[2:]

	var err error
	switch os.Args[1] {
	case "version":
		fmt.Printf("pnl-cli %s\n", version)
	case "profit":
		err = runProfit(args)
	case "remote":
		err = runRemote(ctx, args)
	case "status":
		err = runStatus(ctx, args)
	case "import":
		err = runImport(ctx, args)
	case "export":
		err = runExport(ctx, args)
	case "summary":
		err = runSummary(ctx, args)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		flag.Usage()
		os.Exit(1)
	}
	if err != nil {
		log.Fatalf("%s: %v", os.Args[1], err)
	}
}

// loadConfig reads the config file named by -config, PNLBOARD_CONFIG or the
// default path, falling back to defaults when none exists.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = os.Getenv("PNLBOARD_CONFIG")
	}
	if path == "" {
		path = "config/pnlboard.yaml"
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			path = ""
		}
	}
	return config.Load(path)
}

type viewFlags struct {
	mode, tz, from, to string
	width              int
	asJSON             bool
}

func (v *viewFlags) register(flags *flag.FlagSet) {
	flags.StringVar(&v.mode, "mode", "timeline", "timeline or hourOfDay")
	flags.StringVar(&v.tz, "tz", "", "display offset, e.g. +8 (default from config)")
	flags.StringVar(&v.from, "from", "", "window start YYYY-MM-DD")
	flags.StringVar(&v.to, "to", "", "window end YYYY-MM-DD")
	flags.IntVar(&v.width, "width", 40, "chart width in characters")
	flags.BoolVar(&v.asJSON, "json", false, "print JSON instead of a chart")
}

func render(w io.Writer, v viewFlags, header string, series []domain.Bucket, totals domain.Totals, payload any) error {
	if v.asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(payload)
	}
	fmt.Fprintln(w, header)
	if err := dashboard.RenderTotals(w, totals); err != nil {
		return err
	}
	return dashboard.RenderSeries(w, series, v.width)
}

func runProfit(args []string) error {
	flags := flag.NewFlagSet("profit", flag.ExitOnError)
	cfgPath := flags.String("config", "", "config file")
	file := flags.String("file", "", "NDJSON file, or - for stdin")
	source := flags.String("source-tz", "", "offset the file's dates are in (default from config)")
	var v viewFlags
	v.register(flags)
	flags.Parse(args)

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	if *file == "" {
		return errors.New("-file is required")
	}

	var r io.Reader = os.Stdin
	if *file != "-" {
		f, err := os.Open(*file)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}
	records, stats, err := profit.Load(r)
	if err != nil {
		return err
	}

	offsets, err := cfg.Profit.Offsets()
	if err != nil {
		return err
	}
	opts := profit.Options{SourceOffset: offsets.Source, DisplayOffset: offsets.Default}
	if *source != "" {
		if opts.SourceOffset, err = tz.ParseOffset(*source); err != nil {
			return err
		}
	}
	if v.tz != "" {
		if opts.DisplayOffset, err = tz.ParseOffset(v.tz); err != nil {
			return err
		}
	}
	if opts.Mode, err = domain.ParseMode(v.mode); err != nil {
		return err
	}
	if opts.Window, err = profit.NewWindow(v.from, v.to); err != nil {
		return err
	}

	res, err := profit.Run(records, opts)
	if err != nil {
		return err
	}
	header := fmt.Sprintf("%s  %s -> %s  lines=%d kept=%d skipped=%d selected=%d",
		res.Mode, opts.SourceOffset.Label(), opts.DisplayOffset.Label(),
		stats.Lines, stats.Kept, stats.Skipped, res.Selected)
	return render(os.Stdout, v, header, res.Series, res.Totals, res)
}

func runRemote(ctx context.Context, args []string) error {
	flags := flag.NewFlagSet("remote", flag.ExitOnError)
	server := flags.String("server", envOr("PNLBOARD_SERVER", "http://localhost:8080"), "pnl-server base URL")
	source := flags.String("source", "", "open or close")
	remember := flags.Bool("remember", false, "remember the window on the server")
	var v viewFlags
	v.register(flags)
	flags.Parse(args)

	p, err := pnlboard.NewClient(*server).Profit(ctx, pnlboard.ProfitQuery{
		Source: *source, Mode: v.mode, TZ: v.tz, From: v.from, To: v.to, Remember: *remember,
	})
	if err != nil {
		return err
	}
	series := make([]domain.Bucket, len(p.Series))
	for i, b := range p.Series {
		series[i] = domain.Bucket{Label: b.Label, Profit: b.Profit}
	}
	header := fmt.Sprintf("%s %s  UTC%s -> UTC%s  records=%d selected=%d",
		p.Source, p.Mode, p.SourceOffset, p.DisplayOffset, p.Records, p.Selected)
	if p.Warning != "" {
		header += "\nwarning: " + p.Warning
	}
	totals := domain.Totals{Gain: p.Totals.Gain, Loss: p.Totals.Loss, Net: p.Totals.Net}
	return render(os.Stdout, v, header, series, totals, p)
}

func runStatus(ctx context.Context, args []string) error {
	flags := flag.NewFlagSet("status", flag.ExitOnError)
	server := flags.String("server", envOr("PNLBOARD_SERVER", "http://localhost:8080"), "pnl-server base URL")
	flags.Parse(args)

	h, err := pnlboard.NewClient(*server).Health(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("status: %s\n", h.Status)
	for _, s := range h.Sources {
		loaded := "-"
		if s.LoadedAt != nil {
			loaded = s.LoadedAt.Local().Format(time.DateTime)
		}
		fmt.Printf("  %-6s records=%-8s loaded=%s %s\n", s.Source, dashboard.FormatInt(s.Records), loaded, s.Error)
	}
	return nil
}

func openStore(cfg *config.Config) (*store.SQLiteStore, error) {
	return store.NewSQLiteStore(cfg.Storage.SQLitePath, cfg.Storage.RangeHistory)
}

func runImport(ctx context.Context, args []string) error {
	flags := flag.NewFlagSet("import", flag.ExitOnError)
	cfgPath := flags.String("config", "", "config file")
	tradesPath := flags.String("trades", "", "trades CSV")
	accountsPath := flags.String("accounts", "", "accounts CSV")
	flags.Parse(args)

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	if *tradesPath == "" && *accountsPath == "" {
		return errors.New("nothing to import: give -trades and/or -accounts")
	}
	logger := util.NewLogger(cfg.Logging.Level, "text")
	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if *accountsPath != "" {
		f, err := os.Open(*accountsPath)
		if err != nil {
			return err
		}
		accounts, err := store.ReadAccountsCSV(f)
		f.Close()
		if err != nil {
			return fmt.Errorf("%s: %w", *accountsPath, err)
		}
		if err := db.UpsertAccounts(ctx, accounts); err != nil {
			return err
		}
		logger.Info("accounts imported", "count", len(accounts))
	}
	if *tradesPath != "" {
		f, err := os.Open(*tradesPath)
		if err != nil {
			return err
		}
		trades, err := store.ReadTradesCSV(f)
		f.Close()
		if err != nil {
			return fmt.Errorf("%s: %w", *tradesPath, err)
		}
		if err := db.InsertTrades(ctx, trades); err != nil {
			return err
		}
		logger.Info("trades imported", "count", len(trades))
	}
	return nil
}

func runExport(ctx context.Context, args []string) error {
	flags := flag.NewFlagSet("export", flag.ExitOnError)
	cfgPath := flags.String("config", "", "config file")
	symbol := flags.String("symbol", "", "symbol (default from config)")
	start := flags.String("start", "", "start date or datetime")
	end := flags.String("end", "", "end date or datetime")
	by := flags.String("by", "open", "bucket trades by open or close time")
	flags.Parse(args)

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	src, err := domain.ParseSource(*by)
	if err != nil {
		return err
	}
	if *symbol == "" {
		*symbol = cfg.Profit.Symbol
	}
	if *start == "" || *end == "" {
		return errors.New("-start and -end are required")
	}

	logger := util.NewLogger(cfg.Logging.Level, "text")
	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	ex := export.New(db, store.NewParquetStore(cfg.Storage.DataDir), cfg.Storage.PublicDir, logger)
	res, err := ex.Run(ctx, export.Request{Symbol: *symbol, Start: *start, End: *end, By: src})
	if err != nil {
		return err
	}
	fmt.Printf("wrote %d rows from %d trades\n  json:    %s\n  parquet: %s\n", res.Rows, res.Trades, res.JSON, res.Parquet)
	return nil
}

func runSummary(ctx context.Context, args []string) error {
	flags := flag.NewFlagSet("summary", flag.ExitOnError)
	cfgPath := flags.String("config", "", "config file")
	symbol := flags.String("symbol", "", "symbol (default from config)")
	date := flags.String("date", time.Now().Format(time.DateOnly), "trading day YYYY-MM-DD")
	flags.Parse(args)

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	day, err := tz.ParseDate(*date)
	if err != nil {
		return err
	}
	if *symbol == "" {
		*symbol = cfg.Profit.Symbol
	}

	logger := util.NewLogger(cfg.Logging.Level, "text")
	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	resp, err := summary.New(db, logger).Query(ctx, *symbol, day)
	if err != nil {
		return err
	}
	fmt.Printf("%s %s\n", resp.Symbol, resp.Date)
	for _, it := range resp.Items {
		fmt.Printf("  %-16s %-9s %-4s lots=%-10.2f profit=%s\n",
			it.Group, it.Settlement, it.Direction, it.TotalVolume, dashboard.FormatSigned(it.TotalProfit))
	}
	for _, g := range []domain.SummaryGroup{domain.GroupHolding, domain.GroupClosedToday, domain.GroupClosedYesterday} {
		fmt.Printf("  total %-16s %s\n", g, dashboard.FormatSigned(resp.Totals[string(g)]))
	}
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
