package main

import (
	"context"
	"errors"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"pnlboard/internal/api"
	"pnlboard/internal/config"
	"pnlboard/internal/export"
	"pnlboard/internal/feed"
	"pnlboard/internal/httpapi"
	"pnlboard/internal/store"
	"pnlboard/internal/summary"
	"pnlboard/internal/util"
)

func main() {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	// Load config.
	cfgPath := "config/pnlboard.yaml"
	if p := os.Getenv("PNLBOARD_CONFIG"); p != "" {
		cfgPath = p
	} else if _, err := os.Stat(cfgPath); errors.Is(err, fs.ErrNotExist) {
		cfgPath = ""
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	// Setup logging.
	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	// Create stores.
	db, err := store.NewSQLiteStore(cfg.Storage.SQLitePath, cfg.Storage.RangeHistory)
	if err != nil {
		log.Fatalf("opening sqlite store: %v", err)
	}
	defer db.Close()
	orders := store.NewParquetStore(cfg.Storage.DataDir)

	// Sources.
	fetcher, paths := feed.FromConfig(cfg, logger)
	datasets := feed.NewDatasets(fetcher, logger)
	metrics := httpapi.NewMetrics()
	datasets.SetObserver(metrics.ObserveLoad)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := datasets.ReloadAll(ctx); err != nil {
		// Keep serving; health reports the failed source until a reload succeeds.
		logger.Warn("initial load incomplete", "error", err)
	}

	apiServer, err := httpapi.NewServer(httpapi.Options{
		Datasets:  datasets,
		Exporter:  export.New(db, orders, cfg.Storage.PublicDir, logger),
		Summary:   summary.New(db, logger),
		Ranges:    db,
		PublicDir: cfg.Storage.PublicDir,
		Paths:     paths,
		Profit:    cfg.Profit,
		Metrics:   metrics,
		Log:       logger,
	})
	if err != nil {
		log.Fatalf("creating API server: %v", err)
	}

	srv := api.NewServer(cfg.Server, apiServer.Handler(cfg.Server), datasets, cfg.Feed.RefreshInterval(), logger)
	logger.Info("starting pnl-server",
		"addr", cfg.Server.Addr(),
		"grpc_addr", cfg.Server.GRPCAddr(),
		"symbol", cfg.Profit.Symbol,
		"source_offset", cfg.Profit.SourceOffset,
	)
	if err := srv.ListenAndServe(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	logger.Info("pnl-server stopped")
}
