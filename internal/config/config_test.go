package config

import (
	"os"
	"path/filepath"
	"testing"

	"pnlboard/internal/tz"
)

var envKeys = []string{
	"DATA_DIR", "PARQUET_DIR", "PUBLIC_EXPORT_DIR", "SQLITE_PATH",
	"HOST", "PORT", "GRPC_PORT", "CORS_ORIGINS",
	"LOG_LEVEL", "LOG_FORMAT", "SYMBOL", "SOURCE_OFFSET", "FEED_BASE_URL",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pnlboard.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func TestLoadFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
storage:
  data_dir: "/tmp/pnlboard/data"
  public_dir: "/tmp/pnlboard/public"
  sqlite_path: "/tmp/pnlboard/pnlboard.db"
  range_history: 5
server:
  host: "127.0.0.1"
  port: 8000
  grpc_port: 9000
  cors_origins: ["http://localhost:5173"]
logging:
  level: "debug"
  format: "text"
profit:
  symbol: "XAGUSD"
  source_offset: "+2"
  display_offsets: ["+2", "+8", "0"]
  default_display: "0"
feed:
  base_url: "http://feeds.local"
  attempts: 5
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	// -- Storage --
	if cfg.Storage.DataDir != "/tmp/pnlboard/data" {
		t.Errorf("Storage.DataDir = %q, want %q", cfg.Storage.DataDir, "/tmp/pnlboard/data")
	}
	if cfg.Storage.PublicDir != "/tmp/pnlboard/public" {
		t.Errorf("Storage.PublicDir = %q", cfg.Storage.PublicDir)
	}
	if cfg.Storage.RangeHistory != 5 {
		t.Errorf("Storage.RangeHistory = %d, want 5", cfg.Storage.RangeHistory)
	}

	// -- Server --
	if cfg.Server.Addr() != "127.0.0.1:8000" {
		t.Errorf("Server.Addr() = %q", cfg.Server.Addr())
	}
	if cfg.Server.GRPCAddr() != "127.0.0.1:9000" {
		t.Errorf("Server.GRPCAddr() = %q", cfg.Server.GRPCAddr())
	}
	if len(cfg.Server.CORSOrigins) != 1 || cfg.Server.CORSOrigins[0] != "http://localhost:5173" {
		t.Errorf("Server.CORSOrigins = %v", cfg.Server.CORSOrigins)
	}
	// Unset keys keep their defaults.
	if cfg.Server.RateBurst != 40 {
		t.Errorf("Server.RateBurst = %d, want default 40", cfg.Server.RateBurst)
	}

	// -- Logging --
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "text" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}

	// -- Profit --
	offs, err := cfg.Profit.Offsets()
	if err != nil {
		t.Fatalf("Offsets(): %v", err)
	}
	if offs.Source != tz.Hours(2) {
		t.Errorf("Source = %v, want +2", offs.Source)
	}
	if len(offs.Allowed) != 3 || offs.Default != tz.UTC {
		t.Errorf("Offsets = %+v", offs)
	}
	if cfg.Profit.DefaultFrom != "2025-05-01" {
		t.Errorf("Profit.DefaultFrom = %q, want default", cfg.Profit.DefaultFrom)
	}

	// -- Feed --
	if cfg.Feed.BaseURL != "http://feeds.local" || cfg.Feed.Attempts != 5 {
		t.Errorf("Feed = %+v", cfg.Feed)
	}
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\"): %v", err)
	}
	if cfg.Profit.Symbol != "XAUUSD" {
		t.Errorf("Profit.Symbol = %q", cfg.Profit.Symbol)
	}
	offs, err := cfg.Profit.Offsets()
	if err != nil {
		t.Fatalf("Offsets(): %v", err)
	}
	if offs.Source != tz.Hours(3) || offs.Default != tz.Hours(8) {
		t.Errorf("Offsets = %+v", offs)
	}
	if cfg.Server.ShutdownTimeout().Seconds() != 5 {
		t.Errorf("ShutdownTimeout = %v", cfg.Server.ShutdownTimeout())
	}
	if cfg.Feed.RefreshInterval() != 0 {
		t.Errorf("RefreshInterval = %v, want disabled", cfg.Feed.RefreshInterval())
	}
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
storage:
  data_dir: "/from/file"
`)

	t.Setenv("PARQUET_DIR", "/from/env")
	t.Setenv("PUBLIC_EXPORT_DIR", "/public/env")
	t.Setenv("PORT", "9999")
	t.Setenv("CORS_ORIGINS", "http://a.test, http://b.test ,")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("SOURCE_OFFSET", "UTC+2")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Storage.DataDir != "/from/env" {
		t.Errorf("Storage.DataDir = %q, want %q", cfg.Storage.DataDir, "/from/env")
	}
	if cfg.Storage.PublicDir != "/public/env" {
		t.Errorf("Storage.PublicDir = %q", cfg.Storage.PublicDir)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("Server.Port = %d, want 9999", cfg.Server.Port)
	}
	if len(cfg.Server.CORSOrigins) != 2 || cfg.Server.CORSOrigins[1] != "http://b.test" {
		t.Errorf("Server.CORSOrigins = %v", cfg.Server.CORSOrigins)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "warn")
	}
	if cfg.Profit.SourceOffset != "UTC+2" {
		t.Errorf("Profit.SourceOffset = %q", cfg.Profit.SourceOffset)
	}
}

func TestLoadRejectsBadProfitSettings(t *testing.T) {
	clearEnv(t)
	tests := map[string]string{
		"bad source offset":   "profit:\n  source_offset: \"+25\"\n",
		"default not allowed": "profit:\n  display_offsets: [\"+3\"]\n  default_display: \"+8\"\n",
		"bad default date":    "profit:\n  default_from: \"2025-02-30\"\n",
		"empty offsets":       "profit:\n  display_offsets: []\n",
	}
	for name, content := range tests {
		if _, err := Load(writeConfig(t, content)); err == nil {
			t.Errorf("%s: Load() should fail", name)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load() of missing file should fail")
	}
}
