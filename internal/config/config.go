package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"pnlboard/internal/tz"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for pnlboard.
type Config struct {
	Storage Storage `yaml:"storage"`
	Server  Server  `yaml:"server"`
	Logging Logging `yaml:"logging"`
	Profit  Profit  `yaml:"profit"`
	Feed    Feed    `yaml:"feed"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir      string `yaml:"data_dir"`   // parquet order snapshots
	PublicDir    string `yaml:"public_dir"` // NDJSON fixtures served to clients
	SQLitePath   string `yaml:"sqlite_path"`
	RangeHistory int    `yaml:"range_history"`
}

// Server holds network listener configuration.
type Server struct {
	Host               string   `yaml:"host"`
	Port               int      `yaml:"port"`
	GRPCPort           int      `yaml:"grpc_port"`
	CORSOrigins        []string `yaml:"cors_origins"`
	RateLimit          float64  `yaml:"rate_limit"` // requests per second, 0 disables
	RateBurst          int      `yaml:"rate_burst"`
	ShutdownTimeoutSec int      `yaml:"shutdown_timeout_sec"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Profit holds the aggregation defaults.
type Profit struct {
	Symbol         string   `yaml:"symbol"`
	SourceOffset   string   `yaml:"source_offset"`
	DisplayOffsets []string `yaml:"display_offsets"`
	DefaultDisplay string   `yaml:"default_display"`
	DefaultFrom    string   `yaml:"default_from"`
	DefaultTo      string   `yaml:"default_to"`
}

// Feed locates the NDJSON sources. With an empty BaseURL the fixtures are
// read straight from Storage.PublicDir.
type Feed struct {
	BaseURL    string `yaml:"base_url"`
	OpenPath   string `yaml:"open_path"`
	ClosePath  string `yaml:"close_path"`
	TimeoutSec int    `yaml:"timeout_sec"`
	Attempts   int    `yaml:"attempts"`
	RefreshSec int    `yaml:"refresh_sec"`
}

// ---------------------------------------------------------------------------
// Defaults
// ---------------------------------------------------------------------------

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Storage: Storage{
			DataDir:      "data",
			PublicDir:    "public",
			SQLitePath:   "data/pnlboard.db",
			RangeHistory: 10,
		},
		Server: Server{
			Host:               "0.0.0.0",
			Port:               8080,
			GRPCPort:           9090,
			CORSOrigins:        []string{"*"},
			RateLimit:          20,
			RateBurst:          40,
			ShutdownTimeoutSec: 5,
		},
		Logging: Logging{Level: "info", Format: "json"},
		Profit: Profit{
			Symbol:         "XAUUSD",
			SourceOffset:   "+3",
			DisplayOffsets: []string{"+3", "+8"},
			DefaultDisplay: "+8",
			DefaultFrom:    "2025-05-01",
			DefaultTo:      "2025-08-18",
		},
		Feed: Feed{
			TimeoutSec: 10,
			Attempts:   3,
		},
	}
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at path over the defaults and then
// applies environment variable overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("PARQUET_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("PUBLIC_EXPORT_DIR"); v != "" {
		cfg.Storage.PublicDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}

	if v := os.Getenv("HOST"); v != "" {
		cfg.Server.Host = v
	}
	if n, ok := envInt("PORT"); ok {
		cfg.Server.Port = n
	}
	if n, ok := envInt("GRPC_PORT"); ok {
		cfg.Server.GRPCPort = n
	}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		cfg.Server.CORSOrigins = splitList(v)
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	if v := os.Getenv("SYMBOL"); v != "" {
		cfg.Profit.Symbol = v
	}
	if v := os.Getenv("SOURCE_OFFSET"); v != "" {
		cfg.Profit.SourceOffset = v
	}
	if v := os.Getenv("FEED_BASE_URL"); v != "" {
		cfg.Feed.BaseURL = v
	}
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Validation and derived values
// ---------------------------------------------------------------------------

// Validate checks offsets and default dates.
func (c *Config) Validate() error {
	var errs []error
	if _, err := c.Profit.Offsets(); err != nil {
		errs = append(errs, err)
	}
	if c.Profit.DefaultFrom != "" || c.Profit.DefaultTo != "" {
		if _, err := tz.ParseDate(c.Profit.DefaultFrom); err != nil {
			errs = append(errs, fmt.Errorf("profit.default_from: %w", err))
		}
		if _, err := tz.ParseDate(c.Profit.DefaultTo); err != nil {
			errs = append(errs, fmt.Errorf("profit.default_to: %w", err))
		}
	}
	if c.Server.Port < 0 || c.Server.GRPCPort < 0 {
		errs = append(errs, errors.New("server ports must not be negative"))
	}
	return errors.Join(errs...)
}

// Offsets is the parsed form of the profit offset settings.
type Offsets struct {
	Source  tz.Offset
	Allowed []tz.Offset
	Default tz.Offset
}

// Offsets parses the source, allowed display and default display offsets.
// The default must be one of the allowed offsets.
func (p Profit) Offsets() (Offsets, error) {
	var out Offsets
	var err error
	if out.Source, err = tz.ParseOffset(p.SourceOffset); err != nil {
		return Offsets{}, fmt.Errorf("profit.source_offset: %w", err)
	}
	for _, s := range p.DisplayOffsets {
		o, err := tz.ParseOffset(s)
		if err != nil {
			return Offsets{}, fmt.Errorf("profit.display_offsets: %w", err)
		}
		out.Allowed = append(out.Allowed, o)
	}
	if len(out.Allowed) == 0 {
		return Offsets{}, errors.New("profit.display_offsets must not be empty")
	}
	if out.Default, err = tz.ParseOffset(p.DefaultDisplay); err != nil {
		return Offsets{}, fmt.Errorf("profit.default_display: %w", err)
	}
	if !out.IsAllowed(out.Default) {
		return Offsets{}, fmt.Errorf("profit.default_display %s is not a display offset", out.Default)
	}
	return out, nil
}

// IsAllowed reports whether o is a selectable display offset.
func (o Offsets) IsAllowed(off tz.Offset) bool {
	for _, a := range o.Allowed {
		if a == off {
			return true
		}
	}
	return false
}

// Addr returns the HTTP listen address.
func (s Server) Addr() string { return fmt.Sprintf("%s:%d", s.Host, s.Port) }

// GRPCAddr returns the gRPC listen address.
func (s Server) GRPCAddr() string { return fmt.Sprintf("%s:%d", s.Host, s.GRPCPort) }

// ShutdownTimeout returns the graceful shutdown budget.
func (s Server) ShutdownTimeout() time.Duration {
	if s.ShutdownTimeoutSec <= 0 {
		return 5 * time.Second
	}
	return time.Duration(s.ShutdownTimeoutSec) * time.Second
}

// Timeout returns the per-request feed timeout.
func (f Feed) Timeout() time.Duration {
	if f.TimeoutSec <= 0 {
		return 10 * time.Second
	}
	return time.Duration(f.TimeoutSec) * time.Second
}

// RefreshInterval returns how often sources are reloaded; zero disables it.
func (f Feed) RefreshInterval() time.Duration {
	return time.Duration(f.RefreshSec) * time.Second
}
