package feed

import (
	"log/slog"

	"pnlboard/internal/config"
)

// FromConfig returns the Fetcher and fixture paths described by cfg: an HTTP
// Client when a base URL is set, otherwise a Dir over cfg.Storage.PublicDir.
func FromConfig(cfg *config.Config, log *slog.Logger) (Fetcher, Paths) {
	paths := DefaultPaths(cfg.Profit.Symbol).WithOverrides(cfg.Feed.OpenPath, cfg.Feed.ClosePath)
	if cfg.Feed.BaseURL != "" {
		return NewClient(cfg.Feed.BaseURL, paths, cfg.Feed.Timeout(), cfg.Feed.Attempts, log), paths
	}
	return NewDir(cfg.Storage.PublicDir, paths, log), paths
}
