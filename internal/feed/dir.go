package feed

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"pnlboard/internal/domain"
	"pnlboard/internal/profit"
)

// Dir reads sources from files under a root directory.
type Dir struct {
	root  string
	paths Paths
	log   *slog.Logger
}

// NewDir creates a Dir resolving paths under root.
func NewDir(root string, paths Paths, log *slog.Logger) *Dir {
	return &Dir{root: root, paths: paths, log: log}
}

// Path returns the file backing src.
func (d *Dir) Path(src domain.Source) (string, error) {
	p, err := d.paths.lookup(src)
	if err != nil {
		return "", err
	}
	return filepath.Join(d.root, filepath.FromSlash(strings.TrimLeft(p, "/"))), nil
}

// Fetch reads and parses the file for src.
func (d *Dir) Fetch(ctx context.Context, src domain.Source) ([]domain.ProfitRecord, error) {
	path, err := d.Path(src)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	recs, stats, err := profit.Load(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if stats.Skipped > 0 {
		d.log.Debug("skipped malformed lines", "path", path, "skipped", stats.Skipped, "kept", stats.Kept)
	}
	return recs, nil
}
