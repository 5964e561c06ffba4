// Package feed fetches hourly profit NDJSON for each data source, over HTTP
// or from a local directory, and keeps the latest good load per source.
package feed

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"pnlboard/internal/domain"
)

// ErrUnknownSource is returned for a source with no configured path.
var ErrUnknownSource = errors.New("unknown source")

// Fetcher retrieves the records of one source.
type Fetcher interface {
	Fetch(ctx context.Context, src domain.Source) ([]domain.ProfitRecord, error)
}

// Paths maps each source to its fixture path, e.g. "/profit_xauusd_hourly.json".
type Paths map[domain.Source]string

// FixtureName is the file name the exporter writes for symbol and src.
func FixtureName(symbol string, src domain.Source) string {
	name := "profit_" + strings.ToLower(symbol) + "_hourly"
	if src == domain.SourceClose {
		name += "_close"
	}
	return name + ".json"
}

// DefaultPaths returns the root-relative fixture paths for symbol.
func DefaultPaths(symbol string) Paths {
	return Paths{
		domain.SourceOpen:  "/" + FixtureName(symbol, domain.SourceOpen),
		domain.SourceClose: "/" + FixtureName(symbol, domain.SourceClose),
	}
}

// WithOverrides replaces the open and close paths when non-empty.
func (p Paths) WithOverrides(open, close string) Paths {
	out := make(Paths, len(p))
	for k, v := range p {
		out[k] = v
	}
	if open != "" {
		out[domain.SourceOpen] = open
	}
	if close != "" {
		out[domain.SourceClose] = close
	}
	return out
}

func (p Paths) lookup(src domain.Source) (string, error) {
	path, ok := p[src]
	if !ok || path == "" {
		return "", fmt.Errorf("%w: %q", ErrUnknownSource, src)
	}
	return path, nil
}
