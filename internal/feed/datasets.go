package feed

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"pnlboard/internal/domain"
)

// Datasets groups one Loader per source.
type Datasets struct {
	order   []domain.Source
	loaders map[domain.Source]*Loader
	log     *slog.Logger
}

// NewDatasets creates loaders for sources, all sharing f.
func NewDatasets(f Fetcher, log *slog.Logger, sources ...domain.Source) *Datasets {
	if len(sources) == 0 {
		sources = domain.Sources
	}
	d := &Datasets{loaders: make(map[domain.Source]*Loader, len(sources)), log: log}
	for _, src := range sources {
		d.order = append(d.order, src)
		d.loaders[src] = NewLoader(f, src, log)
	}
	return d
}

// Get returns the loader for src.
func (d *Datasets) Get(src domain.Source) (*Loader, bool) {
	l, ok := d.loaders[src]
	return l, ok
}

// Sources lists the configured sources in order.
func (d *Datasets) Sources() []domain.Source { return d.order }

// SetObserver installs fn on every loader.
func (d *Datasets) SetObserver(fn LoadObserver) {
	for _, l := range d.loaders {
		l.SetObserver(fn)
	}
}

// ReloadAll loads every source concurrently and returns the first error.
// A failing source does not cancel the others.
func (d *Datasets) ReloadAll(ctx context.Context) error {
	var g errgroup.Group
	for _, src := range d.order {
		l := d.loaders[src]
		g.Go(func() error {
			_, err := l.Load(ctx)
			return err
		})
	}
	return g.Wait()
}

// Ready reports whether every source has loaded successfully at least once.
func (d *Datasets) Ready() bool {
	for _, l := range d.loaders {
		if !l.Snapshot().Loaded() {
			return false
		}
	}
	return true
}

// States snapshots every source in order.
func (d *Datasets) States() []State {
	out := make([]State, 0, len(d.order))
	for _, src := range d.order {
		out = append(out, d.loaders[src].Snapshot())
	}
	return out
}

// Refresh reloads all sources every interval until ctx is done. A
// non-positive interval returns immediately.
func (d *Datasets) Refresh(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := d.ReloadAll(ctx); err != nil {
				d.log.Warn("periodic reload failed", "error", err)
			}
		}
	}
}
