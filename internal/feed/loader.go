package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"pnlboard/internal/domain"
)

// State is a snapshot of one source. Records hold the last successful load
// and survive later failures; Err holds the most recent failure, if any.
type State struct {
	Source     domain.Source
	Records    []domain.ProfitRecord
	Err        error
	Loading    bool
	LoadedAt   time.Time
	Generation uint64
}

// Loaded reports whether at least one load has succeeded.
func (s State) Loaded() bool { return !s.LoadedAt.IsZero() }

// ErrorText returns the user-facing failure message, or "".
func (s State) ErrorText() string {
	if s.Err == nil {
		return ""
	}
	return "load failed: " + s.Err.Error()
}

// LoadObserver is notified after each applied load.
type LoadObserver func(src domain.Source, records int, err error, elapsed time.Duration)

// Loader owns the records of a single source. Each Load takes a generation
// number when it starts; a result is applied only if no newer Load started
// in the meantime, so a slow stale fetch never overwrites a fresh one.
type Loader struct {
	fetcher  Fetcher
	source   domain.Source
	log      *slog.Logger
	observer LoadObserver
	now      func() time.Time

	mu    sync.RWMutex
	gen   uint64
	state State
}

// NewLoader creates a Loader for src.
func NewLoader(f Fetcher, src domain.Source, log *slog.Logger) *Loader {
	return &Loader{
		fetcher: f,
		source:  src,
		log:     log,
		now:     time.Now,
		state:   State{Source: src},
	}
}

// SetObserver installs fn as the load observer.
func (l *Loader) SetObserver(fn LoadObserver) {
	l.mu.Lock()
	l.observer = fn
	l.mu.Unlock()
}

// Source returns the source this loader serves.
func (l *Loader) Source() domain.Source { return l.source }

// Load fetches the source. It reports whether the result was applied; a
// superseded load returns false, nil and leaves the state untouched, whatever
// its fetch returned.
func (l *Loader) Load(ctx context.Context) (bool, error) {
	l.mu.Lock()
	l.gen++
	gen := l.gen
	l.state.Loading = true
	l.mu.Unlock()

	start := l.now()
	recs, err := l.fetcher.Fetch(ctx, l.source)
	elapsed := l.now().Sub(start)

	l.mu.Lock()
	if gen != l.gen {
		l.mu.Unlock()
		l.log.Debug("discarding superseded load", "source", l.source, "generation", gen, "error", err)
		return false, nil
	}
	l.state.Loading = false
	l.state.Generation = gen
	if err != nil {
		l.state.Err = fmt.Errorf("%s: %w", l.source, err)
	} else {
		l.state.Records = recs
		l.state.Err = nil
		l.state.LoadedAt = l.now()
	}
	observer := l.observer
	l.mu.Unlock()

	if err != nil {
		l.log.Error("source load failed", "source", l.source, "error", err)
	} else {
		l.log.Info("source loaded", "source", l.source, "records", len(recs), "elapsed", elapsed)
	}
	if observer != nil {
		observer(l.source, len(recs), err, elapsed)
	}
	return true, err
}

// Snapshot returns the current state. The Records slice is shared and must
// not be modified.
func (l *Loader) Snapshot() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}
