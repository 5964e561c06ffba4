package profit

import (
	"errors"
	"fmt"
	"time"

	"pnlboard/internal/domain"
	"pnlboard/internal/tz"
)

// ErrPartialWindow is returned when only one bound of a window is supplied.
var ErrPartialWindow = errors.New("window needs both from and to")

// TimeWindow is an inclusive pair of display-local calendar dates.
type TimeWindow struct {
	From tz.Date
	To   tz.Date
}

// NewWindow validates a pair of YYYY-MM-DD strings. Two empty strings mean
// "no window" and yield nil. Dates supplied out of order are swapped.
func NewWindow(from, to string) (*TimeWindow, error) {
	if from == "" && to == "" {
		return nil, nil
	}
	if from == "" || to == "" {
		return nil, ErrPartialWindow
	}
	f, err := tz.ParseDate(from)
	if err != nil {
		return nil, fmt.Errorf("from: %w", err)
	}
	t, err := tz.ParseDate(to)
	if err != nil {
		return nil, fmt.Errorf("to: %w", err)
	}
	w := &TimeWindow{From: f, To: t}
	w.order()
	return w, nil
}

func (w *TimeWindow) order() {
	if w.To.Before(w.From) {
		w.From, w.To = w.To, w.From
	}
}

// Range is an inclusive span of instants with Start <= End.
type Range struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t lies in [Start, End].
func (r Range) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

// Resolve converts the window to instants: From at 00:00:00.000 and To at
// 23:59:59.999, both read at the display offset.
func (w TimeWindow) Resolve(display tz.Offset) Range {
	w.order()
	return Range{
		Start: w.From.StartOfDay(display),
		End:   w.To.EndOfDay(display),
	}
}

// Filter keeps the records whose instant lies in rng, preserving order. A
// nil rng keeps everything. The result never aliases the input.
func Filter(records []domain.NormalizedRecord, rng *Range) []domain.NormalizedRecord {
	out := make([]domain.NormalizedRecord, 0, len(records))
	for _, r := range records {
		if rng == nil || rng.Contains(r.Instant) {
			out = append(out, r)
		}
	}
	return out
}
