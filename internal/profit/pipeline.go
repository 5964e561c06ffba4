package profit

import (
	"fmt"

	"pnlboard/internal/domain"
	"pnlboard/internal/tz"
)

// Options configures one pipeline run.
type Options struct {
	SourceOffset  tz.Offset
	DisplayOffset tz.Offset
	Mode          domain.Mode
	Window        *TimeWindow
}

// Result is the output of Run. Totals always cover the windowed records,
// whatever the mode.
type Result struct {
	Mode     domain.Mode     `json:"mode"`
	Series   []domain.Bucket `json:"series"`
	Totals   domain.Totals   `json:"totals"`
	Selected int             `json:"selected"`
	Dropped  int             `json:"dropped"`
	Range    *Range          `json:"range,omitempty"`
}

// Run normalizes, filters and aggregates records. It fails only for an
// unknown mode.
func Run(records []domain.ProfitRecord, opts Options) (Result, error) {
	mode := opts.Mode
	if mode == "" {
		mode = domain.ModeTimeline
	}
	if mode != domain.ModeTimeline && mode != domain.ModeHourOfDay {
		return Result{}, fmt.Errorf("unknown mode %q", mode)
	}

	normalized, dropped := NormalizeAll(records, opts.SourceOffset)

	var rng *Range
	if opts.Window != nil {
		r := opts.Window.Resolve(opts.DisplayOffset)
		rng = &r
	}
	selected := Filter(normalized, rng)

	res := Result{
		Mode:     mode,
		Totals:   Totalize(selected),
		Selected: len(selected),
		Dropped:  dropped,
		Range:    rng,
	}
	if mode == domain.ModeHourOfDay {
		res.Series = HourOfDay(selected, opts.DisplayOffset)
	} else {
		res.Series = Timeline(selected, opts.DisplayOffset)
	}
	return res, nil
}
