package profit

import (
	"fmt"
	"slices"

	"pnlboard/internal/domain"
	"pnlboard/internal/tz"
)

// Label renders the display-local wall clock of an instant as "MM-DD HH:00".
// The year is not part of the label, so equal month-day-hours of different
// years share a bucket.
func Label(r domain.NormalizedRecord, display tz.Offset) string {
	w := tz.Wall(r.Instant, display)
	return fmt.Sprintf("%02d-%02d %02d:00", int(w.Month()), w.Day(), w.Hour())
}

// HourLabel renders an hour of day as "HH:00".
func HourLabel(h int) string { return fmt.Sprintf("%02d:00", h) }

// Timeline sums profit per display-local hour label. Buckets appear in the
// order their label is first met after sorting records by instant.
func Timeline(records []domain.NormalizedRecord, display tz.Offset) []domain.Bucket {
	sorted := slices.Clone(records)
	slices.SortStableFunc(sorted, func(a, b domain.NormalizedRecord) int {
		return a.Instant.Compare(b.Instant)
	})

	out := make([]domain.Bucket, 0, len(sorted))
	index := make(map[string]int, len(sorted))
	for _, r := range sorted {
		label := Label(r, display)
		i, ok := index[label]
		if !ok {
			i = len(out)
			index[label] = i
			out = append(out, domain.Bucket{Label: label})
		}
		out[i].Profit += r.Profit
	}
	return out
}

// HourOfDay sums profit into 24 fixed buckets "00:00".."23:00" keyed by the
// display-local hour. Empty hours are present with zero profit.
func HourOfDay(records []domain.NormalizedRecord, display tz.Offset) []domain.Bucket {
	var sums [24]float64
	for _, r := range records {
		sums[tz.Wall(r.Instant, display).Hour()] += r.Profit
	}
	out := make([]domain.Bucket, 24)
	for h := range out {
		out[h] = domain.Bucket{Label: HourLabel(h), Profit: sums[h]}
	}
	return out
}

// Totalize splits records into gain (profit >= 0) and loss magnitude
// (profit < 0). Net is Gain - Loss.
func Totalize(records []domain.NormalizedRecord) domain.Totals {
	var t domain.Totals
	for _, r := range records {
		if r.Profit >= 0 {
			t.Gain += r.Profit
		} else {
			t.Loss += -r.Profit
		}
	}
	t.Net = t.Gain - t.Loss
	return t
}
