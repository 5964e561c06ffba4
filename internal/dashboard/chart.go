package dashboard

import (
	"fmt"
	"io"
	"math"
	"strings"

	"pnlboard/internal/domain"
)

// RenderTotals writes the gain, loss and net cards on one line.
func RenderTotals(w io.Writer, t domain.Totals) error {
	_, err := fmt.Fprintf(w, "Gain %s   Loss %s   Net %s\n",
		FormatSigned(t.Gain), FormatLossCard(t.Loss), FormatSigned(t.Net))
	return err
}

// RenderSeries writes one row per bucket with a horizontal bar scaled to
// width characters. Positive bars grow right of the axis, negative bars left.
func RenderSeries(w io.Writer, series []domain.Bucket, width int) error {
	if len(series) == 0 {
		_, err := fmt.Fprintln(w, "(no data)")
		return err
	}
	if width < 2 {
		width = 2
	}
	half := width / 2

	var peak float64
	labelWidth := 0
	for _, b := range series {
		peak = math.Max(peak, math.Abs(b.Profit))
		labelWidth = max(labelWidth, len(b.Label))
	}

	for _, b := range series {
		n := 0
		if peak > 0 {
			n = int(math.Round(math.Abs(b.Profit) / peak * float64(half)))
		}
		left, right := strings.Repeat(" ", half), strings.Repeat(" ", half)
		if b.Profit < 0 {
			left = strings.Repeat(" ", half-n) + strings.Repeat("#", n)
		} else {
			right = strings.Repeat("#", n) + strings.Repeat(" ", half-n)
		}
		if _, err := fmt.Fprintf(w, "%-*s %s|%s %10s\n",
			labelWidth, b.Label, left, right, FormatCompact(b.Profit)); err != nil {
			return err
		}
	}
	return nil
}
