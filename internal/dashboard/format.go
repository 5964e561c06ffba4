// Package dashboard renders profit series and totals for terminal output.
package dashboard

import (
	"fmt"
	"math"
	"strings"
)

// FormatInt formats an integer with comma separators.
func FormatInt(n int) string {
	if n < 0 {
		return "-" + FormatInt(-n)
	}
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	start := len(s) % 3
	if start > 0 {
		b.WriteString(s[:start])
	}
	for i := start; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// FormatUSD formats the magnitude of v as "$1,234.56".
func FormatUSD(v float64) string {
	cents := int64(math.Round(math.Abs(v) * 100))
	return fmt.Sprintf("$%s.%02d", FormatInt(int(cents/100)), cents%100)
}

// FormatSigned formats v as "+$X" when v >= 0 and "-$X" otherwise.
func FormatSigned(v float64) string {
	if v >= 0 {
		return "+" + FormatUSD(v)
	}
	return "-" + FormatUSD(v)
}

// FormatLossCard formats a loss magnitude: "-$X" when there is a loss,
// "+$0.00" when there is none.
func FormatLossCard(loss float64) string {
	if loss <= 0 {
		return "+" + FormatUSD(0)
	}
	return "-" + FormatUSD(loss)
}

// FormatCompact formats a signed amount with K/M/B suffixes for axis labels.
func FormatCompact(v float64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	switch {
	case v >= 1e9:
		return fmt.Sprintf("%s%.1fB", sign, v/1e9)
	case v >= 1e6:
		return fmt.Sprintf("%s%.1fM", sign, v/1e6)
	case v >= 1e3:
		return fmt.Sprintf("%s%.1fK", sign, v/1e3)
	default:
		return fmt.Sprintf("%s%.0f", sign, v)
	}
}
