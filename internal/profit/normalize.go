package profit

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"pnlboard/internal/domain"
	"pnlboard/internal/tz"
)

// ErrBadRecordDate is returned when a record's date is not numeric Y-M-D.
var ErrBadRecordDate = errors.New("record date is not Y-M-D")

// Normalize pins r to an absolute instant by reading (date, hour) as wall
// clock at the source offset. Out-of-range fields roll over the way calendar
// arithmetic does: hour 24 is 00:00 of the next day, hour -1 is 23:00 of the
// previous one.
func Normalize(r domain.ProfitRecord, source tz.Offset) (domain.NormalizedRecord, error) {
	y, m, d, err := splitDate(r.Date)
	if err != nil {
		return domain.NormalizedRecord{}, err
	}
	wall := time.Date(y, time.Month(m), d, r.Hour, 0, 0, 0, time.UTC)
	return domain.NormalizedRecord{
		ProfitRecord: r,
		Instant:      tz.FromWall(wall, source),
	}, nil
}

// NormalizeAll normalizes records in order and reports how many were dropped
// for an unusable date.
func NormalizeAll(records []domain.ProfitRecord, source tz.Offset) ([]domain.NormalizedRecord, int) {
	out := make([]domain.NormalizedRecord, 0, len(records))
	dropped := 0
	for _, r := range records {
		n, err := Normalize(r, source)
		if err != nil {
			dropped++
			continue
		}
		out = append(out, n)
	}
	return out, dropped
}

func splitDate(s string) (y, m, d int, err error) {
	parts := strings.Split(strings.TrimSpace(s), "-")
	if len(parts) != 3 {
		return 0, 0, 0, fmt.Errorf("%w: %q", ErrBadRecordDate, s)
	}
	var vals [3]int
	for i, p := range parts {
		v, convErr := strconv.Atoi(p)
		if convErr != nil {
			return 0, 0, 0, fmt.Errorf("%w: %q", ErrBadRecordDate, s)
		}
		vals[i] = v
	}
	return vals[0], vals[1], vals[2], nil
}
