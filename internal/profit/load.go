// Package profit turns hourly NDJSON profit records into windowed, bucketed
// series and gain/loss totals. Every stage is a pure function over its
// inputs: no globals, no clock, no host timezone.
package profit

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strings"

	"pnlboard/internal/domain"
)

// LoadStats counts what Load saw. Blank lines are not counted.
type LoadStats struct {
	Lines   int
	Kept    int
	Skipped int
}

// Load reads newline-delimited JSON and keeps every line that decodes to an
// object with a string "date", an integral numeric "hour" and a numeric
// "profit". Malformed lines are skipped, never fatal. Input order is kept.
// The returned error reports only read failures.
func Load(r io.Reader) ([]domain.ProfitRecord, LoadStats, error) {
	var (
		out   []domain.ProfitRecord
		stats LoadStats
	)
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if strings.TrimSpace(line) != "" {
			stats.Lines++
			if rec, ok := parseLine(line); ok {
				out = append(out, rec)
				stats.Kept++
			} else {
				stats.Skipped++
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return out, stats, fmt.Errorf("reading ndjson: %w", err)
		}
	}
	if out == nil {
		out = []domain.ProfitRecord{}
	}
	return out, stats, nil
}

// Parse is Load over an in-memory document.
func Parse(text string) []domain.ProfitRecord {
	recs, _, _ := Load(strings.NewReader(text))
	return recs
}

func parseLine(line string) (domain.ProfitRecord, bool) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(strings.TrimSpace(line)), &obj); err != nil || obj == nil {
		return domain.ProfitRecord{}, false
	}

	date, ok := jsonString(obj["date"])
	if !ok {
		return domain.ProfitRecord{}, false
	}
	hour, ok := jsonNumber(obj["hour"])
	if !ok || hour != math.Trunc(hour) || math.Abs(hour) > math.MaxInt32 {
		return domain.ProfitRecord{}, false
	}
	profit, ok := jsonNumber(obj["profit"])
	if !ok {
		return domain.ProfitRecord{}, false
	}
	return domain.ProfitRecord{Date: date, Hour: int(hour), Profit: profit}, true
}

func jsonString(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '"' {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

func jsonNumber(raw json.RawMessage) (float64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || !(raw[0] == '-' || (raw[0] >= '0' && raw[0] <= '9')) {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, false
	}
	return f, true
}
