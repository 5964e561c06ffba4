// Package tz models fixed UTC offsets and strict calendar dates. Every
// conversion is plain arithmetic on UTC instants; the host timezone and the
// zoneinfo database are never consulted.
package tz

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidOffset is returned when an offset string cannot be parsed or lies
// outside ±14 hours.
var ErrInvalidOffset = errors.New("invalid utc offset")

const maxOffsetSeconds = 14 * 3600

// Offset is a fixed displacement from UTC in seconds east.
type Offset int

// UTC is the zero offset.
const UTC Offset = 0

// Hours returns an Offset of h whole hours.
func Hours(h int) Offset { return Offset(h * 3600) }

// Duration returns the offset as a time.Duration.
func (o Offset) Duration() time.Duration { return time.Duration(o) * time.Second }

// String renders the offset the way users type it: "+8", "-3", "+5:30".
func (o Offset) String() string {
	sign := "+"
	secs := int(o)
	if secs < 0 {
		sign = "-"
		secs = -secs
	}
	h, m := secs/3600, (secs%3600)/60
	if m == 0 {
		return fmt.Sprintf("%s%d", sign, h)
	}
	return fmt.Sprintf("%s%d:%02d", sign, h, m)
}

// Label renders the offset as "UTC+8".
func (o Offset) Label() string { return "UTC" + o.String() }

// Location returns a fixed time.Location for o.
func (o Offset) Location() *time.Location {
	return time.FixedZone(o.Label(), int(o))
}

// ParseOffset accepts "+8", "8", "-3", "UTC+8", "GMT-3", "+08:00", "+0530"
// and "-3:30". A bare "UTC" or "Z" is the zero offset. Surrounding spaces
// are ignored, so a query-string "+8" decoded to " 8" still parses.
func ParseOffset(s string) (Offset, error) {
	raw := s
	s = strings.TrimSpace(s)
	upper := strings.ToUpper(s)
	switch {
	case upper == "Z", upper == "UTC", upper == "GMT":
		return UTC, nil
	case strings.HasPrefix(upper, "UTC"), strings.HasPrefix(upper, "GMT"):
		s = strings.TrimSpace(s[3:])
	}
	if s == "" {
		return 0, fmt.Errorf("%w: %q", ErrInvalidOffset, raw)
	}

	sign := 1
	switch s[0] {
	case '+':
		s = s[1:]
	case '-':
		sign = -1
		s = s[1:]
	}

	hours, minutes := s, "0"
	if i := strings.IndexByte(s, ':'); i >= 0 {
		hours, minutes = s[:i], s[i+1:]
	} else if len(s) == 4 {
		hours, minutes = s[:2], s[2:]
	}

	h, err := strconv.Atoi(hours)
	if err != nil || h < 0 || hours == "" {
		return 0, fmt.Errorf("%w: %q", ErrInvalidOffset, raw)
	}
	m, err := strconv.Atoi(minutes)
	if err != nil || m < 0 || m >= 60 || minutes == "" {
		return 0, fmt.Errorf("%w: %q", ErrInvalidOffset, raw)
	}

	secs := sign * (h*3600 + m*60)
	if secs > maxOffsetSeconds || secs < -maxOffsetSeconds {
		return 0, fmt.Errorf("%w: %q out of range", ErrInvalidOffset, raw)
	}
	return Offset(secs), nil
}

// MustParseOffset is ParseOffset for literals known to be valid.
func MustParseOffset(s string) Offset {
	o, err := ParseOffset(s)
	if err != nil {
		panic(err)
	}
	return o
}

// Wall returns the wall-clock reading of instant t at offset o, expressed as
// a UTC-labelled time so that Year/Month/Day/Hour read the local fields.
func Wall(t time.Time, o Offset) time.Time {
	return t.UTC().Add(o.Duration())
}

// FromWall is the inverse of Wall: it interprets the UTC-labelled wall clock
// w as local time at offset o and returns the true instant.
func FromWall(w time.Time, o Offset) time.Time {
	return w.UTC().Add(-o.Duration())
}
