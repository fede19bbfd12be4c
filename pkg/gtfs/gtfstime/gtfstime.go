// Package gtfstime provides parsing and arithmetic for the time and date
// notations used by GTFS feeds. GTFS stop_times allow hour values of 24 and
// above to describe service that runs past midnight on the previous service
// day; those are folded back onto the wall clock here.
package gtfstime

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const secondsPerDay = 24 * 60 * 60

// WallClock is a time of day with second precision and no date attached.
type WallClock struct {
	Hour   int
	Minute int
	Second int
}

// ParseExtendedTime parses a GTFS "HH:MM:SS" time. Hours of 24 or more wrap
// onto the next calendar day, so "25:10:00" becomes 01:10:00.
func ParseExtendedTime(s string) (WallClock, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return WallClock{}, fmt.Errorf("invalid time %q: expected HH:MM:SS", s)
	}

	hour, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return WallClock{}, fmt.Errorf("invalid hour in %q: %w", s, err)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return WallClock{}, fmt.Errorf("invalid minute in %q: %w", s, err)
	}
	second, err := strconv.Atoi(parts[2])
	if err != nil {
		return WallClock{}, fmt.Errorf("invalid second in %q: %w", s, err)
	}

	if hour > 23 {
		hour %= 24
	}
	if hour < 0 || minute < 0 || minute > 59 || second < 0 || second > 59 {
		return WallClock{}, fmt.Errorf("time %q out of range", s)
	}

	return WallClock{Hour: hour, Minute: minute, Second: second}, nil
}

// ParsePackedDate parses a GTFS "YYYYMMDD" date.
func ParsePackedDate(s string) (time.Time, error) {
	t, err := time.Parse("20060102", strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

// HourDistance returns the smallest number of whole hours between two times
// treating the day as circular. The result is always in [0, 12].
func HourDistance(a, b WallClock) int {
	d := (b.Hour - a.Hour) % 24
	if d < 0 {
		d += 24
	}
	if d > 12 {
		d = 24 - d
	}
	return d
}

// FromSeconds builds a WallClock from seconds since midnight, wrapping values
// outside a single day.
func FromSeconds(secs int) WallClock {
	secs %= secondsPerDay
	if secs < 0 {
		secs += secondsPerDay
	}
	return WallClock{
		Hour:   secs / 3600,
		Minute: (secs / 60) % 60,
		Second: secs % 60,
	}
}

// FromTime extracts the wall-clock portion of t.
func FromTime(t time.Time) WallClock {
	return WallClock{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second()}
}

// SecondsOfDay returns the time as seconds since midnight.
func (w WallClock) SecondsOfDay() int {
	return w.Hour*3600 + w.Minute*60 + w.Second
}

// AddSeconds shifts the time by d seconds, wrapping across midnight.
func (w WallClock) AddSeconds(d int) WallClock {
	return FromSeconds(w.SecondsOfDay() + d)
}

// Before reports whether w is earlier in the day than other.
func (w WallClock) Before(other WallClock) bool {
	return w.SecondsOfDay() < other.SecondsOfDay()
}

func (w WallClock) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", w.Hour, w.Minute, w.Second)
}
