package models

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestCalendarActiveOn(t *testing.T) {
	// Weekday-only service valid for March 2025.
	cal := Calendar{
		ServiceID: "WD",
		Monday:    true,
		Tuesday:   true,
		Wednesday: true,
		Thursday:  true,
		Friday:    true,
		StartDate: date(2025, time.March, 1),
		EndDate:   date(2025, time.March, 31),
	}

	cases := []struct {
		name string
		day  time.Time
		want bool
	}{
		{"weekday inside window", date(2025, time.March, 3), true},   // Monday
		{"saturday inside window", date(2025, time.March, 8), false}, // Saturday
		{"weekday before window", date(2025, time.February, 24), false},
		{"weekday after window", date(2025, time.April, 1), false},
		{"window start boundary", date(2025, time.March, 1), false}, // Saturday
		{"window end boundary", date(2025, time.March, 31), true},   // Monday
	}

	for _, c := range cases {
		if got := cal.ActiveOn(c.day); got != c.want {
			t.Errorf("%s: ActiveOn(%v) = %v, want %v", c.name, c.day, got, c.want)
		}
	}
}

func TestCalendarActiveOnIgnoresTimeOfDay(t *testing.T) {
	cal := Calendar{
		ServiceID: "S",
		Sunday:    true,
		StartDate: date(2025, time.June, 1),
		EndDate:   date(2025, time.June, 1),
	}
	late := time.Date(2025, time.June, 1, 23, 45, 0, 0, time.UTC)
	if !cal.ActiveOn(late) {
		t.Error("service should be active regardless of the evaluation time of day")
	}
}

func TestParseRouteType(t *testing.T) {
	for _, v := range []int{0, 1, 2, 3, 4, 5, 6, 7, 11, 12} {
		if _, err := ParseRouteType(v); err != nil {
			t.Errorf("ParseRouteType(%d): unexpected error %v", v, err)
		}
	}
	for _, v := range []int{-1, 8, 9, 10, 13, 99} {
		if _, err := ParseRouteType(v); err == nil {
			t.Errorf("ParseRouteType(%d): expected error", v)
		}
	}
}

func TestParseExceptionType(t *testing.T) {
	if et, err := ParseExceptionType(1); err != nil || et != ExceptionAdded {
		t.Errorf("ParseExceptionType(1) = %v, %v", et, err)
	}
	if et, err := ParseExceptionType(2); err != nil || et != ExceptionRemoved {
		t.Errorf("ParseExceptionType(2) = %v, %v", et, err)
	}
	if _, err := ParseExceptionType(0); err == nil {
		t.Error("ParseExceptionType(0): expected error")
	}
}

func TestRouteCode(t *testing.T) {
	r := Route{RouteShortName: "58", RouteLongName: "West Coburg - Toorak"}
	if r.Code() != "58" {
		t.Errorf("Code() = %q, want short name", r.Code())
	}
	r.RouteShortName = ""
	if r.Code() != "West Coburg - Toorak" {
		t.Errorf("Code() = %q, want long name fallback", r.Code())
	}
}
