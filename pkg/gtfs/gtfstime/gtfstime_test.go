package gtfstime

import (
	"fmt"
	"testing"
	"time"
)

func TestParseExtendedTime(t *testing.T) {
	cases := []struct {
		in   string
		want WallClock
	}{
		{"00:00:00", WallClock{0, 0, 0}},
		{"09:30:15", WallClock{9, 30, 15}},
		{"23:59:59", WallClock{23, 59, 59}},
		{"24:00:00", WallClock{0, 0, 0}},
		{"25:00:00", WallClock{1, 0, 0}},
		{"27:45:30", WallClock{3, 45, 30}},
	}

	for _, c := range cases {
		got, err := ParseExtendedTime(c.in)
		if err != nil {
			t.Errorf("ParseExtendedTime(%q): unexpected error %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("ParseExtendedTime(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestParseExtendedTimeWrapsAllExtendedHours(t *testing.T) {
	for h := 0; h < 29; h++ {
		in := fmt.Sprintf("%02d:15:45", h)
		want := WallClock{Hour: h, Minute: 15, Second: 45}
		if h > 23 {
			want.Hour = h - 24
		}
		got, err := ParseExtendedTime(in)
		if err != nil {
			t.Fatalf("ParseExtendedTime(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("ParseExtendedTime(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestParseExtendedTimeRejectsMalformed(t *testing.T) {
	bad := []string{"", "12:00", "12:00:00:00", "ab:00:00", "12:xx:00", "12:00:zz", "12:61:00", "12:00:75"}
	for _, in := range bad {
		if _, err := ParseExtendedTime(in); err == nil {
			t.Errorf("ParseExtendedTime(%q): expected error, got nil", in)
		}
	}
}

func TestHourDistance(t *testing.T) {
	cases := []struct {
		a, b WallClock
		want int
	}{
		{WallClock{10, 0, 0}, WallClock{12, 0, 0}, 2},
		{WallClock{23, 0, 0}, WallClock{1, 0, 0}, 2},
		{WallClock{23, 0, 0}, WallClock{4, 0, 0}, 5},
		{WallClock{6, 0, 0}, WallClock{6, 0, 0}, 0},
		{WallClock{0, 0, 0}, WallClock{12, 0, 0}, 12},
	}

	for _, c := range cases {
		if got := HourDistance(c.a, c.b); got != c.want {
			t.Errorf("HourDistance(%v, %v) = %d, want %d", c.a, c.b, got, c.want)
		}
		// Distance on a circle is symmetric.
		if got := HourDistance(c.b, c.a); got != c.want {
			t.Errorf("HourDistance(%v, %v) = %d, want %d", c.b, c.a, got, c.want)
		}
	}
}

func TestParsePackedDate(t *testing.T) {
	got, err := ParsePackedDate("20250314")
	if err != nil {
		t.Fatalf("ParsePackedDate: %v", err)
	}
	want := time.Date(2025, time.March, 14, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("ParsePackedDate = %v, want %v", got, want)
	}

	if _, err := ParsePackedDate("2025-03-14"); err == nil {
		t.Error("expected error for dashed date")
	}
}

func TestAddSecondsWraps(t *testing.T) {
	got := WallClock{23, 58, 0}.AddSeconds(180)
	want := WallClock{0, 1, 0}
	if got != want {
		t.Errorf("AddSeconds = %v, want %v", got, want)
	}

	got = WallClock{0, 1, 0}.AddSeconds(-120)
	want = WallClock{23, 59, 0}
	if got != want {
		t.Errorf("AddSeconds negative = %v, want %v", got, want)
	}
}
