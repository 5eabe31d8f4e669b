package markethours

import (
	"testing"
	"time"
)

func TestIsMarketOpen(t *testing.T) {
	cases := []struct {
		name string
		t    time.Time
		want bool
	}{
		{"mid-session weekday", time.Date(2026, 8, 19, 11, 0, 0, 0, IST), true},
		{"before open", time.Date(2026, 8, 19, 9, 14, 0, 0, IST), false},
		{"at open", time.Date(2026, 8, 19, 9, 15, 0, 0, IST), true},
		{"at close", time.Date(2026, 8, 19, 15, 30, 0, 0, IST), false},
		{"saturday", time.Date(2026, 8, 22, 11, 0, 0, 0, IST), false},
		{"sunday", time.Date(2026, 8, 23, 11, 0, 0, 0, IST), false},
		{"independence day", time.Date(2026, 8, 15, 11, 0, 0, 0, IST), false},
	}
	for _, tc := range cases {
		if got := IsMarketOpen(tc.t); got != tc.want {
			t.Errorf("%s: IsMarketOpen = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestNextOpen_SkipsWeekend(t *testing.T) {
	// Friday evening → Monday 9:15.
	fri := time.Date(2026, 8, 21, 18, 0, 0, 0, IST)
	open := NextOpen(fri)
	want := time.Date(2026, 8, 24, 9, 15, 0, 0, IST)
	if !open.Equal(want) {
		t.Fatalf("NextOpen(%v) = %v, want %v", fri, open, want)
	}
}

func TestNextOpen_SameDayBeforeOpen(t *testing.T) {
	early := time.Date(2026, 8, 19, 8, 0, 0, 0, IST)
	open := NextOpen(early)
	want := time.Date(2026, 8, 19, 9, 15, 0, 0, IST)
	if !open.Equal(want) {
		t.Fatalf("NextOpen = %v, want %v", open, want)
	}
}

func TestTimeUntilClose(t *testing.T) {
	at := time.Date(2026, 8, 19, 15, 0, 0, 0, IST)
	if d := TimeUntilClose(at); d != 30*time.Minute {
		t.Errorf("TimeUntilClose = %v, want 30m", d)
	}
	after := time.Date(2026, 8, 19, 16, 0, 0, 0, IST)
	if d := TimeUntilClose(after); d != 0 {
		t.Errorf("TimeUntilClose after close = %v, want 0", d)
	}
}
