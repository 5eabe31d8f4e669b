package angel

import (
	"testing"
	"time"
)

func TestParseRows(t *testing.T) {
	rows := []any{
		[]any{"2026-02-02T09:15:00+05:30", 100.0, 101.0, 99.0, 100.5, 1200.0},
		[]any{"2026-02-02T09:20:00+05:30", 100.5, 102.0, 100.0, 101.5, 900.0},
	}
	candles, err := parseRows(rows, "Nifty50")
	if err != nil {
		t.Fatal(err)
	}
	if len(candles) != 2 {
		t.Fatalf("expected 2 candles, got %d", len(candles))
	}

	c := candles[0]
	if c.Symbol != "Nifty50" || c.Open != 100 || c.High != 101 || c.Low != 99 || c.Close != 100.5 {
		t.Errorf("unexpected candle: %+v", c)
	}
	// 09:15 IST is 03:45 UTC.
	want := time.Date(2026, 2, 2, 3, 45, 0, 0, time.UTC)
	if !c.TS.Equal(want) {
		t.Errorf("TS: got %v, want %v", c.TS, want)
	}
	if !c.Valid() {
		t.Error("parsed candle should validate")
	}
}

func TestParseRows_Malformed(t *testing.T) {
	cases := [][]any{
		{[]any{"2026-02-02T09:15:00+05:30", 100.0}},                      // short row
		{[]any{12345.0, 100.0, 101.0, 99.0, 100.5, 1.0}},                 // non-string ts
		{[]any{"not-a-time", 100.0, 101.0, 99.0, 100.5, 1.0}},            // bad ts
		{[]any{"2026-02-02T09:15:00+05:30", "x", 101.0, 99.0, 100.5, 1.0}}, // non-numeric
	}
	for i, rows := range cases {
		if _, err := parseRows(rows, "Nifty50"); err == nil {
			t.Errorf("case %d: expected error", i)
		}
	}
}

func TestPeriodFor(t *testing.T) {
	if got := PeriodFor("FIFTEEN_MINUTE"); got != 15*time.Minute {
		t.Errorf("PeriodFor(FIFTEEN_MINUTE) = %v", got)
	}
	if got := PeriodFor("unknown"); got != 5*time.Minute {
		t.Errorf("PeriodFor(unknown) = %v, want 5m default", got)
	}
}
