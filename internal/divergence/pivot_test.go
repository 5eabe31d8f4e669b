package divergence

import (
	"math"
	"testing"
	"time"

	"rsidivbot/internal/model"
)

// series builds a candle window from (high, low) pairs with neutral
// open/close inside the range.
func series(hl [][2]float64) []model.Candle {
	out := make([]model.Candle, len(hl))
	base := time.Date(2026, 2, 2, 10, 0, 0, 0, time.UTC)
	for i, p := range hl {
		h, l := p[0], p[1]
		out[i] = model.Candle{
			Symbol: "BTCUSD",
			TS:     base.Add(time.Duration(i) * 5 * time.Minute),
			Open:   l, High: h, Low: l, Close: (h + l) / 2,
		}
	}
	return out
}

func flatRSI(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestPivotDetector_StrictHigh(t *testing.T) {
	d := NewPivotDetector(2, 2)
	// Highs: 100 100 105 100 100 — index 2 is a strict max.
	c := series([][2]float64{{100, 99}, {100, 99}, {105, 99}, {100, 99}, {100, 99}})
	rsi := flatRSI(5, 50)

	got := d.Scan(c, rsi, 2, 0)
	if len(got) != 1 {
		t.Fatalf("expected 1 pivot, got %d (%v)", len(got), got)
	}
	p := got[0]
	if p.Kind != model.PriceHigh || p.Value != 105 || p.Index != 2 {
		t.Errorf("unexpected pivot: %+v", p)
	}
	if !p.TS.Equal(c[2].TS) {
		t.Errorf("pivot TS: got %v, want %v", p.TS, c[2].TS)
	}
}

func TestPivotDetector_StrictLow(t *testing.T) {
	d := NewPivotDetector(2, 2)
	// Lows: 99 99 95 99 99 — index 2 is a strict min.
	c := series([][2]float64{{100, 99}, {100, 99}, {100, 95}, {100, 99}, {100, 99}})
	got := d.Scan(c, flatRSI(5, 50), 2, 0)
	if len(got) != 1 || got[0].Kind != model.PriceLow || got[0].Value != 95 {
		t.Fatalf("expected PriceLow 95, got %v", got)
	}
}

func TestPivotDetector_TieDoesNotQualify(t *testing.T) {
	d := NewPivotDetector(2, 2)
	// Index 2 shares its 105 high with index 4 — not a strict max.
	c := series([][2]float64{{100, 99}, {100, 99}, {105, 99}, {100, 99}, {105, 99}})
	got := d.Scan(c, flatRSI(5, 50), 2, 0)
	if len(got) != 0 {
		t.Fatalf("tie must not qualify as a pivot, got %v", got)
	}
}

func TestPivotDetector_RSIPivot(t *testing.T) {
	d := NewPivotDetector(2, 2)
	c := series([][2]float64{{100, 99}, {100, 99}, {100, 99}, {100, 99}, {100, 99}})
	rsi := []float64{50, 52, 70, 51, 49}

	got := d.Scan(c, rsi, 2, 0)
	if len(got) != 1 || got[0].Kind != model.RSIHigh || got[0].Value != 70 {
		t.Fatalf("expected RSIHigh 70, got %v", got)
	}
}

func TestPivotDetector_NaNWindowSkipsRSI(t *testing.T) {
	d := NewPivotDetector(2, 2)
	c := series([][2]float64{{100, 99}, {100, 99}, {105, 99}, {100, 99}, {100, 99}})
	rsi := []float64{math.NaN(), 52, 70, 51, 49} // warm-up tail inside the window

	got := d.Scan(c, rsi, 2, 0)
	// Price pivot still confirms, RSI pivot must not.
	if len(got) != 1 || got[0].Kind != model.PriceHigh {
		t.Fatalf("expected only the price pivot, got %v", got)
	}
}

func TestPivotDetector_IncompleteWindow(t *testing.T) {
	d := NewPivotDetector(2, 2)
	c := series([][2]float64{{100, 99}, {105, 99}, {100, 99}})
	if got := d.Scan(c, flatRSI(3, 50), 1, 0); got != nil {
		t.Fatalf("incomplete window must not confirm pivots, got %v", got)
	}
}

func TestPivotDetector_AbsoluteIndexing(t *testing.T) {
	d := NewPivotDetector(1, 1)
	c := series([][2]float64{{100, 99}, {107, 99}, {100, 99}})
	got := d.Scan(c, flatRSI(3, 50), 1, 40) // window starts at absolute index 40
	if len(got) != 1 || got[0].Index != 41 {
		t.Fatalf("expected pivot at absolute index 41, got %v", got)
	}
}
