// Package divergence implements the RSI divergence detection core: fractal
// pivot confirmation, consecutive-pivot divergence classification, and
// breakout confirmation tracking, advanced one closed candle at a time.
package divergence

import (
	"math"

	"rsidivbot/internal/model"
)

// PivotDetector confirms strict local extrema over a symmetric window.
// A point at index i is a PriceHigh pivot iff its High is strictly greater
// than every High in [i-lookback, i+lookforward] excluding i itself;
// PriceLow, RSIHigh and RSILow are symmetric. Ties never qualify.
type PivotDetector struct {
	lookback    int
	lookforward int
}

// NewPivotDetector creates a detector with the given window halves.
func NewPivotDetector(lookback, lookforward int) *PivotDetector {
	return &PivotDetector{lookback: lookback, lookforward: lookforward}
}

// Scan evaluates window position pos (absolute index base+pos) and returns
// every pivot kind confirmed there. The caller invokes Scan exactly once
// per index, at the candle where the index becomes eligible (lookforward
// candles after it). rsi entries are NaN while the indicator warms up; a
// window containing NaN yields no RSI pivot.
func (d *PivotDetector) Scan(candles []model.Candle, rsi []float64, pos, base int) []model.Pivot {
	if pos-d.lookback < 0 || pos+d.lookforward > len(candles)-1 {
		return nil
	}

	abs := base + pos
	c := candles[pos]
	var out []model.Pivot

	if d.strict(pos, +1, func(i int) float64 { return candles[i].High }) {
		out = append(out, model.Pivot{Index: abs, TS: c.TS, Kind: model.PriceHigh, Value: c.High})
	}
	if d.strict(pos, -1, func(i int) float64 { return candles[i].Low }) {
		out = append(out, model.Pivot{Index: abs, TS: c.TS, Kind: model.PriceLow, Value: c.Low})
	}

	if d.rsiWindowComplete(rsi, pos) {
		if d.strict(pos, +1, func(i int) float64 { return rsi[i] }) {
			out = append(out, model.Pivot{Index: abs, TS: c.TS, Kind: model.RSIHigh, Value: rsi[pos]})
		}
		if d.strict(pos, -1, func(i int) float64 { return rsi[i] }) {
			out = append(out, model.Pivot{Index: abs, TS: c.TS, Kind: model.RSILow, Value: rsi[pos]})
		}
	}

	return out
}

// strict reports whether get(pos) is strictly beyond every other value in
// the closed window; dir=+1 checks for a maximum, dir=-1 for a minimum.
func (d *PivotDetector) strict(pos, dir int, get func(int) float64) bool {
	v := get(pos)
	for i := pos - d.lookback; i <= pos+d.lookforward; i++ {
		if i == pos {
			continue
		}
		o := get(i)
		if dir > 0 && o >= v {
			return false
		}
		if dir < 0 && o <= v {
			return false
		}
	}
	return true
}

func (d *PivotDetector) rsiWindowComplete(rsi []float64, pos int) bool {
	for i := pos - d.lookback; i <= pos+d.lookforward; i++ {
		if math.IsNaN(rsi[i]) {
			return false
		}
	}
	return true
}
