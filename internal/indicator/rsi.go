package indicator

import (
	"time"

	"rsidivbot/internal/model"
)

// RSI computes the Relative Strength Index using Wilder's smoothing method.
type RSI struct {
	period    int
	count     int
	prevClose float64
	avgGain   float64
	avgLoss   float64
	current   float64
}

// NewRSI creates an RSI indicator with the given period (typically 14).
func NewRSI(period int) *RSI {
	return &RSI{period: period}
}

// Update feeds the next close price. ok is false for the first `period`
// candles while the smoothing seed accumulates.
func (r *RSI) Update(ts time.Time, close float64) (model.RSIPoint, bool) {
	r.count++

	if r.count == 1 {
		// First candle: just record the price, no delta yet
		r.prevClose = close
		return model.RSIPoint{}, false
	}

	delta := close - r.prevClose
	r.prevClose = close

	gain, loss := 0.0, 0.0
	if delta > 0 {
		gain = delta
	} else {
		loss = -delta
	}

	if r.count <= r.period {
		// Accumulation phase: build the initial averages
		r.avgGain += gain
		r.avgLoss += loss
		return model.RSIPoint{}, false
	}

	if r.count == r.period+1 {
		// First value: SMA seed over the first `period` deltas
		r.avgGain = (r.avgGain + gain) / float64(r.period)
		r.avgLoss = (r.avgLoss + loss) / float64(r.period)
	} else {
		// Wilder's smoothing: avg = (prevAvg*(period-1) + x) / period
		p := float64(r.period)
		r.avgGain = (r.avgGain*(p-1) + gain) / p
		r.avgLoss = (r.avgLoss*(p-1) + loss) / p
	}

	if r.avgLoss == 0 {
		r.current = 100.0
	} else {
		rs := r.avgGain / r.avgLoss
		r.current = 100.0 - (100.0 / (1.0 + rs))
	}
	return model.RSIPoint{TS: ts, Value: r.current}, true
}

// Value returns the most recent RSI value (0 before the first value).
func (r *RSI) Value() float64 { return r.current }

// Ready reports whether the warm-up period has elapsed.
func (r *RSI) Ready() bool { return r.count > r.period }
