// Package indicator provides streaming technical indicator calculations
// over a close-price sequence. Indicators update in O(1) per candle and
// keep no price history.
package indicator

import (
	"time"

	"rsidivbot/internal/model"
)

// Momentum is a streaming oscillator fed one close price per candle.
type Momentum interface {
	// Update feeds the next close price and returns the oscillator value
	// for that candle. ok is false while the indicator warms up.
	Update(ts time.Time, close float64) (point model.RSIPoint, ok bool)

	// Ready reports whether the warm-up period has elapsed.
	Ready() bool
}
