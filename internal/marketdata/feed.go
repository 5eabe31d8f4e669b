// Package marketdata defines the candle feed contract and the candle-close
// scheduler shared by the polling feeds.
package marketdata

import (
	"context"
	"errors"

	"rsidivbot/internal/model"
)

// ErrMarketClosed is returned by session-bound feeds outside trading hours.
var ErrMarketClosed = errors.New("market closed")

// Source fetches the most recent closed candles, oldest first. The last
// element is the newest closed candle; a still-forming candle is never
// included.
type Source interface {
	FetchCandles(ctx context.Context, count int) ([]model.Candle, error)
}
