// Package model defines the data types shared across the bot: candles,
// RSI points, pivots, divergence records, and the events the engine emits.
package model

import (
	"encoding/json"
	"math"
	"time"
)

// Candle is one closed OHLC candle for the monitored instrument.
// Immutable once appended; the series has strictly increasing timestamps
// and a fixed period length (e.g. 5 minutes).
type Candle struct {
	Symbol string    `json:"symbol"`
	TS     time.Time `json:"ts"` // bucket start time (UTC, period-aligned)
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Valid reports whether every price field is finite and non-negative and
// the High/Low range actually contains Open and Close.
func (c *Candle) Valid() bool {
	for _, v := range [...]float64{c.Open, c.High, c.Low, c.Close, c.Volume} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return false
		}
	}
	if c.High < c.Low {
		return false
	}
	if c.Open > c.High || c.Open < c.Low || c.Close > c.High || c.Close < c.Low {
		return false
	}
	return true
}

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}

// RSIPoint is one RSI value, aligned 1:1 with a candle once the warm-up
// period has elapsed.
type RSIPoint struct {
	TS    time.Time `json:"ts"`
	Value float64   `json:"value"` // always in [0,100]
}

// JSON returns the JSON-encoded point.
func (p *RSIPoint) JSON() []byte {
	b, _ := json.Marshal(p)
	return b
}
