package model

import "time"

// PivotKind identifies the series a pivot belongs to and its direction.
type PivotKind string

const (
	PriceHigh PivotKind = "PRICE_HIGH"
	PriceLow  PivotKind = "PRICE_LOW"
	RSIHigh   PivotKind = "RSI_HIGH"
	RSILow    PivotKind = "RSI_LOW"
)

// Pivot is a confirmed strict local extremum. A pivot at index i is
// confirmed only once lookforward candles exist after i; confirmed pivots
// are immutable and never retracted.
type Pivot struct {
	Index int       `json:"index"` // absolute candle index since engine start
	TS    time.Time `json:"ts"`    // timestamp of the pivot candle
	Kind  PivotKind `json:"kind"`
	Value float64   `json:"value"` // candle High/Low for price kinds, RSI value otherwise
}
