package model

import (
	"encoding/json"
	"time"
)

// DivergenceType classifies a price/RSI divergence.
type DivergenceType string

const (
	Bearish DivergenceType = "BEARISH"
	Bullish DivergenceType = "BULLISH"
)

// SignalType is the direction of a confirmed trade signal.
type SignalType string

const (
	SignalBuy  SignalType = "BUY"
	SignalSell SignalType = "SELL"
)

// RecordState is the lifecycle state of a DivergenceRecord. Transitions are
// one-way: Open is the only non-terminal state.
type RecordState string

const (
	StateOpen          RecordState = "OPEN"
	StateConfirmedBuy  RecordState = "CONFIRMED_BUY"
	StateConfirmedSell RecordState = "CONFIRMED_SELL"
	StateExpired       RecordState = "EXPIRED"
)

// DivergenceRecord tracks one detected divergence from creation until it
// confirms, expires, or is superseded. Owned exclusively by the
// confirmation tracker while Open.
type DivergenceRecord struct {
	Type          DivergenceType `json:"type"`
	Prior         Pivot          `json:"prior"`   // previous price pivot of the same kind
	Current       Pivot          `json:"current"` // price pivot that completed the divergence
	PriceExtreme  float64        `json:"price_extreme"`
	RSIExtreme    float64        `json:"rsi_extreme"`
	BreakoutLevel float64        `json:"breakout_level"` // pivot-candle Low (bearish) or High (bullish)
	CreatedIndex  int            `json:"created_index"`  // candle index at which the record opened
	CreatedTS     time.Time      `json:"created_ts"`
	State         RecordState    `json:"state"`
}

// DivergenceEvent is emitted when the classifier finds a qualifying pivot
// pair, at the candle where the newer pivot confirms.
type DivergenceEvent struct {
	Type          DivergenceType `json:"type"`
	PriceExtreme  float64        `json:"price_extreme"`
	RSIExtreme    float64        `json:"rsi_extreme"`
	BreakoutLevel float64        `json:"breakout_level"`
	Close         float64        `json:"close"` // close of the detection candle
	RSI           float64        `json:"rsi"`   // RSI at the detection candle
	TS            time.Time      `json:"ts"`
}

// SignalEvent is emitted exactly once per record when a breakout candle
// passes the RSI filter.
type SignalEvent struct {
	Type              SignalType `json:"type"`
	BreakoutLevel     float64    `json:"breakout_level"`
	RSIAtConfirmation float64    `json:"rsi_at_confirmation"`
	Close             float64    `json:"close"`
	TS                time.Time  `json:"ts"`
}

// JSON returns the JSON-encoded event.
func (e *DivergenceEvent) JSON() []byte {
	b, _ := json.Marshal(e)
	return b
}

// JSON returns the JSON-encoded event.
func (e *SignalEvent) JSON() []byte {
	b, _ := json.Marshal(e)
	return b
}
