package delta

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"rsidivbot/internal/model"
	"rsidivbot/internal/ringbuf"
)

// DefaultWSURL is the production Delta Exchange India websocket endpoint.
const DefaultWSURL = "wss://socket.india.delta.exchange"

// wsEnvelope is a candlestick channel update. Delta streams the forming
// candle repeatedly; CandleStartTime moves forward when a new candle
// opens, which is the moment the previous one closed.
type wsEnvelope struct {
	Type            string  `json:"type"`
	Symbol          string  `json:"symbol"`
	CandleStartTime int64   `json:"candle_start_time"` // microseconds
	Open            float64 `json:"open"`
	High            float64 `json:"high"`
	Low             float64 `json:"low"`
	Close           float64 `json:"close"`
	Volume          float64 `json:"volume"`
}

// WSFeed streams closed candles from the Delta candlestick channel into a
// ring buffer. It owns the producer side of the ring; the detection loop
// pops from the other end.
type WSFeed struct {
	url        string
	symbol     string
	resolution string
	ring       *ringbuf.Ring

	// OnReconnect is called before every reconnection attempt.
	OnReconnect func()

	pending    model.Candle
	hasPending bool
}

// NewWSFeed creates a websocket candle feed. url may be empty for the
// production endpoint.
func NewWSFeed(url, symbol, resolution string, ring *ringbuf.Ring) *WSFeed {
	if url == "" {
		url = DefaultWSURL
	}
	return &WSFeed{url: url, symbol: symbol, resolution: resolution, ring: ring}
}

// Run connects, subscribes and pumps closed candles into the ring until
// ctx is cancelled. Connection failures reconnect with exponential
// backoff; the error return is ctx.Err() only.
func (f *WSFeed) Run(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = 30 * time.Second
	bo.MaxElapsedTime = 0 // retry until cancelled

	for {
		if err := f.session(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			wait := bo.NextBackOff()
			log.Printf("[delta-ws] session ended: %v, reconnecting in %s", err, wait)
			if f.OnReconnect != nil {
				f.OnReconnect()
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			continue
		}
		bo.Reset()
	}
}

// session runs one connection: dial, subscribe, read until error or
// cancellation.
func (f *WSFeed) session(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	channel := "candlestick_" + f.resolution
	sub := map[string]any{
		"type": "subscribe",
		"payload": map[string]any{
			"channels": []map[string]any{
				{"name": channel, "symbols": []string{f.symbol}},
			},
		},
	}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	log.Printf("[delta-ws] subscribed to %s for %s", channel, f.symbol)

	// Unblock ReadMessage on cancellation.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read: %w", err)
		}

		var env wsEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			log.Printf("[delta-ws] unmarshal: %v", err)
			continue
		}
		if env.Type != channel || env.Symbol != f.symbol {
			continue
		}
		f.observe(env)
	}
}

// observe tracks the forming candle and emits the previous one when a new
// candle_start_time appears.
func (f *WSFeed) observe(env wsEnvelope) {
	ts := time.Unix(0, env.CandleStartTime*int64(time.Microsecond)).UTC()
	c := model.Candle{
		Symbol: env.Symbol,
		TS:     ts,
		Open:   env.Open, High: env.High, Low: env.Low, Close: env.Close,
		Volume: env.Volume,
	}

	if f.hasPending && !c.TS.Equal(f.pending.TS) {
		if !f.ring.Push(f.pending) {
			log.Printf("[delta-ws] ring full, dropped closed candle %s", f.pending.TS)
		}
	}
	f.pending = c
	f.hasPending = true
}
