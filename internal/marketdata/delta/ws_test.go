package delta

import (
	"testing"
	"time"

	"rsidivbot/internal/ringbuf"
)

func TestWSFeed_EmitsOnCandleRollover(t *testing.T) {
	ring := ringbuf.New(8)
	f := NewWSFeed("", "BTCUSD", "5m", ring)

	start := time.Date(2026, 2, 2, 10, 0, 0, 0, time.UTC).UnixMicro()

	// Forming candle updates: never emitted while still open.
	f.observe(wsEnvelope{Type: "candlestick_5m", Symbol: "BTCUSD",
		CandleStartTime: start, Open: 100, High: 101, Low: 99, Close: 100.2, Volume: 5})
	f.observe(wsEnvelope{Type: "candlestick_5m", Symbol: "BTCUSD",
		CandleStartTime: start, Open: 100, High: 102, Low: 99, Close: 101.5, Volume: 9})
	if ring.Len() != 0 {
		t.Fatalf("forming candle must not be emitted, ring len=%d", ring.Len())
	}

	// New candle_start_time → previous candle closed.
	f.observe(wsEnvelope{Type: "candlestick_5m", Symbol: "BTCUSD",
		CandleStartTime: start + 300_000_000, Open: 101.5, High: 101.6, Low: 101.4, Close: 101.6, Volume: 1})

	c, ok := ring.Pop()
	if !ok {
		t.Fatal("expected a closed candle in the ring")
	}
	if c.Close != 101.5 || c.High != 102 {
		t.Errorf("emitted candle should be the final update of the closed bar: %+v", c)
	}
	if !c.TS.Equal(time.UnixMicro(start).UTC()) {
		t.Errorf("candle TS: got %v", c.TS)
	}
	if ring.Len() != 0 {
		t.Errorf("only one candle should have closed")
	}
}
