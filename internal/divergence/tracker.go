package divergence

import (
	"time"

	"rsidivbot/internal/model"
)

// Tracker owns the open divergence records and promotes them to confirmed
// BUY/SELL signals on breakout, or expires them. At most one Open record
// exists per divergence type; transitions are one-way and each record
// confirms at most once.
type Tracker struct {
	maxAge     int
	rsiBuyMin  float64
	rsiSellMax float64
	open       map[model.DivergenceType]*model.DivergenceRecord
}

// NewTracker creates a tracker. maxAge is the number of candles an Open
// record survives without confirmation.
func NewTracker(maxAge int, rsiBuyMin, rsiSellMax float64) *Tracker {
	return &Tracker{
		maxAge:     maxAge,
		rsiBuyMin:  rsiBuyMin,
		rsiSellMax: rsiSellMax,
		open:       make(map[model.DivergenceType]*model.DivergenceRecord, 2),
	}
}

// Admit opens a record for a newly classified divergence. An Open record of
// the same type is replaced; an Open record of the opposite type is expired
// (superseded). Returns the records that were expired by this admission.
func (t *Tracker) Admit(rec *model.DivergenceRecord) []*model.DivergenceRecord {
	var expired []*model.DivergenceRecord
	for _, typ := range []model.DivergenceType{model.Bearish, model.Bullish} {
		old, ok := t.open[typ]
		if !ok {
			continue
		}
		old.State = model.StateExpired
		delete(t.open, typ)
		expired = append(expired, old)
	}
	rec.State = model.StateOpen
	t.open[rec.Type] = rec
	return expired
}

// OnClose checks every Open record opened before candle index idx against
// the candle's close and RSI. Returns confirmations and any records that
// aged out. Records opened at idx itself are skipped — confirmation starts
// on the next candle.
func (t *Tracker) OnClose(idx int, close, rsi float64, ts time.Time) (signals []model.SignalEvent, expired []*model.DivergenceRecord) {
	for _, typ := range []model.DivergenceType{model.Bearish, model.Bullish} {
		rec, ok := t.open[typ]
		if !ok || rec.CreatedIndex >= idx {
			continue
		}

		if idx-rec.CreatedIndex > t.maxAge {
			rec.State = model.StateExpired
			delete(t.open, typ)
			expired = append(expired, rec)
			continue
		}

		switch typ {
		case model.Bearish:
			if close < rec.BreakoutLevel && rsi < t.rsiSellMax {
				rec.State = model.StateConfirmedSell
				delete(t.open, typ)
				signals = append(signals, model.SignalEvent{
					Type:              model.SignalSell,
					BreakoutLevel:     rec.BreakoutLevel,
					RSIAtConfirmation: rsi,
					Close:             close,
					TS:                ts,
				})
			}
		case model.Bullish:
			if close > rec.BreakoutLevel && rsi > t.rsiBuyMin {
				rec.State = model.StateConfirmedBuy
				delete(t.open, typ)
				signals = append(signals, model.SignalEvent{
					Type:              model.SignalBuy,
					BreakoutLevel:     rec.BreakoutLevel,
					RSIAtConfirmation: rsi,
					Close:             close,
					TS:                ts,
				})
			}
		}
	}
	return signals, expired
}

// OpenCount returns the number of records currently Open.
func (t *Tracker) OpenCount() int { return len(t.open) }
