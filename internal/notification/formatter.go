package notification

import (
	"fmt"
	"time"

	"rsidivbot/internal/model"
)

// Formatter renders engine events into alerts for a single symbol and
// timeframe. The RSI thresholds mirror the tracker's confirmation filter
// so the messages state the rule that actually fired.
type Formatter struct {
	Symbol     string
	Timeframe  string
	RSIBuyMin  float64
	RSISellMax float64
}

func (f Formatter) header(ts time.Time, close, rsi float64) string {
	return fmt.Sprintf(
		"Symbol : %s  |  TF : %s\nTime   : %s\nClose  : %.2f  |  RSI : %.2f",
		f.Symbol, f.Timeframe, ts.UTC().Format("2006-01-02 15:04 UTC"), close, rsi)
}

// Divergence renders a freshly detected divergence.
func (f Formatter) Divergence(ev model.DivergenceEvent) Alert {
	if ev.Type == model.Bearish {
		return Alert{
			Level: AlertWarning,
			Title: "🔴 Bearish RSI Divergence Detected",
			Message: f.header(ev.TS, ev.Close, ev.RSI) +
				fmt.Sprintf("\n⚠️ Watch for SELL break below %.2f", ev.BreakoutLevel),
		}
	}
	return Alert{
		Level: AlertWarning,
		Title: "🟢 Bullish RSI Divergence Detected",
		Message: f.header(ev.TS, ev.Close, ev.RSI) +
			fmt.Sprintf("\n⚠️ Watch for BUY break above %.2f", ev.BreakoutLevel),
	}
}

// Signal renders a breakout confirmation.
func (f Formatter) Signal(ev model.SignalEvent) Alert {
	if ev.Type == model.SignalSell {
		return Alert{
			Level: AlertCritical,
			Title: "🔻 SELL CONFIRMED ▼",
			Message: f.header(ev.TS, ev.Close, ev.RSIAtConfirmation) +
				fmt.Sprintf("\nCandle broke below divergence low %.2f with RSI < %.0f", ev.BreakoutLevel, f.RSISellMax),
		}
	}
	return Alert{
		Level: AlertCritical,
		Title: "✅ BUY CONFIRMED ▲",
		Message: f.header(ev.TS, ev.Close, ev.RSIAtConfirmation) +
			fmt.Sprintf("\nCandle broke above divergence high %.2f with RSI > %.0f", ev.BreakoutLevel, f.RSIBuyMin),
	}
}

// Expired renders a record that aged out without confirming.
func (f Formatter) Expired(rec *model.DivergenceRecord, ts time.Time) Alert {
	return Alert{
		Level: AlertInfo,
		Title: fmt.Sprintf("⏳ %s divergence expired", rec.Type),
		Message: fmt.Sprintf(
			"Symbol : %s  |  TF : %s\nOpened : %s\nLevel  : %.2f never broke",
			f.Symbol, f.Timeframe, rec.CreatedTS.UTC().Format("2006-01-02 15:04 UTC"), rec.BreakoutLevel),
	}
}

// Startup renders the boot banner alert.
func (f Formatter) Startup(feed string) Alert {
	return Alert{
		Level:   AlertInfo,
		Title:   "🤖 RSI Divergence Bot started",
		Message: fmt.Sprintf("Symbol : %s  |  TF : %s\nFeed   : %s", f.Symbol, f.Timeframe, feed),
	}
}
