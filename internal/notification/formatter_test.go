package notification

import (
	"strings"
	"testing"
	"time"

	"rsidivbot/internal/model"
)

var fmtTS = time.Date(2026, 2, 2, 10, 30, 0, 0, time.UTC)

func TestFormatter_BearishDivergence(t *testing.T) {
	f := Formatter{Symbol: "BTCUSD", Timeframe: "5m"}
	a := f.Divergence(model.DivergenceEvent{
		Type:          model.Bearish,
		BreakoutLevel: 109,
		Close:         109.5,
		RSI:           55,
		TS:            fmtTS,
	})

	if a.Level != AlertWarning {
		t.Errorf("level: got %s", a.Level)
	}
	if !strings.Contains(a.Title, "Bearish RSI Divergence") {
		t.Errorf("title: %q", a.Title)
	}
	for _, want := range []string{"BTCUSD", "5m", "2026-02-02 10:30 UTC", "109.50", "SELL break below 109.00"} {
		if !strings.Contains(a.Message, want) {
			t.Errorf("message missing %q:\n%s", want, a.Message)
		}
	}
}

func TestFormatter_SellSignal(t *testing.T) {
	f := Formatter{Symbol: "BTCUSD", Timeframe: "5m", RSIBuyMin: 40, RSISellMax: 60}
	a := f.Signal(model.SignalEvent{
		Type:              model.SignalSell,
		BreakoutLevel:     109,
		RSIAtConfirmation: 55,
		Close:             108,
		TS:                fmtTS,
	})

	if a.Level != AlertCritical {
		t.Errorf("level: got %s", a.Level)
	}
	if !strings.Contains(a.Title, "SELL CONFIRMED") {
		t.Errorf("title: %q", a.Title)
	}
	if !strings.Contains(a.Message, "RSI < 60") {
		t.Errorf("message missing the filter note:\n%s", a.Message)
	}
}

func TestFormatter_BuySignal(t *testing.T) {
	f := Formatter{Symbol: "NIFTY50", Timeframe: "15m", RSIBuyMin: 40, RSISellMax: 60}
	a := f.Signal(model.SignalEvent{
		Type:              model.SignalBuy,
		BreakoutLevel:     92,
		RSIAtConfirmation: 47,
		Close:             93,
		TS:                fmtTS,
	})
	if !strings.Contains(a.Title, "BUY CONFIRMED") || !strings.Contains(a.Message, "RSI > 40") {
		t.Errorf("unexpected alert: %+v", a)
	}
}

func TestFormatter_SignalUsesConfiguredThresholds(t *testing.T) {
	f := Formatter{Symbol: "BTCUSD", Timeframe: "5m", RSIBuyMin: 35, RSISellMax: 55}

	sell := f.Signal(model.SignalEvent{Type: model.SignalSell, BreakoutLevel: 109, TS: fmtTS})
	if !strings.Contains(sell.Message, "RSI < 55") {
		t.Errorf("sell message should state the configured ceiling:\n%s", sell.Message)
	}
	buy := f.Signal(model.SignalEvent{Type: model.SignalBuy, BreakoutLevel: 92, TS: fmtTS})
	if !strings.Contains(buy.Message, "RSI > 35") {
		t.Errorf("buy message should state the configured floor:\n%s", buy.Message)
	}
}

func TestFormatter_Expired(t *testing.T) {
	f := Formatter{Symbol: "BTCUSD", Timeframe: "5m"}
	a := f.Expired(&model.DivergenceRecord{
		Type:          model.Bullish,
		BreakoutLevel: 92,
		CreatedTS:     fmtTS,
		State:         model.StateExpired,
	}, fmtTS.Add(3*time.Hour))

	if a.Level != AlertInfo {
		t.Errorf("level: got %s", a.Level)
	}
	if !strings.Contains(a.Message, "92.00 never broke") {
		t.Errorf("message: %s", a.Message)
	}
}
