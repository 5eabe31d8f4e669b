package divergence

import (
	"testing"
	"time"

	"rsidivbot/internal/model"
)

func bearishRecord(createdIndex int, level float64) *model.DivergenceRecord {
	return &model.DivergenceRecord{
		Type:          model.Bearish,
		PriceExtreme:  110,
		RSIExtreme:    55,
		BreakoutLevel: level,
		CreatedIndex:  createdIndex,
		State:         model.StateOpen,
	}
}

func bullishRecord(createdIndex int, level float64) *model.DivergenceRecord {
	return &model.DivergenceRecord{
		Type:          model.Bullish,
		PriceExtreme:  90,
		RSIExtreme:    42,
		BreakoutLevel: level,
		CreatedIndex:  createdIndex,
		State:         model.StateOpen,
	}
}

func closeTS(i int) time.Time {
	return time.Date(2026, 2, 2, 10, 0, 0, 0, time.UTC).Add(time.Duration(i) * 5 * time.Minute)
}

func TestTracker_BearishConfirmsSellOnce(t *testing.T) {
	tr := NewTracker(30, 40, 60)
	tr.Admit(bearishRecord(23, 109))

	// Close below the level with RSI under the SELL ceiling.
	sigs, _ := tr.OnClose(24, 108, 55, closeTS(24))
	if len(sigs) != 1 {
		t.Fatalf("expected 1 signal, got %d", len(sigs))
	}
	s := sigs[0]
	if s.Type != model.SignalSell || s.BreakoutLevel != 109 || s.RSIAtConfirmation != 55 {
		t.Errorf("unexpected signal: %+v", s)
	}
	if tr.OpenCount() != 0 {
		t.Errorf("record should leave the open set after confirmation")
	}

	// The same conditions again must not re-emit.
	sigs, _ = tr.OnClose(25, 107, 54, closeTS(25))
	if len(sigs) != 0 {
		t.Fatalf("confirmation must be emitted exactly once, got %v", sigs)
	}
}

func TestTracker_RSIFilterBlocksConfirmation(t *testing.T) {
	tr := NewTracker(30, 40, 60)
	tr.Admit(bearishRecord(23, 109))

	// Breakout but RSI too high — no SELL yet.
	sigs, _ := tr.OnClose(24, 108, 65, closeTS(24))
	if len(sigs) != 0 {
		t.Fatalf("RSI filter should block, got %v", sigs)
	}

	// Later candle passes the filter.
	sigs, _ = tr.OnClose(25, 108, 58, closeTS(25))
	if len(sigs) != 1 || sigs[0].Type != model.SignalSell {
		t.Fatalf("expected SELL after filter passes, got %v", sigs)
	}
}

func TestTracker_BullishConfirmsBuy(t *testing.T) {
	tr := NewTracker(30, 40, 60)
	tr.Admit(bullishRecord(23, 92))

	sigs, _ := tr.OnClose(24, 93, 47, closeTS(24))
	if len(sigs) != 1 || sigs[0].Type != model.SignalBuy {
		t.Fatalf("expected BUY, got %v", sigs)
	}

	// RSI at or below the floor would not have confirmed.
	tr.Admit(bullishRecord(25, 92))
	sigs, _ = tr.OnClose(26, 93, 38, closeTS(26))
	if len(sigs) != 0 {
		t.Fatalf("RSI floor should block BUY, got %v", sigs)
	}
}

func TestTracker_NoSameCandleConfirmation(t *testing.T) {
	tr := NewTracker(30, 40, 60)
	tr.Admit(bearishRecord(23, 109))

	// Same index as creation — skipped even though conditions hold.
	sigs, _ := tr.OnClose(23, 108, 55, closeTS(23))
	if len(sigs) != 0 {
		t.Fatalf("no confirmation on the creation candle, got %v", sigs)
	}
}

func TestTracker_ExpiryAfterMaxAge(t *testing.T) {
	tr := NewTracker(5, 40, 60)
	rec := bearishRecord(10, 109)
	tr.Admit(rec)

	for i := 11; i <= 15; i++ {
		sigs, expired := tr.OnClose(i, 120, 70, closeTS(i))
		if len(sigs) != 0 || len(expired) != 0 {
			t.Fatalf("index %d: premature signal/expiry", i)
		}
	}

	_, expired := tr.OnClose(16, 120, 70, closeTS(16))
	if len(expired) != 1 || expired[0].State != model.StateExpired {
		t.Fatalf("expected expiry at age %d, got %v", 6, expired)
	}

	// Breakout after expiry must not confirm.
	sigs, _ := tr.OnClose(17, 100, 50, closeTS(17))
	if len(sigs) != 0 {
		t.Fatalf("expired record must not confirm, got %v", sigs)
	}
}

func TestTracker_OppositeDivergenceSupersedes(t *testing.T) {
	tr := NewTracker(30, 40, 60)
	bear := bearishRecord(10, 109)
	tr.Admit(bear)

	expired := tr.Admit(bullishRecord(12, 92))
	if len(expired) != 1 || expired[0] != bear {
		t.Fatalf("expected the bearish record to be superseded, got %v", expired)
	}
	if bear.State != model.StateExpired {
		t.Errorf("superseded record state: got %s", bear.State)
	}
	if tr.OpenCount() != 1 {
		t.Errorf("expected exactly one open record, got %d", tr.OpenCount())
	}

	// The bearish breakout must be dead now.
	sigs, _ := tr.OnClose(13, 108, 55, closeTS(13))
	if len(sigs) != 0 {
		t.Fatalf("superseded record must not confirm, got %v", sigs)
	}
}

func TestTracker_SameTypeReplaces(t *testing.T) {
	tr := NewTracker(30, 40, 60)
	old := bearishRecord(10, 109)
	tr.Admit(old)

	expired := tr.Admit(bearishRecord(15, 112))
	if len(expired) != 1 || expired[0] != old {
		t.Fatalf("expected the older record to be replaced, got %v", expired)
	}

	// Only the new level counts: 110 is below 112 but above 109.
	sigs, _ := tr.OnClose(16, 110, 55, closeTS(16))
	if len(sigs) != 1 || sigs[0].BreakoutLevel != 112 {
		t.Fatalf("expected SELL at the replacing level, got %v", sigs)
	}
}
