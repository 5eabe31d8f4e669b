package divergence

import (
	"testing"
	"time"

	"rsidivbot/internal/model"
)

func pv(kind model.PivotKind, index int, value float64) model.Pivot {
	base := time.Date(2026, 2, 2, 10, 0, 0, 0, time.UTC)
	return model.Pivot{
		Index: index,
		TS:    base.Add(time.Duration(index) * 5 * time.Minute),
		Kind:  kind,
		Value: value,
	}
}

func TestClassifier_BearishExactAlignment(t *testing.T) {
	c := NewClassifier(2)

	// First pair: price high 105 with RSI high 70 at index 10.
	cands := c.Observe([]model.Pivot{pv(model.PriceHigh, 10, 105), pv(model.RSIHigh, 10, 70)}, 10)
	if len(cands) != 0 {
		t.Fatalf("first pair must not classify, got %v", cands)
	}

	// Second pair: higher price high, lower RSI high — bearish.
	cands = c.Observe([]model.Pivot{pv(model.PriceHigh, 20, 110), pv(model.RSIHigh, 20, 55)}, 20)
	if len(cands) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(cands))
	}
	cand := cands[0]
	if cand.Type != model.Bearish {
		t.Errorf("type: got %s, want %s", cand.Type, model.Bearish)
	}
	if cand.PriceExtreme != 110 || cand.RSIExtreme != 55 {
		t.Errorf("extremes: got price=%.1f rsi=%.1f", cand.PriceExtreme, cand.RSIExtreme)
	}
	if cand.Prior.Index != 10 || cand.Current.Index != 20 {
		t.Errorf("pivot pair: prior=%d current=%d", cand.Prior.Index, cand.Current.Index)
	}
}

func TestClassifier_BullishExactAlignment(t *testing.T) {
	c := NewClassifier(2)

	c.Observe([]model.Pivot{pv(model.PriceLow, 10, 95), pv(model.RSILow, 10, 30)}, 10)
	cands := c.Observe([]model.Pivot{pv(model.PriceLow, 20, 90), pv(model.RSILow, 20, 42)}, 20)
	if len(cands) != 1 || cands[0].Type != model.Bullish {
		t.Fatalf("expected bullish candidate, got %v", cands)
	}
}

func TestClassifier_NoDivergenceWhenTrendsAgree(t *testing.T) {
	c := NewClassifier(2)

	c.Observe([]model.Pivot{pv(model.PriceHigh, 10, 105), pv(model.RSIHigh, 10, 55)}, 10)
	// Higher high in both price and RSI — momentum confirms the move.
	cands := c.Observe([]model.Pivot{pv(model.PriceHigh, 20, 110), pv(model.RSIHigh, 20, 70)}, 20)
	if len(cands) != 0 {
		t.Fatalf("agreeing trends must not classify, got %v", cands)
	}
}

func TestClassifier_ToleranceAlignment(t *testing.T) {
	c := NewClassifier(2)

	c.Observe([]model.Pivot{pv(model.PriceHigh, 10, 105), pv(model.RSIHigh, 10, 70)}, 10)

	// Price pivot at 20, RSI pivot one candle earlier at 19: not exact, so
	// the pivot stays pending until index 22 (all RSI pivots within ±2
	// decided), then the nearest aligned pivot wins.
	c.Observe([]model.Pivot{pv(model.RSIHigh, 19, 58)}, 19)
	cands := c.Observe([]model.Pivot{pv(model.PriceHigh, 20, 110)}, 20)
	if len(cands) != 0 {
		t.Fatalf("pivot must stay pending until the tolerance window closes, got %v", cands)
	}
	cands = c.Observe(nil, 21)
	if len(cands) != 0 {
		t.Fatalf("tolerance window still open at 21, got %v", cands)
	}
	cands = c.Observe(nil, 22)
	if len(cands) != 1 || cands[0].Type != model.Bearish || cands[0].RSIExtreme != 58 {
		t.Fatalf("expected bearish candidate with RSI 58, got %v", cands)
	}
}

func TestClassifier_NoAlignedRSIPivot(t *testing.T) {
	c := NewClassifier(2)

	c.Observe([]model.Pivot{pv(model.PriceHigh, 10, 105), pv(model.RSIHigh, 10, 70)}, 10)

	// Price pivot at 20 with no RSI pivot within ±2: no classification,
	// but the pivot still becomes the prior for the next comparison.
	if cands := c.Observe([]model.Pivot{pv(model.PriceHigh, 20, 110)}, 20); len(cands) != 0 {
		t.Fatalf("expected no candidate at 20, got %v", cands)
	}
	for i := 21; i <= 22; i++ {
		if cands := c.Observe(nil, i); len(cands) != 0 {
			t.Fatalf("index %d: expected no candidate, got %v", i, cands)
		}
	}

	// Third pivot pair diverges against the unmatched second pivot — the
	// second pair is missing its RSI side, so still no candidate.
	cands := c.Observe([]model.Pivot{pv(model.PriceHigh, 30, 115), pv(model.RSIHigh, 30, 50)}, 30)
	if len(cands) != 0 {
		t.Fatalf("comparison against an unmatched prior must not classify, got %v", cands)
	}
}
