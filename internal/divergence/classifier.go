package divergence

import "rsidivbot/internal/model"

// maxRecentRSIPivots bounds the per-side RSI pivot history kept for
// alignment lookups.
const maxRecentRSIPivots = 8

// Candidate is a freshly classified divergence handed to the tracker.
type Candidate struct {
	Type         model.DivergenceType
	Prior        model.Pivot // previous price pivot of the same kind
	Current      model.Pivot // price pivot that completed the divergence
	PriceExtreme float64     // Current.Value
	RSIExtreme   float64     // aligned RSI pivot value at Current
}

// Classifier pairs each confirmed price pivot with its temporally aligned
// RSI pivot (same index, or nearest within ±tolerance) and compares
// consecutive pairs per side: a higher price high with a lower RSI high is
// bearish, a lower price low with a higher RSI low is bullish. Only the
// most recent resolved pair per side is retained; older pivots are
// discarded.
type Classifier struct {
	tol   int
	highs classifierSide
	lows  classifierSide
}

type classifierSide struct {
	rsiPivots []model.Pivot // recent confirmed RSI pivots, ascending index
	pending   []model.Pivot // price pivots awaiting an aligned RSI pivot
	last      *pivotPair    // most recent resolved price pivot
}

type pivotPair struct {
	price  model.Pivot
	rsi    model.Pivot
	hasRSI bool
}

// NewClassifier creates a classifier with the given alignment tolerance in
// candle indices.
func NewClassifier(tolerance int) *Classifier {
	return &Classifier{tol: tolerance}
}

// Observe ingests the pivots confirmed at evalIndex (may be empty) and
// returns any divergence candidates that became classifiable. Must be
// called once per evaluated index so pending alignments resolve on time.
func (c *Classifier) Observe(pivots []model.Pivot, evalIndex int) []Candidate {
	for _, p := range pivots {
		switch p.Kind {
		case model.PriceHigh:
			c.highs.pending = append(c.highs.pending, p)
		case model.PriceLow:
			c.lows.pending = append(c.lows.pending, p)
		case model.RSIHigh:
			c.highs.addRSI(p)
		case model.RSILow:
			c.lows.addRSI(p)
		}
	}

	var out []Candidate
	if cand, ok := c.highs.resolve(c.tol, evalIndex, bearishOf); ok {
		out = append(out, cand)
	}
	if cand, ok := c.lows.resolve(c.tol, evalIndex, bullishOf); ok {
		out = append(out, cand)
	}
	return out
}

func (s *classifierSide) addRSI(p model.Pivot) {
	s.rsiPivots = append(s.rsiPivots, p)
	if len(s.rsiPivots) > maxRecentRSIPivots {
		n := copy(s.rsiPivots, s.rsiPivots[len(s.rsiPivots)-maxRecentRSIPivots:])
		s.rsiPivots = s.rsiPivots[:n]
	}
}

// resolve advances the pending queue. A price pivot resolves immediately
// when an RSI pivot confirmed at the exact same index; otherwise it waits
// until every RSI pivot within the tolerance window is decided (evalIndex
// reached index+tol) and takes the nearest one, earlier index on ties.
// Price pivots with no aligned RSI pivot still become the prior pivot but
// cannot classify a divergence.
func (s *classifierSide) resolve(tol, evalIndex int, classify func(prev, cur pivotPair) (Candidate, bool)) (Candidate, bool) {
	var (
		cand  Candidate
		found bool
	)
	for len(s.pending) > 0 {
		p := s.pending[0]
		rsi, exact, ok := s.nearestRSI(p.Index, tol)
		if !exact && evalIndex < p.Index+tol {
			break // a closer RSI pivot may still confirm
		}
		s.pending = s.pending[1:]

		cur := pivotPair{price: p, rsi: rsi, hasRSI: ok}
		if s.last != nil && s.last.hasRSI && cur.hasRSI {
			if c, hit := classify(*s.last, cur); hit {
				cand, found = c, true
			}
		}
		last := cur
		s.last = &last
	}
	return cand, found
}

// nearestRSI returns the RSI pivot closest to index within tol.
func (s *classifierSide) nearestRSI(index, tol int) (best model.Pivot, exact, ok bool) {
	bestDist := tol + 1
	for _, r := range s.rsiPivots {
		d := r.Index - index
		if d < 0 {
			d = -d
		}
		if d < bestDist {
			bestDist = d
			best = r
			ok = true
		}
	}
	return best, ok && bestDist == 0, ok
}

func bearishOf(prev, cur pivotPair) (Candidate, bool) {
	// Price makes a higher high while RSI makes a lower high.
	if cur.price.Value > prev.price.Value && cur.rsi.Value < prev.rsi.Value {
		return Candidate{
			Type:         model.Bearish,
			Prior:        prev.price,
			Current:      cur.price,
			PriceExtreme: cur.price.Value,
			RSIExtreme:   cur.rsi.Value,
		}, true
	}
	return Candidate{}, false
}

func bullishOf(prev, cur pivotPair) (Candidate, bool) {
	// Price makes a lower low while RSI makes a higher low.
	if cur.price.Value < prev.price.Value && cur.rsi.Value > prev.rsi.Value {
		return Candidate{
			Type:         model.Bullish,
			Prior:        prev.price,
			Current:      cur.price,
			PriceExtreme: cur.price.Value,
			RSIExtreme:   cur.rsi.Value,
		}, true
	}
	return Candidate{}, false
}
