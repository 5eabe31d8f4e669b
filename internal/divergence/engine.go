package divergence

import (
	"errors"
	"fmt"
	"math"
	"time"

	"rsidivbot/internal/indicator"
	"rsidivbot/internal/model"
)

var (
	// ErrOutOfSequence is returned for a candle whose timestamp is not
	// strictly after the last accepted candle. State is left untouched;
	// the caller should resynchronize, not retry the same candle.
	ErrOutOfSequence = errors.New("candle out of sequence")

	// ErrInvalidCandle is returned for non-finite or negative OHLC values.
	// The candle is rejected and prior state is unchanged.
	ErrInvalidCandle = errors.New("invalid candle")
)

// Config holds the engine parameters. Zero fields take the defaults of the
// original strategy (RSI 14, BUY filter RSI > 40, SELL filter RSI < 60).
type Config struct {
	RSIPeriod      int     // Wilder smoothing period (default 14)
	Lookback       int     // pivot trailing half-window (default 3)
	Lookforward    int     // pivot confirmation delay (default 3)
	AlignTolerance int     // max index distance between price and RSI pivots (default 2)
	MaxOpenAge     int     // candles before an Open record expires (default 30)
	RSIBuyMin      float64 // RSI floor for BUY confirmation (default 40)
	RSISellMax     float64 // RSI ceiling for SELL confirmation (default 60)
}

func (c Config) withDefaults() Config {
	if c.RSIPeriod <= 0 {
		c.RSIPeriod = 14
	}
	if c.Lookback <= 0 {
		c.Lookback = 3
	}
	if c.Lookforward <= 0 {
		c.Lookforward = 3
	}
	if c.AlignTolerance <= 0 {
		c.AlignTolerance = 2
	}
	if c.MaxOpenAge <= 0 {
		c.MaxOpenAge = 30
	}
	if c.RSIBuyMin <= 0 {
		c.RSIBuyMin = 40
	}
	if c.RSISellMax <= 0 {
		c.RSISellMax = 60
	}
	return c
}

// Result is everything one candle produced.
type Result struct {
	RSI         *model.RSIPoint // nil during warm-up
	Pivots      []model.Pivot   // pivots confirmed at this candle
	Divergences []model.DivergenceEvent
	Signals     []model.SignalEvent
	Expired     []*model.DivergenceRecord // records that aged out or were superseded
}

// Engine is the divergence detection core: a deterministic state machine
// advanced one closed candle at a time. Replaying the same candle sequence
// from a fresh engine yields the same event sequence. Not safe for
// concurrent use; the processing loop owns it.
type Engine struct {
	cfg Config

	momentum indicator.Momentum
	detector *PivotDetector
	class    *Classifier
	tracker  *Tracker

	window []model.Candle // trailing candles; window[0] has absolute index base
	rsi    []float64      // aligned with window; NaN during warm-up
	base   int
	count  int // total candles accepted
	lastTS time.Time
	limit  int // retained window size
}

// NewEngine creates an engine with a Wilder RSI oscillator.
func NewEngine(cfg Config) *Engine {
	cfg = cfg.withDefaults()
	return NewEngineWith(cfg, indicator.NewRSI(cfg.RSIPeriod))
}

// NewEngineWith creates an engine with an injected momentum oscillator.
func NewEngineWith(cfg Config, m indicator.Momentum) *Engine {
	cfg = cfg.withDefaults()
	span := cfg.Lookback + cfg.Lookforward + cfg.AlignTolerance
	if cfg.RSIPeriod > span {
		span = cfg.RSIPeriod
	}
	return &Engine{
		cfg:      cfg,
		momentum: m,
		detector: NewPivotDetector(cfg.Lookback, cfg.Lookforward),
		class:    NewClassifier(cfg.AlignTolerance),
		tracker:  NewTracker(cfg.MaxOpenAge, cfg.RSIBuyMin, cfg.RSISellMax),
		limit:    span + 8,
	}
}

// OpenRecords returns the number of divergence records currently Open.
func (e *Engine) OpenRecords() int { return e.tracker.OpenCount() }

// LastTS returns the timestamp of the last accepted candle (zero before
// the first).
func (e *Engine) LastTS() time.Time { return e.lastTS }

// Update advances the engine by one closed candle and returns everything
// that candle produced. A rejected candle (ErrInvalidCandle,
// ErrOutOfSequence) leaves all state exactly as before the call.
func (e *Engine) Update(c model.Candle) (Result, error) {
	var res Result

	if !c.Valid() {
		return res, fmt.Errorf("%w: ts=%s ohlc=%g/%g/%g/%g",
			ErrInvalidCandle, c.TS.UTC().Format(time.RFC3339), c.Open, c.High, c.Low, c.Close)
	}
	if e.count > 0 && !c.TS.After(e.lastTS) {
		return res, fmt.Errorf("%w: got %s, last accepted %s",
			ErrOutOfSequence, c.TS.UTC().Format(time.RFC3339), e.lastTS.UTC().Format(time.RFC3339))
	}

	// Validation passed — state advances from here on.
	e.lastTS = c.TS
	idx := e.count // absolute index of this candle
	e.count++
	e.window = append(e.window, c)

	point, ok := e.momentum.Update(c.TS, c.Close)
	if ok {
		e.rsi = append(e.rsi, point.Value)
		res.RSI = &point
	} else {
		e.rsi = append(e.rsi, math.NaN())
	}

	// The index lookforward candles back just became eligible.
	evalAbs := idx - e.cfg.Lookforward
	if evalAbs >= e.cfg.Lookback {
		res.Pivots = e.detector.Scan(e.window, e.rsi, evalAbs-e.base, e.base)
	}

	// Classify and admit new divergences before checking breakouts, so a
	// fresh divergence supersedes the opposite side on this candle but
	// cannot confirm itself until the next one.
	if evalAbs >= 0 {
		for _, cand := range e.class.Observe(res.Pivots, evalAbs) {
			rec, okRec := e.newRecord(cand, idx, c.TS)
			if !okRec {
				continue
			}
			res.Expired = append(res.Expired, e.tracker.Admit(rec)...)
			res.Divergences = append(res.Divergences, model.DivergenceEvent{
				Type:          rec.Type,
				PriceExtreme:  rec.PriceExtreme,
				RSIExtreme:    rec.RSIExtreme,
				BreakoutLevel: rec.BreakoutLevel,
				Close:         c.Close,
				RSI:           point.Value,
				TS:            c.TS,
			})
		}
	}

	signals, expired := e.tracker.OnClose(idx, c.Close, point.Value, c.TS)
	res.Signals = signals
	res.Expired = append(res.Expired, expired...)

	e.trim()
	return res, nil
}

// newRecord builds the Open record for a candidate: the breakout reference
// is the Low of the pivot candle for a bearish divergence (a later close
// below it confirms SELL) and the High for a bullish one.
func (e *Engine) newRecord(cand Candidate, idx int, ts time.Time) (*model.DivergenceRecord, bool) {
	pos := cand.Current.Index - e.base
	if pos < 0 || pos >= len(e.window) {
		return nil, false // pivot candle already evicted; cannot happen with the sized window
	}
	pc := e.window[pos]

	level := pc.Low
	if cand.Type == model.Bullish {
		level = pc.High
	}
	return &model.DivergenceRecord{
		Type:          cand.Type,
		Prior:         cand.Prior,
		Current:       cand.Current,
		PriceExtreme:  cand.PriceExtreme,
		RSIExtreme:    cand.RSIExtreme,
		BreakoutLevel: level,
		CreatedIndex:  idx,
		CreatedTS:     ts,
		State:         model.StateOpen,
	}, true
}

func (e *Engine) trim() {
	if len(e.window) <= e.limit {
		return
	}
	drop := len(e.window) - e.limit
	n := copy(e.window, e.window[drop:])
	e.window = e.window[:n]
	n = copy(e.rsi, e.rsi[drop:])
	e.rsi = e.rsi[:n]
	e.base += drop
}
