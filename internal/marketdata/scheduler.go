package marketdata

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
)

// NextClose returns the first candle-close boundary strictly after t for
// the given period, e.g. 13:57:20 with a 5m period yields 14:00:00.
func NextClose(t time.Time, period time.Duration) time.Time {
	return t.Truncate(period).Add(period)
}

// Scheduler wakes the poll loop shortly after each candle-close boundary.
// The settle delay gives the exchange time to finalize the candle before
// we fetch it.
type Scheduler struct {
	period time.Duration
	settle time.Duration
	clk    clock.Clock
}

// NewScheduler creates a boundary scheduler. settle is added to every
// wake-up time.
func NewScheduler(period, settle time.Duration) *Scheduler {
	return newScheduler(period, settle, clock.New())
}

func newScheduler(period, settle time.Duration, clk clock.Clock) *Scheduler {
	return &Scheduler{period: period, settle: settle, clk: clk}
}

// Wait blocks until the next candle-close boundary (plus settle) or ctx
// cancellation. Returns the boundary that was waited for.
func (s *Scheduler) Wait(ctx context.Context) (time.Time, error) {
	now := s.clk.Now()
	boundary := NextClose(now, s.period)
	timer := s.clk.Timer(boundary.Add(s.settle).Sub(now))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return boundary, ctx.Err()
	case <-timer.C:
		return boundary, nil
	}
}
