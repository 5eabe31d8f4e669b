// Package angel adapts Angel One SmartAPI historical data into the candle
// feed contract, gated on NSE trading hours.
package angel

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/pquerna/otp/totp"

	"rsidivbot/internal/markethours"
	"rsidivbot/internal/marketdata"
	"rsidivbot/internal/model"
	"rsidivbot/pkg/smartconnect"
)

// intervalMinutes maps SmartAPI interval names to candle length.
var intervalMinutes = map[string]int{
	"ONE_MINUTE":     1,
	"THREE_MINUTE":   3,
	"FIVE_MINUTE":    5,
	"TEN_MINUTE":     10,
	"FIFTEEN_MINUTE": 15,
	"THIRTY_MINUTE":  30,
	"ONE_HOUR":       60,
	"ONE_DAY":        1440,
}

// PeriodFor returns the candle duration for a SmartAPI interval name,
// defaulting to 5 minutes.
func PeriodFor(interval string) time.Duration {
	if m, ok := intervalMinutes[interval]; ok {
		return time.Duration(m) * time.Minute
	}
	return 5 * time.Minute
}

// Config holds Angel One credentials and the instrument to track.
type Config struct {
	APIKey     string
	ClientID   string
	Password   string
	TOTPSecret string

	Symbol      string // display name, e.g. "Nifty50"
	SymbolToken string // instrument token, e.g. "99926000"
	Exchange    string // e.g. "NSE"
	Interval    string // SmartAPI interval name, e.g. "FIVE_MINUTE"
}

// Feed fetches closed candles from Angel One. Login happens lazily on the
// first fetch and again whenever the session expires.
type Feed struct {
	cfg      Config
	sc       *smartconnect.SmartConnect
	loggedIn bool
}

// NewFeed creates an Angel One candle feed.
func NewFeed(cfg Config) *Feed {
	f := &Feed{
		cfg: cfg,
		sc:  smartconnect.New(smartconnect.Config{APIKey: cfg.APIKey}),
	}
	f.sc.SessionExpiryHook = func() {
		log.Printf("[angel] session expired, will re-login on next fetch")
		f.loggedIn = false
	}
	return f
}

// Login generates a fresh TOTP and opens a SmartAPI session.
func (f *Feed) Login() error {
	code, err := totp.GenerateCode(f.cfg.TOTPSecret, time.Now())
	if err != nil {
		return fmt.Errorf("angel: generate totp: %w", err)
	}
	if _, err := f.sc.GenerateSession(f.cfg.ClientID, f.cfg.Password, code); err != nil {
		return fmt.Errorf("angel: login: %w", err)
	}
	f.loggedIn = true
	log.Printf("[angel] login successful for %s", f.cfg.ClientID)
	return nil
}

// Logout terminates the SmartAPI session.
func (f *Feed) Logout() {
	if !f.loggedIn {
		return
	}
	if _, err := f.sc.TerminateSession(f.cfg.ClientID); err != nil {
		log.Printf("[angel] logout: %v", err)
	}
	f.loggedIn = false
}

// FetchCandles returns the last count closed candles, oldest first.
// Outside NSE trading hours it returns ErrMarketClosed without touching
// the API.
func (f *Feed) FetchCandles(ctx context.Context, count int) ([]model.Candle, error) {
	now := time.Now()
	if !markethours.IsMarketOpen(now) {
		return nil, fmt.Errorf("%w: %s", marketdata.ErrMarketClosed, markethours.StatusString(now))
	}
	if !f.loggedIn {
		if err := f.Login(); err != nil {
			return nil, err
		}
	}

	period := PeriodFor(f.cfg.Interval)
	ist := now.In(markethours.IST)
	from := ist.Add(-time.Duration(count+20) * period)

	res, err := f.sc.GetCandleData(map[string]any{
		"exchange":    f.cfg.Exchange,
		"symboltoken": f.cfg.SymbolToken,
		"interval":    f.cfg.Interval,
		"fromdate":    from.Format("2006-01-02 15:04"),
		"todate":      ist.Format("2006-01-02 15:04"),
	})
	if err != nil {
		return nil, fmt.Errorf("angel: fetch candles: %w", err)
	}
	if st, _ := res["status"].(bool); !st {
		msg, _ := res["message"].(string)
		return nil, fmt.Errorf("angel: fetch candles: %s", msg)
	}

	rows, _ := res["data"].([]any)
	candles, err := parseRows(rows, f.cfg.Symbol)
	if err != nil {
		return nil, err
	}

	// The newest row may still be forming; dropped even when it is the only
	// row, since an open bar fed once can never be replaced by its final
	// close at the same timestamp.
	if len(candles) > 0 {
		candles = candles[:len(candles)-1]
	}
	if len(candles) > count {
		candles = candles[len(candles)-count:]
	}
	return candles, nil
}

// parseRows converts SmartAPI [time, open, high, low, close, volume] rows.
// Timestamps look like "2026-02-02T09:15:00+05:30".
func parseRows(rows []any, symbol string) ([]model.Candle, error) {
	out := make([]model.Candle, 0, len(rows))
	for _, raw := range rows {
		row, ok := raw.([]any)
		if !ok || len(row) < 6 {
			return nil, fmt.Errorf("angel: malformed candle row: %v", raw)
		}
		tsStr, ok := row[0].(string)
		if !ok {
			return nil, fmt.Errorf("angel: non-string timestamp: %v", row[0])
		}
		ts, err := time.Parse("2006-01-02T15:04:05-07:00", tsStr)
		if err != nil {
			return nil, fmt.Errorf("angel: parse timestamp %q: %w", tsStr, err)
		}

		vals := make([]float64, 5)
		for i := 1; i < 6; i++ {
			v, ok := row[i].(float64)
			if !ok {
				return nil, fmt.Errorf("angel: non-numeric field %d in row: %v", i, row)
			}
			vals[i-1] = v
		}
		out = append(out, model.Candle{
			Symbol: symbol,
			TS:     ts.UTC(),
			Open:   vals[0], High: vals[1], Low: vals[2], Close: vals[3],
			Volume: vals[4],
		})
	}
	return out, nil
}
