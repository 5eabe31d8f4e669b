// Package delta implements Delta Exchange India market data feeds: a REST
// poller over /v2/history/candles and a websocket candlestick stream.
package delta

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"rsidivbot/internal/model"
)

// DefaultBaseURL is the production Delta Exchange India REST endpoint.
const DefaultBaseURL = "https://api.india.delta.exchange"

// resolutionSeconds maps Delta resolution strings to candle length.
var resolutionSeconds = map[string]int{
	"1m": 60, "3m": 180, "5m": 300, "15m": 900,
	"30m": 1800, "1h": 3600, "2h": 7200, "4h": 14400,
	"6h": 21600, "1d": 86400, "7d": 604800,
}

// PeriodFor returns the candle duration for a Delta resolution string,
// defaulting to 5 minutes for unknown values.
func PeriodFor(resolution string) time.Duration {
	if secs, ok := resolutionSeconds[resolution]; ok {
		return time.Duration(secs) * time.Second
	}
	return 5 * time.Minute
}

// RESTClient fetches closed candles for one symbol and resolution.
type RESTClient struct {
	baseURL    string
	apiKey     string
	symbol     string
	resolution string
	client     *http.Client
}

// NewRESTClient creates a REST candle source. apiKey may be empty; the
// history endpoint is public.
func NewRESTClient(baseURL, apiKey, symbol, resolution string) *RESTClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &RESTClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		symbol:     symbol,
		resolution: resolution,
		client:     &http.Client{Timeout: 15 * time.Second},
	}
}

type candleRow struct {
	Time   json.Number `json:"time"`
	Open   json.Number `json:"open"`
	High   json.Number `json:"high"`
	Low    json.Number `json:"low"`
	Close  json.Number `json:"close"`
	Volume json.Number `json:"volume"`
}

type historyResponse struct {
	Success bool        `json:"success"`
	Result  []candleRow `json:"result"`
}

// FetchCandles returns the last count closed candles, oldest first. The
// newest row from the API may still be forming and is dropped.
func (c *RESTClient) FetchCandles(ctx context.Context, count int) ([]model.Candle, error) {
	secs, ok := resolutionSeconds[c.resolution]
	if !ok {
		return nil, fmt.Errorf("delta: unknown resolution %q", c.resolution)
	}

	now := time.Now().Unix()
	start := now - int64(secs)*int64(count+5) // a little buffer

	q := url.Values{}
	q.Set("symbol", c.symbol)
	q.Set("resolution", c.resolution)
	q.Set("start", strconv.FormatInt(start, 10))
	q.Set("end", strconv.FormatInt(now, 10))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/v2/history/candles?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("delta: create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("delta: fetch candles: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("delta: unexpected status %d: %s", resp.StatusCode, body)
	}

	var hr historyResponse
	if err := json.NewDecoder(resp.Body).Decode(&hr); err != nil {
		return nil, fmt.Errorf("delta: decode response: %w", err)
	}
	if !hr.Success {
		return nil, fmt.Errorf("delta: history request unsuccessful")
	}

	candles := make([]model.Candle, 0, len(hr.Result))
	for _, row := range hr.Result {
		cd, err := row.toCandle(c.symbol)
		if err != nil {
			return nil, fmt.Errorf("delta: bad candle row: %w", err)
		}
		candles = append(candles, cd)
	}
	sort.Slice(candles, func(i, j int) bool { return candles[i].TS.Before(candles[j].TS) })

	// The newest row may still be open; only closed bars feed the engine.
	// Dropped even when it is the only row, since an open bar fed once can
	// never be replaced by its final close at the same timestamp.
	if len(candles) > 0 {
		candles = candles[:len(candles)-1]
	}
	if len(candles) > count {
		candles = candles[len(candles)-count:]
	}
	return candles, nil
}

func (r candleRow) toCandle(symbol string) (model.Candle, error) {
	ts, err := r.Time.Int64()
	if err != nil {
		return model.Candle{}, fmt.Errorf("time: %w", err)
	}
	o, err := r.Open.Float64()
	if err != nil {
		return model.Candle{}, fmt.Errorf("open: %w", err)
	}
	h, err := r.High.Float64()
	if err != nil {
		return model.Candle{}, fmt.Errorf("high: %w", err)
	}
	l, err := r.Low.Float64()
	if err != nil {
		return model.Candle{}, fmt.Errorf("low: %w", err)
	}
	cl, err := r.Close.Float64()
	if err != nil {
		return model.Candle{}, fmt.Errorf("close: %w", err)
	}
	v, _ := r.Volume.Float64()

	return model.Candle{
		Symbol: symbol,
		TS:     time.Unix(ts, 0).UTC(),
		Open:   o, High: h, Low: l, Close: cl,
		Volume: v,
	}, nil
}
