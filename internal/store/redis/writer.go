// Package redis mirrors the live candle and RSI state into Redis streams
// for dashboards and downstream consumers.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"

	"rsidivbot/internal/model"
)

const (
	// ~3 days of 5m candles + buffer
	candleStreamMaxLen = 1000
	defaultLatestTTL   = 30 * time.Minute
)

// WriterConfig configures the Redis writer.
type WriterConfig struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int

	WriteDur prometheus.Observer // optional pipeline latency histogram
}

// Writer writes candles and RSI points to Redis.
type Writer struct {
	client   *goredis.Client
	symbol   string
	writeDur prometheus.Observer
}

// Client returns the underlying Redis client for health checks.
func (w *Writer) Client() *goredis.Client { return w.client }

// New creates a new Redis Writer for one symbol and pings the server.
func New(cfg WriterConfig, symbol string) (*Writer, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Writer{client: client, symbol: symbol, writeDur: cfg.WriteDur}, nil
}

// Run reads closed candles from candleCh and writes them to Redis.
// Blocks until ctx is cancelled or candleCh is closed.
func (w *Writer) Run(ctx context.Context, candleCh <-chan model.Candle) {
	for {
		select {
		case <-ctx.Done():
			return
		case candle, ok := <-candleCh:
			if !ok {
				return
			}
			w.writeCandle(ctx, candle)
		}
	}
}

// writeCandle performs pipelined writes for a closed candle.
func (w *Writer) writeCandle(ctx context.Context, candle model.Candle) {
	latestKey := "candle:latest:" + w.symbol
	streamKey := "candle:" + w.symbol
	pubsubCh := "pub:candle:" + w.symbol
	jsonData := string(candle.JSON())

	pipe := w.client.Pipeline()
	pipe.Set(ctx, latestKey, jsonData, defaultLatestTTL)
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: streamKey,
		MaxLen: candleStreamMaxLen,
		Approx: true,
		Values: map[string]interface{}{"data": jsonData},
	})
	pipe.Publish(ctx, pubsubCh, jsonData)

	start := time.Now()
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("[redis] candle pipeline error for %s: %v", w.symbol, err)
		return
	}
	if w.writeDur != nil {
		w.writeDur.Observe(time.Since(start).Seconds())
	}
}

// WriteRSI mirrors the latest RSI value.
func (w *Writer) WriteRSI(ctx context.Context, point model.RSIPoint) {
	data, err := json.Marshal(point)
	if err != nil {
		return
	}
	jsonData := string(data)

	pipe := w.client.Pipeline()
	pipe.Set(ctx, "rsi:latest:"+w.symbol, jsonData, defaultLatestTTL)
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: "rsi:" + w.symbol,
		MaxLen: candleStreamMaxLen,
		Approx: true,
		Values: map[string]interface{}{"data": jsonData},
	})

	start := time.Now()
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("[redis] rsi pipeline error for %s: %v", w.symbol, err)
		return
	}
	if w.writeDur != nil {
		w.writeDur.Observe(time.Since(start).Seconds())
	}
}

// Close closes the Redis client.
func (w *Writer) Close() error {
	return w.client.Close()
}
