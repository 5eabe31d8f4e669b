package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the divergence bot.
type Metrics struct {
	CandlesTotal    prometheus.Counter
	CandlesRejected *prometheus.CounterVec // labels: reason=invalid|out_of_sequence
	FeedReconnects  prometheus.Counter
	FeedErrors      prometheus.Counter

	DivergencesTotal *prometheus.CounterVec // labels: type=BEARISH|BULLISH
	SignalsTotal     *prometheus.CounterVec // labels: type=BUY|SELL
	RecordsExpired   prometheus.Counter
	OpenRecords      prometheus.Gauge
	RSIValue         prometheus.Gauge

	NotifyErrors prometheus.Counter

	RedisWriteDur   prometheus.Histogram
	SQLiteCommitDur prometheus.Histogram
	RingBufOverflow prometheus.Counter
	CandleLag       prometheus.Gauge
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		CandlesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rsidivbot_candles_total",
			Help: "Total closed candles accepted by the detection engine",
		}),
		CandlesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rsidivbot_candles_rejected_total",
			Help: "Candles rejected before processing (by reason)",
		}, []string{"reason"}),
		FeedReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rsidivbot_feed_reconnects_total",
			Help: "Total market data feed reconnection attempts",
		}),
		FeedErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rsidivbot_feed_errors_total",
			Help: "Market data fetch failures",
		}),

		DivergencesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rsidivbot_divergences_total",
			Help: "Divergences detected (by type)",
		}, []string{"type"}),
		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rsidivbot_signals_total",
			Help: "Breakout confirmations emitted (by signal type)",
		}, []string{"type"}),
		RecordsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rsidivbot_records_expired_total",
			Help: "Open divergence records that aged out or were superseded",
		}),
		OpenRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rsidivbot_open_records",
			Help: "Divergence records currently awaiting breakout",
		}),
		RSIValue: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rsidivbot_rsi_value",
			Help: "Most recent RSI value",
		}),

		NotifyErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rsidivbot_notify_errors_total",
			Help: "Alert delivery failures",
		}),

		RedisWriteDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rsidivbot_redis_write_duration_seconds",
			Help:    "Redis write latency",
			Buckets: prometheus.DefBuckets,
		}),
		SQLiteCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rsidivbot_sqlite_commit_duration_seconds",
			Help:    "SQLite batch commit latency",
			Buckets: prometheus.DefBuckets,
		}),
		RingBufOverflow: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rsidivbot_ringbuf_overflow_total",
			Help: "Ring buffer push overflows (dropped candles)",
		}),
		CandleLag: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rsidivbot_candle_lag_seconds",
			Help: "Lag between candle close time and processing time",
		}),
	}

	prometheus.MustRegister(
		m.CandlesTotal,
		m.CandlesRejected,
		m.FeedReconnects,
		m.FeedErrors,
		m.DivergencesTotal,
		m.SignalsTotal,
		m.RecordsExpired,
		m.OpenRecords,
		m.RSIValue,
		m.NotifyErrors,
		m.RedisWriteDur,
		m.SQLiteCommitDur,
		m.RingBufOverflow,
		m.CandleLag,
	)

	return m
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	FeedConnected  bool      `json:"feed_connected"`
	LastCandleTime time.Time `json:"last_candle_time"`
	RedisConnected bool      `json:"redis_connected"`
	SQLiteOK       bool      `json:"sqlite_ok"`

	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
	}
}

func (h *HealthStatus) SetFeedConnected(v bool) {
	h.mu.Lock()
	h.FeedConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastCandleTime(t time.Time) {
	h.mu.Lock()
	h.LastCandleTime = t
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite runs a trivial query and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks. Either client may
// be nil when that store is disabled.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK
	if !h.FeedConnected {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}

	candleAge := ""
	if !h.LastCandleTime.IsZero() {
		candleAge = time.Since(h.LastCandleTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		FeedConnected   bool    `json:"feed_connected"`
		LastCandleTime  string  `json:"last_candle_time"`
		CandleAge       string  `json:"candle_age"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		FeedConnected:   h.FeedConnected,
		LastCandleTime:  h.LastCandleTime.Format(time.RFC3339),
		CandleAge:       candleAge,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
