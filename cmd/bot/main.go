package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"rsidivbot/config"
	"rsidivbot/internal/divergence"
	"rsidivbot/internal/logger"
	"rsidivbot/internal/markethours"
	"rsidivbot/internal/marketdata"
	"rsidivbot/internal/marketdata/angel"
	"rsidivbot/internal/marketdata/delta"
	"rsidivbot/internal/metrics"
	"rsidivbot/internal/model"
	"rsidivbot/internal/notification"
	"rsidivbot/internal/ringbuf"
	redisstore "rsidivbot/internal/store/redis"
	sqlitestore "rsidivbot/internal/store/sqlite"
)

// pollWindow is how many recent closed candles each poll fetches; only
// those newer than the engine's last candle are applied.
const pollWindow = 10

func main() {
	cfg := config.Load()
	slg := logger.Init("rsidivbot", logger.ParseLevel(cfg.LogLevel))

	slg.Info("starting",
		slog.String("feed", cfg.Feed),
		slog.String("symbol", cfg.Symbol),
		slog.String("resolution", cfg.Resolution),
		slog.Bool("dry_run", cfg.DryRun))

	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- Stores (both optional) ----
	var sqlWriter *sqlitestore.Writer
	if cfg.SQLiteEnabled {
		os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755)
		w, err := sqlitestore.New(sqlitestore.WriterConfig{
			DBPath:    cfg.SQLitePath,
			CommitDur: prom.SQLiteCommitDur,
		})
		if err != nil {
			slg.Error("sqlite init failed", slog.Any("err", err))
			os.Exit(1)
		}
		sqlWriter = w
		defer sqlWriter.Close()
	}

	var redisWriter *redisstore.Writer
	if cfg.RedisEnabled {
		w, err := redisstore.New(redisstore.WriterConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			WriteDur: prom.RedisWriteDur,
		}, cfg.Symbol)
		if err != nil {
			slg.Warn("redis init failed, continuing without redis", slog.Any("err", err))
		} else {
			redisWriter = w
			defer redisWriter.Close()
		}
	}

	switch {
	case redisWriter != nil && sqlWriter != nil:
		health.StartLivenessChecker(ctx, redisWriter.Client(), sqlWriter.DB(), 10*time.Second)
	case redisWriter != nil:
		health.StartLivenessChecker(ctx, redisWriter.Client(), nil, 10*time.Second)
	case sqlWriter != nil:
		health.StartLivenessChecker(ctx, nil, sqlWriter.DB(), 10*time.Second)
	}

	// Candle persistence runs off the detection path.
	candleCh := make(chan model.Candle, 1024)
	if sqlWriter != nil {
		sqliteCh := make(chan model.Candle, 1024)
		redisCh := make(chan model.Candle, 1024)
		go sqlWriter.Run(ctx, sqliteCh)
		if redisWriter != nil {
			go redisWriter.Run(ctx, redisCh)
		}
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case c, ok := <-candleCh:
					if !ok {
						return
					}
					select {
					case sqliteCh <- c:
					default:
					}
					if redisWriter != nil {
						select {
						case redisCh <- c:
						default:
						}
					}
				}
			}
		}()
	} else if redisWriter != nil {
		go redisWriter.Run(ctx, candleCh)
	}

	// ---- Notifications ----
	notifier := buildNotifier(cfg)
	formatter := notification.Formatter{
		Symbol:     cfg.Symbol,
		Timeframe:  cfg.Resolution,
		RSIBuyMin:  cfg.RSIBuyMin,
		RSISellMax: cfg.RSISellMax,
	}

	// ---- Detection engine ----
	engine := divergence.NewEngine(divergence.Config{
		RSIPeriod:      cfg.RSIPeriod,
		Lookback:       cfg.Lookback,
		Lookforward:    cfg.Lookforward,
		AlignTolerance: cfg.AlignTolerance,
		MaxOpenAge:     cfg.MaxOpenAge,
		RSIBuyMin:      cfg.RSIBuyMin,
		RSISellMax:     cfg.RSISellMax,
	})

	bot := &bot{
		cfg:       cfg,
		log:       slg,
		prom:      prom,
		health:    health,
		engine:    engine,
		notifier:  notifier,
		formatter: formatter,
		sqlite:    sqlWriter,
		redis:     redisWriter,
		candleCh:  candleCh,
	}

	if err := notifier.Send(ctx, formatter.Startup(cfg.Feed)); err != nil {
		slg.Warn("startup notification failed", slog.Any("err", err))
	}

	go func() {
		var err error
		switch cfg.Feed {
		case config.FeedDeltaWS:
			err = bot.runDeltaStream(ctx)
		case config.FeedAngel:
			err = bot.runAngelPolling(ctx)
		default:
			err = bot.runDeltaPolling(ctx)
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			slg.Error("feed loop ended", slog.Any("err", err))
		}
	}()

	<-sigCh
	slg.Info("shutdown signal received")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Stop(shutdownCtx)
	slg.Info("shutdown complete")
}

func buildNotifier(cfg *config.Config) notification.Notifier {
	if cfg.DryRun {
		return notification.NewLogNotifier()
	}
	var multi notification.Multi
	if cfg.TelegramToken != "" && cfg.TelegramChatID != "" {
		multi = append(multi, notification.NewTelegramNotifier(cfg.TelegramToken, cfg.TelegramChatID))
	}
	if cfg.WebhookURL != "" {
		multi = append(multi, notification.NewWebhookNotifier(cfg.WebhookURL))
	}
	if len(multi) == 0 {
		return notification.NewLogNotifier()
	}
	return multi
}

// bot owns the single-threaded detection loop and its side effects.
type bot struct {
	cfg       *config.Config
	log       *slog.Logger
	prom      *metrics.Metrics
	health    *metrics.HealthStatus
	engine    *divergence.Engine
	notifier  notification.Notifier
	formatter notification.Formatter
	sqlite    *sqlitestore.Writer
	redis     *redisstore.Writer
	candleCh  chan model.Candle

	seenOverflow uint64 // last observed cumulative ring drop count
}

// overflowDelta converts a cumulative drop count into the number of drops
// since the previous call.
func overflowDelta(seen *uint64, total uint64) uint64 {
	d := total - *seen
	*seen = total
	return d
}

// backfill seeds the engine from history with alerts suppressed, so a
// restart does not replay stale notifications.
func (b *bot) backfill(ctx context.Context, src marketdata.Source) error {
	candles, err := src.FetchCandles(ctx, b.cfg.BackfillCount)
	if err != nil {
		return err
	}
	for _, c := range candles {
		b.processCandle(ctx, c, true)
	}
	b.log.Info("backfill complete",
		slog.Int("candles", len(candles)),
		slog.Int("open_records", b.engine.OpenRecords()))
	return nil
}

// processCandle advances the engine by one candle and fans out the
// results. quiet suppresses notifications (backfill).
func (b *bot) processCandle(ctx context.Context, c model.Candle, quiet bool) {
	res, err := b.engine.Update(c)
	if err != nil {
		switch {
		case errors.Is(err, divergence.ErrInvalidCandle):
			b.prom.CandlesRejected.WithLabelValues("invalid").Inc()
			b.log.Warn("invalid candle rejected", slog.Any("err", err))
		case errors.Is(err, divergence.ErrOutOfSequence):
			b.prom.CandlesRejected.WithLabelValues("out_of_sequence").Inc()
			b.log.Debug("out-of-sequence candle skipped", slog.Any("err", err))
		default:
			b.log.Error("engine update failed", slog.Any("err", err))
		}
		return
	}

	b.prom.CandlesTotal.Inc()
	b.prom.CandleLag.Set(time.Since(c.TS).Seconds())
	b.prom.OpenRecords.Set(float64(b.engine.OpenRecords()))
	b.health.SetLastCandleTime(c.TS)

	select {
	case b.candleCh <- c:
	default:
	}

	if res.RSI != nil {
		b.prom.RSIValue.Set(res.RSI.Value)
		if b.redis != nil {
			b.redis.WriteRSI(ctx, *res.RSI)
		}
	}
	b.prom.RecordsExpired.Add(float64(len(res.Expired)))
	for _, rec := range res.Expired {
		b.log.Info("record expired",
			slog.String("type", string(rec.Type)),
			slog.Float64("breakout_level", rec.BreakoutLevel),
			slog.Time("created_ts", rec.CreatedTS))
		// Supersessions arrive alongside the divergence that caused them;
		// only age-outs warrant their own notice.
		if !quiet && len(res.Divergences) == 0 {
			b.send(ctx, b.formatter.Expired(rec, c.TS))
		}
	}

	for _, ev := range res.Divergences {
		b.prom.DivergencesTotal.WithLabelValues(string(ev.Type)).Inc()
		b.log.Info("divergence detected",
			slog.String("type", string(ev.Type)),
			slog.Float64("breakout_level", ev.BreakoutLevel),
			slog.Float64("rsi", ev.RSI),
			slog.Time("ts", ev.TS))
		if !quiet {
			b.send(ctx, b.formatter.Divergence(ev))
		}
	}

	for _, ev := range res.Signals {
		b.prom.SignalsTotal.WithLabelValues(string(ev.Type)).Inc()
		b.log.Info("signal confirmed",
			slog.String("type", string(ev.Type)),
			slog.Float64("close", ev.Close),
			slog.Float64("rsi", ev.RSIAtConfirmation),
			slog.Time("ts", ev.TS))
		if !quiet {
			b.send(ctx, b.formatter.Signal(ev))
		}
	}
}

func (b *bot) send(ctx context.Context, alert notification.Alert) {
	if err := b.notifier.Send(ctx, alert); err != nil {
		b.prom.NotifyErrors.Inc()
		b.log.Warn("alert delivery failed",
			slog.String("title", alert.Title), slog.Any("err", err))
	}
}

// applyNew feeds only candles newer than the engine's last accepted one.
func (b *bot) applyNew(ctx context.Context, candles []model.Candle) {
	last := b.engine.LastTS()
	for _, c := range candles {
		if !c.TS.After(last) {
			continue
		}
		b.processCandle(ctx, c, false)
	}
}

// runDeltaPolling polls the Delta REST API at each candle-close boundary.
func (b *bot) runDeltaPolling(ctx context.Context) error {
	src := delta.NewRESTClient(b.cfg.DeltaBaseURL, b.cfg.DeltaAPIKey, b.cfg.Symbol, b.cfg.Resolution)
	if err := b.backfill(ctx, src); err != nil {
		b.log.Warn("backfill failed, starting cold", slog.Any("err", err))
	}
	b.health.SetFeedConnected(true)

	sched := marketdata.NewScheduler(delta.PeriodFor(b.cfg.Resolution), 3*time.Second)
	for {
		if _, err := sched.Wait(ctx); err != nil {
			return err
		}
		candles, err := src.FetchCandles(ctx, pollWindow)
		if err != nil {
			b.prom.FeedErrors.Inc()
			b.log.Warn("candle fetch failed", slog.Any("err", err))
			continue
		}
		b.applyNew(ctx, candles)
	}
}

// runAngelPolling polls Angel One during NSE hours and sleeps until the
// next open otherwise.
func (b *bot) runAngelPolling(ctx context.Context) error {
	feed := angel.NewFeed(angel.Config{
		APIKey:      b.cfg.AngelAPIKey,
		ClientID:    b.cfg.AngelClientCode,
		Password:    b.cfg.AngelPassword,
		TOTPSecret:  b.cfg.AngelTOTPSecret,
		Symbol:      b.cfg.Symbol,
		SymbolToken: b.cfg.AngelSymbolToken,
		Exchange:    b.cfg.AngelExchange,
		Interval:    b.cfg.Resolution,
	})
	defer feed.Logout()

	if err := b.backfill(ctx, feed); err != nil && !errors.Is(err, marketdata.ErrMarketClosed) {
		b.log.Warn("backfill failed, starting cold", slog.Any("err", err))
	}

	sched := marketdata.NewScheduler(angel.PeriodFor(b.cfg.Resolution), 5*time.Second)
	for {
		now := time.Now()
		if !markethours.IsMarketOpen(now) {
			b.health.SetFeedConnected(false)
			feed.Logout()
			wait := markethours.TimeUntilOpen(now)
			b.log.Info("market closed",
				slog.String("status", markethours.StatusString(now)),
				slog.Duration("sleep", wait.Truncate(time.Second)))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			continue
		}
		b.health.SetFeedConnected(true)

		if _, err := sched.Wait(ctx); err != nil {
			return err
		}
		candles, err := feed.FetchCandles(ctx, pollWindow)
		if err != nil {
			if errors.Is(err, marketdata.ErrMarketClosed) {
				continue
			}
			b.prom.FeedErrors.Inc()
			b.log.Warn("candle fetch failed", slog.Any("err", err))
			continue
		}
		b.applyNew(ctx, candles)
	}
}

// runDeltaStream backfills over REST and then consumes closed candles
// from the websocket candlestick channel via the ring buffer.
func (b *bot) runDeltaStream(ctx context.Context) error {
	rest := delta.NewRESTClient(b.cfg.DeltaBaseURL, b.cfg.DeltaAPIKey, b.cfg.Symbol, b.cfg.Resolution)
	if err := b.backfill(ctx, rest); err != nil {
		b.log.Warn("backfill failed, starting cold", slog.Any("err", err))
	}

	ring := ringbuf.New(256)
	feed := delta.NewWSFeed(b.cfg.DeltaWSURL, b.cfg.Symbol, b.cfg.Resolution, ring)
	feed.OnReconnect = func() {
		b.prom.FeedReconnects.Inc()
		b.health.SetFeedConnected(false)
	}

	go func() {
		if err := feed.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("[bot] ws feed stopped: %v", err)
		}
	}()
	b.health.SetFeedConnected(true)

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			// Ring.Overflow is cumulative; count each drop once.
			if d := overflowDelta(&b.seenOverflow, ring.Overflow()); d > 0 {
				b.prom.RingBufOverflow.Add(float64(d))
				b.log.Warn("ring buffer overflow", slog.Uint64("dropped", d))
			}
			for {
				c, ok := ring.Pop()
				if !ok {
					break
				}
				b.health.SetFeedConnected(true)
				b.processCandle(ctx, c, false)
			}
		}
	}
}
