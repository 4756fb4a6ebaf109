// cmd/papertrader runs the paper-trading loop against one symbol until
// SIGINT/SIGTERM.
//
// Usage:
//
//	go run ./cmd/papertrader --config=config.yaml
package main

import (
	"context"
	"flag"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"

	"papertrader/config"
	"papertrader/internal/clock"
	"papertrader/internal/events"
	"papertrader/internal/execution"
	"papertrader/internal/gateway"
	"papertrader/internal/logger"
	"papertrader/internal/marketdata"
	"papertrader/internal/metrics"
	"papertrader/internal/model"
	"papertrader/internal/notification"
	"papertrader/internal/risk"
	redisstore "papertrader/internal/store/redis"
	"papertrader/internal/store/memory"
	sqlitestore "papertrader/internal/store/sqlite"
	"papertrader/internal/strategy"
	"papertrader/internal/trader"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "papertrader: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "config.yaml", "path to YAML config (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	out, err := logger.Open(logger.FileOptions{
		Path:       cfg.LogPath,
		MaxSizeMB:  cfg.LogMaxMB,
		MaxBackups: cfg.LogBackups,
	})
	if err != nil {
		return err
	}
	defer out.Close()
	log := logger.Init("papertrader", level, out)

	window, err := cfg.Window()
	if err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ---- State store ----
	store, db, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	// ---- Market data ----
	adapter, err := marketdata.New(marketdata.Options{
		Exchange:     cfg.Exchange,
		RateLimitRPS: cfg.RateLimitRPS,
		SimSeed:      cfg.SimSeed,
		Logger:       log,
	})
	if err != nil {
		return err
	}
	checkCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	err = adapter.CheckSymbol(checkCtx, cfg.Symbol)
	cancel()
	if err != nil {
		return fmt.Errorf("check symbol %s on %s: %w", cfg.Symbol, adapter.Name(), err)
	}

	strat, err := strategy.NewSMACrossover(cfg.SMAFast, cfg.SMASlow)
	if err != nil {
		return err
	}

	// ---- Observability ----
	reg := prometheus.NewRegistry()
	prom := metrics.NewMetrics(reg)
	health := metrics.NewHealthStatus(2*time.Minute + 2*cfg.Poll())
	health.SetSQLiteOK(true)

	emitter := events.NewEmitter(log)
	hub := gateway.NewHub(log)
	hub.OnClients = func(n int) { prom.WSClients.Set(float64(n)) }
	emitter.AddSink(hub)

	var publisher *redisstore.Publisher
	if cfg.RedisAddr != "" {
		health.SetRedisEnabled(true)
		publisher, err = redisstore.New(redisstore.PublisherConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			Symbol:   cfg.Symbol,
		}, log, redisstore.Hooks{
			OnPublish: func(d time.Duration) { prom.RedisPublishDur.Observe(d.Seconds()) },
			OnStateChange: func(_, to redisstore.State) {
				prom.RedisCircuitBreakerState.Set(float64(to))
				if to == redisstore.StateOpen {
					prom.RedisCircuitBreakerTrips.Inc()
				}
			},
		})
		if err != nil {
			log.Warn("redis unavailable, continuing without event stream", "addr", cfg.RedisAddr, "error", err)
		} else {
			health.SetRedisConnected(true)
			emitter.AddSink(publisher)
			defer publisher.Close()
		}
	}

	notifiers := notification.Multi{notification.NewLogNotifier(log)}
	if cfg.NotifyWebhookURL != "" {
		notifiers = append(notifiers, notification.NewWebhookNotifier(cfg.NotifyWebhookURL, log))
	}
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		notifiers = append(notifiers, notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID, "", log))
	}
	alerts := notification.NewAlertSink(notifiers, log)
	defer alerts.Close()
	emitter.AddSink(alerts)

	// ---- Trading loop ----
	loop, err := trader.New(trader.Config{
		Symbol:       cfg.Symbol,
		Timeframe:    cfg.Timeframe,
		Poll:         cfg.Poll(),
		Grace:        cfg.Grace(),
		FetchLimit:   cfg.FetchLimit(),
		StartingCash: cfg.StartingCash,
	}, trader.Deps{
		Fetcher:  adapter,
		Store:    store,
		Strategy: strat,
		Gate:     risk.NewGate(risk.Limits{DailyMaxLossPct: cfg.RiskDailyMaxLossPct, Window: window}, loc),
		Exec:     execution.NewSimulator(cfg.ExecutionParams()),
		Events:   emitter,
		Clock:    clock.System{},
		Metrics:  prom,
		Health:   health,
		Logger:   log,
	})
	if err != nil {
		return err
	}

	var srv *metrics.Server
	if cfg.MetricsAddr != "" {
		srv = metrics.NewServer(cfg.MetricsAddr, health, reg, log)
		api := &gateway.Handler{Hub: hub, Store: store, Marker: loop, Symbol: cfg.Symbol}
		api.Register(srv.Handle)
		srv.Start()
	}
	var rdb *goredis.Client
	if publisher != nil {
		rdb = publisher.Client()
	}
	health.StartLivenessChecker(ctx, rdb, db, 15*time.Second)

	emitter.Emit(ctx, events.AppStart, events.Fields{
		"exchange":  adapter.Name(),
		"symbol":    cfg.Symbol,
		"timeframe": cfg.Timeframe,
		"strategy":  strat.Name(),
		"config":    cfg.Redacted(),
	})

	if err := loop.Init(ctx); err != nil {
		return err
	}
	loop.Run(ctx)

	// ---- Graceful shutdown ----
	emitter.Emit(context.Background(), events.AppStop, nil)
	hub.Close()
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Stop(shutdownCtx)
	}
	log.Info("shutdown complete")
	return nil
}

// openStore returns the SQLite store, or the in-process store when db_path is
// ":memory:". db is nil for the in-process store.
func openStore(cfg *config.Config, log *slog.Logger) (model.StateStore, *sql.DB, error) {
	if cfg.InMemoryStore() {
		log.Warn("using in-memory state store, account resets on restart")
		return memory.New(), nil, nil
	}
	s, err := sqlitestore.New(sqlitestore.Config{DBPath: cfg.DBPath, Logger: log})
	if err != nil {
		return nil, nil, err
	}
	return s, s.DB(), nil
}
