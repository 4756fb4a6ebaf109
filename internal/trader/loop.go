// Package trader runs the paper-trading loop: fetch closed candles, skip
// candles already processed, consult the risk gate, evaluate the strategy,
// simulate the fill and persist the result, then sleep to the next close.
package trader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"papertrader/internal/clock"
	"papertrader/internal/events"
	"papertrader/internal/execution"
	"papertrader/internal/logger"
	"papertrader/internal/marketdata"
	"papertrader/internal/metrics"
	"papertrader/internal/model"
	"papertrader/internal/risk"
	"papertrader/internal/strategy"
)

// Config is the loop's slice of the application configuration.
type Config struct {
	Symbol       string
	Timeframe    string
	Poll         time.Duration // error backoff base
	Grace        time.Duration // delay after each candle close
	FetchLimit   int
	StartingCash float64
}

// Deps are the collaborators the loop drives. Metrics, Health and Clock are
// optional.
type Deps struct {
	Fetcher  model.CandleFetcher
	Store    model.StateStore
	Strategy strategy.Strategy
	Gate     *risk.Gate
	Exec     *execution.Simulator
	Events   *events.Emitter
	Clock    clock.Clock
	Metrics  *metrics.Metrics
	Health   *metrics.HealthStatus
	Logger   *slog.Logger
}

// Loop is the single-threaded trading orchestrator.
type Loop struct {
	cfg Config
	Deps

	mu        sync.RWMutex
	lastPrice float64
	hasPrice  bool
}

// New validates cfg and fills defaults for optional deps.
func New(cfg Config, d Deps) (*Loop, error) {
	if _, err := model.TimeframeDuration(cfg.Timeframe); err != nil {
		return nil, err
	}
	if cfg.Poll <= 0 {
		return nil, fmt.Errorf("trader: poll must be positive")
	}
	if d.Fetcher == nil || d.Store == nil || d.Strategy == nil || d.Gate == nil || d.Exec == nil {
		return nil, fmt.Errorf("trader: fetcher, store, strategy, gate and executor are required")
	}
	if cfg.FetchLimit < d.Strategy.MinHistory() {
		cfg.FetchLimit = d.Strategy.MinHistory()
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Events == nil {
		d.Events = events.NewEmitter(d.Logger)
	}
	if d.Clock == nil {
		d.Clock = clock.System{}
	}
	if d.Metrics == nil {
		d.Metrics = metrics.NewMetrics(prometheus.NewRegistry())
	}
	return &Loop{cfg: cfg, Deps: d}, nil
}

// Init seeds the starting cash on a fresh store.
func (l *Loop) Init(ctx context.Context) error {
	seeded, err := l.Store.EnsureStartingCash(ctx, l.cfg.StartingCash)
	if err != nil {
		return fmt.Errorf("seed starting cash: %w", err)
	}
	pos, err := l.Store.Position(ctx)
	if err != nil {
		return fmt.Errorf("read position: %w", err)
	}
	if seeded {
		l.Events.Emit(ctx, events.InitCash, events.Fields{"cash": pos.Cash})
	}
	l.Metrics.Cash.Set(pos.Cash)
	l.Metrics.BaseQty.Set(pos.BaseQty)
	return nil
}

// LastPrice returns the close of the newest candle fetched so far.
func (l *Loop) LastPrice() (float64, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lastPrice, l.hasPrice
}

func (l *Loop) setLastPrice(p float64) {
	l.mu.Lock()
	l.lastPrice, l.hasPrice = p, true
	l.mu.Unlock()
}

// Run alternates Step and sleep until ctx is cancelled. Iteration errors
// are logged and retried after a backoff; Run itself only returns on
// cancellation.
func (l *Loop) Run(ctx context.Context) error {
	l.Logger.Info("trading loop started",
		"symbol", l.cfg.Symbol,
		"timeframe", l.cfg.Timeframe,
		"strategy", l.Strategy.Name(),
	)
	for {
		result, err := l.Step(ctx)
		if err != nil && ctx.Err() != nil {
			return nil
		}
		now := l.Clock.Now()
		if l.Health != nil {
			l.Health.SetLastIteration(now, err)
		}

		var wait time.Duration
		if err != nil {
			wait = clock.Backoff(err, l.cfg.Poll)
			kind := ErrorKind(err)
			l.Metrics.IterationsTotal.WithLabelValues(metrics.ResultError).Inc()
			l.Metrics.LoopErrorsTotal.WithLabelValues(kind).Inc()
			l.Events.Emit(ctx, events.LoopError, events.Fields{
				"error":     err.Error(),
				"kind":      kind,
				"backoff_s": wait.Seconds(),
			})
		} else {
			l.Metrics.IterationsTotal.WithLabelValues(result).Inc()
			// timeframe was validated in New
			wait, _ = clock.NextWake(l.cfg.Timeframe, now, l.cfg.Grace)
		}

		if err := l.Clock.Sleep(ctx, wait); err != nil {
			return nil
		}
	}
}

// Step runs one iteration and returns one of the metrics.Result* values.
// A non-nil error means nothing was persisted beyond what the error names.
func (l *Loop) Step(ctx context.Context) (string, error) {
	start := time.Now()
	candles, err := l.Fetcher.FetchCandles(ctx, l.cfg.Symbol, l.cfg.Timeframe, l.cfg.FetchLimit)
	l.Metrics.FetchDur.Observe(time.Since(start).Seconds())
	if err != nil {
		return "", &IterationError{Stage: StageFetch, Err: err}
	}
	if len(candles) == 0 {
		return "", &IterationError{Stage: StageFetch, Err: marketdata.ErrNoCandles}
	}
	newest := candles[len(candles)-1]
	l.setLastPrice(newest.Close)

	marker, ok, err := l.Store.LastCandleMarker(ctx)
	if err != nil {
		return "", &IterationError{Stage: StageStore, Err: err}
	}
	if ok && newest.TS <= marker {
		l.Events.Emit(ctx, events.NoNewCandle, events.Fields{"candle_ts": newest.TS, "marker": marker})
		return metrics.ResultNoNewCandle, nil
	}

	ctx = logger.WithTraceID(ctx, logger.GenerateTraceID(l.cfg.Symbol, newest.Time()))

	pos, err := l.Store.Position(ctx)
	if err != nil {
		return "", &IterationError{Stage: StageStore, Err: err}
	}
	price := newest.Close
	now := l.Clock.Now()

	v := l.Gate.Check(now, pos.Equity(price))
	l.Metrics.DayDrawdown.Set(v.Drawdown)
	if v.DayStarted {
		l.Metrics.RiskEventsTotal.WithLabelValues("day_start").Inc()
		l.Events.Emit(ctx, events.RiskDayStart, events.Fields{
			"day":             v.Day,
			"day_open_equity": v.DayOpenEquity,
			"restored":        v.Restored,
		})
	}

	switch v.Action {
	case risk.ActionPause:
		l.Metrics.RiskEventsTotal.WithLabelValues("pause").Inc()
		l.Events.Emit(ctx, events.RiskPauseOutsideWindow, events.Fields{
			"candle_ts":  newest.TS,
			"local_time": now.In(l.Gate.Location()).Format("15:04:05"),
			"window":     l.Gate.Limits().Window.String(),
		})
		return l.advance(ctx, pos, price, newest.TS, metrics.ResultPaused)
	case risk.ActionHalt:
		l.Metrics.RiskEventsTotal.WithLabelValues("halt").Inc()
		l.Events.Emit(ctx, events.RiskHaltDailyLoss, events.Fields{
			"candle_ts":       newest.TS,
			"day":             v.Day,
			"equity":          v.Equity,
			"day_open_equity": v.DayOpenEquity,
			"drawdown":        v.Drawdown,
			"max_loss_pct":    l.Gate.Limits().DailyMaxLossPct,
		})
		return l.advance(ctx, pos, price, newest.TS, metrics.ResultHalted)
	}

	signal := l.Strategy.Evaluate(model.Closes(candles))
	l.Metrics.DecisionsTotal.WithLabelValues(string(signal)).Inc()

	side, trade := signal.Side()
	if !trade {
		l.Events.Emit(ctx, events.SignalHold, events.Fields{
			"candle_ts": newest.TS,
			"close":     price,
			"strategy":  l.Strategy.Name(),
		})
		return l.advance(ctx, pos, price, newest.TS, metrics.ResultProcessed)
	}

	res := l.Exec.Execute(pos, side, price, now.UnixMilli(), newest.TS)
	if res.Trade == nil {
		l.Metrics.SkipsTotal.WithLabelValues(string(res.Outcome)).Inc()
		l.Events.Emit(ctx, skipEvent(res.Outcome), events.Fields{
			"candle_ts": newest.TS,
			"side":      string(side),
			"price":     price,
			"cash":      pos.Cash,
			"base_qty":  pos.BaseQty,
		})
		return l.advance(ctx, pos, price, newest.TS, metrics.ResultProcessed)
	}

	start = time.Now()
	err = l.Store.Commit(ctx, res.Position, res.Trade, newest.TS)
	l.Metrics.CommitDur.Observe(time.Since(start).Seconds())
	if err != nil {
		return "", &IterationError{Stage: StageStore, Err: fmt.Errorf("commit %s: %w", side, err)}
	}

	t := res.Trade
	name := events.PaperBuy
	if side == model.SideSell {
		name = events.PaperSell
	}
	l.Metrics.TradesTotal.WithLabelValues(string(side)).Inc()
	l.Events.Emit(ctx, name, events.Fields{
		"symbol":     l.cfg.Symbol,
		"trade_id":   t.ID,
		"candle_ts":  t.CandleTS,
		"side":       string(t.Side),
		"qty":        t.Qty,
		"price":      t.Price,
		"fee":        t.Fee,
		"cash_after": t.CashAfter,
		"base_after": t.BaseAfter,
		"avg_price":  res.Position.AvgPrice,
	})
	l.observe(res.Position, price, newest.TS)
	return metrics.ResultProcessed, nil
}

// advance moves the marker past a candle that produced no trade.
func (l *Loop) advance(ctx context.Context, pos model.Position, price float64, candleTS int64, result string) (string, error) {
	if err := l.Store.SetLastCandleMarker(ctx, candleTS); err != nil {
		return "", &IterationError{Stage: StageStore, Err: err}
	}
	l.observe(pos, price, candleTS)
	return result, nil
}

func (l *Loop) observe(pos model.Position, price float64, candleTS int64) {
	l.Metrics.Equity.Set(pos.Equity(price))
	l.Metrics.Cash.Set(pos.Cash)
	l.Metrics.BaseQty.Set(pos.BaseQty)
	l.Metrics.LastCandleTS.Set(float64(candleTS) / 1000)
	if l.Health != nil {
		l.Health.SetLastCandleTime(time.UnixMilli(candleTS))
	}
}

func skipEvent(o execution.Outcome) string {
	switch o {
	case execution.OutcomeSkippedNoCash:
		return events.PaperSkipNoCash
	case execution.OutcomeSkippedNoPosition:
		return events.PaperSkipNoPosition
	case execution.OutcomeSkippedBadSide:
		return events.PaperSkipUnknownSide
	default:
		return events.PaperSkipBufferProtection
	}
}

// Iteration stages.
const (
	StageFetch = "fetch"
	StageStore = "store"
)

// IterationError tags a failed iteration with the stage that failed.
type IterationError struct {
	Stage string
	Err   error
}

func (e *IterationError) Error() string { return e.Stage + ": " + e.Err.Error() }

func (e *IterationError) Unwrap() error { return e.Err }

// ErrorKind classifies err for metrics and the loop.error event.
func ErrorKind(err error) string {
	if errors.Is(err, marketdata.ErrRateLimited) {
		return "rate_limited"
	}
	var ie *IterationError
	if errors.As(err, &ie) {
		return ie.Stage
	}
	return "other"
}
