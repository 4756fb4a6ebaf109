package marketdata

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"papertrader/internal/model"
)

// Sim generates deterministic closed candles aligned to timeframe
// boundaries, for running the loop without network access. The same seed
// and candle TS always yield the same candle, so repeated fetches agree.
type Sim struct {
	seed  int64
	price float64
	log   *slog.Logger
	now   func() time.Time
}

// NewSim creates a simulator. SimPrice defaults to 30000.
func NewSim(opts Options) *Sim {
	price := opts.SimPrice
	if price <= 0 {
		price = 30000
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Sim{seed: opts.SimSeed, price: price, log: logger.With("component", "sim"), now: now}
}

func (s *Sim) Name() string { return "sim" }

// CheckSymbol accepts any BASE/QUOTE pair.
func (s *Sim) CheckSymbol(_ context.Context, symbol string) error {
	for i := 1; i < len(symbol)-1; i++ {
		if symbol[i] == '/' {
			return nil
		}
	}
	return fmt.Errorf("%w: %s (want BASE/QUOTE)", ErrUnsupportedSymbol, symbol)
}

// FetchCandles returns the limit most recent closed candles.
func (s *Sim) FetchCandles(ctx context.Context, symbol, timeframe string, limit int) ([]model.Candle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	period, err := model.TimeframeDuration(timeframe)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedTimeframe, err)
	}
	if limit <= 0 {
		return nil, fmt.Errorf("sim %s: %w", symbol, ErrNoCandles)
	}

	p := period.Milliseconds()
	// Start of the newest closed bucket.
	last := (s.now().UnixMilli()/p - 1) * p

	out := make([]model.Candle, limit)
	for i := 0; i < limit; i++ {
		ts := last - int64(limit-1-i)*p
		out[i] = s.candle(ts, p)
	}
	s.log.Debug("sim candles generated", "symbol", symbol, "timeframe", timeframe, "count", limit)
	return out, nil
}

// candle derives one OHLCV bar from its bucket index: two sine cycles give
// regular SMA crossovers, seeded noise makes bars look organic.
func (s *Sim) candle(ts, periodMs int64) model.Candle {
	k := float64(ts / periodMs)
	mid := func(x float64) float64 {
		return s.price * (1 + 0.02*math.Sin(2*math.Pi*x/60) + 0.004*math.Sin(2*math.Pi*x/11))
	}
	rng := rand.New(rand.NewSource(s.seed ^ ts))
	open := mid(k - 1)
	closePx := mid(k) * (1 + (rng.Float64()-0.5)*0.001)
	wick := s.price * 0.001 * rng.Float64()
	return model.Candle{
		TS:     ts,
		Open:   open,
		High:   math.Max(open, closePx) + wick,
		Low:    math.Min(open, closePx) - wick,
		Close:  closePx,
		Volume: 1 + 10*rng.Float64(),
	}
}
