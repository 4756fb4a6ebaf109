// Package marketdata adapts exchanges to the closed-candle feed consumed by
// the trading loop.
package marketdata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"papertrader/internal/model"
)

var (
	// ErrRateLimited means the exchange rejected the request for rate limiting.
	ErrRateLimited = errors.New("marketdata: rate limited")
	// ErrUnsupportedExchange is a startup-time configuration error.
	ErrUnsupportedExchange = errors.New("marketdata: unsupported exchange")
	// ErrUnsupportedSymbol means the exchange does not list the symbol.
	ErrUnsupportedSymbol = errors.New("marketdata: unsupported symbol")
	// ErrUnsupportedTimeframe means the exchange has no such candle interval.
	ErrUnsupportedTimeframe = errors.New("marketdata: unsupported timeframe")
	// ErrNoCandles means the fetch returned no closed candles.
	ErrNoCandles = errors.New("marketdata: no closed candles")
)

// Adapter is a candle source that can also verify a symbol at startup.
type Adapter interface {
	model.CandleFetcher
	CheckSymbol(ctx context.Context, symbol string) error
	Name() string
}

// Options configures New.
type Options struct {
	Exchange     string  // "kucoin" or "sim"
	BaseURL      string  // override for tests; empty uses the exchange default
	RateLimitRPS float64 // requests per second, 0 uses the adapter default
	Timeout      time.Duration
	SimSeed      int64
	SimPrice     float64
	Logger       *slog.Logger
	Now          func() time.Time
}

// Exchanges lists the supported exchange ids.
func Exchanges() []string {
	return []string{"kucoin", "sim"}
}

// New builds the adapter for opts.Exchange.
func New(opts Options) (Adapter, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	switch strings.ToLower(strings.TrimSpace(opts.Exchange)) {
	case "kucoin":
		return NewKuCoin(opts), nil
	case "sim":
		return NewSim(opts), nil
	default:
		return nil, fmt.Errorf("%w: %q (supported: %v)", ErrUnsupportedExchange, opts.Exchange, Exchanges())
	}
}

// closedOnly drops candles whose period has not ended at now and keeps the
// newest limit of the rest. candles must be ascending.
func closedOnly(candles []model.Candle, period time.Duration, now time.Time, limit int) []model.Candle {
	nowMs := now.UnixMilli()
	p := period.Milliseconds()
	n := len(candles)
	for n > 0 && candles[n-1].TS+p > nowMs {
		n--
	}
	candles = candles[:n]
	if limit > 0 && len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}
	return candles
}
