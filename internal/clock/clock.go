// Package clock aligns the trading loop to candle-close boundaries and
// computes error backoff.
package clock

import (
	"context"
	"errors"
	"time"

	"papertrader/internal/marketdata"
	"papertrader/internal/model"
)

const (
	minSleep        = time.Second
	maxErrorBackoff = 60 * time.Second

	// RateLimitBackoff is the fixed pause after the exchange rejects a
	// request for rate limiting.
	RateLimitBackoff = 65 * time.Second
)

// NextBoundary returns the smallest multiple of period (counted from the
// unix epoch) strictly greater than now.
func NextBoundary(now time.Time, period time.Duration) time.Time {
	p := period.Milliseconds()
	ms := now.UnixMilli()
	return time.UnixMilli((ms/p + 1) * p).In(now.Location())
}

// NextWake returns how long to sleep until the next candle close plus grace.
// The result is never shorter than one second.
func NextWake(timeframe string, now time.Time, grace time.Duration) (time.Duration, error) {
	period, err := model.TimeframeDuration(timeframe)
	if err != nil {
		return 0, err
	}
	d := NextBoundary(now, period).Add(grace).Sub(now)
	if d < minSleep {
		d = minSleep
	}
	return d, nil
}

// Backoff returns the pause after a failed iteration: RateLimitBackoff for
// rate-limit rejections, otherwise min(60s, 2*poll).
func Backoff(err error, poll time.Duration) time.Duration {
	if errors.Is(err, marketdata.ErrRateLimited) {
		return RateLimitBackoff
	}
	d := 2 * poll
	if d > maxErrorBackoff {
		d = maxErrorBackoff
	}
	if d < minSleep {
		d = minSleep
	}
	return d
}

// Clock abstracts wall time and sleeping so the loop can be driven in tests.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done, returning ctx.Err() in the latter case.
	Sleep(ctx context.Context, d time.Duration) error
}

// System is the real wall clock.
type System struct{}

func (System) Now() time.Time { return time.Now() }

func (System) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
