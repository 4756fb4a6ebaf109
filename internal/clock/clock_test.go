package clock

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"papertrader/internal/marketdata"
)

func TestNextWake_AlignsToBoundary(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 30, 0, time.UTC)
	d, err := NextWake("1m", now, 2*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if d != 32*time.Second {
		t.Errorf("got %v, want 32s", d)
	}

	// Exactly on a boundary: the next one is strictly greater.
	now = time.Date(2026, 3, 10, 12, 5, 0, 0, time.UTC)
	d, _ = NextWake("5m", now, 0)
	if d != 5*time.Minute {
		t.Errorf("on-boundary: got %v, want 5m", d)
	}

	now = time.Date(2026, 3, 10, 12, 59, 0, 0, time.UTC)
	d, _ = NextWake("1h", now, 2*time.Second)
	if d != 62*time.Second {
		t.Errorf("1h: got %v, want 62s", d)
	}
}

func TestNextWake_MinimumOneSecond(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 59, 900_000_000, time.UTC)
	d, _ := NextWake("1m", now, 0)
	if d != time.Second {
		t.Errorf("got %v, want 1s floor", d)
	}
}

func TestNextWake_UnknownTimeframe(t *testing.T) {
	if _, err := NextWake("7m", time.Now(), 0); err == nil {
		t.Error("expected error for unsupported timeframe")
	}
}

func TestNextBoundary_KeepsLocation(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)
	now := time.Date(2026, 3, 10, 9, 14, 10, 0, ist)
	got := NextBoundary(now, time.Minute)
	want := time.Date(2026, 3, 10, 9, 15, 0, 0, ist)
	if !got.Equal(want) || got.Location() != ist {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestBackoff(t *testing.T) {
	rl := fmt.Errorf("fetch: %w", marketdata.ErrRateLimited)
	if got := Backoff(rl, 15*time.Second); got != 65*time.Second {
		t.Errorf("rate limited: got %v", got)
	}
	other := errors.New("connection reset")
	if got := Backoff(other, 15*time.Second); got != 30*time.Second {
		t.Errorf("poll 15: got %v, want 30s", got)
	}
	if got := Backoff(other, 45*time.Second); got != 60*time.Second {
		t.Errorf("poll 45: got %v, want capped 60s", got)
	}
}

func TestSystemSleep_Cancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := (System{}).Sleep(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
