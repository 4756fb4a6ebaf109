package marketdata

import (
	"context"
	"errors"
	"testing"
	"time"

	"papertrader/internal/model"
)

func TestSim_ClosedAlignedAndDeterministic(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 3, 20, 0, time.UTC)
	s := NewSim(Options{SimSeed: 7, Now: func() time.Time { return now }})

	a, err := s.FetchCandles(context.Background(), "BTC/USDT", "1m", 30)
	if err != nil {
		t.Fatal(err)
	}
	if len(a) != 30 {
		t.Fatalf("got %d candles", len(a))
	}
	newest := a[len(a)-1]
	if newest.TS != time.Date(2026, 3, 10, 12, 2, 0, 0, time.UTC).UnixMilli() {
		t.Errorf("newest should be the 12:02 bucket, got %v", newest.Time())
	}
	for i := 1; i < len(a); i++ {
		if a[i].TS-a[i-1].TS != 60_000 {
			t.Fatalf("gap at %d", i)
		}
		if a[i].Low > a[i].Close || a[i].High < a[i].Close {
			t.Fatalf("bad bar at %d: %+v", i, a[i])
		}
	}

	b, _ := s.FetchCandles(context.Background(), "BTC/USDT", "1m", 5)
	if b[len(b)-1] != newest {
		t.Error("same bucket should produce the same candle")
	}
}

func TestSim_CheckSymbol(t *testing.T) {
	s := NewSim(Options{})
	if err := s.CheckSymbol(context.Background(), "ETH/USDT"); err != nil {
		t.Error(err)
	}
	if err := s.CheckSymbol(context.Background(), "ETHUSDT"); !errors.Is(err, ErrUnsupportedSymbol) {
		t.Errorf("got %v", err)
	}
}

func TestNew_Factory(t *testing.T) {
	for _, ex := range []string{"kucoin", "sim", " KuCoin "} {
		a, err := New(Options{Exchange: ex})
		if err != nil || a == nil {
			t.Errorf("%q: %v", ex, err)
		}
	}
	if _, err := New(Options{Exchange: "binance"}); !errors.Is(err, ErrUnsupportedExchange) {
		t.Errorf("expected ErrUnsupportedExchange, got %v", err)
	}
}

func TestClosedOnly(t *testing.T) {
	now := time.UnixMilli(10*60_000 + 5_000)
	in := make([]model.Candle, 11)
	for i := range in {
		in[i] = model.Candle{TS: int64(i) * 60_000, Close: float64(i)}
	}
	out := closedOnly(in, time.Minute, now, 3)
	if len(out) != 3 || out[2].TS != 9*60_000 {
		t.Errorf("got %+v", out)
	}
}
