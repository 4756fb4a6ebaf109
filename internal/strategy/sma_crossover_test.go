package strategy

import (
	"math"
	"testing"

	"papertrader/internal/indicator"
	"papertrader/internal/model"
)

func flat(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestCrossover_GoldenCross(t *testing.T) {
	closes := []float64{10, 10, 10, 10, 10, 10, 10, 10, 10, 12}
	if got := Crossover(closes, 3, 5); got != model.SignalBuy {
		t.Fatalf("expected buy, got %s", got)
	}
}

func TestCrossover_DeathCross(t *testing.T) {
	closes := []float64{10, 10, 10, 10, 10, 10, 10, 10, 10, 8}
	if got := Crossover(closes, 3, 5); got != model.SignalSell {
		t.Fatalf("expected sell, got %s", got)
	}
}

func TestCrossover_InsufficientHistory(t *testing.T) {
	// slow+2 = 7; anything shorter must hold no matter the shape.
	for n := 0; n < 7; n++ {
		closes := flat(n, 10)
		if n > 0 {
			closes[n-1] = 50
		}
		if got := Crossover(closes, 3, 5); got != model.SignalHold {
			t.Errorf("len=%d: expected hold, got %s", n, got)
		}
	}
}

func TestCrossover_ReportedOnce(t *testing.T) {
	closes := []float64{10, 10, 10, 10, 10, 10, 10, 10, 10, 12}
	if got := Crossover(closes, 3, 5); got != model.SignalBuy {
		t.Fatalf("expected buy at t, got %s", got)
	}
	// Next candle keeps fast above slow: no second buy.
	closes = append(closes, 12)
	if got := Crossover(closes, 3, 5); got != model.SignalHold {
		t.Fatalf("expected hold at t+1, got %s", got)
	}
}

func TestCrossover_OneSignalPerFlip(t *testing.T) {
	const fast, slow = 3, 8
	closes := make([]float64, 300)
	for i := range closes {
		closes[i] = 100 + 10*math.Sin(float64(i)/7) + 0.05*float64(i)
	}
	fastSMA := indicator.SMASeries(closes, fast)
	slowSMA := indicator.SMASeries(closes, slow)

	var upFlips, downFlips, buys, sells int
	var last model.Signal
	for i := slow + 1; i < len(closes); i++ {
		prev := fastSMA[i-1] - slowSMA[i-1]
		cur := fastSMA[i] - slowSMA[i]
		want := model.SignalHold
		switch {
		case prev <= 0 && cur > 0:
			upFlips++
			want = model.SignalBuy
		case prev >= 0 && cur < 0:
			downFlips++
			want = model.SignalSell
		}

		got := Crossover(closes[:i+1], fast, slow)
		if got != want {
			t.Fatalf("candle %d: got %s, want %s (prev diff %.4f, cur diff %.4f)", i, got, want, prev, cur)
		}
		switch got {
		case model.SignalBuy:
			buys++
		case model.SignalSell:
			sells++
		}
		if got != model.SignalHold {
			if got == last {
				t.Fatalf("candle %d: %s repeated without an opposite cross", i, got)
			}
			last = got
			if i+1 < len(closes) {
				if next := Crossover(closes[:i+2], fast, slow); next == got {
					t.Fatalf("candle %d: %s fired again on the following candle", i+1, next)
				}
			}
		}
	}

	if upFlips < 4 || downFlips < 4 {
		t.Fatalf("series too smooth: %d up flips, %d down flips", upFlips, downFlips)
	}
	if buys != upFlips || sells != downFlips {
		t.Errorf("buys=%d sells=%d, want %d and %d", buys, sells, upFlips, downFlips)
	}
}

func TestCrossover_FlatSeriesHolds(t *testing.T) {
	if got := Crossover(flat(30, 100), 9, 21); got != model.SignalHold {
		t.Fatalf("expected hold on flat series, got %s", got)
	}
}

func TestNewSMACrossover_Validation(t *testing.T) {
	if _, err := NewSMACrossover(5, 5); err == nil {
		t.Error("expected error for fast == slow")
	}
	if _, err := NewSMACrossover(0, 5); err == nil {
		t.Error("expected error for zero fast window")
	}
	s, err := NewSMACrossover(9, 21)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.MinHistory() != 23 {
		t.Errorf("MinHistory = %d, want 23", s.MinHistory())
	}
	if s.Name() != "SMA_Crossover" {
		t.Errorf("Name = %q", s.Name())
	}
}
