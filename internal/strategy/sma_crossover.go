package strategy

import (
	"fmt"

	"papertrader/internal/indicator"
	"papertrader/internal/model"
)

// SMACrossover implements a simple SMA crossover strategy.
//
// Buy signal: fast SMA crosses above slow SMA (golden cross)
// Sell signal: fast SMA crosses below slow SMA (death cross)
type SMACrossover struct {
	name       string
	fastPeriod int
	slowPeriod int
}

// NewSMACrossover creates a new SMA crossover strategy.
// Requires 0 < fastPeriod < slowPeriod (e.g., 9 and 21).
func NewSMACrossover(fastPeriod, slowPeriod int) (*SMACrossover, error) {
	if fastPeriod <= 0 || slowPeriod <= 0 {
		return nil, fmt.Errorf("sma windows must be > 0 (fast=%d slow=%d)", fastPeriod, slowPeriod)
	}
	if fastPeriod >= slowPeriod {
		return nil, fmt.Errorf("fast window must be < slow window (fast=%d slow=%d)", fastPeriod, slowPeriod)
	}
	return &SMACrossover{
		name:       "SMA_Crossover",
		fastPeriod: fastPeriod,
		slowPeriod: slowPeriod,
	}, nil
}

func (s *SMACrossover) Name() string {
	return s.name
}

// MinHistory is slow+2: one slow window plus two comparable points.
func (s *SMACrossover) MinHistory() int {
	return s.slowPeriod + 2
}

func (s *SMACrossover) Evaluate(closes []float64) model.Signal {
	return Crossover(closes, s.fastPeriod, s.slowPeriod)
}

// Crossover compares the last two (fast, slow) SMA pairs of closes.
// Fewer than slow+2 closes yields hold.
func Crossover(closes []float64, fast, slow int) model.Signal {
	if fast <= 0 || slow <= 0 || len(closes) < slow+2 {
		return model.SignalHold
	}

	fastSMA := indicator.SMASeries(closes, fast)
	slowSMA := indicator.SMASeries(closes, slow)

	n := len(closes)
	prevFast, prevSlow := fastSMA[n-2], slowSMA[n-2]
	curFast, curSlow := fastSMA[n-1], slowSMA[n-1]

	// Golden cross: fast crosses above slow
	if prevFast <= prevSlow && curFast > curSlow {
		return model.SignalBuy
	}

	// Death cross: fast crosses below slow
	if prevFast >= prevSlow && curFast < curSlow {
		return model.SignalSell
	}

	return model.SignalHold
}
