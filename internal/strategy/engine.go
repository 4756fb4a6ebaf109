// Package strategy turns a closed-price series into a trading signal.
//
// Strategies are pure: the same closes always yield the same signal and no
// state is carried between calls. The trading loop re-evaluates the full
// fetched history on every new candle.
package strategy

import "papertrader/internal/model"

// Strategy is the interface that all trading strategies must implement.
type Strategy interface {
	// Name returns the unique name of the strategy.
	Name() string

	// Evaluate maps closes (oldest first) to a signal.
	Evaluate(closes []float64) model.Signal

	// MinHistory is the number of closes needed before Evaluate can emit
	// anything other than hold.
	MinHistory() int
}
