// Package execution simulates long-only market fills against the paper
// account. It never talks to a broker: a fill is a pure function of the
// current position, the signal side and the candle close.
package execution

import (
	"fmt"

	"github.com/google/uuid"

	"papertrader/internal/model"
)

// dustQty is the base quantity treated as flat after a sell.
const dustQty = 1e-12

// Params controls the simulated fill model.
type Params struct {
	FeeBps            float64 // taker fee in basis points (10 = 0.1%)
	SlippagePct       float64 // fraction applied against the trader, 0.0005 = 5 bps
	SizeFraction      float64 // fraction of deployable cash (buy) or holding (sell)
	MinCashBufferFrac float64 // fraction of cash never deployed on a buy
}

// DefaultParams returns the all-in, no-buffer fill model.
func DefaultParams() Params {
	return Params{FeeBps: 10, SlippagePct: 0.0005, SizeFraction: 1.0}
}

// FeeRate converts basis points to a fraction.
func (p Params) FeeRate() float64 {
	return p.FeeBps / 10_000.0
}

// Validate checks the parameters are usable.
func (p Params) Validate() error {
	if p.FeeBps < 0 || p.FeeBps >= 10_000 {
		return fmt.Errorf("fee_bps must be in [0,10000), got %v", p.FeeBps)
	}
	if p.SlippagePct < 0 || p.SlippagePct >= 1 {
		return fmt.Errorf("slippage_pct must be in [0,1), got %v", p.SlippagePct)
	}
	if p.SizeFraction <= 0 || p.SizeFraction > 1 {
		return fmt.Errorf("size_fraction must be in (0,1], got %v", p.SizeFraction)
	}
	if p.MinCashBufferFrac < 0 || p.MinCashBufferFrac >= 1 {
		return fmt.Errorf("min_cash_buffer_frac must be in [0,1), got %v", p.MinCashBufferFrac)
	}
	return nil
}

// ApplySlippage moves price against the trader: buys fill higher, sells lower.
func ApplySlippage(price, slippagePct float64, side model.Side) float64 {
	if side == model.SideBuy {
		return price * (1 + slippagePct)
	}
	return price * (1 - slippagePct)
}

// Outcome classifies one Execute call.
type Outcome string

const (
	OutcomeFilled            Outcome = "filled"
	OutcomeSkippedNoCash     Outcome = "skip_no_cash"
	OutcomeSkippedNoPosition Outcome = "skip_no_position"
	OutcomeSkippedBuffer     Outcome = "skip_buffer_protection"
	OutcomeSkippedBadSide    Outcome = "skip_unknown_side"
)

// Result is the position after execution plus the ledger row, if any.
// Trade is nil unless Outcome is OutcomeFilled.
type Result struct {
	Outcome  Outcome
	Position model.Position
	Trade    *model.Trade
}

// Simulator is the paper fill engine. It is stateless apart from its
// parameters; the caller owns and persists the position.
type Simulator struct {
	params Params
	newID  func() string
}

// NewSimulator creates a Simulator with the given fill model.
func NewSimulator(params Params) *Simulator {
	return &Simulator{params: params, newID: uuid.NewString}
}

// Params returns the simulator's fill model.
func (s *Simulator) Params() Params {
	return s.params
}

// Execute applies one side to pos at the reference price. ts is the
// execution wall clock and candleTS the candle that produced the signal,
// both in unix ms. Skips, including an unrecognised side, return the
// position unchanged and no trade.
func (s *Simulator) Execute(pos model.Position, side model.Side, price float64, ts, candleTS int64) Result {
	switch side {
	case model.SideBuy:
		return s.buy(pos, price, ts, candleTS)
	case model.SideSell:
		return s.sell(pos, price, ts, candleTS)
	default:
		return Result{Outcome: OutcomeSkippedBadSide, Position: pos}
	}
}

// buy deploys cash; the fee is taken out of the quantity received.
func (s *Simulator) buy(pos model.Position, price float64, ts, candleTS int64) Result {
	if pos.Cash <= 0 {
		return Result{Outcome: OutcomeSkippedNoCash, Position: pos}
	}
	deployable := pos.Cash * (1 - s.params.MinCashBufferFrac)
	if deployable < 0 {
		deployable = 0
	}
	notional := deployable * s.params.SizeFraction
	if notional <= 0 {
		return Result{Outcome: OutcomeSkippedBuffer, Position: pos}
	}

	feeRate := s.params.FeeRate()
	px := ApplySlippage(price, s.params.SlippagePct, model.SideBuy)
	qty := (notional / px) * (1 - feeRate)

	next := pos
	next.BaseQty = pos.BaseQty + qty
	if next.BaseQty > 0 {
		next.AvgPrice = (pos.BaseQty*pos.AvgPrice + qty*px) / next.BaseQty
	}
	next.Cash = pos.Cash - notional

	return Result{
		Outcome:  OutcomeFilled,
		Position: next,
		Trade: &model.Trade{
			ID:        s.newID(),
			TS:        ts,
			CandleTS:  candleTS,
			Side:      model.SideBuy,
			Qty:       qty,
			Price:     px,
			Fee:       notional * feeRate,
			CashAfter: next.Cash,
			BaseAfter: next.BaseQty,
		},
	}
}

// sell liquidates SizeFraction of the holding; the fee reduces proceeds.
func (s *Simulator) sell(pos model.Position, price float64, ts, candleTS int64) Result {
	if pos.BaseQty <= 0 {
		return Result{Outcome: OutcomeSkippedNoPosition, Position: pos}
	}

	feeRate := s.params.FeeRate()
	qty := pos.BaseQty * s.params.SizeFraction
	px := ApplySlippage(price, s.params.SlippagePct, model.SideSell)
	notional := qty * px

	next := pos
	next.Cash = pos.Cash + notional*(1-feeRate)
	next.BaseQty = pos.BaseQty - qty
	if next.BaseQty <= dustQty {
		next.BaseQty = 0
		next.AvgPrice = 0
	}

	return Result{
		Outcome:  OutcomeFilled,
		Position: next,
		Trade: &model.Trade{
			ID:        s.newID(),
			TS:        ts,
			CandleTS:  candleTS,
			Side:      model.SideSell,
			Qty:       qty,
			Price:     px,
			Fee:       notional * feeRate,
			CashAfter: next.Cash,
			BaseAfter: next.BaseQty,
		},
	}
}
