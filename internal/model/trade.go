package model

// Side is the direction of an executed paper trade.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Signal is the strategy decision for one candle.
type Signal string

const (
	SignalHold Signal = "hold"
	SignalBuy  Signal = "buy"
	SignalSell Signal = "sell"
)

// Side maps a trading signal to a trade side. ok is false for hold.
func (s Signal) Side() (side Side, ok bool) {
	switch s {
	case SignalBuy:
		return SideBuy, true
	case SignalSell:
		return SideSell, true
	default:
		return "", false
	}
}

// Trade is one append-only ledger row. Rows are never mutated or deleted.
type Trade struct {
	ID        string  `json:"id"`
	TS        int64   `json:"ts"`        // execution wall clock, unix ms
	CandleTS  int64   `json:"candle_ts"` // candle that produced the signal, unix ms
	Side      Side    `json:"side"`
	Qty       float64 `json:"qty"`
	Price     float64 `json:"price"` // fill price after slippage
	Fee       float64 `json:"fee"`
	CashAfter float64 `json:"cash_after"`
	BaseAfter float64 `json:"base_after"`
}
