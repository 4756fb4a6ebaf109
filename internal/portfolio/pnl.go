// Package portfolio derives P&L figures from the trade ledger.
package portfolio

import "papertrader/internal/model"

// PnLTracker replays ledger rows and keeps a fee-inclusive cost basis.
type PnLTracker struct {
	qty       float64
	costBasis float64 // quote spent on the open quantity, fees included

	realizedPnL float64
	fees        float64
	trades      int
	wins        int
	losses      int
}

// NewPnLTracker creates an empty tracker.
func NewPnLTracker() *PnLTracker {
	return &PnLTracker{}
}

// RecordTrade applies one ledger row and returns the P&L it realized
// (always 0 for buys).
func (p *PnLTracker) RecordTrade(t model.Trade) float64 {
	p.trades++
	p.fees += t.Fee

	if t.Side == model.SideBuy {
		// buy fee is withheld from the quantity, so cash spent is qty*price + fee
		p.qty += t.Qty
		p.costBasis += t.Qty*t.Price + t.Fee
		return 0
	}

	sellQty := t.Qty
	if sellQty > p.qty {
		sellQty = p.qty
	}
	var cost float64
	if p.qty > 0 {
		cost = p.costBasis * sellQty / p.qty
	}
	realized := sellQty*t.Price - t.Fee - cost
	p.qty -= sellQty
	p.costBasis -= cost
	if p.qty <= 1e-12 {
		p.qty = 0
		p.costBasis = 0
	}

	p.realizedPnL += realized
	if realized > 0 {
		p.wins++
	} else {
		p.losses++
	}
	return realized
}

// PnLSummary is the account P&L at a mark price.
type PnLSummary struct {
	RealizedPnL   float64 `json:"realized_pnl"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	TotalPnL      float64 `json:"total_pnl"`
	TotalFees     float64 `json:"total_fees"`
	TotalTrades   int     `json:"total_trades"`
	Wins          int     `json:"wins"`
	Losses        int     `json:"losses"`
	OpenQty       float64 `json:"open_qty"`
}

// GetSummary returns the current P&L summary, marking the open quantity at
// mark (0 skips unrealized P&L).
func (p *PnLTracker) GetSummary(mark float64) PnLSummary {
	var unrealized float64
	if mark > 0 && p.qty > 0 {
		unrealized = p.qty*mark - p.costBasis
	}
	return PnLSummary{
		RealizedPnL:   p.realizedPnL,
		UnrealizedPnL: unrealized,
		TotalPnL:      p.realizedPnL + unrealized,
		TotalFees:     p.fees,
		TotalTrades:   p.trades,
		Wins:          p.wins,
		Losses:        p.losses,
		OpenQty:       p.qty,
	}
}

// Summarize replays trades, which must be oldest first.
func Summarize(trades []model.Trade, mark float64) PnLSummary {
	p := NewPnLTracker()
	for _, t := range trades {
		p.RecordTrade(t)
	}
	return p.GetSummary(mark)
}
