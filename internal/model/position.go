package model

// Position is the singleton paper account: base asset held, quote cash and
// the average entry price of the base holding.
//
// BaseQty == 0 implies AvgPrice == 0.
type Position struct {
	BaseQty  float64 `json:"base_qty"`
	Cash     float64 `json:"cash"`
	AvgPrice float64 `json:"avg_price"`
}

// Equity marks the account to market at price.
func (p Position) Equity(price float64) float64 {
	return p.Cash + p.BaseQty*price
}

// UnrealizedPnL returns the mark-to-market gain of the base holding at price.
func (p Position) UnrealizedPnL(price float64) float64 {
	if p.BaseQty <= 0 {
		return 0
	}
	return (price - p.AvgPrice) * p.BaseQty
}

// IsZero reports whether the account has never been funded.
func (p Position) IsZero() bool {
	return p.BaseQty == 0 && p.Cash == 0
}
