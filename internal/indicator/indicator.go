// Package indicator provides technical indicator calculations over close prices.
//
// Indicators are incremental: each Update feeds one close and recalculates.
// Series helpers replay a whole close series and return one value per input.
package indicator

// Indicator is the interface for all technical indicators.
type Indicator interface {
	// Name returns the indicator name (e.g., "SMA").
	Name() string

	// Update feeds a new close price and recalculates.
	Update(price float64)

	// Value returns the current calculated value. Returns 0 if not enough data.
	Value() float64

	// Ready returns true when enough data has been accumulated.
	Ready() bool

	// Reset clears state for reuse.
	Reset()
}
