// Package risk guards the trading loop with a daily trading window and a
// day-scoped drawdown halt measured against day-open equity.
package risk

import (
	"math"
	"sync"
	"time"
)

// Limits defines configurable risk thresholds.
type Limits struct {
	DailyMaxLossPct float64 `json:"daily_max_loss_pct"` // fraction, e.g. 0.05 = 5%
	Window          Window  `json:"-"`
}

// Action is the gate's decision for one iteration.
type Action int

const (
	ActionTrade Action = iota // evaluate signal and execute
	ActionPause               // outside trading window
	ActionHalt                // daily loss limit breached
)

func (a Action) String() string {
	switch a {
	case ActionTrade:
		return "trade"
	case ActionPause:
		return "pause"
	case ActionHalt:
		return "halt"
	default:
		return "unknown"
	}
}

// DayState is the drawdown baseline for one local calendar day.
// It is not persisted; a restart re-baselines on current equity.
type DayState struct {
	DayOpenEquity float64 `json:"day_open_equity"`
	Day           string  `json:"day"` // YYYY-MM-DD in the gate's location
}

// Verdict is the outcome of one Check.
type Verdict struct {
	Action        Action
	Equity        float64
	DayOpenEquity float64
	Drawdown      float64 // (equity - day open) / day open; 0 when day open <= 0
	Day           string

	// DayStarted is true when this Check created a new baseline.
	DayStarted bool
	// Restored is true for the first baseline after process start, where the
	// true day-open equity is unknown and current equity is used instead.
	Restored bool
}

// Gate is the stateful day-scoped risk guard.
type Gate struct {
	mu     sync.Mutex
	limits Limits
	loc    *time.Location
	state  *DayState
}

// NewGate creates a Gate that derives calendar days in loc.
func NewGate(limits Limits, loc *time.Location) *Gate {
	if loc == nil {
		loc = time.Local
	}
	return &Gate{limits: limits, loc: loc}
}

// Check rolls the day baseline if needed, then applies the trading window and
// the daily loss limit, in that order.
func (g *Gate) Check(now time.Time, equity float64) Verdict {
	g.mu.Lock()
	defer g.mu.Unlock()

	local := now.In(g.loc)
	day := local.Format("2006-01-02")

	v := Verdict{Equity: equity, Day: day}
	if g.state == nil || g.state.Day != day {
		v.Restored = g.state == nil
		v.DayStarted = true
		g.state = &DayState{DayOpenEquity: equity, Day: day}
	}
	v.DayOpenEquity = g.state.DayOpenEquity
	v.Drawdown = Drawdown(equity, g.state.DayOpenEquity)

	switch {
	case !g.limits.Window.Contains(local):
		v.Action = ActionPause
	case DailyLossBreached(equity, g.state.DayOpenEquity, g.limits.DailyMaxLossPct):
		v.Action = ActionHalt
	default:
		v.Action = ActionTrade
	}
	return v
}

// Limits returns the gate's configured thresholds.
func (g *Gate) Limits() Limits {
	return g.limits
}

// Location is the zone calendar days and the window are evaluated in.
func (g *Gate) Location() *time.Location {
	return g.loc
}

// State returns the current day baseline. ok is false before the first Check.
func (g *Gate) State() (DayState, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == nil {
		return DayState{}, false
	}
	return *g.state, true
}

// Drawdown returns (equity - dayOpen) / dayOpen, or 0 when dayOpen <= 0.
func Drawdown(equity, dayOpen float64) float64 {
	if dayOpen <= 0 {
		return 0
	}
	return (equity - dayOpen) / dayOpen
}

// DailyLossBreached reports whether the day drawdown is at or beyond
// -|maxLossPct|.
func DailyLossBreached(equity, dayOpen, maxLossPct float64) bool {
	if dayOpen <= 0 {
		return false
	}
	return Drawdown(equity, dayOpen) <= -math.Abs(maxLossPct)
}
