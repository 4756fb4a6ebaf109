package model

import (
	"fmt"
	"sort"
	"time"
)

var timeframes = map[string]time.Duration{
	"1m":  time.Minute,
	"3m":  3 * time.Minute,
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"30m": 30 * time.Minute,
	"1h":  time.Hour,
	"2h":  2 * time.Hour,
	"4h":  4 * time.Hour,
	"1d":  24 * time.Hour,
}

// TimeframeDuration returns the candle period for a timeframe string like "1m".
func TimeframeDuration(tf string) (time.Duration, error) {
	d, ok := timeframes[tf]
	if !ok {
		return 0, fmt.Errorf("unsupported timeframe %q (supported: %v)", tf, Timeframes())
	}
	return d, nil
}

// Timeframes lists the supported timeframe strings, shortest first.
func Timeframes() []string {
	out := make([]string, 0, len(timeframes))
	for tf := range timeframes {
		out = append(out, tf)
	}
	sort.Slice(out, func(i, j int) bool { return timeframes[out[i]] < timeframes[out[j]] })
	return out
}
