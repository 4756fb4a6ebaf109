package model

import (
	"encoding/json"
	"time"
)

// Candle is one closed OHLCV bucket as returned by the market-data adapter.
// TS is the bucket start in unix milliseconds; candles within one fetch are
// ordered oldest to newest with strictly increasing TS.
type Candle struct {
	TS     int64   `json:"ts"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// Time returns the bucket start as a UTC time.Time.
func (c *Candle) Time() time.Time {
	return time.UnixMilli(c.TS).UTC()
}

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}

// Closes extracts the close series from candles, preserving order.
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i := range candles {
		out[i] = candles[i].Close
	}
	return out
}
