package model

import "context"

// ── Port Interfaces ──
// These interfaces decouple the trading loop from concrete storage and
// market-data implementations (SQLite, in-memory, KuCoin, simulator).

// StateStore is the durable single-writer record of the paper account:
// the last processed candle marker, the position singleton and the trade ledger.
type StateStore interface {
	// LastCandleMarker returns the most recently processed candle TS.
	// ok is false when no candle has ever been processed.
	LastCandleMarker(ctx context.Context) (ts int64, ok bool, err error)

	// SetLastCandleMarker upserts the marker. It never moves the marker backward.
	SetLastCandleMarker(ctx context.Context, ts int64) error

	// Position returns the current position singleton.
	Position(ctx context.Context) (Position, error)

	// SetPosition overwrites the position singleton.
	SetPosition(ctx context.Context, pos Position) error

	// AddTrade appends one ledger row.
	AddTrade(ctx context.Context, trade Trade) error

	// Commit writes the position, the optional trade and the marker as one
	// atomic unit. A nil trade commits only position and marker.
	Commit(ctx context.Context, pos Position, trade *Trade, marker int64) error

	// EnsureStartingCash seeds cash when the position is exactly zero.
	// seeded reports whether the seed was applied.
	EnsureStartingCash(ctx context.Context, cash float64) (seeded bool, err error)

	// Trades returns up to limit ledger rows, newest first.
	Trades(ctx context.Context, limit int) ([]Trade, error)

	// Close releases underlying resources.
	Close() error
}

// CandleFetcher is the market-data adapter consumed by the trading loop.
type CandleFetcher interface {
	// FetchCandles returns up to limit closed candles, oldest first.
	FetchCandles(ctx context.Context, symbol, timeframe string, limit int) ([]Candle, error)
}
