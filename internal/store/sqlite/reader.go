package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/mattn/go-sqlite3"

	"papertrader/internal/model"
)

// Reader provides read-only access to a store written by another process,
// e.g. the report CLI inspecting a running trader's database.
type Reader struct {
	db *sql.DB
}

// NewReader opens a SQLite connection for reading. The schema must exist.
func NewReader(dbPath string, logger *slog.Logger) (*Reader, error) {
	db, err := sql.Open("sqlite3", dbPath+dsnParams)
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}

	if logger != nil {
		logger.Debug("sqlite reader opened", "path", dbPath)
	}
	return &Reader{db: db}, nil
}

// LastCandleMarker returns the last processed candle TS.
func (r *Reader) LastCandleMarker(ctx context.Context) (int64, bool, error) {
	return lastCandleMarker(ctx, r.db.QueryRowContext)
}

// Position returns the position singleton.
func (r *Reader) Position(ctx context.Context) (model.Position, error) {
	return readPosition(ctx, r.db.QueryRowContext)
}

// Trades returns up to limit ledger rows, newest first.
func (r *Reader) Trades(ctx context.Context, limit int) ([]model.Trade, error) {
	return readTrades(ctx, r.db, limit)
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}
