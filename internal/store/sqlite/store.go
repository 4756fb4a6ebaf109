// Package sqlite is the durable single-writer state store: last processed
// candle marker, position singleton and append-only trade ledger.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"papertrader/internal/model"
)

const (
	dsnParams = "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"

	markerKey = "last_candle_ts"
)

// Config configures the SQLite store.
type Config struct {
	DBPath string // path to SQLite database file, e.g. "data/papertrader.db"
	Logger *slog.Logger
}

// Store implements model.StateStore on SQLite. One Store per database file;
// running two writers against the same file is unsupported.
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

var _ model.StateStore = (*Store)(nil)

// New opens (or creates) the database with WAL mode and schema.
func New(cfg Config) (*Store, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if dir := filepath.Dir(cfg.DBPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite mkdir %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite3", cfg.DBPath+dsnParams)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	logger.Info("sqlite opened", "path", cfg.DBPath)
	return &Store{db: db, log: logger}, nil
}

// DB returns the underlying sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db }

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS kv (
			k TEXT PRIMARY KEY,
			v INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS position (
			id        INTEGER PRIMARY KEY CHECK (id = 1),
			base_qty  REAL    NOT NULL,
			cash      REAL    NOT NULL,
			avg_price REAL    NOT NULL
		);
		INSERT OR IGNORE INTO position (id, base_qty, cash, avg_price) VALUES (1, 0, 0, 0);

		CREATE TABLE IF NOT EXISTS trades (
			seq        INTEGER PRIMARY KEY AUTOINCREMENT,
			id         TEXT    NOT NULL UNIQUE,
			ts         INTEGER NOT NULL,
			candle_ts  INTEGER NOT NULL,
			side       TEXT    NOT NULL CHECK (side IN ('buy', 'sell')),
			qty        REAL    NOT NULL,
			price      REAL    NOT NULL,
			fee        REAL    NOT NULL,
			cash_after REAL    NOT NULL,
			base_after REAL    NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_trades_ts ON trades(ts);
	`)
	return err
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// LastCandleMarker returns the last processed candle TS.
func (s *Store) LastCandleMarker(ctx context.Context) (int64, bool, error) {
	return lastCandleMarker(ctx, s.db.QueryRowContext)
}

// SetLastCandleMarker upserts the marker, keeping the larger of old and new.
func (s *Store) SetLastCandleMarker(ctx context.Context, ts int64) error {
	return setMarker(ctx, s.db, ts)
}

func setMarker(ctx context.Context, e execer, ts int64) error {
	_, err := e.ExecContext(ctx, `
		INSERT INTO kv (k, v) VALUES (?, ?)
		ON CONFLICT(k) DO UPDATE SET v = MAX(v, excluded.v)
	`, markerKey, ts)
	if err != nil {
		return fmt.Errorf("sqlite set marker: %w", err)
	}
	return nil
}

// Position returns the position singleton.
func (s *Store) Position(ctx context.Context) (model.Position, error) {
	return readPosition(ctx, s.db.QueryRowContext)
}

// SetPosition overwrites the position singleton.
func (s *Store) SetPosition(ctx context.Context, pos model.Position) error {
	return setPosition(ctx, s.db, pos)
}

func setPosition(ctx context.Context, e execer, pos model.Position) error {
	_, err := e.ExecContext(ctx,
		`UPDATE position SET base_qty = ?, cash = ?, avg_price = ? WHERE id = 1`,
		pos.BaseQty, pos.Cash, pos.AvgPrice)
	if err != nil {
		return fmt.Errorf("sqlite set position: %w", err)
	}
	return nil
}

// AddTrade appends one ledger row.
func (s *Store) AddTrade(ctx context.Context, t model.Trade) error {
	return addTrade(ctx, s.db, t)
}

func addTrade(ctx context.Context, e execer, t model.Trade) error {
	_, err := e.ExecContext(ctx, `
		INSERT INTO trades (id, ts, candle_ts, side, qty, price, fee, cash_after, base_after)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.TS, t.CandleTS, string(t.Side), t.Qty, t.Price, t.Fee, t.CashAfter, t.BaseAfter)
	if err != nil {
		return fmt.Errorf("sqlite add trade: %w", err)
	}
	return nil
}

// Commit writes position, optional trade and marker in one transaction.
func (s *Store) Commit(ctx context.Context, pos model.Position, trade *model.Trade, marker int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite begin: %w", err)
	}

	if err := setPosition(ctx, tx, pos); err != nil {
		tx.Rollback()
		return err
	}
	if trade != nil {
		if err := addTrade(ctx, tx, *trade); err != nil {
			tx.Rollback()
			return err
		}
	}
	if err := setMarker(ctx, tx, marker); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite commit: %w", err)
	}
	return nil
}

// EnsureStartingCash seeds cash only when base and cash are both exactly zero.
func (s *Store) EnsureStartingCash(ctx context.Context, cash float64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE position SET cash = ? WHERE id = 1 AND base_qty = 0 AND cash = 0`, cash)
	if err != nil {
		return false, fmt.Errorf("sqlite seed cash: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite seed cash: %w", err)
	}
	if n > 0 {
		s.log.Info("sqlite seeded starting cash", "cash", cash)
	}
	return n > 0, nil
}

// Trades returns up to limit ledger rows, newest first.
func (s *Store) Trades(ctx context.Context, limit int) ([]model.Trade, error) {
	return readTrades(ctx, s.db, limit)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

type rowQuerier func(ctx context.Context, query string, args ...any) *sql.Row

func lastCandleMarker(ctx context.Context, query rowQuerier) (int64, bool, error) {
	var ts int64
	err := query(ctx, `SELECT v FROM kv WHERE k = ?`, markerKey).Scan(&ts)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("sqlite read marker: %w", err)
	}
	return ts, true, nil
}

func readPosition(ctx context.Context, query rowQuerier) (model.Position, error) {
	var p model.Position
	err := query(ctx, `SELECT base_qty, cash, avg_price FROM position WHERE id = 1`).
		Scan(&p.BaseQty, &p.Cash, &p.AvgPrice)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Position{}, nil
	}
	if err != nil {
		return model.Position{}, fmt.Errorf("sqlite read position: %w", err)
	}
	return p, nil
}

func readTrades(ctx context.Context, db *sql.DB, limit int) ([]model.Trade, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id, ts, candle_ts, side, qty, price, fee, cash_after, base_after
		FROM trades ORDER BY seq DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query trades: %w", err)
	}
	defer rows.Close()

	var trades []model.Trade
	for rows.Next() {
		var t model.Trade
		var side string
		if err := rows.Scan(&t.ID, &t.TS, &t.CandleTS, &side, &t.Qty, &t.Price, &t.Fee, &t.CashAfter, &t.BaseAfter); err != nil {
			return nil, fmt.Errorf("sqlite scan trades: %w", err)
		}
		t.Side = model.Side(side)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}
