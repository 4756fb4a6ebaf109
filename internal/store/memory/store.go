// Package memory is an in-process model.StateStore with the same contract as
// the SQLite store, used by tests and by db_path ":memory:".
package memory

import (
	"context"
	"fmt"
	"sync"

	"papertrader/internal/model"
)

// Store keeps the paper account in memory. Safe for concurrent use.
type Store struct {
	mu        sync.RWMutex
	marker    int64
	hasMarker bool
	pos       model.Position
	trades    []model.Trade
	ids       map[string]struct{}

	failCommit error
}

var _ model.StateStore = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{ids: make(map[string]struct{})}
}

// FailCommits makes every Commit return err until called with nil.
func (s *Store) FailCommits(err error) {
	s.mu.Lock()
	s.failCommit = err
	s.mu.Unlock()
}

func (s *Store) LastCandleMarker(_ context.Context) (int64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.marker, s.hasMarker, nil
}

func (s *Store) SetLastCandleMarker(_ context.Context, ts int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setMarker(ts)
	return nil
}

func (s *Store) setMarker(ts int64) {
	if !s.hasMarker || ts > s.marker {
		s.marker = ts
		s.hasMarker = true
	}
}

func (s *Store) Position(_ context.Context) (model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pos, nil
}

func (s *Store) SetPosition(_ context.Context, pos model.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pos = pos
	return nil
}

func (s *Store) AddTrade(_ context.Context, t model.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addTrade(t)
}

func (s *Store) addTrade(t model.Trade) error {
	if _, dup := s.ids[t.ID]; dup {
		return fmt.Errorf("memory add trade: duplicate id %q", t.ID)
	}
	s.ids[t.ID] = struct{}{}
	s.trades = append(s.trades, t)
	return nil
}

func (s *Store) Commit(_ context.Context, pos model.Position, trade *model.Trade, marker int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCommit != nil {
		return s.failCommit
	}
	if trade != nil {
		if _, dup := s.ids[trade.ID]; dup {
			return fmt.Errorf("memory commit: duplicate trade id %q", trade.ID)
		}
	}

	s.pos = pos
	if trade != nil {
		s.addTrade(*trade)
	}
	s.setMarker(marker)
	return nil
}

func (s *Store) EnsureStartingCash(_ context.Context, cash float64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pos.BaseQty != 0 || s.pos.Cash != 0 {
		return false, nil
	}
	s.pos.Cash = cash
	return true, nil
}

// Trades returns up to limit rows, newest first.
func (s *Store) Trades(_ context.Context, limit int) ([]model.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.trades) {
		limit = len(s.trades)
	}
	out := make([]model.Trade, 0, limit)
	for i := len(s.trades) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.trades[i])
	}
	return out, nil
}

func (s *Store) Close() error { return nil }
