package gateway

import (
	"sync"

	"papertrader/internal/events"
)

// Entry is one event as it went out on the feed.
type Entry struct {
	Seq      int64
	Event    events.Event
	Envelope []byte // the exact bytes sent to websocket clients
}

// Query selects backlog entries. Zero values mean unbounded; Names, when
// set, keeps only those event names.
type Query struct {
	FromSeq int64
	ToSeq   int64
	Names   []string
	Limit   int // newest entries win when the match exceeds Limit
}

func (q Query) match(e Entry) bool {
	if q.FromSeq > 0 && e.Seq < q.FromSeq {
		return false
	}
	if q.ToSeq > 0 && e.Seq > q.ToSeq {
		return false
	}
	if len(q.Names) == 0 {
		return true
	}
	for _, n := range q.Names {
		if n == e.Event.Name {
			return true
		}
	}
	return false
}

// Backlog holds the last capacity feed entries in seq order so reconnecting
// clients and /api/events can catch up.
type Backlog struct {
	mu       sync.RWMutex
	entries  []Entry
	capacity int
	evicted  int64
}

// NewBacklog creates a backlog; capacity <= 0 uses 500.
func NewBacklog(capacity int) *Backlog {
	if capacity <= 0 {
		capacity = 500
	}
	return &Backlog{entries: make([]Entry, 0, capacity), capacity: capacity}
}

// Append adds e, evicting the oldest entry when full. Seqs must increase.
func (b *Backlog) Append(e Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.entries) == b.capacity {
		copy(b.entries, b.entries[1:])
		b.entries = b.entries[:len(b.entries)-1]
		b.evicted++
	}
	b.entries = append(b.entries, e)
}

// Select returns matching entries, oldest first.
func (b *Backlog) Select(q Query) []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []Entry
	for _, e := range b.entries {
		if q.match(e) {
			out = append(out, e)
		}
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[len(out)-q.Limit:]
	}
	return out
}

// Bounds returns the oldest and newest retained seq; ok is false when empty.
func (b *Backlog) Bounds() (oldest, newest int64, ok bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.entries) == 0 {
		return 0, 0, false
	}
	return b.entries[0].Seq, b.entries[len(b.entries)-1].Seq, true
}

// Evicted counts entries dropped to make room.
func (b *Backlog) Evicted() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.evicted
}
