package gateway

import (
	"testing"

	"papertrader/internal/events"
)

func fill(b *Backlog, names ...string) {
	for i, n := range names {
		b.Append(Entry{Seq: int64(i + 1), Event: events.Event{Name: n}, Envelope: []byte(n)})
	}
}

func TestBacklog_EvictsOldest(t *testing.T) {
	b := NewBacklog(3)
	fill(b, "a", "b", "c", "d", "e")

	oldest, newest, ok := b.Bounds()
	if !ok || oldest != 3 || newest != 5 {
		t.Fatalf("bounds = %d..%d ok=%v, want 3..5", oldest, newest, ok)
	}
	if b.Evicted() != 2 {
		t.Errorf("evicted = %d, want 2", b.Evicted())
	}
	got := b.Select(Query{})
	if len(got) != 3 || got[0].Event.Name != "c" || string(got[2].Envelope) != "e" {
		t.Errorf("select all = %+v", got)
	}
}

func TestBacklog_SelectByNameAndRange(t *testing.T) {
	b := NewBacklog(10)
	fill(b,
		events.SignalHold,
		events.PaperBuy,
		events.RiskHaltDailyLoss,
		events.SignalHold,
		events.PaperSell,
	)

	tests := []struct {
		name string
		q    Query
		seqs []int64
	}{
		{"fills", Query{Names: []string{events.PaperBuy, events.PaperSell}}, []int64{2, 5}},
		{"from", Query{FromSeq: 4}, []int64{4, 5}},
		{"to", Query{ToSeq: 2}, []int64{1, 2}},
		{"range and name", Query{FromSeq: 2, ToSeq: 4, Names: []string{events.SignalHold}}, []int64{4}},
		{"limit keeps newest", Query{Limit: 2}, []int64{4, 5}},
		{"unknown name", Query{Names: []string{"nope"}}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := b.Select(tt.q)
			if len(got) != len(tt.seqs) {
				t.Fatalf("got %d entries, want %v", len(got), tt.seqs)
			}
			for i, e := range got {
				if e.Seq != tt.seqs[i] {
					t.Errorf("entry %d seq = %d, want %d", i, e.Seq, tt.seqs[i])
				}
			}
		})
	}
}

func TestBacklog_Empty(t *testing.T) {
	b := NewBacklog(0)
	if _, _, ok := b.Bounds(); ok {
		t.Error("empty backlog reported bounds")
	}
	if got := b.Select(Query{}); len(got) != 0 {
		t.Errorf("select on empty = %d entries", len(got))
	}
}
