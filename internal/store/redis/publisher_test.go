package redis

import (
	"context"
	"testing"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"papertrader/internal/events"
)

func TestKeys(t *testing.T) {
	if got := StreamKey("btc/usdt"); got != "paper:events:BTC-USDT" {
		t.Errorf("stream key: %s", got)
	}
	if got := Channel(events.PaperBuy); got != "pub:paper:paper.buy" {
		t.Errorf("channel: %s", got)
	}
}

// unreachable returns a client pointed at a closed port with retries off.
func unreachable() *goredis.Client {
	return goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		MaxRetries:  -1,
		DialTimeout: 200 * time.Millisecond,
	})
}

func TestPublisher_BuffersWhileRedisDown(t *testing.T) {
	var states []State
	p := newPublisher(unreachable(), PublisherConfig{
		Symbol:       "BTC/USDT",
		MaxFailures:  2,
		ResetTimeout: time.Hour,
		MaxBuffered:  3,
	}, nil, Hooks{OnStateChange: func(_, to State) { states = append(states, to) }})
	defer p.Close()

	ctx := context.Background()
	ev := events.Event{Name: events.SignalHold, Time: time.Now()}

	// The first failures surface as errors until the breaker trips.
	if err := p.Publish(ctx, ev); err == nil {
		t.Fatal("expected connection error")
	}
	if err := p.Publish(ctx, ev); err == nil {
		t.Fatal("expected connection error")
	}
	if p.Breaker().CurrentState() != StateOpen {
		t.Fatalf("breaker should be open, got %v", p.Breaker().CurrentState())
	}

	// Open breaker: fast, silent, buffered.
	start := time.Now()
	for i := 0; i < 5; i++ {
		if err := p.Publish(ctx, ev); err != nil {
			t.Fatalf("open breaker should swallow errors, got %v", err)
		}
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Error("publishing with an open breaker should not wait on the network")
	}
	if p.Pending() != 3 {
		t.Errorf("pending: got %d, want buffer cap 3", p.Pending())
	}
	if p.Dropped() != 4 {
		t.Errorf("dropped: got %d, want 4", p.Dropped())
	}
	if len(states) != 1 || states[0] != StateOpen {
		t.Errorf("state hooks: %v", states)
	}
}
