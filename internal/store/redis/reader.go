package redis

import (
	"context"
	"encoding/json"
	"fmt"

	goredis "github.com/go-redis/redis/v8"

	"papertrader/internal/events"
)

// RecentEvents reads up to n events from the symbol's stream, newest first.
func RecentEvents(ctx context.Context, client *goredis.Client, symbol string, n int64) ([]events.Event, error) {
	msgs, err := client.XRevRangeN(ctx, StreamKey(symbol), "+", "-", n).Result()
	if err != nil {
		return nil, fmt.Errorf("redis XREVRANGE %s: %w", StreamKey(symbol), err)
	}
	return decodeMessages(msgs)
}

func decodeMessages(msgs []goredis.XMessage) ([]events.Event, error) {
	out := make([]events.Event, 0, len(msgs))
	for _, m := range msgs {
		raw, ok := m.Values["data"].(string)
		if !ok {
			continue
		}
		var ev events.Event
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			return nil, fmt.Errorf("redis decode %s: %w", m.ID, err)
		}
		out = append(out, ev)
	}
	return out, nil
}

// Subscribe listens on the pub/sub channels for the given event names and
// forwards decoded events to out until ctx is done.
func Subscribe(ctx context.Context, client *goredis.Client, names []string, out chan<- events.Event) error {
	channels := make([]string, len(names))
	for i, n := range names {
		channels[i] = Channel(n)
	}
	sub := client.Subscribe(ctx, channels...)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe: %w", err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev events.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}
