// Package redis fans trading events out to Redis: every event is appended to
// a per-symbol stream and published on a per-event pub/sub channel. All calls
// go through a circuit breaker so a Redis outage never stalls the loop.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"papertrader/internal/events"
)

const (
	defaultStreamMaxLen = 10000
	defaultLatestTTL    = 30 * time.Minute
	defaultCallTimeout  = 500 * time.Millisecond
	defaultMaxBuffered  = 1000
)

// PublisherConfig configures the Redis publisher.
type PublisherConfig struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int

	Symbol       string // e.g. "BTC/USDT"
	StreamMaxLen int64  // approximate XADD MAXLEN
	CallTimeout  time.Duration
	MaxBuffered  int // events held while the breaker is open

	MaxFailures  int           // breaker trip threshold
	ResetTimeout time.Duration // breaker open period
}

// Hooks let the caller observe the publisher without importing metrics here.
type Hooks struct {
	OnPublish     func(d time.Duration)
	OnStateChange func(from, to State)
}

// Publisher implements events.Sink on Redis.
type Publisher struct {
	client    *goredis.Client
	cb        *CircuitBreaker
	log       *slog.Logger
	hooks     Hooks
	streamKey string
	latestKey string
	maxLen    int64
	timeout   time.Duration

	mu      sync.Mutex
	pending []events.Event
	maxBuf  int
	dropped int
}

var _ events.Sink = (*Publisher)(nil)

// StreamKey is the per-symbol event stream, e.g. "paper:events:BTC-USDT".
func StreamKey(symbol string) string {
	return "paper:events:" + keySymbol(symbol)
}

// Channel is the pub/sub channel for one event name, e.g. "pub:paper:paper.buy".
func Channel(eventName string) string {
	return "pub:paper:" + eventName
}

func keySymbol(symbol string) string {
	return strings.ToUpper(strings.ReplaceAll(symbol, "/", "-"))
}

// New connects to Redis, pings it and returns a Publisher.
func New(cfg PublisherConfig, logger *slog.Logger, hooks Hooks) (*Publisher, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	p := newPublisher(client, cfg, logger, hooks)
	p.log.Info("redis connected", "addr", cfg.Addr, "stream", p.streamKey)
	return p, nil
}

func newPublisher(client *goredis.Client, cfg PublisherConfig, logger *slog.Logger, hooks Hooks) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.StreamMaxLen <= 0 {
		cfg.StreamMaxLen = defaultStreamMaxLen
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaultCallTimeout
	}
	if cfg.MaxBuffered <= 0 {
		cfg.MaxBuffered = defaultMaxBuffered
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}

	p := &Publisher{
		client:    client,
		cb:        NewCircuitBreaker(cfg.MaxFailures, cfg.ResetTimeout),
		log:       logger.With("component", "redis"),
		hooks:     hooks,
		streamKey: StreamKey(cfg.Symbol),
		latestKey: "paper:latest:" + keySymbol(cfg.Symbol),
		maxLen:    cfg.StreamMaxLen,
		timeout:   cfg.CallTimeout,
		maxBuf:    cfg.MaxBuffered,
	}
	p.cb.OnStateChange = func(from, to State) {
		p.log.Warn("redis circuit breaker", "from", from.String(), "to", to.String())
		if hooks.OnStateChange != nil {
			hooks.OnStateChange(from, to)
		}
	}
	return p
}

// Client returns the underlying Redis client for health checks.
func (p *Publisher) Client() *goredis.Client { return p.client }

// Breaker exposes the circuit breaker state.
func (p *Publisher) Breaker() *CircuitBreaker { return p.cb }

// Publish sends one event. When Redis is unavailable the event is buffered
// (oldest dropped beyond the limit) and nil is returned; buffered events are
// sent ahead of the next successful publish.
func (p *Publisher) Publish(ctx context.Context, ev events.Event) error {
	batch := p.takePending(ev)

	err := p.cb.Execute(func() error {
		callCtx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()
		return p.write(callCtx, batch)
	})
	if err != nil {
		p.requeue(batch)
		if errors.Is(err, ErrCircuitOpen) {
			return nil
		}
		return fmt.Errorf("redis publish %s: %w", ev.Name, err)
	}
	return nil
}

// write pipelines XADD + SET latest + PUBLISH for each event.
func (p *Publisher) write(ctx context.Context, batch []events.Event) error {
	start := time.Now()
	pipe := p.client.Pipeline()
	for _, ev := range batch {
		data := string(ev.JSON())
		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: p.streamKey,
			MaxLen: p.maxLen,
			Approx: true,
			Values: map[string]interface{}{
				"event": ev.Name,
				"data":  data,
			},
		})
		pipe.Set(ctx, p.latestKey, data, defaultLatestTTL)
		pipe.Publish(ctx, Channel(ev.Name), data)
	}
	_, err := pipe.Exec(ctx)
	if err == nil && p.hooks.OnPublish != nil {
		p.hooks.OnPublish(time.Since(start))
	}
	return err
}

func (p *Publisher) takePending(ev events.Event) []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	batch := append(p.pending, ev)
	p.pending = nil
	return batch
}

func (p *Publisher) requeue(batch []events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending = append(batch, p.pending...)
	if over := len(p.pending) - p.maxBuf; over > 0 {
		p.pending = p.pending[over:]
		p.dropped += over
	}
}

// Pending returns the number of buffered events.
func (p *Publisher) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// Dropped returns how many buffered events were discarded for space.
func (p *Publisher) Dropped() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dropped
}

// Close closes the Redis client.
func (p *Publisher) Close() error {
	if n := p.Pending(); n > 0 {
		p.log.Warn("redis closing with unsent events", "pending", n)
	}
	return p.client.Close()
}
