// Package events carries the trading loop's structured transition events to
// the log stream and to any registered sinks (Redis, websocket, alerts).
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"time"

	"papertrader/internal/logger"
)

// Event names emitted by the trading loop.
const (
	AppStart    = "app.start"
	AppStop     = "app.stop"
	InitCash    = "init.cash"
	NoNewCandle = "loop.no_new_candle"
	LoopError   = "loop.error"

	SignalHold = "signal.hold"

	PaperBuy                  = "paper.buy"
	PaperSell                 = "paper.sell"
	PaperSkipNoCash           = "paper.skip_no_cash"
	PaperSkipNoPosition       = "paper.skip_no_position"
	PaperSkipBufferProtection = "paper.skip_buffer_protection"
	PaperSkipUnknownSide      = "paper.skip_unknown_side"

	RiskDayStart           = "risk.day_start"
	RiskPauseOutsideWindow = "risk.pause_outside_window"
	RiskHaltDailyLoss      = "risk.halt_daily_loss"
)

// Fields are the numeric and string attributes of an event.
type Fields map[string]any

// Event is one structured transition.
type Event struct {
	Name    string    `json:"event"`
	Time    time.Time `json:"time"`
	TraceID string    `json:"trace_id,omitempty"`
	Fields  Fields    `json:"fields,omitempty"`
}

// JSON returns the JSON-encoded event (ignoring errors for hot-path usage).
func (e Event) JSON() []byte {
	b, _ := json.Marshal(e)
	return b
}

// Sink receives every emitted event. Sinks must not block the loop for long
// and their errors never fail an iteration.
type Sink interface {
	Publish(ctx context.Context, ev Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, ev Event) error

func (f SinkFunc) Publish(ctx context.Context, ev Event) error { return f(ctx, ev) }

// Emitter logs events through slog and fans them out to sinks.
type Emitter struct {
	log *slog.Logger
	now func() time.Time

	mu    sync.RWMutex
	sinks []Sink
}

// NewEmitter creates an Emitter that logs through l.
func NewEmitter(l *slog.Logger, sinks ...Sink) *Emitter {
	if l == nil {
		l = slog.Default()
	}
	return &Emitter{log: l, now: time.Now, sinks: sinks}
}

// AddSink registers another sink.
func (e *Emitter) AddSink(s Sink) {
	e.mu.Lock()
	e.sinks = append(e.sinks, s)
	e.mu.Unlock()
}

// Emit logs the event and publishes it to every sink. The trace ID is taken
// from ctx.
func (e *Emitter) Emit(ctx context.Context, name string, fields Fields) Event {
	ev := Event{
		Name:    name,
		Time:    e.now().UTC(),
		TraceID: logger.TraceID(ctx),
		Fields:  fields,
	}

	e.log.Log(ctx, Level(ev), name, attrs(ctx, fields)...)

	e.mu.RLock()
	sinks := e.sinks
	e.mu.RUnlock()
	for _, s := range sinks {
		if err := s.Publish(ctx, ev); err != nil {
			e.log.Warn("event sink failed", "event", name, "error", err)
		}
	}
	return ev
}

// Level is the log level an event is written at.
func Level(ev Event) slog.Level {
	switch ev.Name {
	case LoopError:
		return slog.LevelError
	case RiskHaltDailyLoss, PaperSkipUnknownSide:
		return slog.LevelWarn
	case RiskDayStart:
		if restored, _ := ev.Fields["restored"].(bool); restored {
			return slog.LevelWarn
		}
	case NoNewCandle:
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// attrs flattens fields in key order after the trace ID.
func attrs(ctx context.Context, fields Fields) []any {
	out := logger.LogWithTrace(ctx)
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, slog.Any(k, fields[k]))
	}
	return out
}

// Recorder is a Sink that keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, ev Event) error {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	return nil
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Names returns the recorded event names in order.
func (r *Recorder) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Name
	}
	return out
}

// Reset drops recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}
