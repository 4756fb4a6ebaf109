package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"papertrader/internal/logger"
)

func TestEmitter_LogsAndFansOut(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	rec := &Recorder{}
	failing := SinkFunc(func(context.Context, Event) error { return errors.New("redis down") })
	em := NewEmitter(l, failing, rec)

	ctx := logger.WithTraceID(context.Background(), "BTC/USDT-60000")
	ev := em.Emit(ctx, PaperBuy, Fields{"qty": 9.99, "price": 100.0})

	if ev.TraceID != "BTC/USDT-60000" {
		t.Errorf("trace id: %q", ev.TraceID)
	}
	got := rec.Events()
	if len(got) != 1 || got[0].Name != PaperBuy || got[0].Fields["qty"] != 9.99 {
		t.Fatalf("recorded: %+v", got)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var first map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatal(err)
	}
	if first["msg"] != PaperBuy || first["trace_id"] != "BTC/USDT-60000" || first["qty"] != 9.99 {
		t.Errorf("log record: %v", first)
	}
	if len(lines) != 2 || !strings.Contains(lines[1], "event sink failed") {
		t.Errorf("expected sink failure warning, got %v", lines)
	}
}

func TestLevel(t *testing.T) {
	cases := []struct {
		ev   Event
		want slog.Level
	}{
		{Event{Name: LoopError}, slog.LevelError},
		{Event{Name: RiskHaltDailyLoss}, slog.LevelWarn},
		{Event{Name: PaperSkipUnknownSide}, slog.LevelWarn},
		{Event{Name: RiskDayStart, Fields: Fields{"restored": true}}, slog.LevelWarn},
		{Event{Name: RiskDayStart, Fields: Fields{"restored": false}}, slog.LevelInfo},
		{Event{Name: NoNewCandle}, slog.LevelDebug},
		{Event{Name: SignalHold}, slog.LevelInfo},
	}
	for _, c := range cases {
		if got := Level(c.ev); got != c.want {
			t.Errorf("%s: got %v, want %v", c.ev.Name, got, c.want)
		}
	}
}

func TestRecorder_Names(t *testing.T) {
	rec := &Recorder{}
	em := NewEmitter(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	em.AddSink(rec)
	em.Emit(context.Background(), InitCash, nil)
	em.Emit(context.Background(), SignalHold, nil)
	if n := rec.Names(); len(n) != 2 || n[0] != InitCash || n[1] != SignalHold {
		t.Errorf("got %v", n)
	}
	rec.Reset()
	if len(rec.Events()) != 0 {
		t.Error("reset")
	}
}
