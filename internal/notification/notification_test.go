package notification

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"papertrader/internal/events"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type captureNotifier struct {
	mu     sync.Mutex
	alerts []Alert
	err    error
}

func (c *captureNotifier) Send(_ context.Context, a Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alerts = append(c.alerts, a)
	return c.err
}

func (c *captureNotifier) all() []Alert {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Alert(nil), c.alerts...)
}

func TestAlertSink_Mapping(t *testing.T) {
	cn := &captureNotifier{}
	sink := NewAlertSink(cn, quiet())
	ctx := context.Background()

	sink.Publish(ctx, events.Event{Name: events.SignalHold})
	sink.Publish(ctx, events.Event{Name: events.PaperBuy, Fields: events.Fields{"side": "buy", "symbol": "BTC/USDT", "qty": 0.5}})
	sink.Publish(ctx, events.Event{Name: events.LoopError, Fields: events.Fields{"error": "boom", "backoff_s": 60}})
	sink.Close()

	got := cn.all()
	if len(got) != 2 {
		t.Fatalf("alerts = %d, want 2: %+v", len(got), got)
	}
	if got[0].Level != AlertInfo || !strings.Contains(got[0].Title, "buy BTC/USDT") {
		t.Errorf("fill alert = %+v", got[0])
	}
	if got[1].Level != AlertWarning || !strings.Contains(got[1].Message, "boom") {
		t.Errorf("error alert = %+v", got[1])
	}
}

func TestAlertSink_HaltOncePerDay(t *testing.T) {
	cn := &captureNotifier{}
	sink := NewAlertSink(cn, quiet())
	ctx := context.Background()

	halt := func(day string) {
		sink.Publish(ctx, events.Event{Name: events.RiskHaltDailyLoss, Fields: events.Fields{"day": day}})
	}
	halt("2026-03-10")
	halt("2026-03-10")
	halt("2026-03-10")
	halt("2026-03-11")
	sink.Close()

	got := cn.all()
	if len(got) != 2 {
		t.Fatalf("halt alerts = %d, want 2 (one per day)", len(got))
	}
	for _, a := range got {
		if a.Level != AlertCritical {
			t.Errorf("level = %s, want CRITICAL", a.Level)
		}
	}
}

func TestAlertSink_DeliveryErrorDoesNotFailPublish(t *testing.T) {
	cn := &captureNotifier{err: errors.New("down")}
	sink := NewAlertSink(cn, quiet())
	if err := sink.Publish(context.Background(), events.Event{Name: events.PaperSell}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	sink.Close()
	if len(cn.all()) != 1 {
		t.Fatal("alert not attempted")
	}
	// publishing after close is a no-op
	if err := sink.Publish(context.Background(), events.Event{Name: events.PaperSell}); err != nil {
		t.Fatal(err)
	}
}

func TestWebhookNotifier(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, quiet())
	if err := n.Send(context.Background(), Alert{Level: AlertCritical, Title: "t", Message: "m"}); err != nil {
		t.Fatal(err)
	}
	if got["level"] != "CRITICAL" || got["title"] != "t" || got["ts"] == nil {
		t.Errorf("payload = %v", got)
	}
}

func TestWebhookNotifier_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	if err := NewWebhookNotifier(srv.URL, quiet()).Send(context.Background(), Alert{}); err == nil {
		t.Fatal("expected error on 502")
	}
}

func TestTelegramNotifier(t *testing.T) {
	var path string
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		json.NewDecoder(r.Body).Decode(&body)
	}))
	defer srv.Close()

	n := NewTelegramNotifier("TOKEN", "42", srv.URL, quiet())
	if err := n.Send(context.Background(), Alert{Level: AlertWarning, Title: "a.b", Message: "x"}); err != nil {
		t.Fatal(err)
	}
	if path != "/botTOKEN/sendMessage" {
		t.Errorf("path = %s", path)
	}
	if body["chat_id"] != "42" || !strings.Contains(body["text"].(string), `a\.b`) {
		t.Errorf("body = %v", body)
	}
}

func TestMulti_JoinsErrors(t *testing.T) {
	ok := &captureNotifier{}
	bad := &captureNotifier{err: errors.New("x")}
	err := Multi{ok, bad, NewLogNotifier(quiet())}.Send(context.Background(), Alert{Title: "t"})
	if err == nil || len(ok.all()) != 1 {
		t.Fatalf("err = %v, ok sends = %d", err, len(ok.all()))
	}
}
