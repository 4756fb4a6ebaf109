package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"papertrader/internal/events"
	"papertrader/internal/model"
	"papertrader/internal/portfolio"
	"papertrader/internal/store/memory"
)

type fixedMark float64

func (m fixedMark) LastPrice() (float64, bool) { return float64(m), m > 0 }

type envelope struct {
	Seq   int64        `json:"seq"`
	Event string       `json:"event"`
	Data  events.Event `json:"data"`
}

func newTestServer(t *testing.T, store AccountReader) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	h := &Handler{Hub: hub, Store: store, Marker: fixedMark(110), Symbol: "BTC/USDT"}
	mux := http.NewServeMux()
	h.Register(mux.Handle)
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readEnvelopes reads frames until n envelopes arrived; frames may carry
// several newline-separated envelopes.
func readEnvelopes(t *testing.T, conn *websocket.Conn, n int) []envelope {
	t.Helper()
	var out []envelope
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for len(out) < n {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v (got %d of %d)", err, len(out), n)
		}
		for _, line := range bytes.Split(msg, []byte{'\n'}) {
			var env envelope
			if err := json.Unmarshal(line, &env); err != nil {
				t.Fatalf("decode %q: %v", line, err)
			}
			out = append(out, env)
		}
	}
	return out
}

func waitClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for hub.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("clients = %d, want %d", hub.ClientCount(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_ReplayThenLive(t *testing.T) {
	hub, srv := newTestServer(t, memory.New())
	ctx := context.Background()

	hub.Publish(ctx, events.Event{Name: events.SignalHold, TraceID: "BTC/USDT-1"})
	hub.Publish(ctx, events.Event{Name: events.PaperBuy, Fields: events.Fields{"qty": 0.5}})

	conn := dial(t, srv, "?since_seq=1")
	got := readEnvelopes(t, conn, 1)
	if got[0].Seq != 2 || got[0].Event != events.PaperBuy {
		t.Fatalf("replayed %+v, want seq 2 paper.buy", got[0])
	}
	if got[0].Data.Fields["qty"] != 0.5 {
		t.Errorf("fields = %v", got[0].Data.Fields)
	}

	waitClients(t, hub, 1)
	hub.Publish(ctx, events.Event{Name: events.PaperSell})
	got = readEnvelopes(t, conn, 1)
	if got[0].Seq != 3 || got[0].Event != events.PaperSell {
		t.Fatalf("live %+v, want seq 3 paper.sell", got[0])
	}
}

func TestHub_NoReplayWithoutSinceSeq(t *testing.T) {
	hub, srv := newTestServer(t, memory.New())
	ctx := context.Background()
	hub.Publish(ctx, events.Event{Name: events.SignalHold})

	conn := dial(t, srv, "")
	waitClients(t, hub, 1)
	hub.Publish(ctx, events.Event{Name: events.PaperBuy})

	got := readEnvelopes(t, conn, 1)
	if got[0].Seq != 2 {
		t.Fatalf("first message seq = %d, want 2 (no replay)", got[0].Seq)
	}
}

func TestHub_PingPong(t *testing.T) {
	hub, srv := newTestServer(t, memory.New())
	conn := dial(t, srv, "")
	waitClients(t, hub, 1)

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"ping":1234}`)); err != nil {
		t.Fatal(err)
	}
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	var pong struct {
		Type string `json:"type"`
		Ping int64  `json:"ping"`
	}
	json.Unmarshal(msg, &pong)
	if pong.Type != "pong" || pong.Ping != 1234 {
		t.Errorf("pong = %s", msg)
	}
}

func TestHub_ClientCountHook(t *testing.T) {
	hub, srv := newTestServer(t, memory.New())
	counts := make(chan int, 4)
	hub.OnClients = func(n int) { counts <- n }

	conn := dial(t, srv, "")
	if n := <-counts; n != 1 {
		t.Fatalf("count after connect = %d", n)
	}
	conn.Close()
	select {
	case n := <-counts:
		if n != 0 {
			t.Fatalf("count after disconnect = %d", n)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no disconnect notification")
	}
}

func TestHandler_Position(t *testing.T) {
	store := memory.New()
	store.SetPosition(context.Background(), model.Position{BaseQty: 2, Cash: 50, AvgPrice: 100})
	_, srv := newTestServer(t, store)

	resp, err := http.Get(srv.URL + "/api/position")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var v PositionView
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatal(err)
	}
	if v.Equity != 270 || v.UnrealizedPnL != 20 || v.LastPrice != 110 {
		t.Errorf("position view = %+v", v)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}
}

func TestHandler_Trades(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	for i, id := range []string{"a", "b", "c"} {
		store.AddTrade(ctx, model.Trade{ID: id, TS: int64(i), Side: model.SideBuy})
	}
	_, srv := newTestServer(t, store)

	resp, err := http.Get(srv.URL + "/api/trades?limit=2")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var trades []model.Trade
	json.NewDecoder(resp.Body).Decode(&trades)
	if len(trades) != 2 || trades[0].ID != "c" {
		t.Errorf("trades = %+v, want 2 newest first", trades)
	}

	bad, err := http.Get(srv.URL + "/api/trades?limit=x")
	if err != nil {
		t.Fatal(err)
	}
	bad.Body.Close()
	if bad.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", bad.StatusCode)
	}
}

func TestHandler_Events(t *testing.T) {
	hub, srv := newTestServer(t, memory.New())
	ctx := context.Background()
	for _, name := range []string{events.SignalHold, events.PaperBuy, events.SignalHold, events.PaperSell, events.SignalHold} {
		hub.Publish(ctx, events.Event{Name: name})
	}
	if hub.Seq() != 5 {
		t.Fatalf("Seq = %d, want 5", hub.Seq())
	}

	get := func(query string) []envelope {
		t.Helper()
		resp, err := http.Get(srv.URL + "/api/events" + query)
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s: status %d", query, resp.StatusCode)
		}
		var envs []envelope
		json.NewDecoder(resp.Body).Decode(&envs)
		return envs
	}

	if envs := get("?from_seq=2&to_seq=4"); len(envs) != 3 || envs[0].Seq != 2 || envs[2].Seq != 4 {
		t.Errorf("range = %+v", envs)
	}
	fills := get("?name=paper.buy,paper.sell")
	if len(fills) != 2 || fills[0].Event != events.PaperBuy || fills[1].Seq != 4 {
		t.Errorf("name filter = %+v", fills)
	}
	if envs := get("?name=signal.hold&limit=1"); len(envs) != 1 || envs[0].Seq != 5 {
		t.Errorf("limit = %+v, want newest hold only", envs)
	}

	bad, err := http.Get(srv.URL + "/api/events?from_seq=4&to_seq=2")
	if err != nil {
		t.Fatal(err)
	}
	bad.Body.Close()
	if bad.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", bad.StatusCode)
	}
}

func TestHandler_PnL(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	store.AddTrade(ctx, model.Trade{ID: "a", Side: model.SideBuy, Qty: 2, Price: 100})
	store.AddTrade(ctx, model.Trade{ID: "b", Side: model.SideSell, Qty: 1, Price: 120})
	_, srv := newTestServer(t, store)

	resp, err := http.Get(srv.URL + "/api/pnl")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var sum portfolio.PnLSummary
	json.NewDecoder(resp.Body).Decode(&sum)
	// mark 110: realized 20 on the first unit, unrealized 10 on the second
	if sum.RealizedPnL != 20 || sum.UnrealizedPnL != 10 || sum.Wins != 1 {
		t.Errorf("pnl = %+v", sum)
	}
}
