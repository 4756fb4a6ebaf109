package marketdata

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestKuCoin(t *testing.T, h http.HandlerFunc, now time.Time) *KuCoin {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewKuCoin(Options{BaseURL: srv.URL, RateLimitRPS: 1000, Now: func() time.Time { return now }})
}

func TestKuCoinSymbol(t *testing.T) {
	if got := KuCoinSymbol("btc/usdt"); got != "BTC-USDT" {
		t.Errorf("got %s", got)
	}
}

func TestKuCoin_FetchCandles(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 3, 20, 0, time.UTC)
	var gotQuery string
	k := newTestKuCoin(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/market/candles" {
			t.Errorf("path: %s", r.URL.Path)
		}
		gotQuery = r.URL.Query().Get("symbol") + " " + r.URL.Query().Get("type")
		// Newest first; 12:03 is still forming.
		fmt.Fprint(w, `{"code":"200000","data":[
			["1773144180","103","104","105","102","1.5","150"],
			["1773144120","102","103","104","101","1.0","100"],
			["1773144060","101","102","103","100","2.0","200"],
			["1773144000","100","101","102","99","3.0","300"]
		]}`)
	}, now)

	candles, err := k.FetchCandles(context.Background(), "BTC/USDT", "1m", 2)
	if err != nil {
		t.Fatal(err)
	}
	if gotQuery != "BTC-USDT 1min" {
		t.Errorf("query: %q", gotQuery)
	}
	if len(candles) != 2 {
		t.Fatalf("expected 2 closed candles, got %d", len(candles))
	}
	if candles[0].TS != 1773144060000 || candles[1].TS != 1773144120000 {
		t.Errorf("timestamps: %d %d", candles[0].TS, candles[1].TS)
	}
	c := candles[1]
	if c.Open != 102 || c.Close != 103 || c.High != 104 || c.Low != 101 || c.Volume != 1.0 {
		t.Errorf("field mapping: %+v", c)
	}
}

func TestKuCoin_RateLimited(t *testing.T) {
	now := time.Now()
	k := newTestKuCoin(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"code":"429000","msg":"Too Many Requests"}`)
	}, now)
	_, err := k.FetchCandles(context.Background(), "BTC/USDT", "1m", 10)
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}

	// Code 429000 with HTTP 200 is also a rate limit.
	k = newTestKuCoin(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code":"429000","msg":"slow down"}`)
	}, now)
	if _, err := k.FetchCandles(context.Background(), "BTC/USDT", "1m", 10); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited for code 429000, got %v", err)
	}
}

func TestKuCoin_APIErrorIsNotRateLimit(t *testing.T) {
	k := newTestKuCoin(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"code":"400100","msg":"bad symbol"}`)
	}, time.Now())
	_, err := k.FetchCandles(context.Background(), "NOPE/USDT", "1m", 10)
	if err == nil || errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected plain error, got %v", err)
	}
}

func TestKuCoin_NoClosedCandles(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 3, 20, 0, time.UTC)
	k := newTestKuCoin(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code":"200000","data":[["1773144180","1","1","1","1","1","1"]]}`)
	}, now)
	if _, err := k.FetchCandles(context.Background(), "BTC/USDT", "1m", 10); !errors.Is(err, ErrNoCandles) {
		t.Fatalf("expected ErrNoCandles, got %v", err)
	}
}

func TestKuCoin_UnsupportedTimeframe(t *testing.T) {
	k := NewKuCoin(Options{})
	if _, err := k.FetchCandles(context.Background(), "BTC/USDT", "7m", 10); !errors.Is(err, ErrUnsupportedTimeframe) {
		t.Fatalf("got %v", err)
	}
}

func TestKuCoin_CheckSymbol(t *testing.T) {
	k := newTestKuCoin(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("symbol") == "BTC-USDT" {
			fmt.Fprint(w, `{"code":"200000","data":{"price":"65000.1","size":"0.1"}}`)
			return
		}
		fmt.Fprint(w, `{"code":"200000","data":null}`)
	}, time.Now())

	if err := k.CheckSymbol(context.Background(), "BTC/USDT"); err != nil {
		t.Errorf("BTC/USDT: %v", err)
	}
	if err := k.CheckSymbol(context.Background(), "FOO/BAR"); !errors.Is(err, ErrUnsupportedSymbol) {
		t.Errorf("FOO/BAR: expected ErrUnsupportedSymbol, got %v", err)
	}
}
