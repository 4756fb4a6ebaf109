package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"papertrader/internal/model"
)

const (
	KuCoinBaseURL = "https://api.kucoin.com" // spot public API

	kucoinOK          = "200000"
	kucoinRateLimited = "429000"

	defaultKuCoinRPS = 5
	defaultTimeout   = 20 * time.Second
)

var kucoinTypes = map[string]string{
	"1m":  "1min",
	"3m":  "3min",
	"5m":  "5min",
	"15m": "15min",
	"30m": "30min",
	"1h":  "1hour",
	"2h":  "2hour",
	"4h":  "4hour",
	"1d":  "1day",
}

// KuCoin reads spot candles from the public KuCoin REST API. No credentials
// are needed for market data.
type KuCoin struct {
	baseURL     string
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	log         *slog.Logger
	now         func() time.Time
}

// NewKuCoin creates the adapter. Zero-valued options fall back to defaults.
func NewKuCoin(opts Options) *KuCoin {
	base := opts.BaseURL
	if base == "" {
		base = KuCoinBaseURL
	}
	rps := opts.RateLimitRPS
	if rps <= 0 {
		rps = defaultKuCoinRPS
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &KuCoin{
		baseURL:     strings.TrimRight(base, "/"),
		httpClient:  &http.Client{Timeout: timeout},
		rateLimiter: rate.NewLimiter(rate.Limit(rps), int(rps)+1),
		log:         logger.With("component", "kucoin"),
		now:         now,
	}
}

func (k *KuCoin) Name() string { return "kucoin" }

// KuCoinSymbol converts "BTC/USDT" to KuCoin's "BTC-USDT".
func KuCoinSymbol(symbol string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(symbol), "/", "-"))
}

type kucoinResponse struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// get performs one rate-limited public GET and returns the data payload.
func (k *KuCoin) get(ctx context.Context, path string, q url.Values) (json.RawMessage, error) {
	if err := k.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("kucoin rate limiter: %w", err)
	}

	reqURL := k.baseURL + path + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("kucoin create request: %w", err)
	}

	resp, err := k.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("kucoin send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("kucoin read body: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("kucoin %s: HTTP 429: %w", path, ErrRateLimited)
	}

	var r kucoinResponse
	if err := json.Unmarshal(body, &r); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("kucoin %s: HTTP %s: %s", path, resp.Status, truncate(body))
		}
		return nil, fmt.Errorf("kucoin %s: decode: %w", path, err)
	}
	if r.Code == kucoinRateLimited {
		return nil, fmt.Errorf("kucoin %s: code %s %s: %w", path, r.Code, r.Msg, ErrRateLimited)
	}
	if resp.StatusCode != http.StatusOK || r.Code != kucoinOK {
		return nil, fmt.Errorf("kucoin %s: HTTP %d code %s: %s", path, resp.StatusCode, r.Code, r.Msg)
	}
	return r.Data, nil
}

// FetchCandles returns up to limit closed candles, oldest first.
// KuCoin rows are [time(s), open, close, high, low, volume, turnover] as
// strings, newest first.
func (k *KuCoin) FetchCandles(ctx context.Context, symbol, timeframe string, limit int) ([]model.Candle, error) {
	typ, ok := kucoinTypes[timeframe]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedTimeframe, timeframe)
	}
	period, err := model.TimeframeDuration(timeframe)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedTimeframe, err)
	}

	now := k.now()
	// One extra bucket covers the still-forming candle that gets dropped.
	start := now.Add(-time.Duration(limit+1) * period)

	q := url.Values{}
	q.Set("symbol", KuCoinSymbol(symbol))
	q.Set("type", typ)
	q.Set("startAt", strconv.FormatInt(start.Unix(), 10))
	q.Set("endAt", strconv.FormatInt(now.Unix(), 10))

	began := time.Now()
	data, err := k.get(ctx, "/api/v1/market/candles", q)
	if err != nil {
		return nil, err
	}

	var rows [][]string
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("kucoin candles decode: %w", err)
	}

	candles := make([]model.Candle, 0, len(rows))
	for _, row := range rows {
		c, err := parseKuCoinRow(row)
		if err != nil {
			return nil, err
		}
		candles = append(candles, c)
	}
	sort.Slice(candles, func(i, j int) bool { return candles[i].TS < candles[j].TS })
	candles = closedOnly(candles, period, now, limit)

	k.log.Debug("kucoin candles fetched",
		"symbol", symbol, "timeframe", timeframe, "rows", len(rows),
		"closed", len(candles), "latency_ms", time.Since(began).Milliseconds())

	if len(candles) == 0 {
		return nil, fmt.Errorf("kucoin %s %s: %w", symbol, timeframe, ErrNoCandles)
	}
	return candles, nil
}

func parseKuCoinRow(row []string) (model.Candle, error) {
	if len(row) < 6 {
		return model.Candle{}, fmt.Errorf("kucoin candle row: want >= 6 fields, got %d", len(row))
	}
	var vals [6]float64
	for i := 0; i < 6; i++ {
		v, err := strconv.ParseFloat(row[i], 64)
		if err != nil {
			return model.Candle{}, fmt.Errorf("kucoin candle row field %d %q: %w", i, row[i], err)
		}
		vals[i] = v
	}
	return model.Candle{
		TS:     int64(vals[0]) * 1000,
		Open:   vals[1],
		Close:  vals[2],
		High:   vals[3],
		Low:    vals[4],
		Volume: vals[5],
	}, nil
}

// CheckSymbol verifies the exchange lists symbol via the level-1 ticker.
func (k *KuCoin) CheckSymbol(ctx context.Context, symbol string) error {
	q := url.Values{}
	q.Set("symbol", KuCoinSymbol(symbol))
	data, err := k.get(ctx, "/api/v1/market/orderbook/level1", q)
	if err != nil {
		return err
	}
	var ticker struct {
		Price string `json:"price"`
	}
	if len(data) == 0 || string(data) == "null" {
		return fmt.Errorf("%w: %s", ErrUnsupportedSymbol, symbol)
	}
	if err := json.Unmarshal(data, &ticker); err != nil || ticker.Price == "" {
		return fmt.Errorf("%w: %s", ErrUnsupportedSymbol, symbol)
	}
	return nil
}

func truncate(b []byte) string {
	const maxLen = 200
	if len(b) > maxLen {
		return string(b[:maxLen]) + "..."
	}
	return string(b)
}
