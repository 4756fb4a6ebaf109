package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"

	"papertrader/internal/model"
	"papertrader/internal/portfolio"
)

const pnlScanLimit = 1_000_000

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// AccountReader is the read side of the state store.
type AccountReader interface {
	Position(ctx context.Context) (model.Position, error)
	Trades(ctx context.Context, limit int) ([]model.Trade, error)
}

// Marker reports the latest mark price seen by the trader.
type Marker interface {
	LastPrice() (price float64, ok bool)
}

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

// PositionView is the /api/position response.
type PositionView struct {
	Symbol        string  `json:"symbol"`
	BaseQty       float64 `json:"base_qty"`
	Cash          float64 `json:"cash"`
	AvgPrice      float64 `json:"avg_price"`
	LastPrice     float64 `json:"last_price,omitempty"`
	Equity        float64 `json:"equity,omitempty"`
	UnrealizedPnL float64 `json:"unrealized_pnl,omitempty"`
}

// Handler serves /ws and the /api routes.
type Handler struct {
	Hub    *Hub
	Store  AccountReader
	Marker Marker // optional
	Symbol string
}

// Register adds all routes via handle, e.g. a mux's Handle method.
func (h *Handler) Register(handle func(pattern string, handler http.Handler)) {
	handle("/ws", http.HandlerFunc(h.serveWS))
	handle("/api/position", http.HandlerFunc(h.servePosition))
	handle("/api/trades", http.HandlerFunc(h.serveTrades))
	handle("/api/events", http.HandlerFunc(h.serveEvents))
	handle("/api/pnl", http.HandlerFunc(h.servePnL))
}

// serveWS upgrades the connection. ?since_seq=N first sends backlog events after N.
func (h *Handler) serveWS(w http.ResponseWriter, r *http.Request) {
	since := int64(-1)
	if s := r.URL.Query().Get("since_seq"); s != "" {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil && n >= 0 {
			since = n
		}
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Hub.log.Warn("ws upgrade failed", "error", err)
		return
	}
	h.Hub.Attach(conn, since)
}

func (h *Handler) servePosition(w http.ResponseWriter, r *http.Request) {
	SetCORS(w)
	pos, err := h.Store.Position(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	view := PositionView{Symbol: h.Symbol, BaseQty: pos.BaseQty, Cash: pos.Cash, AvgPrice: pos.AvgPrice}
	if h.Marker != nil {
		if px, ok := h.Marker.LastPrice(); ok {
			view.LastPrice = px
			view.Equity = pos.Equity(px)
			view.UnrealizedPnL = pos.UnrealizedPnL(px)
		}
	}
	writeJSON(w, view)
}

// serveTrades returns ?limit=N (default 50, max 1000) ledger rows, newest first.
func (h *Handler) serveTrades(w http.ResponseWriter, r *http.Request) {
	SetCORS(w)
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		if n > 1000 {
			n = 1000
		}
		limit = n
	}
	trades, err := h.Store.Trades(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if trades == nil {
		trades = []model.Trade{}
	}
	writeJSON(w, trades)
}

// servePnL replays the whole ledger; it is small for a single paper account.
func (h *Handler) servePnL(w http.ResponseWriter, r *http.Request) {
	SetCORS(w)
	trades, err := h.Store.Trades(r.Context(), pnlScanLimit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	for i, j := 0, len(trades)-1; i < j; i, j = i+1, j-1 {
		trades[i], trades[j] = trades[j], trades[i]
	}
	var mark float64
	if h.Marker != nil {
		mark, _ = h.Marker.LastPrice()
	}
	writeJSON(w, portfolio.Summarize(trades, mark))
}

// serveEvents returns backlog envelopes for ?from_seq=&to_seq=&name=&limit=
// so clients can backfill gaps after a reconnect. name may repeat or be a
// comma-separated list.
func (h *Handler) serveEvents(w http.ResponseWriter, r *http.Request) {
	SetCORS(w)
	q, err := parseQuery(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	entries := h.Hub.Backlog().Select(q)
	msgs := make([]json.RawMessage, len(entries))
	for i, e := range entries {
		msgs[i] = e.Envelope
	}
	writeJSON(w, msgs)
}

func parseQuery(v url.Values) (Query, error) {
	var q Query
	var err error
	if s := v.Get("from_seq"); s != "" {
		if q.FromSeq, err = strconv.ParseInt(s, 10, 64); err != nil || q.FromSeq < 0 {
			return q, errors.New("from_seq must be a non-negative integer")
		}
	}
	if s := v.Get("to_seq"); s != "" {
		if q.ToSeq, err = strconv.ParseInt(s, 10, 64); err != nil || q.ToSeq < 0 {
			return q, errors.New("to_seq must be a non-negative integer")
		}
	}
	if q.ToSeq > 0 && q.FromSeq > q.ToSeq {
		return q, errors.New("from_seq must be <= to_seq")
	}
	if s := v.Get("limit"); s != "" {
		if q.Limit, err = strconv.Atoi(s); err != nil || q.Limit <= 0 {
			return q, errors.New("limit must be a positive integer")
		}
	}
	for _, raw := range v["name"] {
		for _, n := range strings.Split(raw, ",") {
			if n = strings.TrimSpace(n); n != "" {
				q.Names = append(q.Names, n)
			}
		}
	}
	return q, nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
