// Package gateway serves the trader's live event feed over websocket and a
// small read-only REST view of the paper account.
package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"papertrader/internal/events"
)

const (
	clientSendBuffer = 256
	backlogCapacity  = 500
)

// Hub fans events out to websocket clients. It implements events.Sink and
// never blocks the publisher: a client whose buffer is full misses messages.
type Hub struct {
	log *slog.Logger

	mu      sync.RWMutex
	clients map[*Client]bool
	seq     int64
	backlog *Backlog

	// OnClients is called with the client count after every change.
	OnClients func(n int)
}

var _ events.Sink = (*Hub)(nil)

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		log:     logger.With("component", "ws"),
		clients: make(map[*Client]bool),
		backlog: NewBacklog(backlogCapacity),
	}
}

// Publish wraps ev in a sequenced envelope and broadcasts it.
func (h *Hub) Publish(_ context.Context, ev events.Event) error {
	h.mu.Lock()
	h.seq++
	seq := h.seq
	env := buildEnvelope(ev, seq)
	h.backlog.Append(Entry{Seq: seq, Event: ev, Envelope: env})
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.enqueue(env)
	}
	return nil
}

// buildEnvelope produces {"seq":N,"event":...} with the event's own JSON
// spliced in as "data".
func buildEnvelope(ev events.Event, seq int64) []byte {
	data := ev.JSON()
	buf := make([]byte, 0, len(data)+64)
	buf = append(buf, `{"seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, `,"event":`...)
	name, _ := json.Marshal(ev.Name)
	buf = append(buf, name...)
	buf = append(buf, `,"data":`...)
	buf = append(buf, data...)
	buf = append(buf, '}')
	return buf
}

// Seq returns the last assigned sequence number.
func (h *Hub) Seq() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.seq
}

// Backlog returns the retained feed history.
func (h *Hub) Backlog() *Backlog {
	return h.backlog
}

// Attach registers an upgraded connection. Envelopes after sinceSeq still in
// the backlog are queued first (sinceSeq < 0 skips catch-up).
func (h *Hub) Attach(conn *websocket.Conn, sinceSeq int64) *Client {
	c := &Client{
		conn: conn,
		send: make(chan []byte, clientSendBuffer),
		hub:  h,
	}

	h.mu.Lock()
	if sinceSeq >= 0 {
		for _, e := range h.backlog.Select(Query{FromSeq: sinceSeq + 1, Limit: clientSendBuffer}) {
			select {
			case c.send <- e.Envelope:
			default:
			}
		}
	}
	h.clients[c] = true
	count := len(h.clients)
	h.mu.Unlock()

	h.log.Info("ws client connected", "clients", count)
	h.notify(count)

	go c.writePump()
	go c.readPump()
	return c
}

// RemoveClient removes a client from the hub.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	count := len(h.clients)
	close(c.send)
	h.mu.Unlock()

	h.log.Info("ws client disconnected", "clients", count)
	h.notify(count)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	for _, c := range clients {
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutdown"),
			time.Now().Add(time.Second))
		c.conn.Close()
	}
}

func (h *Hub) notify(n int) {
	if h.OnClients != nil {
		h.OnClients(n)
	}
}
