package notification

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"papertrader/internal/events"
)

const (
	alertQueueSize = 64
	sendTimeout    = 15 * time.Second
)

// AlertSink turns trading events into alerts and delivers them from a
// background goroutine. Fills are INFO, loop errors WARNING and the daily
// loss halt CRITICAL, sent once per trading day.
type AlertSink struct {
	n   Notifier
	log *slog.Logger

	queue chan Alert
	done  chan struct{}

	mu      sync.Mutex
	haltDay string
	closed  bool
	dropped int
}

var _ events.Sink = (*AlertSink)(nil)

// NewAlertSink starts the delivery goroutine. Call Close to drain it.
func NewAlertSink(n Notifier, logger *slog.Logger) *AlertSink {
	if logger == nil {
		logger = slog.Default()
	}
	s := &AlertSink{
		n:     n,
		log:   logger.With("component", "alerts"),
		queue: make(chan Alert, alertQueueSize),
		done:  make(chan struct{}),
	}
	go s.run()
	return s
}

// Publish maps ev to an alert and enqueues it. Events without an alert
// mapping are ignored. A full queue drops the alert.
func (s *AlertSink) Publish(_ context.Context, ev events.Event) error {
	alert, ok := s.alertFor(ev)
	if !ok {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	select {
	case s.queue <- alert:
	default:
		s.dropped++
		s.log.Warn("alert queue full, dropping", "title", alert.Title)
	}
	return nil
}

func (s *AlertSink) alertFor(ev events.Event) (Alert, bool) {
	f := ev.Fields
	switch ev.Name {
	case events.PaperBuy, events.PaperSell:
		return Alert{
			Level: AlertInfo,
			Title: fmt.Sprintf("Paper %s %v", f["side"], f["symbol"]),
			Message: fmt.Sprintf("qty=%v price=%v fee=%v cash=%v base=%v",
				f["qty"], f["price"], f["fee"], f["cash_after"], f["base_after"]),
		}, true
	case events.RiskHaltDailyLoss:
		day := fmt.Sprint(f["day"])
		s.mu.Lock()
		repeat := s.haltDay == day
		s.haltDay = day
		s.mu.Unlock()
		if repeat {
			return Alert{}, false
		}
		return Alert{
			Level: AlertCritical,
			Title: "Daily loss limit reached",
			Message: fmt.Sprintf("day=%s equity=%v day_open_equity=%v drawdown=%v limit=%v",
				day, f["equity"], f["day_open_equity"], f["drawdown"], f["max_loss_pct"]),
		}, true
	case events.LoopError:
		return Alert{
			Level:   AlertWarning,
			Title:   "Trading loop error",
			Message: fmt.Sprintf("%v (retry in %vs)", f["error"], f["backoff_s"]),
		}, true
	}
	return Alert{}, false
}

func (s *AlertSink) run() {
	defer close(s.done)
	for alert := range s.queue {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		if err := s.n.Send(ctx, alert); err != nil {
			s.log.Warn("alert delivery failed", "title", alert.Title, "error", err)
		}
		cancel()
	}
}

// Dropped returns the number of alerts lost to a full queue.
func (s *AlertSink) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Close stops accepting alerts and waits until queued ones are sent.
func (s *AlertSink) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()
	<-s.done
}
