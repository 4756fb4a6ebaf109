package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the paper trader.
type Metrics struct {
	IterationsTotal *prometheus.CounterVec // labels: result
	DecisionsTotal  *prometheus.CounterVec // labels: signal
	TradesTotal     *prometheus.CounterVec // labels: side
	SkipsTotal      *prometheus.CounterVec // labels: reason
	RiskEventsTotal *prometheus.CounterVec // labels: kind
	LoopErrorsTotal *prometheus.CounterVec // labels: kind

	// Account state, marked to the last close
	Equity       prometheus.Gauge
	Cash         prometheus.Gauge
	BaseQty      prometheus.Gauge
	DayDrawdown  prometheus.Gauge
	LastCandleTS prometheus.Gauge

	FetchDur  prometheus.Histogram
	CommitDur prometheus.Histogram

	// Event fan-out
	RedisPublishDur          prometheus.Histogram
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter
	WSClients                prometheus.Gauge
}

// Iteration results.
const (
	ResultProcessed   = "processed"
	ResultNoNewCandle = "no_new_candle"
	ResultPaused      = "paused"
	ResultHalted      = "halted"
	ResultError       = "error"
)

// NewMetrics creates all metrics and registers them with reg
// (prometheus.DefaultRegisterer when nil).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		IterationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "papertrader_iterations_total",
			Help: "Loop iterations by result",
		}, []string{"result"}),
		DecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "papertrader_decisions_total",
			Help: "Strategy decisions by signal",
		}, []string{"signal"}),
		TradesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "papertrader_trades_total",
			Help: "Simulated fills by side",
		}, []string{"side"}),
		SkipsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "papertrader_execution_skips_total",
			Help: "Signals not executed for lack of cash, position or buffer",
		}, []string{"reason"}),
		RiskEventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "papertrader_risk_events_total",
			Help: "Risk gate events (day_start, pause, halt)",
		}, []string{"kind"}),
		LoopErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "papertrader_loop_errors_total",
			Help: "Failed iterations by error kind",
		}, []string{"kind"}),

		Equity: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "papertrader_equity",
			Help: "Cash plus base marked at the last close",
		}),
		Cash: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "papertrader_cash",
			Help: "Quote cash balance",
		}),
		BaseQty: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "papertrader_base_qty",
			Help: "Base asset quantity held",
		}),
		DayDrawdown: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "papertrader_day_drawdown_ratio",
			Help: "Equity change versus day-open equity (negative is a loss)",
		}),
		LastCandleTS: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "papertrader_last_candle_timestamp_seconds",
			Help: "Start time of the last processed candle",
		}),

		FetchDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "papertrader_fetch_duration_seconds",
			Help:    "Market-data fetch latency",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		}),
		CommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "papertrader_sqlite_commit_duration_seconds",
			Help:    "State store commit latency",
			Buckets: prometheus.DefBuckets,
		}),

		RedisPublishDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "papertrader_redis_publish_duration_seconds",
			Help:    "Redis event publish latency",
			Buckets: prometheus.DefBuckets,
		}),
		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "papertrader_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "papertrader_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "papertrader_ws_clients",
			Help: "Connected websocket event feed clients",
		}),
	}

	reg.MustRegister(
		m.IterationsTotal,
		m.DecisionsTotal,
		m.TradesTotal,
		m.SkipsTotal,
		m.RiskEventsTotal,
		m.LoopErrorsTotal,
		m.Equity,
		m.Cash,
		m.BaseQty,
		m.DayDrawdown,
		m.LastCandleTS,
		m.FetchDur,
		m.CommitDur,
		m.RedisPublishDur,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.WSClients,
	)

	return m
}
