package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus instruments for the trade engine. Each
// instance carries its own registry, so repeated construction never
// collides on duplicate collectors.
type Metrics struct {
	registry *prometheus.Registry

	LegsPlaced     *prometheus.CounterVec // labels: kind
	LegsCancelled  prometheus.Counter
	TradesOpened   prometheus.Counter
	TradesResolved *prometheus.CounterVec // labels: outcome (stop_loss|target|cancelled)
	PollFaults     prometheus.Counter
	CancelFailures prometheus.Counter
	ActiveMonitors prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		LegsPlaced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "neotrader_legs_placed_total",
			Help: "Total order legs accepted by the broker",
		}, []string{"kind"}),
		LegsCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "neotrader_legs_cancelled_total",
			Help: "Total loser legs cancelled after OCO resolution",
		}),
		TradesOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "neotrader_trades_opened_total",
			Help: "Total bracket trades submitted successfully",
		}),
		TradesResolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "neotrader_trades_resolved_total",
			Help: "Total trades resolved, by outcome",
		}, []string{"outcome"}),
		PollFaults: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "neotrader_poll_faults_total",
			Help: "Transient status poll failures inside OCO monitors",
		}),
		CancelFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "neotrader_cancel_failures_total",
			Help: "Best-effort loser-leg cancels that failed",
		}),
		ActiveMonitors: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "neotrader_active_monitors",
			Help: "OCO monitor goroutines currently running",
		}),
	}

	m.registry.MustRegister(
		m.LegsPlaced,
		m.LegsCancelled,
		m.TradesOpened,
		m.TradesResolved,
		m.PollFaults,
		m.CancelFailures,
		m.ActiveMonitors,
	)
	return m
}

// The increment helpers are nil-safe so components can run without a
// metrics instance (tests, metrics disabled in config).

func (m *Metrics) LegPlaced(kind string) {
	if m == nil {
		return
	}
	m.LegsPlaced.WithLabelValues(kind).Inc()
}

func (m *Metrics) LegCancelled() {
	if m == nil {
		return
	}
	m.LegsCancelled.Inc()
}

func (m *Metrics) TradeOpened() {
	if m == nil {
		return
	}
	m.TradesOpened.Inc()
}

func (m *Metrics) TradeResolved(outcome string) {
	if m == nil {
		return
	}
	m.TradesResolved.WithLabelValues(outcome).Inc()
}

func (m *Metrics) PollFault() {
	if m == nil {
		return
	}
	m.PollFaults.Inc()
}

func (m *Metrics) CancelFailed() {
	if m == nil {
		return
	}
	m.CancelFailures.Inc()
}

func (m *Metrics) MonitorStarted() {
	if m == nil {
		return
	}
	m.ActiveMonitors.Inc()
}

func (m *Metrics) MonitorEnded() {
	if m == nil {
		return
	}
	m.ActiveMonitors.Dec()
}

// Serve exposes this instance's registry as /metrics on addr. It
// blocks, so callers run it in a goroutine.
func (m *Metrics) Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return srv.ListenAndServe()
}
